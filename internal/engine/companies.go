package engine

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"

	"reelboard/internal/domain"
	"reelboard/internal/events"
	"reelboard/internal/repo"
)

type CompanyCreateOptions struct {
	Name  string
	Code  string
	Actor string
}

// CompanyDetail is a company with its projects.
type CompanyDetail struct {
	domain.Company
	Projects []domain.Project `json:"projects"`
}

func (e Engine) CreateCompany(ctx context.Context, opts CompanyCreateOptions) (domain.Company, error) {
	c := domain.Company{
		Name:      strings.TrimSpace(opts.Name),
		Code:      strings.ToUpper(strings.TrimSpace(opts.Code)),
		CreatedAt: e.timestamp(),
	}
	if c.Name == "" {
		return domain.Company{}, ValidationError{Field: "name", Reason: "is required"}
	}
	if c.Code == "" {
		return domain.Company{}, ValidationError{Field: "code", Reason: "is required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Company{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertCompany(ctx, tx, c)
	if err != nil {
		return domain.Company{}, err
	}
	c.ID = id
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:       events.CompanyCreated,
		EntityKind: events.KindCompany,
		EntityID:   events.ID(id),
		Actor:      opts.Actor,
		Payload:    events.EventPayload{"name": c.Name, "code": c.Code},
	}); err != nil {
		return domain.Company{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Company{}, err
	}
	e.Log.Info("company created", zap.Int64("company_id", id), zap.String("code", c.Code))
	return c, nil
}

func (e Engine) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	return e.Repo.ListCompanies(ctx)
}

func (e Engine) GetCompany(ctx context.Context, id int64) (CompanyDetail, error) {
	c, err := e.Repo.GetCompany(ctx, id)
	if err != nil {
		return CompanyDetail{}, err
	}
	projects, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{CompanyID: id})
	if err != nil {
		return CompanyDetail{}, err
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	return CompanyDetail{Company: c, Projects: projects}, nil
}

// companyName resolves a name for task labels; unknown companies yield "".
func (e Engine) companyName(ctx context.Context, tx *sql.Tx, id int64) string {
	c, err := e.Repo.GetCompanyTx(ctx, tx, id)
	if err != nil {
		return ""
	}
	return c.Name
}
