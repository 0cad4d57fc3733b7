package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"reelboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q picks the transaction when one is in flight.
func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func conflictOr(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

const projectColumns = `id,company_id,name,status,COALESCE(due_date,''),COALESCE(delivery_date,''),COALESCE(assignee,''),is_delivered,video_axis,COALESCE(color,''),completion_length,progress,COALESCE(raw_material_url,''),COALESCE(script_url,''),COALESCE(final_video_url,''),created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var (
		p         domain.Project
		delivered int
		length    sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Status, &p.DueDate, &p.DeliveryDate, &p.Assignee, &delivered,
		&p.VideoAxis, &p.Color, &length, &p.Progress, &p.RawMaterialURL, &p.ScriptURL, &p.FinalVideoURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Delivered = delivered != 0
	if length.Valid {
		n := int(length.Int64)
		p.CompletionLength = &n
	}
	return p, nil
}

// InsertProject stores a project and returns its new id.
func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO projects(company_id,name,status,due_date,delivery_date,assignee,is_delivered,video_axis,color,completion_length,progress,raw_material_url,script_url,final_video_url,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.CompanyID, p.Name, p.Status, nullable(p.DueDate), nullable(p.DeliveryDate), nullable(p.Assignee), boolInt(p.Delivered),
		p.VideoAxis, nullable(p.Color), nullableIntPtr(p.CompletionLength), p.Progress, nullable(p.RawMaterialURL),
		nullable(p.ScriptURL), nullable(p.FinalVideoURL), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateProject rewrites every mutable column of a project.
func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE projects SET company_id=?,name=?,status=?,due_date=?,delivery_date=?,assignee=?,is_delivered=?,video_axis=?,color=?,completion_length=?,progress=?,raw_material_url=?,script_url=?,final_video_url=?,updated_at=? WHERE id=?`,
		p.CompanyID, p.Name, p.Status, nullable(p.DueDate), nullable(p.DeliveryDate), nullable(p.Assignee), boolInt(p.Delivered),
		p.VideoAxis, nullable(p.Color), nullableIntPtr(p.CompletionLength), p.Progress, nullable(p.RawMaterialURL),
		nullable(p.ScriptURL), nullable(p.FinalVideoURL), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	return r.GetProjectTx(ctx, nil, id)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Project, error) {
	return scanProject(r.q(tx).QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

type ProjectFilters struct {
	CompanyID int64
	Status    string
	Delivered *bool
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.CompanyID > 0 {
		clauses = append(clauses, "company_id=?")
		args = append(args, f.CompanyID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Delivered != nil {
		clauses = append(clauses, "is_delivered=?")
		args = append(args, boolInt(*f.Delivered))
	}
	query := fmt.Sprintf(`SELECT %s FROM projects WHERE %s ORDER BY COALESCE(due_date,'9999-12-31') ASC, id ASC`, projectColumns, strings.Join(clauses, " AND "))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
