package repo

import (
	"context"
	"database/sql"
	"errors"

	"reelboard/internal/domain"
)

// InsertCompany stores a company; duplicate codes yield ErrConflict.
func (r Repo) InsertCompany(ctx context.Context, tx *sql.Tx, c domain.Company) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO companies(name,code,created_at) VALUES (?,?,?)`, c.Name, c.Code, c.CreatedAt)
	if err != nil {
		return 0, conflictOr(err)
	}
	return res.LastInsertId()
}

func (r Repo) GetCompany(ctx context.Context, id int64) (domain.Company, error) {
	return r.GetCompanyTx(ctx, nil, id)
}

func (r Repo) GetCompanyTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Company, error) {
	var c domain.Company
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,name,code,created_at FROM companies WHERE id=?`, id).Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,code,created_at FROM companies ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Company
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// CompanyNames maps company ids to names.
func (r Repo) CompanyNames(ctx context.Context) (map[int64]string, error) {
	companies, err := r.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(companies))
	for _, c := range companies {
		names[c.ID] = c.Name
	}
	return names, nil
}
