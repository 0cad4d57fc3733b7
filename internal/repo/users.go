package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"reelboard/internal/domain"
)

const userColumns = `id,name,email,role,password_hash,is_active,created_at`

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u      domain.User
		active int
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	u.Active = active != 0
	return u, err
}

// InsertUser stores a user. Emails are compared case-insensitively.
func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(name,email,role,password_hash,is_active,created_at) VALUES (?,?,?,?,?,?)`,
		u.Name, strings.ToLower(strings.TrimSpace(u.Email)), u.Role, u.PasswordHash, boolInt(u.Active), u.CreatedAt)
	if err != nil {
		return 0, conflictOr(err)
	}
	return res.LastInsertId()
}

func (r Repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, strings.ToLower(strings.TrimSpace(email))))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
