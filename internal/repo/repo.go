package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"missiondesk/internal/db"
	"missiondesk/internal/domain"
)

type Repo struct {
	DB *db.DB
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) queryer {
	if tx != nil {
		return tx
	}
	return r.DB.DB
}

const userColumns = `id,name,role,department,phone,password_hash,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var role string
	err := row.Scan(&u.ID, &u.Name, &role, &u.Department, &u.Phone, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	u.Role = domain.Role(role)
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.q(tx).ExecContext(ctx, r.DB.Rebind(`INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?,?)`),
		u.ID, u.Name, string(u.Role), u.Department, u.Phone, u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Name, ErrDuplicate)
	}
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return r.GetUserTx(ctx, nil, id)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	return scanUser(r.q(tx).QueryRowContext(ctx, r.DB.Rebind(`SELECT `+userColumns+` FROM users WHERE id=?`), id))
}

// GetUserByName looks a user up by login name.
func (r Repo) GetUserByName(ctx context.Context, name string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, r.DB.Rebind(`SELECT `+userColumns+` FROM users WHERE name=?`), name))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// HasAdmin reports whether at least one administrator exists.
func (r Repo) HasAdmin(ctx context.Context) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, r.DB.Rebind(`SELECT COUNT(*) FROM users WHERE role=?`), string(domain.RoleAdmin)).Scan(&n)
	return n > 0, err
}

// UserPatch holds the columns to change; nil fields are left alone.
type UserPatch struct {
	Name         *string
	Role         *domain.Role
	Department   *string
	Phone        *string
	PasswordHash *string
}

func (r Repo) UpdateUser(ctx context.Context, tx *sql.Tx, id string, p UserPatch) error {
	var (
		fields []string
		args   []any
	)
	if p.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *p.Name)
	}
	if p.Role != nil {
		fields = append(fields, "role=?")
		args = append(args, string(*p.Role))
	}
	if p.Department != nil {
		fields = append(fields, "department=?")
		args = append(args, *p.Department)
	}
	if p.Phone != nil {
		fields = append(fields, "phone=?")
		args = append(args, *p.Phone)
	}
	if p.PasswordHash != nil {
		fields = append(fields, "password_hash=?")
		args = append(args, *p.PasswordHash)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.q(tx).ExecContext(ctx, r.DB.Rebind(fmt.Sprintf(`UPDATE users SET %s WHERE id=?`, strings.Join(fields, ","))), args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("user name: %w", ErrDuplicate)
	}
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteUser(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, r.DB.Rebind(`DELETE FROM users WHERE id=?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE")
		}
	}
	return false
}
