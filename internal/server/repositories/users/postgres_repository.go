package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const accountColumns = `id, email, password, state, verified, role, token_version, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.State, &a.Verified, &a.Role,
		&a.TokenVersion, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return common.ErrorConflict
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO users (email, password, state, verified, role)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING ` + accountColumns

	a, err := scanAccount(r.db.QueryRowContext(ctx, query,
		account.Email, account.PasswordHash, account.State, account.Verified, account.Role))
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE id = $1`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE email = $1`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id int64, upd models.AccountUpdate) (*models.Account, error) {
	if upd.Empty() {
		return nil, common.ErrorMalformed
	}

	var sets []string
	var args []any
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	bump := false
	if upd.Email != nil {
		add("email = $%d", *upd.Email)
	}
	if upd.Verified != nil {
		add("verified = $%d", *upd.Verified)
	}
	if upd.PasswordHash != nil {
		add("password = $%d", upd.PasswordHash)
		bump = true
	}
	if upd.State != nil {
		add("state = $%d", *upd.State)
		bump = true
	}
	if upd.Role != nil {
		add("role = $%d", *upd.Role)
	}
	if bump {
		sets = append(sets, "token_version = token_version + 1")
	}
	sets = append(sets, "updated_at = now()")

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), accountColumns)

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id int64, hash []byte) error {
	query :=
		`UPDATE users
		 SET password = $1, token_version = token_version + 1, updated_at = now()
		 WHERE id = $2`

	res, err := r.db.ExecContext(ctx, query, hash, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) SetVerified(ctx context.Context, id int64) error {
	query := `UPDATE users SET verified = 1, updated_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id int64) (*models.Account, error) {
	query :=
		`UPDATE users
		 SET state = 1, token_version = token_version + 1, updated_at = now()
		 WHERE id = $1
		 RETURNING ` + accountColumns

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

func (r *PostgresRepository) Search(ctx context.Context, email string, limit int) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users
		 WHERE email ILIKE $1 ESCAPE '\'
		 ORDER BY id
		 LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, "%"+EscapeLike(email)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// EscapeLike escapes the LIKE wildcards in s so it matches literally.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
