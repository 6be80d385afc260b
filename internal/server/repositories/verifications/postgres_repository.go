package verifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/server/models"
)

const verificationColumns = `id, user_id, token, email, state, exp_date, verify_date, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanVerification(row interface{ Scan(...any) error }) (*models.Verification, error) {
	v := &models.Verification{}
	var verified sql.NullTime
	if err := row.Scan(&v.ID, &v.UserID, &v.Token, &v.Email, &v.State, &v.ExpiresAt,
		&verified, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	if verified.Valid {
		v.VerifiedAt = &verified.Time
	}
	return v, nil
}

func (r *PostgresRepository) Create(ctx context.Context, v *models.Verification) (*models.Verification, error) {
	query := `
		INSERT INTO users_verified (user_id, token, email, state, exp_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + verificationColumns

	out, err := scanVerification(r.db.QueryRowContext(ctx, query,
		v.UserID, v.Token, v.Email, v.State, v.ExpiresAt))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Reset(ctx context.Context, v *models.Verification) (*models.Verification, error) {
	query := `
		INSERT INTO users_verified (user_id, token, email, state, exp_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET token = EXCLUDED.token,
		    email = EXCLUDED.email,
		    state = EXCLUDED.state,
		    exp_date = EXCLUDED.exp_date,
		    verify_date = NULL,
		    updated_at = now()
		RETURNING ` + verificationColumns

	out, err := scanVerification(r.db.QueryRowContext(ctx, query,
		v.UserID, v.Token, v.Email, v.State, v.ExpiresAt))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) FindByUser(ctx context.Context, userID int64) (*models.Verification, error) {
	query := `SELECT ` + verificationColumns + ` FROM users_verified WHERE user_id = $1`

	v, err := scanVerification(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, userID int64, token string, at time.Time) error {
	query := `
		UPDATE users_verified
		SET state = $1, verify_date = $2, updated_at = now()
		WHERE user_id = $3 AND token = $4 AND state = $5
	`
	res, err := r.db.ExecContext(ctx, query, common.TokenConsumed, at, userID, token, common.TokenIssued)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrAlreadyVerified
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
