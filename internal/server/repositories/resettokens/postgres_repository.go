package resettokens

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

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB, *sql.Conn or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.ResetToken) (*models.ResetToken, error) {
	query := `
		INSERT INTO users_otp (user_id, token, email, state, exp_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		token.UserID, token.Token, token.Email, common.TokenIssued, token.ExpiresAt,
	).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	token.State = common.TokenIssued
	return token, nil
}

func (r *PostgresRepository) Find(ctx context.Context, userID int64, email, token string) (*models.ResetToken, error) {
	query := `
		SELECT id, user_id, token, email, state, exp_date, consumed_date, created_at
		FROM users_otp
		WHERE user_id = $1 AND email = $2 AND token = $3
		ORDER BY id DESC
		LIMIT 1
	`
	t := &models.ResetToken{}
	var consumed sql.NullTime
	err := r.db.QueryRowContext(ctx, query, userID, email, token).
		Scan(&t.ID, &t.UserID, &t.Token, &t.Email, &t.State, &t.ExpiresAt, &consumed, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if consumed.Valid {
		t.ConsumedAt = &consumed.Time
	}
	return t, nil
}

func (r *PostgresRepository) Consume(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE users_otp
		SET state = $1, consumed_date = $2
		WHERE id = $3 AND state = $4
	`
	res, err := r.db.ExecContext(ctx, query, common.TokenConsumed, at, id, common.TokenIssued)
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
		return common.ErrAlreadyConsumed
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
