package userdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/users"
)

const dataColumns = `id, user_id, filename, data_type, size_in_bytes, comments, encoding, sloc, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanData(row interface{ Scan(...any) error }) (*models.UserData, error) {
	d := &models.UserData{}
	err := row.Scan(&d.ID, &d.UserID, &d.Filename, &d.DataType, &d.SizeInBytes,
		&d.Comments, &d.Encoding, &d.Location, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *PostgresRepository) Create(ctx context.Context, d *models.UserData) (*models.UserData, error) {
	query := `
		INSERT INTO users_data (user_id, filename, data_type, size_in_bytes, comments, encoding, sloc)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + dataColumns

	out, err := scanData(r.db.QueryRowContext(ctx, query,
		d.UserID, d.Filename, d.DataType, d.SizeInBytes, d.Comments, d.Encoding, d.Location))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Search(ctx context.Context, userID int64, f models.UserDataFilter, limit int) ([]*models.UserData, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}

	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	like := func(col, v string) {
		if v != "" {
			add(col+` ILIKE $%d ESCAPE '\'`, "%"+users.EscapeLike(v)+"%")
		}
	}

	if f.DataID != nil {
		add("id = $%d", *f.DataID)
	}
	like("filename", f.Filename)
	like("data_type", f.DataType)
	like("comments", f.Comments)
	like("encoding", f.Encoding)
	if f.AboveBytes != nil {
		add("size_in_bytes > $%d", *f.AboveBytes)
	}
	if f.BelowBytes != nil {
		add("size_in_bytes < $%d", *f.BelowBytes)
	}

	args = append(args, limit)
	query := `SELECT ` + dataColumns + ` FROM users_data WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.UserData
	for rows.Next() {
		d, err := scanData(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Update(ctx context.Context, userID, dataID int64, upd models.UserDataUpdate) (*models.UserData, error) {
	if upd.Empty() {
		return nil, common.ErrorMalformed
	}

	var sets []string
	var args []any
	set := func(col string, v *string) {
		if v != nil {
			args = append(args, *v)
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	set("filename", upd.Filename)
	set("data_type", upd.DataType)
	set("comments", upd.Comments)
	set("encoding", upd.Encoding)
	sets = append(sets, "updated_at = now()")

	args = append(args, dataID, userID)
	query := `UPDATE users_data SET ` + strings.Join(sets, ", ") +
		fmt.Sprintf(` WHERE id = $%d AND user_id = $%d RETURNING `, len(args)-1, len(args)) + dataColumns

	d, err := scanData(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}
