package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// ObjectStore stores an object under key and returns its location.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// UploadMeta describes an uploaded object.
type UploadMeta struct {
	Filename string
	DataType string
	Comments string
	Encoding string
}

// UserDataService stores user uploads in object storage and tracks them in
// the users_data table.
type UserDataService struct {
	repomanager repomanager.RepositoryManager
	store       ObjectStore
	prefix      string
	logger      logging.Logger
	now         func() time.Time
}

func NewUserDataService(m repomanager.RepositoryManager, store ObjectStore, prefix string, logger logging.Logger) *UserDataService {
	return &UserDataService{
		repomanager: m,
		store:       store,
		prefix:      prefix,
		logger:      logger.With("module", "userdata"),
		now:         time.Now,
	}
}

// StorageKey returns a fresh object key {prefix}/{user}/{yyyy}/{mm}/{dd}/{uuid}.
func (s *UserDataService) StorageKey(userID int64) string {
	d := s.now().UTC()
	return fmt.Sprintf("%s/%d/%04d/%02d/%02d/%s", s.prefix, userID, d.Year(), int(d.Month()), d.Day(), uuid.New())
}

func (s *UserDataService) Upload(ctx context.Context, db dbx.DBTX, owner *models.Account, meta UploadMeta, body []byte) (*models.UserData, error) {
	key := s.StorageKey(owner.ID)

	loc, err := s.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), "application/octet-stream")
	if err != nil {
		s.logger.Error(ctx, "object upload failed", "account_id", owner.ID, "key", key, "error", err)
		return nil, fmt.Errorf("put object: %w", err)
	}

	d, err := s.repomanager.UserData(db).Create(ctx, &models.UserData{
		UserID:      owner.ID,
		Filename:    meta.Filename,
		DataType:    meta.DataType,
		SizeInBytes: int64(len(body)),
		Comments:    meta.Comments,
		Encoding:    meta.Encoding,
		Location:    loc,
	})
	if err != nil {
		s.logger.Error(ctx, "record upload failed", "account_id", owner.ID, "location", loc, "error", err)
		return nil, err
	}

	s.logger.Info(ctx, "data uploaded", "account_id", owner.ID, "data_id", d.ID, "size", d.SizeInBytes)
	return d, nil
}

func (s *UserDataService) Search(ctx context.Context, db dbx.DBTX, owner *models.Account, f models.UserDataFilter) ([]*models.UserData, error) {
	return s.repomanager.UserData(db).Search(ctx, owner.ID, f, maxSearchResults)
}

func (s *UserDataService) Update(ctx context.Context, db dbx.DBTX, owner *models.Account, dataID int64, upd models.UserDataUpdate) (*models.UserData, error) {
	return s.repomanager.UserData(db).Update(ctx, owner.ID, dataID, upd)
}
