// Package repomanager binds repository implementations to a database
// handle and owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/userdata"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/users"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/verifications"
)

// RepositoryManager hands out repositories bound to whichever DBTX the
// caller holds: the request's pooled connection or a transaction on it.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	ResetTokens(db dbx.DBTX) resettokens.Repository
	Verifications(db dbx.DBTX) verifications.Repository
	UserData(db dbx.DBTX) userdata.Repository
}
