// Package accounts resolves participant account ids from health codes.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bridgeupload/internal/common"
	"github.com/dmitrijs2005/bridgeupload/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// UserIDForHealthCode returns the account id owning healthCode in appID,
// or common.ErrorNotFound.
func (r *PostgresRepository) UserIDForHealthCode(ctx context.Context, appID, healthCode string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM accounts WHERE app_id=$1 AND health_code=$2`, appID, healthCode).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrorNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to select account: %w", err)
	}
	return id, nil
}
