package accounts

import "context"

type Repository interface {
	UserIDForHealthCode(ctx context.Context, appID, healthCode string) (string, error)
}
