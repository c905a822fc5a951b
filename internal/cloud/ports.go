// Package cloud defines the ports for the two external stores the app
// depends on: object storage for attachment bytes and a document database
// for budgets and mirrored transactions. Both are assumed fallible; callers
// treat any error uniformly as "remote unavailable" and fall back to local
// persistence.
package cloud

import (
	"context"
	"errors"

	"kakeibo/internal/core"
)

// ErrNotFound reports that a document does not exist in the cloud
// collection. Like the local store, absence is a normal condition.
var ErrNotFound = errors.New("document not found")

type (
	// ObjectStore uploads attachment bytes and hands back a URL the
	// transaction record keeps as its only reference to the object.
	ObjectStore interface {
		Upload(ctx context.Context, objectName, contentType string, data []byte) (url string, err error)
		Delete(ctx context.Context, objectURL string) error
	}

	// DocumentStore is the keyed document database. The app needs only
	// get/set/list plus one query-by-field, and tolerates the store being
	// unreachable.
	DocumentStore interface {
		GetBudget(ctx context.Context, key string) (*core.BudgetSetting, error)
		SetBudget(ctx context.Context, b core.BudgetSetting) error
		ListBudgets(ctx context.Context) (map[string]core.BudgetSetting, error)
		QueryBudgetsBySite(ctx context.Context, siteID string) (map[string]core.BudgetSetting, error)

		SetTransaction(ctx context.Context, tx core.Transaction) error
		DeleteTransaction(ctx context.Context, id string) error
	}
)
