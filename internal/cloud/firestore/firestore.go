// Package firestore adapts Cloud Firestore to the cloud.DocumentStore
// port: one collection of budget settings keyed by their composite key, and
// one collection mirroring transaction records.
package firestore

import (
	"context"
	"fmt"
	"time"

	fs "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"kakeibo/internal/cloud"
	"kakeibo/internal/core"
)

const (
	defaultBudgetCollection      = "budgetSettings"
	defaultTransactionCollection = "transactions"
)

type Client struct {
	client       *fs.Client
	budgets      string
	transactions string
}

type budgetDoc struct {
	SiteID        string `firestore:"siteId"`
	Year          int    `firestore:"year"`
	Month         int    `firestore:"month"`
	MonthlyBudget int64  `firestore:"monthlyBudget"`
	SavingsGoal   int64  `firestore:"savingsGoal"`
}

// transactionDoc is the cloud-resident shape of a record. Attachment
// references are flattened into the id/url split the pre-existing cloud
// data already uses, so documents written here stay readable by older
// clients.
type transactionDoc struct {
	Type         string    `firestore:"type"`
	Amount       int64     `firestore:"amount"`
	Category     string    `firestore:"category"`
	Content      string    `firestore:"content"`
	Date         string    `firestore:"date"`
	ImageIDs     []string  `firestore:"imageIds"`
	ImageURLs    []string  `firestore:"imageUrls"`
	DocumentIDs  []string  `firestore:"documentIds"`
	DocumentURLs []string  `firestore:"documentUrls"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func NewClient(ctx context.Context, projectID string, opts ...option.ClientOption) (*Client, error) {
	client, err := fs.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &Client{
		client:       client,
		budgets:      defaultBudgetCollection,
		transactions: defaultTransactionCollection,
	}, nil
}

func (c *Client) GetBudget(ctx context.Context, key string) (*core.BudgetSetting, error) {
	snap, err := c.client.Collection(c.budgets).Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, cloud.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get budget %s: %w", key, err)
	}
	return decodeBudget(snap)
}

func (c *Client) SetBudget(ctx context.Context, b core.BudgetSetting) error {
	_, err := c.client.Collection(c.budgets).Doc(b.Key()).Set(ctx, budgetDoc{
		SiteID:        b.SiteID,
		Year:          b.Year,
		Month:         b.Month,
		MonthlyBudget: int64(b.MonthlyBudget),
		SavingsGoal:   int64(b.SavingsGoal),
	})
	if err != nil {
		return fmt.Errorf("set budget %s: %w", b.Key(), err)
	}
	return nil
}

func (c *Client) ListBudgets(ctx context.Context) (map[string]core.BudgetSetting, error) {
	return c.collectBudgets(c.client.Collection(c.budgets).Documents(ctx))
}

func (c *Client) QueryBudgetsBySite(ctx context.Context, siteID string) (map[string]core.BudgetSetting, error) {
	it := c.client.Collection(c.budgets).Where("siteId", "==", siteID).Documents(ctx)
	return c.collectBudgets(it)
}

func (c *Client) collectBudgets(it *fs.DocumentIterator) (map[string]core.BudgetSetting, error) {
	defer it.Stop()

	out := make(map[string]core.BudgetSetting)
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate budgets: %w", err)
		}
		b, err := decodeBudget(snap)
		if err != nil {
			return nil, err
		}
		out[snap.Ref.ID] = *b
	}
	return out, nil
}

func (c *Client) SetTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := c.client.Collection(c.transactions).Doc(tx.ID).Set(ctx, transactionDoc{
		Type:         string(tx.Type),
		Amount:       int64(tx.Amount),
		Category:     tx.Category,
		Content:      tx.Content,
		Date:         string(tx.Date),
		ImageIDs:     core.LocalIDs(tx.Images),
		ImageURLs:    core.RemoteURLs(tx.Images),
		DocumentIDs:  core.LocalIDs(tx.Documents),
		DocumentURLs: core.RemoteURLs(tx.Documents),
		UpdatedAt:    tx.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("set transaction %s: %w", tx.ID, err)
	}
	return nil
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	// Firestore deletes are idempotent; a missing document is not an error.
	if _, err := c.client.Collection(c.transactions).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func decodeBudget(snap *fs.DocumentSnapshot) (*core.BudgetSetting, error) {
	var doc budgetDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode budget %s: %w", snap.Ref.ID, err)
	}
	return &core.BudgetSetting{
		SiteID:        doc.SiteID,
		Year:          doc.Year,
		Month:         doc.Month,
		MonthlyBudget: core.Money(doc.MonthlyBudget),
		SavingsGoal:   core.Money(doc.SavingsGoal),
	}, nil
}
