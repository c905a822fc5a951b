// Package memory provides in-memory implementations of the cloud ports.
// They back the offline/default configuration and give tests a way to
// simulate remote failures deterministically.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"kakeibo/internal/cloud"
	"kakeibo/internal/core"
)

// ErrUnavailable stands in for every remote failure cause; the app never
// distinguishes them.
var ErrUnavailable = errors.New("remote store unavailable")

const urlPrefix = "https://storage.example.test/kakeibo/"

// ObjectStore is an in-memory cloud.ObjectStore with failure injection.
type ObjectStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	unavailable bool
	failNames   map[string]bool
}

func NewObjectStore() *ObjectStore {
	return &ObjectStore{
		objects:   make(map[string][]byte),
		failNames: make(map[string]bool),
	}
}

// SetUnavailable makes every subsequent call fail, simulating the remote
// being unreachable.
func (s *ObjectStore) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

// FailUploads makes uploads fail for object names containing any of the
// given fragments. Matching by fragment lets tests target a file by name
// even though object names carry a generated unique prefix.
func (s *ObjectStore) FailUploads(fragments ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fragments {
		s.failNames[f] = true
	}
}

func (s *ObjectStore) Upload(_ context.Context, objectName, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return "", ErrUnavailable
	}
	for f := range s.failNames {
		if strings.Contains(objectName, f) {
			return "", ErrUnavailable
		}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[objectName] = buf
	return urlPrefix + objectName, nil
}

func (s *ObjectStore) Delete(_ context.Context, objectURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return ErrUnavailable
	}
	name := objectURL
	if len(objectURL) > len(urlPrefix) && objectURL[:len(urlPrefix)] == urlPrefix {
		name = objectURL[len(urlPrefix):]
	}
	delete(s.objects, name)
	return nil
}

// Object returns a stored object's bytes, for test assertions.
func (s *ObjectStore) Object(objectName string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[objectName]
	return data, ok
}

// Len returns the number of stored objects.
func (s *ObjectStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// DocumentStore is an in-memory cloud.DocumentStore with an offline switch.
type DocumentStore struct {
	mu           sync.Mutex
	offline      bool
	budgets      map[string]core.BudgetSetting
	transactions map[string]core.Transaction
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		budgets:      make(map[string]core.BudgetSetting),
		transactions: make(map[string]core.Transaction),
	}
}

func (s *DocumentStore) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

func (s *DocumentStore) GetBudget(_ context.Context, key string) (*core.BudgetSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return nil, ErrUnavailable
	}
	b, ok := s.budgets[key]
	if !ok {
		return nil, cloud.ErrNotFound
	}
	return &b, nil
}

func (s *DocumentStore) SetBudget(_ context.Context, b core.BudgetSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return ErrUnavailable
	}
	s.budgets[b.Key()] = b
	return nil
}

func (s *DocumentStore) ListBudgets(_ context.Context) (map[string]core.BudgetSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return nil, ErrUnavailable
	}
	out := make(map[string]core.BudgetSetting, len(s.budgets))
	for k, v := range s.budgets {
		out[k] = v
	}
	return out, nil
}

func (s *DocumentStore) QueryBudgetsBySite(_ context.Context, siteID string) (map[string]core.BudgetSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return nil, ErrUnavailable
	}
	out := make(map[string]core.BudgetSetting)
	for k, v := range s.budgets {
		if v.SiteID == siteID {
			out[k] = v
		}
	}
	return out, nil
}

func (s *DocumentStore) SetTransaction(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return ErrUnavailable
	}
	s.transactions[tx.ID] = tx
	return nil
}

func (s *DocumentStore) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return ErrUnavailable
	}
	delete(s.transactions, id)
	return nil
}

// Transaction returns a mirrored transaction, for test assertions.
func (s *DocumentStore) Transaction(id string) (core.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	return tx, ok
}

// Compile-time port checks.
var (
	_ cloud.ObjectStore   = (*ObjectStore)(nil)
	_ cloud.DocumentStore = (*DocumentStore)(nil)
)
