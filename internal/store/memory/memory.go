// Package memory is an in-memory store.Store. It is safe for concurrent use
// and keeps nothing across restarts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	uploads      map[string]domain.Upload
	accounts     map[string]domain.Account
	categories   map[string]domain.Category
	rules        map[string]domain.CategoryRule
	transactions map[string][]domain.Transaction // by upload id, sequence order
	batches      map[string]map[int]domain.ProcessingBatch
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		uploads:      make(map[string]domain.Upload),
		accounts:     make(map[string]domain.Account),
		categories:   make(map[string]domain.Category),
		rules:        make(map[string]domain.CategoryRule),
		transactions: make(map[string][]domain.Transaction),
		batches:      make(map[string]map[int]domain.ProcessingBatch),
	}
}

func (s *Store) Close() error { return nil }

// uploads

func (s *Store) CreateUpload(_ context.Context, u *domain.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.uploads {
		if existing.CompanyID == u.CompanyID && existing.FileHash == u.FileHash {
			return fmt.Errorf("CreateUpload: company %s hash %s: %w", u.CompanyID, u.FileHash, store.ErrConflict)
		}
	}
	if _, ok := s.uploads[u.ID]; ok {
		return fmt.Errorf("CreateUpload: %s: %w", u.ID, store.ErrConflict)
	}
	if u.UploadedAt.IsZero() {
		u.UploadedAt = time.Now().UTC()
	}
	s.uploads[u.ID] = copyUpload(*u)
	return nil
}

func (s *Store) GetUpload(_ context.Context, id string) (*domain.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.uploads[id]
	if !ok {
		return nil, fmt.Errorf("GetUpload: %s: %w", id, store.ErrNotFound)
	}
	out := copyUpload(u)
	return &out, nil
}

func (s *Store) FindUploadByHash(_ context.Context, companyID, fileHash string) (*domain.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.uploads {
		if u.CompanyID == companyID && u.FileHash == fileHash {
			out := copyUpload(u)
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) ListUploads(_ context.Context, companyID string) ([]*domain.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Upload
	for _, u := range s.uploads {
		if u.CompanyID == companyID {
			c := copyUpload(u)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListUploadsByStatus(_ context.Context, statuses ...domain.UploadStatus) ([]*domain.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[domain.UploadStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []*domain.Upload
	for _, u := range s.uploads {
		if want[u.Status] {
			c := copyUpload(u)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.Before(out[j].UploadedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateUpload(_ context.Context, u *domain.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.uploads[u.ID]; !ok {
		return fmt.Errorf("UpdateUpload: %s: %w", u.ID, store.ErrNotFound)
	}
	s.uploads[u.ID] = copyUpload(*u)
	return nil
}

func copyUpload(u domain.Upload) domain.Upload {
	if u.ProcessedAt != nil {
		t := *u.ProcessedAt
		u.ProcessedAt = &t
	}
	if u.ProcessingLog != nil {
		u.ProcessingLog = append([]byte(nil), u.ProcessingLog...)
	}
	return u
}

// accounts

func (s *Store) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("GetAccount: %s: %w", id, store.ErrNotFound)
	}
	return &a, nil
}

func (s *Store) FindAccountByBankInfo(_ context.Context, companyID, bankCode, accountNumber string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.Account
	for _, a := range s.accounts {
		if a.CompanyID != companyID || a.BankCode != bankCode || a.AccountNumber != accountNumber {
			continue
		}
		a := a
		if best == nil || (a.Active && !best.Active) || (a.Active == best.Active && a.CreatedAt.Before(best.CreatedAt)) {
			best = &a
		}
	}
	return best, nil
}

func (s *Store) DefaultAccount(_ context.Context, companyID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []domain.Account
	for _, a := range s.accounts {
		if a.CompanyID == companyID && a.Active {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.IsDefault != b.IsDefault {
			return a.IsDefault
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return &candidates[0], nil
}

func (s *Store) CreateAccount(_ context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; ok {
		return fmt.Errorf("CreateAccount: %s: %w", a.ID, store.ErrConflict)
	}
	ts := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = ts
	}
	a.UpdatedAt = ts
	s.accounts[a.ID] = *a
	return nil
}

func (s *Store) UpdateAccount(_ context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; !ok {
		return fmt.Errorf("UpdateAccount: %s: %w", a.ID, store.ErrNotFound)
	}
	a.UpdatedAt = time.Now().UTC()
	s.accounts[a.ID] = *a
	return nil
}

// categories and rules

func (s *Store) ListCategories(_ context.Context, companyID string) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Category
	for _, c := range s.categories {
		if c.CompanyID == companyID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) FindCategoryByName(_ context.Context, companyID, name string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.categories {
		if c.CompanyID == companyID && c.Name == name {
			return &c, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateCategory(_ context.Context, c *domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if existing.CompanyID == c.CompanyID && existing.Name == c.Name {
			return fmt.Errorf("CreateCategory: %q: %w", c.Name, store.ErrConflict)
		}
	}
	ts := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = ts
	}
	c.UpdatedAt = ts
	s.categories[c.ID] = *c
	return nil
}

func (s *Store) ListRules(_ context.Context, companyID string, activeOnly bool) ([]domain.CategoryRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.CategoryRule
	for _, r := range s.rules {
		if r.CompanyID != companyID || (activeOnly && !r.Active) {
			continue
		}
		out = append(out, copyRule(r))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (s *Store) FindRuleConflict(_ context.Context, companyID, pattern, categoryID string) (*domain.CategoryRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.CategoryRule
	for _, r := range s.rules {
		if r.CompanyID != companyID || r.Pattern != pattern || r.CategoryID != categoryID {
			continue
		}
		if best == nil || r.CreatedAt.Before(best.CreatedAt) ||
			(r.CreatedAt.Equal(best.CreatedAt) && strings.Compare(r.ID, best.ID) < 0) {
			c := copyRule(r)
			best = &c
		}
	}
	return best, nil
}

func (s *Store) CreateRule(_ context.Context, r *domain.CategoryRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[r.ID]; ok {
		return fmt.Errorf("CreateRule: %s: %w", r.ID, store.ErrConflict)
	}
	ts := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = ts
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = ts
	}
	s.rules[r.ID] = copyRule(*r)
	return nil
}

func (s *Store) UpdateRule(_ context.Context, r *domain.CategoryRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[r.ID]; !ok {
		return fmt.Errorf("UpdateRule: %s: %w", r.ID, store.ErrNotFound)
	}
	r.UpdatedAt = time.Now().UTC()
	s.rules[r.ID] = copyRule(*r)
	return nil
}

func (s *Store) RecordRuleUsage(_ context.Context, ruleID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[ruleID]
	if !ok {
		return fmt.Errorf("RecordRuleUsage: %s: %w", ruleID, store.ErrNotFound)
	}
	r.UsageCount++
	used := at.UTC()
	r.LastUsedAt = &used
	s.rules[ruleID] = r
	return nil
}

func copyRule(r domain.CategoryRule) domain.CategoryRule {
	if r.Examples != nil {
		r.Examples = append([]string(nil), r.Examples...)
	}
	if r.LastUsedAt != nil {
		t := *r.LastUsedAt
		r.LastUsedAt = &t
	}
	return r
}

// transactions and batches

func (s *Store) SaveTransactions(_ context.Context, txs []domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range txs {
		existing := s.transactions[t.UploadID]
		idx := sort.Search(len(existing), func(i int) bool { return existing[i].Sequence >= t.Sequence })
		if idx < len(existing) && existing[idx].Sequence == t.Sequence {
			continue
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		existing = append(existing, domain.Transaction{})
		copy(existing[idx+1:], existing[idx:])
		existing[idx] = t
		s.transactions[t.UploadID] = existing
	}
	return nil
}

func (s *Store) ListTransactions(_ context.Context, uploadID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Transaction(nil), s.transactions[uploadID]...), nil
}

func (s *Store) CountTransactions(_ context.Context, uploadID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.transactions[uploadID]), nil
}

func (s *Store) StartBatch(_ context.Context, b *domain.ProcessingBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.StartedAt.IsZero() {
		b.StartedAt = time.Now().UTC()
	}
	if b.Status == "" {
		b.Status = domain.BatchProcessing
	}
	rec := *b
	rec.SuccessCount, rec.FailureCount, rec.Error, rec.CompletedAt = 0, 0, "", nil

	byNumber, ok := s.batches[b.UploadID]
	if !ok {
		byNumber = make(map[int]domain.ProcessingBatch)
		s.batches[b.UploadID] = byNumber
	}
	byNumber[b.BatchNumber] = rec
	return nil
}

func (s *Store) FinishBatch(_ context.Context, b *domain.ProcessingBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.batches[b.UploadID][b.BatchNumber]
	if !ok {
		return fmt.Errorf("FinishBatch: upload %s batch %d: %w", b.UploadID, b.BatchNumber, store.ErrNotFound)
	}
	if b.CompletedAt == nil {
		ts := time.Now().UTC()
		b.CompletedAt = &ts
	}
	completed := *b.CompletedAt
	rec.SuccessCount = b.SuccessCount
	rec.FailureCount = b.FailureCount
	rec.Status = b.Status
	rec.Error = b.Error
	rec.CompletedAt = &completed
	s.batches[b.UploadID][b.BatchNumber] = rec
	return nil
}

func (s *Store) ListBatches(_ context.Context, uploadID string) ([]domain.ProcessingBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ProcessingBatch
	for _, b := range s.batches[uploadID] {
		if b.CompletedAt != nil {
			t := *b.CompletedAt
			b.CompletedAt = &t
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchNumber < out[j].BatchNumber })
	return out, nil
}
