package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/store"
)

const categoryColumns = `id, company_id, name, description, type, parent_type, color_hex, icon,
	active, created_at, updated_at`

func (s *Store) ListCategories(ctx context.Context, companyID string) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+categoryColumns+` FROM categories WHERE company_id = ? ORDER BY name
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("ListCategories: scan: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListCategories: rows: %w", err)
	}
	return out, nil
}

func (s *Store) FindCategoryByName(ctx context.Context, companyID, name string) (*domain.Category, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT `+categoryColumns+` FROM categories WHERE company_id = ? AND name = ?
	`, companyID, name)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindCategoryByName: scan: %w", err)
	}
	return c, nil
}

func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) error {
	ts := now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = ts
	}
	c.UpdatedAt = ts
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO categories(`+categoryColumns+`)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.CompanyID, c.Name, c.Description, c.Type, c.ParentType, c.ColorHex, c.Icon,
		c.Active, c.CreatedAt.UTC(), c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("CreateCategory: %q: %w", c.Name, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("CreateCategory: insert: %w", err)
	}
	return nil
}

func scanCategory(sc scanner) (*domain.Category, error) {
	var c domain.Category
	err := sc.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Description, &c.Type, &c.ParentType, &c.ColorHex, &c.Icon,
		&c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

const ruleColumns = `id, company_id, category_id, rule_pattern, rule_type, confidence, active,
	usage_count, source_type, examples, created_at, updated_at, last_used_at`

func (s *Store) ListRules(ctx context.Context, companyID string, activeOnly bool) ([]domain.CategoryRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM category_rules WHERE company_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY confidence DESC, created_at, id`

	rows, err := s.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("ListRules: query: %w", err)
	}
	defer rows.Close()

	var out []domain.CategoryRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("ListRules: scan: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListRules: rows: %w", err)
	}
	return out, nil
}

func (s *Store) FindRuleConflict(ctx context.Context, companyID, pattern, categoryID string) (*domain.CategoryRule, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT `+ruleColumns+` FROM category_rules
	WHERE company_id = ? AND rule_pattern = ? AND category_id = ?
	ORDER BY created_at, id
	LIMIT 1
	`, companyID, pattern, categoryID)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindRuleConflict: scan: %w", err)
	}
	return r, nil
}

func (s *Store) CreateRule(ctx context.Context, r *domain.CategoryRule) error {
	examples, err := encodeExamples(r.Examples)
	if err != nil {
		return fmt.Errorf("CreateRule: %w", err)
	}
	ts := now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = ts
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = ts
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO category_rules(`+ruleColumns+`)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.CompanyID, r.CategoryID, r.Pattern, string(r.Type), r.Confidence, r.Active,
		r.UsageCount, r.Source, examples, r.CreatedAt.UTC(), r.UpdatedAt.UTC(), nullTime(r.LastUsedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("CreateRule: %s: %w", r.ID, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("CreateRule: insert: %w", err)
	}
	return nil
}

func (s *Store) UpdateRule(ctx context.Context, r *domain.CategoryRule) error {
	examples, err := encodeExamples(r.Examples)
	if err != nil {
		return fmt.Errorf("UpdateRule: %w", err)
	}
	r.UpdatedAt = now()
	res, err := s.db.ExecContext(ctx, `
	UPDATE category_rules SET
		category_id = ?, rule_pattern = ?, rule_type = ?, confidence = ?, active = ?,
		usage_count = ?, source_type = ?, examples = ?, updated_at = ?, last_used_at = ?
	WHERE id = ?
	`, r.CategoryID, r.Pattern, string(r.Type), r.Confidence, r.Active,
		r.UsageCount, r.Source, examples, r.UpdatedAt, nullTime(r.LastUsedAt), r.ID)
	if err != nil {
		return fmt.Errorf("UpdateRule: %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateRule: %s: %w", r.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) RecordRuleUsage(ctx context.Context, ruleID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE category_rules SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?
	`, at.UTC(), ruleID)
	if err != nil {
		return fmt.Errorf("RecordRuleUsage: %s: %w", ruleID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("RecordRuleUsage: %s: %w", ruleID, store.ErrNotFound)
	}
	return nil
}

func scanRule(sc scanner) (*domain.CategoryRule, error) {
	var (
		r          domain.CategoryRule
		ruleType   string
		examples   string
		lastUsedAt sql.NullTime
	)
	err := sc.Scan(&r.ID, &r.CompanyID, &r.CategoryID, &r.Pattern, &ruleType, &r.Confidence, &r.Active,
		&r.UsageCount, &r.Source, &examples, &r.CreatedAt, &r.UpdatedAt, &lastUsedAt)
	if err != nil {
		return nil, err
	}
	r.Type = domain.RuleType(ruleType)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	r.LastUsedAt = timePtr(lastUsedAt)
	if examples != "" {
		if err := json.Unmarshal([]byte(examples), &r.Examples); err != nil {
			return nil, fmt.Errorf("decode examples of rule %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

func encodeExamples(examples []string) (string, error) {
	if examples == nil {
		examples = []string{}
	}
	b, err := json.Marshal(examples)
	if err != nil {
		return "", fmt.Errorf("encode examples: %w", err)
	}
	return string(b), nil
}
