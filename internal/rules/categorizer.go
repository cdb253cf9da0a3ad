package rules

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/ofx"
	"github.com/dvloznov/ofx-ingest/internal/store"
)

// defaultAIConfidence is used when the suggester does not report one.
const defaultAIConfidence = 0.7

// Result is the outcome of categorizing one statement item.
type Result struct {
	CategoryID *string
	RuleID     *string
	Confidence float64
	Source     domain.CategorizationSource
}

// Suggestion is a category proposed by an AI model.
type Suggestion struct {
	CategoryName string
	Confidence   float64
}

// Suggester proposes a category name, chosen among categoryNames, for a
// transaction the rules did not match.
type Suggester interface {
	SuggestCategory(ctx context.Context, description string, amount decimal.Decimal, categoryNames []string) (*Suggestion, error)
}

type companySnapshot struct {
	rules      []domain.CategoryRule
	categories []domain.Category
}

// Categorizer runs the rule matcher, then the optional AI suggester, then the
// unclassified fallback. Rules and categories are cached per company until
// Refresh.
type Categorizer struct {
	rules      store.RuleRepository
	categories store.CategoryRepository
	suggester  Suggester
	log        zerolog.Logger
	now        func() time.Time

	mu    sync.Mutex
	cache map[string]*companySnapshot
}

// NewCategorizer returns a Categorizer. suggester may be nil.
func NewCategorizer(rules store.RuleRepository, categories store.CategoryRepository, suggester Suggester, log zerolog.Logger) *Categorizer {
	return &Categorizer{
		rules:      rules,
		categories: categories,
		suggester:  suggester,
		log:        log,
		now:        time.Now,
		cache:      make(map[string]*companySnapshot),
	}
}

// Refresh drops the cached rules and categories of companyID.
func (c *Categorizer) Refresh(companyID string) {
	c.mu.Lock()
	delete(c.cache, companyID)
	c.mu.Unlock()
}

func (c *Categorizer) snapshot(ctx context.Context, companyID string) (*companySnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if snap, ok := c.cache[companyID]; ok {
		return snap, nil
	}

	rules, err := c.rules.ListRules(ctx, companyID, true)
	if err != nil {
		return nil, fmt.Errorf("Categorize: load rules: %w", err)
	}
	categories, err := c.categories.ListCategories(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("Categorize: load categories: %w", err)
	}

	snap := &companySnapshot{rules: rules, categories: categories}
	c.cache[companyID] = snap
	return snap, nil
}

func (c *Categorizer) Categorize(ctx context.Context, companyID string, item ofx.Item) (Result, error) {
	snap, err := c.snapshot(ctx, companyID)
	if err != nil {
		return Result{}, err
	}

	if r := Match([]string{item.Description(), item.Memo, item.PayeeName}, snap.rules); r != nil {
		if err := c.rules.RecordRuleUsage(ctx, r.ID, c.now()); err != nil {
			c.log.Warn().Err(err).Str("rule_id", r.ID).Msg("failed to record rule usage")
		}
		categoryID, ruleID := r.CategoryID, r.ID
		return Result{CategoryID: &categoryID, RuleID: &ruleID, Confidence: r.Confidence, Source: domain.SourceRule}, nil
	}

	if c.suggester != nil && len(snap.categories) > 0 {
		if res, ok := c.suggest(ctx, snap, item); ok {
			return res, nil
		}
	}

	if cat := findByName(snap.categories, domain.UnclassifiedCategoryName); cat != nil {
		id := cat.ID
		return Result{CategoryID: &id, Source: domain.SourceFallback}, nil
	}

	return Result{Source: domain.SourceNone}, nil
}

func (c *Categorizer) suggest(ctx context.Context, snap *companySnapshot, item ofx.Item) (Result, bool) {
	names := make([]string, 0, len(snap.categories))
	for _, cat := range snap.categories {
		if cat.Active && cat.Name != domain.UnclassifiedCategoryName {
			names = append(names, cat.Name)
		}
	}
	if len(names) == 0 {
		return Result{}, false
	}

	s, err := c.suggester.SuggestCategory(ctx, item.Description(), item.Amount, names)
	if err != nil {
		c.log.Warn().Err(err).Str("external_id", item.ExternalID).Msg("AI categorization failed")
		return Result{}, false
	}
	if s == nil || strings.TrimSpace(s.CategoryName) == "" {
		return Result{}, false
	}

	cat := closestCategory(snap.categories, s.CategoryName)
	if cat == nil {
		c.log.Debug().Str("suggested", s.CategoryName).Msg("AI suggestion matches no category")
		return Result{}, false
	}

	confidence := s.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = defaultAIConfidence
	}
	id := cat.ID
	return Result{CategoryID: &id, Confidence: confidence, Source: domain.SourceAI}, true
}

func findByName(categories []domain.Category, name string) *domain.Category {
	for i := range categories {
		if categories[i].Name == name {
			return &categories[i]
		}
	}
	return nil
}

// closestCategory maps a free-text name onto the active category with the
// smallest edit distance. Names further away than half the category name's
// length do not map.
func closestCategory(categories []domain.Category, name string) *domain.Category {
	target := strings.ToLower(strings.TrimSpace(name))

	var (
		best     *domain.Category
		bestDist = -1
	)
	for i := range categories {
		cat := &categories[i]
		if !cat.Active || cat.Name == domain.UnclassifiedCategoryName {
			continue
		}
		d := levenshtein.ComputeDistance(target, strings.ToLower(cat.Name))
		if bestDist < 0 || d < bestDist {
			best, bestDist = cat, d
		}
	}
	if best == nil {
		return nil
	}
	if bestDist > utf8.RuneCountInString(best.Name)/2 {
		return nil
	}
	return best
}
