package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/store"
)

// ExportVersion is the only document version Import accepts.
const ExportVersion = "1.0"

const (
	defaultCategoryColor = "#6366F1"
	defaultCategoryIcon  = "📊"
)

type ExportDocument struct {
	Version    string             `json:"version" yaml:"version"`
	ExportedAt time.Time          `json:"exportedAt" yaml:"exportedAt"`
	ExportedBy string             `json:"exportedBy,omitempty" yaml:"exportedBy,omitempty"`
	CompanyID  string             `json:"companyId" yaml:"companyId"`
	Metadata   ExportMetadata     `json:"metadata" yaml:"metadata"`
	Categories []ExportedCategory `json:"categories" yaml:"categories"`
	Rules      []ExportedRule     `json:"rules" yaml:"rules"`
}

type ExportMetadata struct {
	TotalRules      int    `json:"totalRules" yaml:"totalRules"`
	TotalCategories int    `json:"totalCategories" yaml:"totalCategories"`
	ExportType      string `json:"exportType" yaml:"exportType"`
	ActiveRulesOnly bool   `json:"activeRulesOnly" yaml:"activeRulesOnly"`
}

type ExportedCategory struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Type        string `json:"type" yaml:"type"`
	ParentType  string `json:"parentType,omitempty" yaml:"parentType,omitempty"`
	ColorHex    string `json:"colorHex,omitempty" yaml:"colorHex,omitempty"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty"`
}

type ExportedRule struct {
	ID              string     `json:"id" yaml:"id"`
	CategoryID      string     `json:"categoryId" yaml:"categoryId"`
	CategoryName    string     `json:"categoryName" yaml:"categoryName"`
	RulePattern     string     `json:"rulePattern" yaml:"rulePattern"`
	RuleType        string     `json:"ruleType" yaml:"ruleType"`
	ConfidenceScore float64    `json:"confidenceScore" yaml:"confidenceScore"`
	Active          bool       `json:"active" yaml:"active"`
	SourceType      string     `json:"sourceType,omitempty" yaml:"sourceType,omitempty"`
	UsageCount      int        `json:"usageCount" yaml:"usageCount"`
	Examples        []string   `json:"examples" yaml:"examples"`
	CreatedAt       time.Time  `json:"createdAt" yaml:"createdAt"`
	LastUsedAt      *time.Time `json:"lastUsedAt" yaml:"lastUsedAt"`
}

// ConflictStrategy decides what happens to an imported rule that already
// exists with the same pattern and category.
type ConflictStrategy string

const (
	ConflictSkip    ConflictStrategy = "skip"
	ConflictReplace ConflictStrategy = "replace"
	ConflictMerge   ConflictStrategy = "merge"
)

type ImportOptions struct {
	ConflictStrategy        ConflictStrategy `json:"conflictStrategy"`
	CreateMissingCategories bool             `json:"createMissingCategories"`
	DryRun                  bool             `json:"dryRun"`
}

func DefaultImportOptions() ImportOptions {
	return ImportOptions{ConflictStrategy: ConflictSkip, CreateMissingCategories: true}
}

// UnmarshalJSON starts from DefaultImportOptions so absent fields keep their
// defaults.
func (o *ImportOptions) UnmarshalJSON(b []byte) error {
	type plain ImportOptions
	p := plain(DefaultImportOptions())
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*o = ImportOptions(p)
	return nil
}

type ImportSummary struct {
	TotalRulesInFile      int `json:"totalRulesInFile"`
	TotalCategoriesInFile int `json:"totalCategoriesInFile"`
	RulesImported         int `json:"rulesImported"`
	RulesSkipped          int `json:"rulesSkipped"`
	RulesReplaced         int `json:"rulesReplaced"`
	CategoriesCreated     int `json:"categoriesCreated"`
	CategoriesMapped      int `json:"categoriesMapped"`
}

type SkippedRule struct {
	Pattern string `json:"pattern"`
	Reason  string `json:"reason"`
}

type ImportDetails struct {
	Imported          []string      `json:"imported"`
	Skipped           []SkippedRule `json:"skipped"`
	Replaced          []string      `json:"replaced"`
	CategoriesCreated []string      `json:"categoriesCreated"`
}

type ImportResult struct {
	Success bool          `json:"success"`
	DryRun  bool          `json:"dryRun"`
	Summary ImportSummary `json:"summary"`
	Details ImportDetails `json:"details"`
	Errors  []string      `json:"errors"`
}

// Message is the one-line human summary of the import.
func (r *ImportResult) Message() string {
	if r.DryRun {
		return "Dry run completed - no changes applied"
	}
	return fmt.Sprintf("Import completed: %d imported, %d skipped, %d replaced",
		r.Summary.RulesImported, r.Summary.RulesSkipped, r.Summary.RulesReplaced)
}

// NoRulesFoundError is returned by Export when the company has no rules.
type NoRulesFoundError struct {
	CompanyID string
}

func (e *NoRulesFoundError) Error() string {
	return fmt.Sprintf("no rules found for company %s", e.CompanyID)
}

// InvalidDocumentError is returned by Import for a document or options it
// cannot apply at all.
type InvalidDocumentError struct {
	Reason string
}

func (e *InvalidDocumentError) Error() string {
	return "invalid rules document: " + e.Reason
}

// ValidateDocument checks the document envelope.
func ValidateDocument(doc *ExportDocument) error {
	switch {
	case doc == nil:
		return &InvalidDocumentError{Reason: "import data is required"}
	case doc.Version == "":
		return &InvalidDocumentError{Reason: "missing version field"}
	case doc.Version != ExportVersion:
		return &InvalidDocumentError{Reason: fmt.Sprintf("unsupported version: %s, expected: %s", doc.Version, ExportVersion)}
	case doc.Rules == nil:
		return &InvalidDocumentError{Reason: "missing or invalid rules array"}
	case doc.Categories == nil:
		return &InvalidDocumentError{Reason: "missing or invalid categories array"}
	}
	return nil
}

// TransferService exports and imports a company's rule set.
type TransferService struct {
	rules      store.RuleRepository
	categories store.CategoryRepository
	log        zerolog.Logger
	now        func() time.Time
}

func NewTransferService(rules store.RuleRepository, categories store.CategoryRepository, log zerolog.Logger) *TransferService {
	return &TransferService{rules: rules, categories: categories, log: log, now: time.Now}
}

func (s *TransferService) Export(ctx context.Context, companyID string, activeOnly bool) (*ExportDocument, error) {
	rules, err := s.rules.ListRules(ctx, companyID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("Export: list rules: %w", err)
	}
	categories, err := s.categories.ListCategories(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("Export: list categories: %w", err)
	}

	byID := make(map[string]domain.Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	doc := &ExportDocument{
		Version:    ExportVersion,
		ExportedAt: s.now().UTC(),
		CompanyID:  companyID,
		Categories: []ExportedCategory{},
		Rules:      []ExportedRule{},
	}

	referenced := make(map[string]bool)
	for _, r := range rules {
		cat, ok := byID[r.CategoryID]
		if !ok {
			continue
		}
		examples := r.Examples
		if examples == nil {
			examples = []string{}
		}
		source := r.Source
		if source == "" {
			source = domain.RuleSourceManual
		}
		doc.Rules = append(doc.Rules, ExportedRule{
			ID:              r.ID,
			CategoryID:      r.CategoryID,
			CategoryName:    cat.Name,
			RulePattern:     r.Pattern,
			RuleType:        string(r.Type),
			ConfidenceScore: r.Confidence,
			Active:          r.Active,
			SourceType:      source,
			UsageCount:      r.UsageCount,
			Examples:        examples,
			CreatedAt:       r.CreatedAt.UTC(),
			LastUsedAt:      r.LastUsedAt,
		})
		if !referenced[cat.ID] {
			referenced[cat.ID] = true
			doc.Categories = append(doc.Categories, ExportedCategory{
				ID:          cat.ID,
				Name:        cat.Name,
				Description: cat.Description,
				Type:        cat.Type,
				ParentType:  cat.ParentType,
				ColorHex:    cat.ColorHex,
				Icon:        cat.Icon,
			})
		}
	}

	if len(doc.Rules) == 0 {
		return nil, &NoRulesFoundError{CompanyID: companyID}
	}

	doc.Metadata = ExportMetadata{
		TotalRules:      len(doc.Rules),
		TotalCategories: len(doc.Categories),
		ExportType:      "full",
		ActiveRulesOnly: activeOnly,
	}
	return doc, nil
}

func (s *TransferService) Import(ctx context.Context, companyID string, doc *ExportDocument, opts ImportOptions) (*ImportResult, error) {
	if err := ValidateDocument(doc); err != nil {
		return nil, err
	}
	if opts.ConflictStrategy == "" {
		opts.ConflictStrategy = ConflictSkip
	}
	switch opts.ConflictStrategy {
	case ConflictSkip, ConflictReplace, ConflictMerge:
	default:
		return nil, &InvalidDocumentError{Reason: fmt.Sprintf("unknown conflict strategy %q", opts.ConflictStrategy)}
	}

	res := &ImportResult{
		Success: true,
		DryRun:  opts.DryRun,
		Summary: ImportSummary{
			TotalRulesInFile:      len(doc.Rules),
			TotalCategoriesInFile: len(doc.Categories),
		},
		Details: ImportDetails{
			Imported:          []string{},
			Skipped:           []SkippedRule{},
			Replaced:          []string{},
			CategoriesCreated: []string{},
		},
		Errors: []string{},
	}

	idMap, err := s.importCategories(ctx, companyID, doc.Categories, opts, res)
	if err != nil {
		return nil, err
	}

	preview := make(map[ruleKey]*domain.CategoryRule)
	for _, rule := range doc.Rules {
		if err := s.importRule(ctx, companyID, rule, idMap, preview, opts, res); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Error importing rule %q: %v", rule.RulePattern, err))
		}
	}

	s.log.Info().
		Str("company_id", companyID).
		Bool("dry_run", opts.DryRun).
		Str("strategy", string(opts.ConflictStrategy)).
		Int("imported", res.Summary.RulesImported).
		Int("skipped", res.Summary.RulesSkipped).
		Int("replaced", res.Summary.RulesReplaced).
		Int("errors", len(res.Errors)).
		Msg("rules import finished")

	return res, nil
}

// importCategories maps file category ids onto company category ids,
// creating the missing ones when allowed.
func (s *TransferService) importCategories(ctx context.Context, companyID string, cats []ExportedCategory, opts ImportOptions, res *ImportResult) (map[string]string, error) {
	idMap := make(map[string]string, len(cats))
	byName := make(map[string]string)

	for _, ec := range cats {
		if id, ok := byName[ec.Name]; ok {
			idMap[ec.ID] = id
			continue
		}

		existing, err := s.categories.FindCategoryByName(ctx, companyID, ec.Name)
		if err != nil {
			return nil, fmt.Errorf("Import: find category %q: %w", ec.Name, err)
		}
		if existing != nil {
			idMap[ec.ID] = existing.ID
			byName[ec.Name] = existing.ID
			res.Summary.CategoriesMapped++
			continue
		}
		if !opts.CreateMissingCategories {
			continue
		}

		id := "dry-run-" + ec.ID
		if !opts.DryRun {
			color, icon := ec.ColorHex, ec.Icon
			if color == "" {
				color = defaultCategoryColor
			}
			if icon == "" {
				icon = defaultCategoryIcon
			}
			c := &domain.Category{
				ID:          uuid.NewString(),
				CompanyID:   companyID,
				Name:        ec.Name,
				Description: ec.Description,
				Type:        ec.Type,
				ParentType:  ec.ParentType,
				ColorHex:    color,
				Icon:        icon,
				Active:      true,
			}
			if err := s.categories.CreateCategory(ctx, c); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("Error creating category %q: %v", ec.Name, err))
				continue
			}
			id = c.ID
		}
		idMap[ec.ID] = id
		byName[ec.Name] = id
		res.Summary.CategoriesCreated++
		res.Details.CategoriesCreated = append(res.Details.CategoriesCreated, ec.Name)
	}
	return idMap, nil
}

// ruleKey identifies a rule the way FindRuleConflict matches one.
type ruleKey struct {
	pattern    string
	categoryID string
}

// importRule applies one file rule. In a dry run nothing is written; preview
// holds the rules the run would have created or changed, so later rows of
// the same file see them as the real run would.
func (s *TransferService) importRule(ctx context.Context, companyID string, rule ExportedRule, idMap map[string]string, preview map[ruleKey]*domain.CategoryRule, opts ImportOptions, res *ImportResult) error {
	categoryID, ok := idMap[rule.CategoryID]
	if !ok {
		res.Details.Skipped = append(res.Details.Skipped, SkippedRule{
			Pattern: rule.RulePattern,
			Reason:  fmt.Sprintf("Category %q not found and createMissingCategories=false", rule.CategoryName),
		})
		res.Summary.RulesSkipped++
		return nil
	}

	ruleType := domain.RuleType(rule.RuleType)
	if !ruleType.Valid() {
		return fmt.Errorf("unsupported rule type %q", rule.RuleType)
	}
	if rule.ConfidenceScore < 0 || rule.ConfidenceScore > 1 {
		return fmt.Errorf("confidence %.2f out of range [0, 1]", rule.ConfidenceScore)
	}
	source := rule.SourceType
	if source == "" {
		source = domain.RuleSourceImported
	}
	examples := rule.Examples
	if examples == nil {
		examples = []string{}
	}

	key := ruleKey{pattern: rule.RulePattern, categoryID: categoryID}
	existing := preview[key]
	if existing == nil {
		var err error
		existing, err = s.rules.FindRuleConflict(ctx, companyID, rule.RulePattern, categoryID)
		if err != nil {
			return err
		}
	}

	if existing != nil {
		switch opts.ConflictStrategy {
		case ConflictReplace:
			existing.Confidence = rule.ConfidenceScore
			existing.Active = rule.Active
			existing.Type = ruleType
			existing.Source = source
			existing.Examples = examples
			if opts.DryRun {
				preview[key] = existing
			} else if err := s.rules.UpdateRule(ctx, existing); err != nil {
				return err
			}
			res.Details.Replaced = append(res.Details.Replaced, rule.RulePattern)
			res.Summary.RulesReplaced++
		case ConflictMerge:
			if rule.ConfidenceScore > existing.Confidence {
				existing.Confidence = rule.ConfidenceScore
				if opts.DryRun {
					preview[key] = existing
				} else if err := s.rules.UpdateRule(ctx, existing); err != nil {
					return err
				}
				res.Details.Replaced = append(res.Details.Replaced, rule.RulePattern)
				res.Summary.RulesReplaced++
			} else {
				res.Details.Skipped = append(res.Details.Skipped, SkippedRule{
					Pattern: rule.RulePattern,
					Reason:  "Existing rule has higher confidence (conflict strategy: merge)",
				})
				res.Summary.RulesSkipped++
			}
		default:
			res.Details.Skipped = append(res.Details.Skipped, SkippedRule{
				Pattern: rule.RulePattern,
				Reason:  "Rule already exists (conflict strategy: skip)",
			})
			res.Summary.RulesSkipped++
		}
		return nil
	}

	created := &domain.CategoryRule{
		ID:         uuid.NewString(),
		CompanyID:  companyID,
		CategoryID: categoryID,
		Pattern:    rule.RulePattern,
		Type:       ruleType,
		Confidence: rule.ConfidenceScore,
		Active:     rule.Active,
		UsageCount: 0,
		Source:     source,
		Examples:   examples,
	}
	if opts.DryRun {
		preview[key] = created
	} else if err := s.rules.CreateRule(ctx, created); err != nil {
		return err
	}
	res.Details.Imported = append(res.Details.Imported, rule.RulePattern)
	res.Summary.RulesImported++
	return nil
}
