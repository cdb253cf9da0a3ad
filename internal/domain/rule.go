package domain

import "time"

// RuleType selects how a rule pattern is compared with transaction text.
type RuleType string

const (
	RuleContains RuleType = "contains"
	RuleExact    RuleType = "exact"
	RuleRegex    RuleType = "regex"
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	switch t {
	case RuleContains, RuleExact, RuleRegex:
		return true
	}
	return false
}

const (
	RuleSourceManual   = "manual"
	RuleSourceImported = "imported"
	RuleSourceAI       = "ai"
)

// UnclassifiedCategoryName is the category used when nothing else matches.
const UnclassifiedCategoryName = "Não Classificado"

// Category is a company-scoped transaction category.
type Category struct {
	ID          string
	CompanyID   string
	Name        string
	Description string
	Type        string
	ParentType  string
	ColorHex    string
	Icon        string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CategoryRule assigns CategoryID to transactions whose text matches Pattern.
type CategoryRule struct {
	ID         string
	CompanyID  string
	CategoryID string
	Pattern    string
	Type       RuleType
	Confidence float64 // 0.0 - 1.0
	Active     bool
	UsageCount int
	Source     string
	Examples   []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastUsedAt *time.Time
}
