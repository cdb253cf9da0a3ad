// Package rules categorizes transactions with pattern rules and moves rule
// sets between companies.
package rules

import (
	"regexp"
	"strings"
	"sync"

	"github.com/dvloznov/ofx-ingest/internal/domain"
)

// Match returns the winning active rule for fields, or nil. Among matching
// rules the highest confidence wins, then the most recently updated, then the
// lowest id.
func Match(fields []string, rules []domain.CategoryRule) *domain.CategoryRule {
	normalized := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			normalized = append(normalized, f)
		}
	}
	if len(normalized) == 0 {
		return nil
	}

	var best *domain.CategoryRule
	for i := range rules {
		r := &rules[i]
		if !r.Active || !matchesAny(r, normalized) {
			continue
		}
		if best == nil || beats(r, best) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

func beats(a, b *domain.CategoryRule) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID < b.ID
}

func matchesAny(r *domain.CategoryRule, fields []string) bool {
	pattern := strings.ToLower(strings.TrimSpace(r.Pattern))
	if pattern == "" {
		return false
	}

	switch r.Type {
	case domain.RuleContains:
		for _, f := range fields {
			if strings.Contains(f, pattern) {
				return true
			}
		}
	case domain.RuleExact:
		for _, f := range fields {
			if f == pattern {
				return true
			}
		}
	case domain.RuleRegex:
		re := compile(r.Pattern)
		if re == nil {
			return false
		}
		for _, f := range fields {
			if re.MatchString(f) {
				return true
			}
		}
	}
	return false
}

var regexCache sync.Map // pattern -> *regexp.Regexp, nil for invalid patterns

func compile(pattern string) *regexp.Regexp {
	if v, ok := regexCache.Load(pattern); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = nil
	}
	regexCache.Store(pattern, re)
	return re
}
