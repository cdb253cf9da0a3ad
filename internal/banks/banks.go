// Package banks maps Brazilian COMPE clearing codes to bank names.
package banks

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog"
)

// UnknownName is reported for codes that neither the table nor the namer know.
const UnknownName = "Banco Não Identificado"

const unknownColor = "#6B7280"

type Source string

const (
	SourceTable   Source = "database"
	SourceAI      Source = "ai"
	SourceUnknown Source = "unknown"
)

type Bank struct {
	Code      string
	ISPB      string
	Name      string
	ShortName string
	Color     string
	Source    Source
}

// Normalize keeps the digits of code and returns them as a 3-digit clearing
// code: "341", "0341" and "  341" all become "341". An input without digits
// yields "".
func Normalize(code string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, code)
	if digits == "" {
		return ""
	}
	for len(digits) > 3 && digits[0] == '0' {
		digits = digits[1:]
	}
	for len(digits) < 3 {
		digits = "0" + digits
	}
	return digits
}

// Lookup resolves code against the static table only.
func Lookup(code string) Bank {
	norm := Normalize(code)
	if b, ok := table[norm]; ok {
		b.Source = SourceTable
		return b
	}
	return unknown(norm)
}

func unknown(code string) Bank {
	name := UnknownName
	if code != "" {
		name = UnknownName + " (" + code + ")"
	}
	return Bank{Code: code, Name: name, ShortName: UnknownName, Color: unknownColor, Source: SourceUnknown}
}

// Namer names a bank the static table does not know. An empty name with a
// nil error means the namer does not know it either.
type Namer interface {
	BankName(ctx context.Context, code string) (string, error)
}

// Resolver looks codes up in the static table, then in a process-wide cache
// of namer answers, then asks the namer.
type Resolver struct {
	namer Namer
	log   zerolog.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// NewResolver returns a Resolver. namer may be nil, in which case unknown
// codes go straight to UnknownName.
func NewResolver(namer Namer, log zerolog.Logger) *Resolver {
	return &Resolver{namer: namer, log: log, cache: make(map[string]string)}
}

func (r *Resolver) Lookup(ctx context.Context, code string) Bank {
	norm := Normalize(code)
	if norm == "" {
		return unknown("")
	}
	if b, ok := table[norm]; ok {
		b.Source = SourceTable
		return b
	}

	r.mu.RLock()
	name, ok := r.cache[norm]
	r.mu.RUnlock()
	if ok {
		return aiBank(norm, name)
	}

	if r.namer != nil {
		name, err := r.namer.BankName(ctx, norm)
		if err != nil {
			r.log.Error().Err(err).Str("bank_code", norm).Msg("AI bank lookup failed")
		} else if name != "" {
			r.log.Info().Str("bank_code", norm).Str("bank_name", name).Msg("AI identified bank")
			r.Remember(norm, name)
			return aiBank(norm, name)
		}
	}

	return unknown(norm)
}

// Remember stores a name for code in the cache.
func (r *Resolver) Remember(code, name string) {
	r.mu.Lock()
	r.cache[Normalize(code)] = name
	r.mu.Unlock()
}

func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func aiBank(code, name string) Bank {
	return Bank{Code: code, Name: name, ShortName: name, Color: unknownColor, Source: SourceAI}
}
