// Package gemini wraps the Gemini models used as fallbacks: naming unknown
// bank codes and suggesting categories for unmatched transactions.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/dvloznov/ofx-ingest/internal/banks"
	"github.com/dvloznov/ofx-ingest/internal/rules"
)

const DefaultModelName = "gemini-2.5-flash"

// unknownAnswer is what the bank prompt asks the model to reply when it does
// not know the code.
const unknownAnswer = "desconhecido"

// generator is the subset of *genai.Models the client calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Client struct {
	models generator
	model  string
	log    zerolog.Logger
}

// New creates a Gemini client. Credentials come from the environment
// (GOOGLE_API_KEY, or the Vertex AI variables).
func New(ctx context.Context, model string, log zerolog.Logger) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini.New: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &Client{models: gc.Models, model: model, log: log}, nil
}

// BankName asks the model for the name of a Brazilian bank by clearing code.
// It returns "" when the model does not know it.
func (c *Client) BankName(ctx context.Context, code string) (string, error) {
	text, err := c.generate(ctx, bankPrompt(code))
	if err != nil {
		return "", fmt.Errorf("BankName: %w", err)
	}

	name := strings.Trim(strings.TrimSpace(text), "\"")
	if name == "" || strings.EqualFold(strings.TrimSuffix(name, "."), unknownAnswer) {
		return "", nil
	}
	c.log.Info().Str("bank_code", code).Str("bank_name", name).Msg("model identified bank")
	return name, nil
}

type suggestionJSON struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// SuggestCategory asks the model to pick one of categoryNames for a
// transaction. A nil suggestion means the model declined.
func (c *Client) SuggestCategory(ctx context.Context, description string, amount decimal.Decimal, categoryNames []string) (*rules.Suggestion, error) {
	if len(categoryNames) == 0 {
		return nil, nil
	}

	text, err := c.generate(ctx, categoryPrompt(description, amount, categoryNames))
	if err != nil {
		return nil, fmt.Errorf("SuggestCategory: %w", err)
	}

	var parsed suggestionJSON
	if err := json.Unmarshal([]byte(cleanModelJSON(text)), &parsed); err != nil {
		return nil, fmt.Errorf("SuggestCategory: unmarshal JSON: %w\nraw response: %s", err, text)
	}
	if strings.TrimSpace(parsed.Category) == "" {
		return nil, nil
	}
	return &rules.Suggestion{CategoryName: strings.TrimSpace(parsed.Category), Confidence: parsed.Confidence}, nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := c.models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

// cleanModelJSON strips Markdown fences and any text around the JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

var (
	_ banks.Namer     = (*Client)(nil)
	_ rules.Suggester = (*Client)(nil)
)
