package gemini

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

func bankPrompt(code string) string {
	return fmt.Sprintf(
		"Qual é o nome do banco brasileiro com código COMPE %s? "+
			"Responda APENAS com o nome do banco, sem explicações. "+
			"Se não souber, responda \"Desconhecido\".", code)
}

func categoryPrompt(description string, amount decimal.Decimal, categoryNames []string) string {
	var b strings.Builder
	b.WriteString("You categorize Brazilian bank statement transactions.\n\n")
	b.WriteString("Transaction:\n")
	fmt.Fprintf(&b, "- description: %q\n", description)
	fmt.Fprintf(&b, "- amount: %s BRL (negative is money out)\n\n", amount.StringFixed(2))

	b.WriteString("Allowed categories:\n")
	for _, name := range categoryNames {
		fmt.Fprintf(&b, "- %s\n", name)
	}

	b.WriteString("\nRules:\n" +
		"- Pick exactly one category from the list, spelled as listed.\n" +
		"- If none fits, use an empty string for \"category\".\n" +
		"- \"confidence\" is a number between 0 and 1.\n\n" +
		"Return ONLY valid raw JSON of the form {\"category\": string, \"confidence\": number}.\n" +
		"Do NOT wrap the response in code fences.\n")
	return b.String()
}
