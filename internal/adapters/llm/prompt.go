// Package llm provides generative fallback adapters implementing
// ports.Fallback.
package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/0xcro3dile/faqroute/internal/domain/template"
)

const systemPrompt = `You are a customer support assistant for a telecom operator.
Answer the customer's question briefly and politely. Use the account facts
below when they are relevant. If you do not know the answer, say so and
suggest contacting support. Reply in the same language the customer used.`

// BuildPrompt renders the fallback prompt. Facts are listed in key order so
// identical requests produce identical prompts.
func BuildPrompt(query string, facts entities.Context) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\n")

	if len(facts) > 0 {
		keys := make([]string, 0, len(facts))
		for k := range facts {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("Account facts:\n")
		for _, k := range keys {
			if facts[k] == nil {
				continue
			}
			fmt.Fprintf(&sb, "- %s: %s\n", k, template.FormatValue(facts[k]))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Customer: ")
	sb.WriteString(query)
	sb.WriteString("\nAssistant:")
	return sb.String()
}
