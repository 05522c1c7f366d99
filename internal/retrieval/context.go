package retrieval

import (
	"fmt"
	"strings"
)

const NoKnowledgeNotice = "No relevant information was found in the knowledge base for this question."

// BuildKnowledgeContext formats ranked results as a prompt section.
func BuildKnowledgeContext(results []Result) string {
	if len(results) == 0 {
		return NoKnowledgeNotice
	}

	var builder strings.Builder
	builder.WriteString("Relevant medical knowledge:\n")

	for i, r := range results {
		builder.WriteString(fmt.Sprintf("\n[%d] %s (category: %s, confidence: %s, relevance: %.2f)\n",
			i+1, r.Entry.Title, r.Entry.Category, r.Entry.ConfidenceLevel, r.Score))
		builder.WriteString(strings.TrimSpace(r.Entry.Content))
		builder.WriteString("\n")
		if r.Entry.RequiresEscalation {
			builder.WriteString("Note: this topic requires referral to a doctor.\n")
		}
	}

	return builder.String()
}
