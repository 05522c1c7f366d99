package chat

import (
	"sort"
	"strings"

	"github.com/telemed-faq/backend/internal/storage/models"
	"github.com/telemed-faq/backend/internal/textproc"
)

const (
	StageInquiry   = "inquiry"
	StageFollowUp  = "follow_up"
	StageEscalated = "escalated"
)

// symptomTerms maps normalized phrases to the symptom name stored in the
// session context.
var symptomTerms = map[string]string{
	"demam":             "demam",
	"panas":             "demam",
	"fever":             "demam",
	"batuk":             "batuk",
	"cough":             "batuk",
	"pilek":             "pilek",
	"flu":               "pilek",
	"sakit kepala":      "sakit kepala",
	"pusing":            "sakit kepala",
	"headache":          "sakit kepala",
	"mual":              "mual",
	"muntah":            "muntah",
	"diare":             "diare",
	"mencret":           "diare",
	"sesak":             "sesak napas",
	"sesak napas":       "sesak napas",
	"nyeri dada":        "nyeri dada",
	"ruam":              "ruam",
	"gatal":             "gatal",
	"sakit perut":       "sakit perut",
	"nyeri otot":        "nyeri otot",
	"lemas":             "lemas",
	"sakit tenggorokan": "sakit tenggorokan",
}

// ExtractSymptoms returns the known symptoms mentioned in message, in
// first-mention order.
func ExtractSymptoms(message string) []string {
	padded := " " + textproc.Normalize(message) + " "

	firstAt := make(map[string]int)
	for phrase, name := range symptomTerms {
		at := strings.Index(padded, " "+phrase+" ")
		if at < 0 {
			continue
		}
		if prev, ok := firstAt[name]; !ok || at < prev {
			firstAt[name] = at
		}
	}

	out := make([]string, 0, len(firstAt))
	for name := range firstAt {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		if firstAt[out[i]] != firstAt[out[j]] {
			return firstAt[out[i]] < firstAt[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// updateContext merges the facts from one user turn into the session
// context. Symptoms accumulate; the escalated stage is sticky.
func updateContext(current models.SessionContext, message, platform string, firstTurn, escalate bool) models.SessionContext {
	next := models.SessionContext{
		Symptoms: append([]string(nil), current.Symptoms...),
		Stage:    current.Stage,
		Platform: current.Platform,
	}

	known := make(map[string]bool, len(next.Symptoms))
	for _, s := range next.Symptoms {
		known[s] = true
	}
	for _, s := range ExtractSymptoms(message) {
		if !known[s] {
			known[s] = true
			next.Symptoms = append(next.Symptoms, s)
		}
	}

	if platform != "" {
		next.Platform = platform
	}

	switch {
	case escalate || next.Stage == StageEscalated:
		next.Stage = StageEscalated
	case firstTurn:
		next.Stage = StageInquiry
	default:
		next.Stage = StageFollowUp
	}
	return next
}
