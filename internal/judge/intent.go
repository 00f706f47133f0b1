package judge

import (
	"strings"

	"github.com/shopclerk/shopclerk/internal/domain"
)

// Intent is the coarse classification of what an input is trying to do.
type Intent string

const (
	IntentBenign             Intent = "benign"
	IntentSystemManipulation Intent = "system_manipulation"
	IntentDataExtraction     Intent = "data_extraction"
	IntentBulkOperation      Intent = "bulk_operation"
)

var intentMarkers = []struct {
	intent   Intent
	keywords []string
}{
	{IntentSystemManipulation, []string{
		"jailbreak", "developer mode", "pretend you are", "act as the system",
		"bypass your", "override your", "without any restrictions",
	}},
	{IntentDataExtraction, []string{
		"dump all", "export all", "list all customers", "list every customer",
		"reveal your", "api key", "show me the password", "internal prompt",
		"other customers' orders", "all customer data",
	}},
	{IntentBulkOperation, []string{
		"bulk order", "bulk purchase", "purchase order", "wholesale order",
		"upload a csv", "csv of skus", "order in bulk",
	}},
}

// ClassifyIntent returns the coarse intent of an input. First match wins, in
// declaration order; inputs matching nothing are benign.
func ClassifyIntent(input string) Intent {
	lower := strings.ToLower(input)
	for _, m := range intentMarkers {
		for _, kw := range m.keywords {
			if strings.Contains(lower, kw) {
				return m.intent
			}
		}
	}
	return IntentBenign
}

// checkIntent rejects inputs whose classified intent is incompatible with the
// caller's authorization.
func (j *Judge) checkIntent(input string, mode domain.Mode) Result {
	switch ClassifyIntent(input) {
	case IntentSystemManipulation:
		return unsafe(LayerIntent, "system manipulation intent", domain.SeverityCritical)
	case IntentDataExtraction:
		return unsafe(LayerIntent, "data extraction intent", domain.SeverityHigh)
	case IntentBulkOperation:
		if mode != domain.ModeB2B {
			return unsafe(LayerIntent, "bulk operation intent from a consumer session", domain.SeverityHigh)
		}
	}
	return safe(LayerIntent)
}
