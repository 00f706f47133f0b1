package judge

import (
	"regexp"

	"github.com/shopclerk/shopclerk/internal/domain"
)

// denyPattern pairs a compiled deny-list regex with its verdict.
type denyPattern struct {
	re       *regexp.Regexp
	reason   string
	severity domain.Severity
}

// denyList is the maintained fast deny-list. It runs synchronously on every
// input and every composed response, no external calls.
var denyList = []denyPattern{
	// instruction-override phrases
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions|rules|prompts|directions)`), "instruction override attempt", domain.SeverityCritical},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|your)\s+(instructions|rules|training)`), "instruction override attempt", domain.SeverityCritical},
	{regexp.MustCompile(`(?i)forget\s+(everything|all)\s+(you|above)`), "instruction override attempt", domain.SeverityCritical},
	{regexp.MustCompile(`(?i)\byou\s+are\s+now\b.{0,40}\b(admin|root|system|developer)`), "role override attempt", domain.SeverityCritical},
	{regexp.MustCompile(`(?i)\bsystem\s+prompt\b`), "system prompt probing", domain.SeverityHigh},

	// price / order manipulation
	{regexp.MustCompile(`(?i)set\s+(the\s+)?price\s+to\s+(0|zero|-)`), "price manipulation attempt", domain.SeverityCritical},
	{regexp.MustCompile(`(?i)\bprice\s*=\s*-?0*\.?0+\b`), "price manipulation attempt", domain.SeverityCritical},
	{regexp.MustCompile(`(?i)\b(100|[1-9]\d{2,})\s*%\s+(discount|off)\b`), "excessive discount request", domain.SeverityHigh},

	// destructive-operation keywords
	{regexp.MustCompile(`(?i)\b(drop|truncate)\s+table\b`), "destructive operation keyword", domain.SeverityCritical},
	{regexp.MustCompile(`(?i)\bdelete\s+(all|every)\s+(orders?|customers?|products?|carts?|sessions?)\b`), "destructive operation keyword", domain.SeverityCritical},
	{regexp.MustCompile(`(?i)\brm\s+-rf\b`), "destructive operation keyword", domain.SeverityCritical},

	// known injection markers
	{regexp.MustCompile(`(?i)<\s*script\b`), "script injection marker", domain.SeverityHigh},
	{regexp.MustCompile(`(?i)javascript\s*:`), "script injection marker", domain.SeverityHigh},
	{regexp.MustCompile(`\{\{.*\}\}`), "template injection marker", domain.SeverityHigh},
	{regexp.MustCompile(`(?i)<\s*/?\s*(system|assistant|human)\s*>`), "conversation tag injection", domain.SeverityHigh},
	{regexp.MustCompile("\x1b\\["), "terminal escape sequence", domain.SeverityMedium},
}

// checkPatterns runs the deny-list, returning the first match's verdict.
func (j *Judge) checkPatterns(input string) Result {
	for _, p := range denyList {
		if p.re.MatchString(input) {
			return unsafe(LayerPattern, p.reason, p.severity)
		}
	}
	for _, p := range j.extraPatterns {
		if p.re.MatchString(input) {
			return unsafe(LayerPattern, p.reason, p.severity)
		}
	}
	return safe(LayerPattern)
}
