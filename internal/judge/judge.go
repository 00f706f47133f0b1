// Package judge is the layered security validator guarding both user inputs
// and composed responses. Layers run in a fixed order and short-circuit on the
// first unsafe verdict: pattern matching, intent classification, a semantic
// check delegated to the language-model collaborator, and business rules over
// proposed outcomes.
package judge

import (
	"context"
	"regexp"
	"time"

	"github.com/shopclerk/shopclerk/internal/config"
	"github.com/shopclerk/shopclerk/internal/domain"
	"github.com/shopclerk/shopclerk/internal/llm"
	"github.com/shopclerk/shopclerk/internal/logging"
)

// Layer names, used in verdicts and violation records.
const (
	LayerPattern  = "pattern"
	LayerIntent   = "intent"
	LayerSemantic = "semantic"
	LayerRules    = "business_rules"
)

// Result is the outcome of one validation call. Results are logged, never
// stored.
type Result struct {
	Safe     bool            `json:"safe"`
	Layer    string          `json:"layer"`
	Reason   string          `json:"reason,omitempty"`
	Severity domain.Severity `json:"severity"`
}

func safe(layer string) Result {
	return Result{Safe: true, Layer: layer, Severity: domain.SeverityLow}
}

func unsafe(layer, reason string, sev domain.Severity) Result {
	return Result{Safe: false, Layer: layer, Reason: reason, Severity: sev}
}

// Judge runs the layered validation pipeline.
type Judge struct {
	blockHigh       bool
	semanticTimeout time.Duration
	maxLoggedInput  int
	extraPatterns   []denyPattern
	client          llm.Client // nil disables the semantic layer
	log             *logging.Logger
}

// New builds a Judge from the security config. A nil client disables the
// semantic layer; the pattern, intent, and rule layers always run.
func New(cfg config.SecurityConfig, client llm.Client, log *logging.Logger) *Judge {
	j := &Judge{
		blockHigh:       cfg.BlockHighEnabled(),
		semanticTimeout: time.Duration(cfg.SemanticTimeoutMS) * time.Millisecond,
		maxLoggedInput:  cfg.MaxLoggedInput,
		client:          client,
		log:             log.Sub("judge"),
	}
	for _, p := range cfg.ExtraDenyPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			// config validation rejects these earlier; skip defensively here
			continue
		}
		j.extraPatterns = append(j.extraPatterns, denyPattern{re: re, reason: "deployment deny pattern", severity: domain.SeverityHigh})
	}
	return j
}

// CheckInput validates raw user input through the pattern, intent, and
// semantic layers, short-circuiting on the first unsafe result.
func (j *Judge) CheckInput(ctx context.Context, input string, mode domain.Mode) Result {
	if r := j.checkPatterns(input); !r.Safe {
		j.logVerdict(input, r)
		return r
	}
	if r := j.checkIntent(input, mode); !r.Safe {
		j.logVerdict(input, r)
		return r
	}
	r := j.checkSemantic(ctx, input)
	if !r.Safe {
		j.logVerdict(input, r)
	}
	return r
}

// CheckOutcome validates a proposed action outcome against the business rules.
// It runs before execution, guarding inputs that survived the text layers.
func (j *Judge) CheckOutcome(outcome Outcome, limits config.ModeLimits) Result {
	r := j.checkRules(outcome, limits)
	if !r.Safe {
		j.logVerdict(outcome.ActionID, r)
	}
	return r
}

// CheckResponse validates a composed response before it reaches the user: the
// pattern deny-list plus business-rule guards over any numeric claims the
// response makes (discount percentages, cart totals).
func (j *Judge) CheckResponse(response string, state *domain.SessionState, limits config.ModeLimits) Result {
	if r := j.checkPatterns(response); !r.Safe {
		j.logVerdict(response, r)
		return r
	}
	r := j.checkResponseClaims(response, state, limits)
	if !r.Safe {
		j.logVerdict(response, r)
	}
	return r
}

// Blocked reports whether a result blocks under the severity policy: critical
// always blocks, high blocks when configured (the default), medium and low are
// recorded but never block.
func (j *Judge) Blocked(r Result) bool {
	if r.Safe {
		return false
	}
	if r.Severity == domain.SeverityCritical {
		return true
	}
	if r.Severity == domain.SeverityHigh {
		return j.blockHigh
	}
	return false
}

// logVerdict logs an unsafe verdict with a truncated input sample.
func (j *Judge) logVerdict(input string, r Result) {
	j.log.Warn().
		Str("layer", r.Layer).
		Str("severity", string(r.Severity)).
		Str("reason", r.Reason).
		Str("input", truncate(input, j.maxLoggedInput)).
		Msg("unsafe verdict")
}

func truncate(s string, max int) string {
	if max <= 0 {
		max = 200
	}
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
