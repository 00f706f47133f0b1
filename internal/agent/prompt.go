package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopclerk/shopclerk/internal/action"
	"github.com/shopclerk/shopclerk/internal/domain"
)

// PromptConfig controls selection prompt generation.
type PromptConfig struct {
	Mode        domain.Mode
	State       *domain.SessionState
	Actions     []action.Definition
	ExtraPrompt string
}

// BuildSelectionPrompt constructs the system prompt that asks the model to
// pick one action for the user's turn, or to reply directly when no action
// applies.
func BuildSelectionPrompt(cfg PromptConfig) string {
	var b strings.Builder

	b.WriteString("You are a shopping assistant for a commerce storefront.\n")
	fmt.Fprintf(&b, "Current date: %s\n", time.Now().Format("2006-01-02"))
	fmt.Fprintf(&b, "Account type: %s\n", cfg.Mode)

	if cfg.State != nil {
		if n := len(cfg.State.Cart.Items); n > 0 {
			fmt.Fprintf(&b, "Cart: %d line(s), total $%.2f\n", n, cfg.State.Cart.Total)
		}
		if cfg.State.Context.CustomerID != "" {
			fmt.Fprintf(&b, "Customer: %s\n", cfg.State.Context.CustomerID)
		}
	}

	b.WriteString("\nGuidelines:\n")
	b.WriteString("- Pick exactly one action when the user asks for something an action covers.\n")
	b.WriteString("- Reply in plain text when no action applies (greetings, questions about policy).\n")
	b.WriteString("- Never invent prices, discounts, or stock levels.\n")

	b.WriteString("\n## Available Actions\n\n")
	b.WriteString("Select an action by outputting a fenced code block with the language tag `action`:\n\n")
	b.WriteString("```action\n{\"actionId\": \"name\", \"parameters\": {\"param\": \"value\"}}\n```\n\n")
	for _, def := range cfg.Actions {
		fmt.Fprintf(&b, "### %s\n%s\n", def.ID, def.Description)
		for _, p := range def.Params {
			fmt.Fprintf(&b, "- %s (%s%s)%s\n", p.Name, p.Type, requiredTag(p), constraintNote(p))
		}
		for _, h := range def.Hints {
			fmt.Fprintf(&b, "Hint: %s\n", h)
		}
		b.WriteString("\n")
	}

	if cfg.ExtraPrompt != "" {
		b.WriteString(cfg.ExtraPrompt)
		b.WriteString("\n")
	}

	return b.String()
}

func requiredTag(p action.ParamSpec) string {
	if p.Required {
		return ", required"
	}
	return ""
}

func constraintNote(p action.ParamSpec) string {
	var parts []string
	if p.Min != nil {
		parts = append(parts, fmt.Sprintf("min %g", *p.Min))
	}
	if p.Max != nil {
		parts = append(parts, fmt.Sprintf("max %g", *p.Max))
	}
	if len(p.Enum) > 0 {
		parts = append(parts, "one of "+strings.Join(p.Enum, "|"))
	}
	if p.Description != "" {
		parts = append(parts, p.Description)
	}
	if len(parts) == 0 {
		return ""
	}
	return ": " + strings.Join(parts, ", ")
}
