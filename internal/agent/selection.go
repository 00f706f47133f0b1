package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// selection is the model's parsed choice for a turn. An empty ActionID means
// the model replied conversationally.
type selection struct {
	ActionID   string         `json:"actionId"`
	Parameters map[string]any `json:"parameters"`
	Reply      string
}

// actionBlockRe matches ```action\n{...}\n``` blocks in model output.
var actionBlockRe = regexp.MustCompile("(?s)```action\\s*\n(\\{.*?\\})\n?\\s*```")

// parseSelection extracts the action choice from model output. Parsing is
// tolerant: a fenced action block is preferred, then any bare JSON object
// mentioning actionId; text with neither is a plain conversational reply.
func parseSelection(text string) selection {
	if m := actionBlockRe.FindStringSubmatch(text); len(m) > 1 {
		if sel, ok := decodeSelection(m[1]); ok {
			sel.Reply = strings.TrimSpace(actionBlockRe.ReplaceAllString(text, ""))
			return sel
		}
	}

	if obj := extractJSONObject(text); obj != "" && strings.Contains(obj, "actionId") {
		if sel, ok := decodeSelection(obj); ok {
			sel.Reply = strings.TrimSpace(strings.Replace(text, obj, "", 1))
			return sel
		}
	}

	return selection{Reply: strings.TrimSpace(text)}
}

func decodeSelection(raw string) (selection, bool) {
	var payload struct {
		ActionID   string         `json:"actionId"`
		Action     string         `json:"action"`
		Parameters map[string]any `json:"parameters"`
		Params     map[string]any `json:"params"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return selection{}, false
	}

	sel := selection{ActionID: payload.ActionID, Parameters: payload.Parameters}
	if sel.ActionID == "" {
		sel.ActionID = payload.Action
	}
	if sel.Parameters == nil {
		sel.Parameters = payload.Params
	}
	if sel.ActionID == "" || strings.EqualFold(sel.ActionID, "none") {
		return selection{}, false
	}
	if sel.Parameters == nil {
		sel.Parameters = map[string]any{}
	}
	return sel, true
}

// extractJSONObject returns the first balanced top-level JSON object in the
// text, or "".
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
