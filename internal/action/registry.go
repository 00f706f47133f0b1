// Package action holds the declarative action catalog: definitions with
// parameter contracts, the registry that validates and serves them, the
// parameter validator, and the executor that turns validated invocations into
// state-update commands.
package action

import (
	"fmt"
	"iter"
	"regexp"
	"sync"

	"github.com/shopclerk/shopclerk/internal/domain"
	"github.com/shopclerk/shopclerk/internal/logging"
)

// ParamType enumerates the supported parameter types.
type ParamType string

const (
	ParamString     ParamType = "string"
	ParamInt        ParamType = "int"
	ParamFloat      ParamType = "float"
	ParamBool       ParamType = "bool"
	ParamStringList ParamType = "stringList"
	ParamObjectList ParamType = "objectList"
)

var knownParamTypes = map[ParamType]bool{
	ParamString:     true,
	ParamInt:        true,
	ParamFloat:      true,
	ParamBool:       true,
	ParamStringList: true,
	ParamObjectList: true,
}

// ParamSpec declares one parameter of an action's contract.
type ParamSpec struct {
	Name        string
	Type        ParamType
	Required    bool
	Default     any      // used only when the field is absent; nil means no default
	Min, Max    *float64 // numeric range (inclusive)
	Pattern     string   // regex constraint for strings
	Enum        []string // allowed values for strings
	Description string

	// Suggests names a follow-up parameter the assistant should ask for when
	// this one is provided alone. Chains are validated to be acyclic.
	Suggests string

	compiledPattern *regexp.Regexp
}

// Definition is a declared capability: pure metadata, no execution logic.
type Definition struct {
	ID              string
	Category        string
	Description     string
	Mode            domain.Mode // b2c, b2b, or both
	Params          []ParamSpec
	RequiredMethods []string // data layer methods the action needs
	Mutating        bool     // produces state-mutating commands
	CheckoutClass   bool     // checkout/payment/discount-style operation
	Hints           []string // intelligence hints surfaced to the model
}

// Registry stores action definitions. Definitions are registered at startup
// and never mutated afterwards.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]Definition
	order []string
	log   *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		defs: make(map[string]Definition),
		log:  log.Sub("action.registry"),
	}
}

// Register validates the definition's shape and adds it. Duplicate ids,
// duplicate or malformed parameters, unknown parameter types, and circular
// suggestion references are all rejected eagerly with a ConfigurationError.
func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def.ID == "" {
		return &domain.ConfigurationError{Message: "action definition has empty id"}
	}
	if _, exists := r.defs[def.ID]; exists {
		return &domain.ConfigurationError{Message: fmt.Sprintf("duplicate action id %q", def.ID)}
	}
	switch def.Mode {
	case domain.ModeB2C, domain.ModeB2B, domain.ModeBoth:
	default:
		return &domain.ConfigurationError{Message: fmt.Sprintf("action %q has invalid mode %q", def.ID, def.Mode)}
	}
	if err := validateParams(def); err != nil {
		return err
	}
	for i := range def.Params {
		if def.Params[i].Pattern != "" {
			def.Params[i].compiledPattern = regexp.MustCompile(def.Params[i].Pattern)
		}
	}

	r.defs[def.ID] = def
	r.order = append(r.order, def.ID)
	r.log.Debug().Str("action", def.ID).Str("mode", string(def.Mode)).Msg("registered action")
	return nil
}

// MustRegister registers definitions and panics on a malformed one. Intended
// for the built-in catalog, where a failure is a programming error.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// Resolve returns the definition for an id, or a NotFoundError.
func (r *Registry) Resolve(id string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	if !ok {
		return Definition{}, &domain.NotFoundError{Kind: "action", ID: id}
	}
	return def, nil
}

// ListForMode returns a restartable sequence of definitions applicable to the
// given session mode (declared for that mode or for both), in registration
// order.
func (r *Registry) ListForMode(mode domain.Mode) iter.Seq[Definition] {
	return func(yield func(Definition) bool) {
		r.mu.RLock()
		ids := append([]string(nil), r.order...)
		r.mu.RUnlock()

		for _, id := range ids {
			r.mu.RLock()
			def, ok := r.defs[id]
			r.mu.RUnlock()
			if !ok {
				continue
			}
			if def.Mode != domain.ModeBoth && def.Mode != mode {
				continue
			}
			if !yield(def) {
				return
			}
		}
	}
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

func validateParams(def Definition) error {
	seen := make(map[string]bool, len(def.Params))
	for _, p := range def.Params {
		if p.Name == "" {
			return &domain.ConfigurationError{Message: fmt.Sprintf("action %q has a parameter with empty name", def.ID)}
		}
		if seen[p.Name] {
			return &domain.ConfigurationError{Message: fmt.Sprintf("action %q has duplicate parameter %q", def.ID, p.Name)}
		}
		seen[p.Name] = true

		if !knownParamTypes[p.Type] {
			return &domain.ConfigurationError{Message: fmt.Sprintf("action %q parameter %q has unknown type %q", def.ID, p.Name, p.Type)}
		}
		if p.Pattern != "" {
			if _, err := regexp.Compile(p.Pattern); err != nil {
				return &domain.ConfigurationError{Message: fmt.Sprintf("action %q parameter %q has invalid pattern: %v", def.ID, p.Name, err)}
			}
		}
		if len(p.Enum) > 0 && p.Type != ParamString {
			return &domain.ConfigurationError{Message: fmt.Sprintf("action %q parameter %q declares an enum on a non-string type", def.ID, p.Name)}
		}
		if p.Required && p.Default != nil {
			return &domain.ConfigurationError{Message: fmt.Sprintf("action %q parameter %q is required but declares a default", def.ID, p.Name)}
		}
		if p.Default != nil {
			if _, err := coerce(p, p.Default); err != nil {
				return &domain.ConfigurationError{Message: fmt.Sprintf("action %q parameter %q has a default of the wrong type", def.ID, p.Name)}
			}
		}
	}

	// suggestion references must exist and must not form a cycle
	for _, p := range def.Params {
		if p.Suggests == "" {
			continue
		}
		if !seen[p.Suggests] {
			return &domain.ConfigurationError{Message: fmt.Sprintf("action %q parameter %q suggests unknown parameter %q", def.ID, p.Name, p.Suggests)}
		}
	}
	if err := checkSuggestionCycles(def); err != nil {
		return err
	}
	return nil
}

func checkSuggestionCycles(def Definition) error {
	next := make(map[string]string, len(def.Params))
	for _, p := range def.Params {
		if p.Suggests != "" {
			next[p.Name] = p.Suggests
		}
	}
	for start := range next {
		visited := map[string]bool{start: true}
		for cur := next[start]; cur != ""; cur = next[cur] {
			if visited[cur] {
				return &domain.ConfigurationError{Message: fmt.Sprintf("action %q has circular suggestion references involving %q", def.ID, start)}
			}
			visited[cur] = true
		}
	}
	return nil
}
