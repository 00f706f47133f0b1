// Package agent orchestrates a conversation turn: judge the input, let the
// model select an action, validate its parameters, execute, and judge the
// composed response. Session state changes only by applying the commands each
// turn produces.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopclerk/shopclerk/internal/action"
	"github.com/shopclerk/shopclerk/internal/command"
	"github.com/shopclerk/shopclerk/internal/config"
	"github.com/shopclerk/shopclerk/internal/domain"
	"github.com/shopclerk/shopclerk/internal/hooks"
	"github.com/shopclerk/shopclerk/internal/judge"
	"github.com/shopclerk/shopclerk/internal/llm"
	"github.com/shopclerk/shopclerk/internal/logging"
	"github.com/shopclerk/shopclerk/internal/store"
)

// refusalMessage is the generic text shown for judge blocks.
const refusalMessage = "I can't help with that request."

// maxSelectionTokens bounds the action-selection completion.
const maxSelectionTokens = 1024

// TurnResult is the outcome of one processed turn.
type TurnResult struct {
	SessionID string               `json:"sessionId"`
	Response  string               `json:"response"`
	ActionID  string               `json:"actionId,omitempty"`
	Blocked   bool                 `json:"blocked"`
	Commands  []command.Command    `json:"commands"`
	State     *domain.SessionState `json:"state"`
}

// Orchestrator drives turns over managed sessions. Turns on the same session
// serialize; turns on different sessions run independently.
type Orchestrator struct {
	registry *action.Registry
	executor *action.Executor
	judge    *judge.Judge
	client   llm.Client
	audit    store.AuditStore
	limits   config.LimitsConfig
	extra    string
	hooks    *hooks.Manager // nil disables lifecycle events
	log      *logging.Logger

	mu       sync.Mutex
	sessions map[string]*managedSession
}

type managedSession struct {
	mu    sync.Mutex
	state *domain.SessionState
}

// New creates an orchestrator over the given collaborators.
func New(registry *action.Registry, executor *action.Executor, j *judge.Judge, client llm.Client, audit store.AuditStore, limits config.LimitsConfig, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		executor: executor,
		judge:    j,
		client:   client,
		audit:    audit,
		limits:   limits,
		log:      log.Sub("agent"),
		sessions: make(map[string]*managedSession),
	}
}

// SetExtraPrompt appends deployment-specific guidance to the selection prompt.
func (o *Orchestrator) SetExtraPrompt(p string) {
	o.extra = p
}

// SetHooks attaches a hook manager for lifecycle events.
func (o *Orchestrator) SetHooks(hm *hooks.Manager) {
	o.hooks = hm
}

func (o *Orchestrator) emit(ctx context.Context, event string, data map[string]any) {
	if o.hooks != nil {
		o.hooks.Emit(ctx, event, data)
	}
}

// StartSession creates and registers a new session.
func (o *Orchestrator) StartSession(ctx context.Context, mode domain.Mode, sctx domain.SessionContext) (*domain.SessionState, error) {
	if mode != domain.ModeB2C && mode != domain.ModeB2B {
		return nil, &domain.ValidationError{Field: "mode", Message: fmt.Sprintf("invalid session mode %q", mode)}
	}

	state := domain.NewSession(mode, sctx)
	if err := o.audit.CreateSession(ctx, state); err != nil {
		return nil, fmt.Errorf("recording session: %w", err)
	}

	o.mu.Lock()
	o.sessions[state.ID] = &managedSession{state: state}
	o.mu.Unlock()

	o.log.Info().Str("sessionId", state.ID).Str("mode", string(mode)).Msg("session started")
	o.emit(ctx, hooks.EventSessionStart, map[string]any{"sessionId": state.ID, "mode": string(mode)})
	return state.Clone(), nil
}

// Session returns a snapshot of a managed session's state.
func (o *Orchestrator) Session(id string) (*domain.SessionState, error) {
	ms, err := o.managed(id)
	if err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.state.Clone(), nil
}

// EndSession drops a session from memory. Its audit trail remains.
func (o *Orchestrator) EndSession(id string) {
	o.mu.Lock()
	delete(o.sessions, id)
	o.mu.Unlock()
	o.emit(context.Background(), hooks.EventSessionEnd, map[string]any{"sessionId": id})
}

func (o *Orchestrator) managed(id string) (*managedSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ms, ok := o.sessions[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "session", ID: id}
	}
	return ms, nil
}

// Turn processes one user input against a session. The returned error is
// non-nil only for an unknown session or a ConfigurationError; every other
// failure is resolved into the turn's commands.
func (o *Orchestrator) Turn(ctx context.Context, sessionID, input string) (*TurnResult, error) {
	ms, err := o.managed(sessionID)
	if err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	state := ms.state
	log := o.log.WithSession(sessionID)
	limits := o.limits.ForMode(string(state.Mode))

	cmds := []command.Command{command.NewMessage(llm.RoleUser, input)}
	var actionID string
	blocked := false

	verdict := o.judge.CheckInput(ctx, input, state.Mode)
	switch {
	case !verdict.Safe && o.judge.Blocked(verdict):
		blocked = true
		cmds = append(cmds, violationCommand(verdict))
		cmds = append(cmds, command.ErrorPair(refusalMessage)...)

	default:
		if !verdict.Safe {
			// recorded but not blocking
			cmds = append(cmds, violationCommand(verdict))
		}
		actionCmds, id := o.runSelection(ctx, state, input)
		actionID = id
		cmds = append(cmds, actionCmds...)
	}

	next, err := command.Apply(state, cmds)
	if err != nil {
		return nil, err
	}

	response := lastAssistantMessage(cmds)
	if response != "" && !blocked {
		if r := o.judge.CheckResponse(response, next, limits); !r.Safe && o.judge.Blocked(r) {
			log.Warn().Str("reason", r.Reason).Msg("composed response rejected")
			cmds = dropAssistantMessages(cmds)
			cmds = append(cmds, violationCommand(r))
			cmds = append(cmds, command.ErrorPair(refusalMessage)...)
			next, err = command.Apply(state, cmds)
			if err != nil {
				return nil, err
			}
			response = refusalMessage
			blocked = true
		}
	}
	if response == "" {
		response = "How can I help you today?"
		cmds = append(cmds, command.NewMessage(llm.RoleAssistant, response))
		next, err = command.Apply(state, cmds)
		if err != nil {
			return nil, err
		}
	}

	ms.state = next

	if err := o.audit.RecordTurn(ctx, &store.TurnRecord{
		SessionID: sessionID,
		Input:     input,
		ActionID:  actionID,
		Commands:  cmds,
		Blocked:   blocked,
	}); err != nil {
		log.Error().Err(err).Msg("recording turn failed")
	}

	log.Debug().Str("action", actionID).Bool("blocked", blocked).Int("commands", len(cmds)).Msg("turn complete")
	if blocked {
		o.emit(ctx, hooks.EventViolationRecorded, map[string]any{"sessionId": sessionID})
	}
	o.emit(ctx, hooks.EventTurnComplete, map[string]any{"sessionId": sessionID, "actionId": actionID, "blocked": blocked})
	return &TurnResult{
		SessionID: sessionID,
		Response:  response,
		ActionID:  actionID,
		Blocked:   blocked,
		Commands:  cmds,
		State:     next.Clone(),
	}, nil
}

// runSelection asks the model to pick an action and executes it. Returns the
// commands for the turn and the id of the executed action, if any.
func (o *Orchestrator) runSelection(ctx context.Context, state *domain.SessionState, input string) ([]command.Command, string) {
	var available []action.Definition
	for def := range o.registry.ListForMode(state.Mode) {
		available = append(available, def)
	}

	resp, err := o.client.Complete(ctx, llm.CompletionRequest{
		System:    BuildSelectionPrompt(PromptConfig{Mode: state.Mode, State: state, Actions: available, ExtraPrompt: o.extra}),
		Messages:  historyWindow(state, input),
		MaxTokens: maxSelectionTokens,
	})
	if err != nil {
		o.log.WithSession(state.ID).Error().Err(err).Msg("action selection failed")
		return command.ErrorPair("I'm having trouble understanding requests right now. Please try again in a moment."), ""
	}

	sel := parseSelection(resp.Content)
	if sel.ActionID == "" {
		reply := sel.Reply
		if reply == "" {
			reply = "How can I help you today?"
		}
		return []command.Command{command.NewMessage(llm.RoleAssistant, reply)}, ""
	}

	def, err := o.registry.Resolve(sel.ActionID)
	if err != nil {
		return command.ErrorPair(fmt.Sprintf("I don't know how to %q.", sel.ActionID)), ""
	}

	params, err := action.ValidateParams(def, sel.Parameters)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return command.ErrorPair("That request had a problem: " + ve.Error()), def.ID
		}
		return command.ErrorPair("That request could not be validated."), def.ID
	}

	cmds, err := o.executor.Execute(ctx, def, params, state)
	if err != nil {
		// only ConfigurationError escapes the executor; surface it loudly
		// and fail the turn safely for the user
		o.log.WithSession(state.ID).Error().Err(err).Str("action", def.ID).Msg("executor configuration error")
		return command.ErrorPair("Something went wrong handling that request."), def.ID
	}
	return cmds, def.ID
}

// historyWindow returns the recent transcript plus the new input.
func historyWindow(state *domain.SessionState, input string) []llm.Message {
	const window = 10
	msgs := state.Messages
	if len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	out := make([]llm.Message, 0, len(msgs)+1)
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return append(out, llm.Message{Role: llm.RoleUser, Content: input})
}

func violationCommand(r judge.Result) command.Command {
	return command.Command{Type: command.TypeRecordViolation, RecordViolation: &command.RecordViolationPayload{
		Layer:    r.Layer,
		Severity: r.Severity,
	}}
}

func lastAssistantMessage(cmds []command.Command) string {
	for i := len(cmds) - 1; i >= 0; i-- {
		if cmds[i].Type == command.TypeAddMessage && cmds[i].AddMessage.Role == llm.RoleAssistant {
			return cmds[i].AddMessage.Content
		}
	}
	return ""
}

func dropAssistantMessages(cmds []command.Command) []command.Command {
	out := cmds[:0:0]
	for _, c := range cmds {
		if c.Type == command.TypeAddMessage && c.AddMessage.Role == llm.RoleAssistant {
			continue
		}
		out = append(out, c)
	}
	return out
}
