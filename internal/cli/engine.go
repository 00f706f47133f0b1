package cli

import (
	"fmt"

	"github.com/shopclerk/shopclerk/internal/action"
	"github.com/shopclerk/shopclerk/internal/agent"
	"github.com/shopclerk/shopclerk/internal/bulk"
	"github.com/shopclerk/shopclerk/internal/config"
	"github.com/shopclerk/shopclerk/internal/hooks"
	"github.com/shopclerk/shopclerk/internal/judge"
	"github.com/shopclerk/shopclerk/internal/llm"
	"github.com/shopclerk/shopclerk/internal/store"
	"github.com/shopclerk/shopclerk/internal/udl"
)

// engine bundles the assembled collaborators behind the CLI commands.
type engine struct {
	orch  *agent.Orchestrator
	proc  *bulk.Processor
	audit store.AuditStore
	data  *udl.FakeDataLayer
	hooks *hooks.Manager
}

// close releases the engine's resources.
func (e *engine) close() {
	if e.audit != nil {
		e.audit.Close()
	}
}

// openAuditStore builds the audit store named by config.
func openAuditStore(cfg config.AuditConfig) (store.AuditStore, error) {
	switch cfg.Store {
	case "sqlite":
		db, err := store.Open(cfg.Path, log)
		if err != nil {
			return nil, fmt.Errorf("opening audit database: %w", err)
		}
		return store.NewSQLiteAudit(db), nil
	default:
		return store.NewMemoryAudit(), nil
	}
}

// buildEngine assembles the full action engine from config. The demo data
// layer stands in for a live commerce backend.
func buildEngine(cfg config.Config) (*engine, error) {
	audit, err := openAuditStore(cfg.Audit)
	if err != nil {
		return nil, err
	}

	data := udl.NewFakeDataLayer()
	data.SeedDemo()

	client := llm.FromConfig(cfg.LLM, log)
	j := judge.New(cfg.Security, client, log)
	proc := bulk.NewProcessor(data, cfg.Bulk, log)
	exec := action.NewExecutor(j, data, proc, cfg.Limits, log)

	registry := action.NewRegistry(log)
	registry.MustRegister(action.Catalog()...)

	orch := agent.New(registry, exec, j, client, audit, cfg.Limits, log)

	hookMgr := hooks.NewManager(log)
	orch.SetHooks(hookMgr)

	return &engine{
		orch:  orch,
		proc:  proc,
		audit: audit,
		data:  data,
		hooks: hookMgr,
	}, nil
}
