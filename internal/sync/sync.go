package sync

import (
	"context"
	"fmt"
	gosync "sync"

	"github.com/anqer/anqer/internal/adapters"
	"github.com/anqer/anqer/internal/config"
	"github.com/anqer/anqer/internal/enrich"
	"github.com/anqer/anqer/internal/google"
	"github.com/anqer/anqer/internal/identity"
	"github.com/anqer/anqer/internal/model"
	"github.com/anqer/anqer/internal/store"
)

// AdapterResult contains the result of syncing a single adapter
type AdapterResult struct {
	AdapterName         string `json:"adapter_name"`
	Success             bool   `json:"success"`
	Error               string `json:"error,omitempty"`
	InteractionsCreated int    `json:"interactions_created"`
	PersonsCreated      int    `json:"persons_created"`
	RecordsSkipped      int    `json:"records_skipped"`
	Duration            string `json:"duration"`
}

// Result contains the results of syncing all adapters
type Result struct {
	OK       bool            `json:"ok"`
	Message  string          `json:"message,omitempty"`
	Adapters []AdapterResult `json:"adapters,omitempty"`
}

// Engine wires adapters to the shared store and serializes runs per
// platform. Adapters for different platforms may run concurrently; two
// runs for the same platform through the engine never overlap.
type Engine struct {
	Store      *store.Store
	Resolver   *identity.Resolver
	Summarizer enrich.Summarizer
	Config     *config.Config

	mu    gosync.Mutex
	locks map[model.Platform]*gosync.Mutex
}

func NewEngine(s *store.Store, r *identity.Resolver, sum enrich.Summarizer, cfg *config.Config) *Engine {
	return &Engine{
		Store:      s,
		Resolver:   r,
		Summarizer: sum,
		Config:     cfg,
		locks:      make(map[model.Platform]*gosync.Mutex),
	}
}

func (e *Engine) platformLock(p model.Platform) *gosync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locks[p] == nil {
		e.locks[p] = &gosync.Mutex{}
	}
	return e.locks[p]
}

// Run executes one adapter under its platform lock.
func (e *Engine) Run(ctx context.Context, a adapters.Adapter) (adapters.SyncResult, error) {
	lock := e.platformLock(a.Platform())
	lock.Lock()
	defer lock.Unlock()
	return a.Sync(ctx)
}

// SyncAll runs all enabled adapters
func (e *Engine) SyncAll(ctx context.Context) Result {
	result := Result{OK: true}

	if len(e.Config.Adapters) == 0 {
		result.Message = "No adapters configured"
		return result
	}

	enabledCount := 0
	for _, adapter := range e.Config.Adapters {
		if adapter.Enabled {
			enabledCount++
		}
	}
	if enabledCount == 0 {
		result.Message = "No adapters enabled"
		return result
	}

	for name, adapterCfg := range e.Config.Adapters {
		if !adapterCfg.Enabled {
			continue
		}

		adapterResult := e.syncAdapter(ctx, name, adapterCfg)
		result.Adapters = append(result.Adapters, adapterResult)

		if !adapterResult.Success {
			// One adapter failing doesn't stop others, but overall sync is not OK
			result.OK = false
		}
	}

	return result
}

// SyncOne runs a specific adapter by name
func (e *Engine) SyncOne(ctx context.Context, adapterName string) Result {
	result := Result{OK: true}

	adapterCfg, exists := e.Config.Adapters[adapterName]
	if !exists {
		result.OK = false
		result.Message = fmt.Sprintf("Adapter '%s' not configured", adapterName)
		return result
	}

	if !adapterCfg.Enabled {
		result.OK = false
		result.Message = fmt.Sprintf("Adapter '%s' is disabled", adapterName)
		return result
	}

	adapterResult := e.syncAdapter(ctx, adapterName, adapterCfg)
	result.Adapters = []AdapterResult{adapterResult}

	if !adapterResult.Success {
		result.OK = false
	}

	return result
}

// syncAdapter syncs a single adapter and returns its result
func (e *Engine) syncAdapter(ctx context.Context, name string, cfg config.AdapterConfig) AdapterResult {
	result := AdapterResult{
		AdapterName: name,
		Success:     false,
	}

	var adapter adapters.Adapter
	var err error

	switch cfg.Type {
	case "google":
		token := config.GoogleAccessToken()
		if token == "" {
			result.Error = "GOOGLE_ACCESS_TOKEN not set"
			return result
		}
		session, serr := google.NewSession(token)
		if serr != nil {
			result.Error = fmt.Sprintf("Failed to create session: %v", serr)
			return result
		}
		adapter, err = adapters.NewGoogleAdapter(e.Store, e.Resolver, e.Summarizer, session, e.Config.Me.DisplayName)
		if err != nil {
			result.Error = fmt.Sprintf("Failed to create adapter: %v", err)
			return result
		}

	default:
		result.Error = fmt.Sprintf("Unknown adapter type: %s", cfg.Type)
		return result
	}

	syncResult, err := e.Run(ctx, adapter)
	if err != nil {
		result.Error = fmt.Sprintf("Sync failed: %v", err)
		return result
	}

	result.Success = true
	result.InteractionsCreated = syncResult.InteractionsCreated
	result.PersonsCreated = syncResult.PersonsCreated
	result.RecordsSkipped = syncResult.RecordsSkipped
	result.Duration = syncResult.Duration.String()

	return result
}
