package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"agentboard/pkg/config"
	"agentboard/pkg/logger"
	"agentboard/pkg/notify"
	"agentboard/pkg/registry"
	"agentboard/pkg/state"
	"agentboard/pkg/store"
	"agentboard/pkg/validation"

	"agentboard/internal/sweeper"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	engine *notify.Engine
	agents *registry.Registry

	sweepCancel context.CancelFunc
	srv         *http.Server
}

// New initializes resources that do not require a running context (state
// dirs, DB, validation rules, runtime keys, engine, registry). It does not
// start the sweeper or the HTTP server; call Run to start those and block
// until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	// runtime keys
	runtimeCfg := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	for _, k := range eff.Config.Security.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	// validation rules
	initValidation(eff)

	// canonical runtime folder layout under the DB path
	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to prepare state dirs: %w", err)
	}
	if err := logger.AttachAuditFileSink(state.PathsVar.Audit); err != nil {
		logger.Warn("audit_sink_unavailable", "error", err)
	}

	// open store
	if err := store.Open(state.PathsVar.Store); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
	}

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		engine:    notify.NewEngine(),
		agents:    registry.New(),
	}
	return a, nil
}

// Run starts the sweeper (if enabled) and the HTTP server, and blocks until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	cancel, err := sweeper.Start(ctx, a.eff, a.agents)
	if err != nil {
		return err
	}
	a.sweepCancel = cancel
	sweeper.SetEffective(a.eff, a.agents)

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.Close()
		return nil
	case err := <-errCh:
		a.Close()
		return err
	}
}

// Close releases resources in reverse start order. Safe to call twice.
func (a *App) Close() {
	if a.sweepCancel != nil {
		a.sweepCancel()
		a.sweepCancel = nil
	}
	if a.srv != nil {
		_ = a.srv.Close()
		a.srv = nil
	}
	if store.Ready() {
		if err := store.Close(); err != nil {
			logger.Error("store_close_failed", "error", err)
		}
	}
	logger.Sync()
}

// initValidation builds validation rules from config and sets them globally.
func initValidation(eff config.EffectiveConfigResult) {
	vr := validation.Rules{Types: map[string]string{}, MaxLen: map[string]int{}, Enums: map[string][]string{}}
	vr.Required = append(vr.Required, eff.Config.Validation.Required...)
	for _, t := range eff.Config.Validation.Types {
		vr.Types[t.Path] = t.Type
	}
	for _, ml := range eff.Config.Validation.MaxLen {
		vr.MaxLen[ml.Path] = ml.Max
	}
	for _, e := range eff.Config.Validation.Enums {
		vr.Enums[e.Path] = append([]string{}, e.Values...)
	}
	for _, wt := range eff.Config.Validation.WhenThen {
		vr.WhenThen = append(vr.WhenThen, validation.WhenThenRule{WhenPath: wt.When.Path, Equals: wt.When.Equals, ThenReq: append([]string{}, wt.Then.Required...)})
	}
	validation.SetRules(vr)
}
