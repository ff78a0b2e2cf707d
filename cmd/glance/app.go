package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/4thel00z/glance/internal"
	"github.com/spf13/cobra"
)

// servicesFunc hands a command the pipeline for the scope its flags select.
type servicesFunc func(cmd *cobra.Command) (*internal.Services, error)

// app builds the services lazily so commands that never touch the index or a
// provider (init, provider, help) do not pay for them.
type app struct {
	resolver *internal.ScopeResolver
	lookup   func(string) (string, bool)

	// override lets tests swap in fakes before the services are built.
	override func(*internal.ServiceOptions)

	mu  sync.Mutex
	svc *internal.Services
}

func newApp() *app {
	return &app{
		resolver: internal.NewScopeResolver(),
		lookup:   os.LookupEnv,
	}
}

func (a *app) services(cmd *cobra.Command) (*internal.Services, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.svc != nil {
		return a.svc, nil
	}

	scopeHint, _ := cmd.Flags().GetString("scope")
	scope := a.resolver.Resolve(scopeHint)

	fileCfg, err := internal.LoadConfig(scope)
	if err != nil {
		return nil, err
	}
	cfg, err := fileCfg.WithEnv(a.lookup)
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}

	logger, err := internal.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(cmd.ErrOrStderr())

	opts := internal.ServiceOptions{
		Scope:  scope,
		Config: cfg,
		Logger: logger,
	}
	if a.override != nil {
		a.override(&opts)
	}

	svc, err := internal.NewServices(cmd.Context(), opts)
	if err != nil {
		return nil, fmt.Errorf("start %s scope: %w", scope.Type, err)
	}

	a.svc = svc
	return svc, nil
}

// loadEnv reads .env from the working directory and the scope's data
// directory. Variables already set in the environment win.
func (a *app) loadEnv(cmd *cobra.Command, _ []string) error {
	scopeHint, _ := cmd.Flags().GetString("scope")
	scope := a.resolver.Resolve(scopeHint)
	return internal.LoadDotEnv(".env", scope.EnvPath())
}

func (a *app) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.svc == nil {
		return nil
	}
	err := a.svc.Close()
	a.svc = nil
	return err
}
