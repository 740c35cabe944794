package cli

import (
	"fmt"

	"github.com/smokyabdulrahman/prayer-notify/internal/api"
	"github.com/smokyabdulrahman/prayer-notify/internal/cache"
	"github.com/smokyabdulrahman/prayer-notify/internal/config"
	"github.com/smokyabdulrahman/prayer-notify/internal/notify"
	"github.com/smokyabdulrahman/prayer-notify/internal/service"
	"github.com/smokyabdulrahman/prayer-notify/internal/state"
	"github.com/smokyabdulrahman/prayer-notify/internal/store"
	"github.com/smokyabdulrahman/prayer-notify/internal/widget"
)

// apiBaseURL overrides the prayer times API endpoint when set.
var apiBaseURL string

// app is the wired pipeline behind a command.
type app struct {
	kv    store.KV
	state *state.State
	cache *cache.Cache
	sync  *notify.Synchronizer
	svc   *service.Service
}

type appOptions struct {
	// notifier enables notification sync when set.
	notifier notify.Notifier
	bridge   *widget.Bridge
	// persistPrefs saves preference changes to the config file.
	persistPrefs bool
}

func openStore(cfg config.Config) (store.KV, error) {
	dsn := cfg.StoreDSN
	if dsn == "" {
		switch cfg.Store {
		case "redis":
			dsn = cfg.RedisAddr
		case "", "sqlite":
			dsn = cfg.StorePath()
		}
	}
	kv, err := store.Open(cfg.Store, dsn, cfg.RedisPassword)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store, err)
	}
	return kv, nil
}

func newAPIClient() *api.Client {
	c := api.NewClient()
	if apiBaseURL != "" {
		c.BaseURL = apiBaseURL
	}
	return c
}

func openApp(cfg config.Config, opts appOptions) (*app, error) {
	kv, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		kv:    kv,
		state: state.New(cfg),
		cache: cache.New(kv),
	}
	if opts.notifier != nil {
		a.sync = notify.NewSynchronizer(kv, opts.notifier)
	}

	deps := service.Deps{
		State:  a.state,
		API:    newAPIClient(),
		Cache:  a.cache,
		Sync:   a.sync,
		Bridge: opts.bridge,
	}
	if opts.persistPrefs {
		deps.SavePrefs = func(c config.Config) error { return c.Save() }
	}
	a.svc = service.New(deps)
	return a, nil
}

func (a *app) Close() error {
	return a.kv.Close()
}
