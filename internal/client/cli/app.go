package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/nutrisync/internal/client/config"
	"github.com/dmitrijs2005/nutrisync/internal/client/connectivity"
	"github.com/dmitrijs2005/nutrisync/internal/client/gateway"
	"github.com/dmitrijs2005/nutrisync/internal/client/gateway/memgateway"
	"github.com/dmitrijs2005/nutrisync/internal/client/services"
	"github.com/dmitrijs2005/nutrisync/internal/client/store"
	"github.com/dmitrijs2005/nutrisync/internal/client/syncer"
	"github.com/dmitrijs2005/nutrisync/internal/logging"
)

// DemoOwner is used in demo mode when no owner is configured.
const DemoOwner = "demo"

var ErrNoOwner = errors.New("owner id is required: set --owner or owner_id")

// Options changes how the App reaches the server.
type Options struct {
	// Offline pins the connectivity signal to offline.
	Offline bool
	// Demo replaces the configured server with an in-memory one.
	Demo bool
	// Gateway, when set, replaces the configured server.
	Gateway gateway.Gateway
	Stderr  io.Writer
}

// App owns every long-lived component of one CLI run.
type App struct {
	cfg      *config.Config
	owner    string
	store    *store.Store
	gw       gateway.Gateway
	watcher  *connectivity.Watcher
	signal   connectivity.Signal
	log      logging.Logger
	logClose io.Closer

	Facade *services.Facade
	Engine *syncer.Engine
}

func NewApp(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	owner := cfg.OwnerID
	if owner == "" && opts.Demo {
		owner = DemoOwner
	}
	if owner == "" {
		return nil, ErrNoOwner
	}

	log, logClose, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Stderr: opts.Stderr})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		_ = logClose.Close()
		return nil, fmt.Errorf("open local store: %w", err)
	}

	gw := opts.Gateway
	switch {
	case gw != nil:
	case opts.Demo:
		gw = memgateway.New()
	default:
		gw = gateway.NewHTTPGateway(gateway.Options{
			BaseURL:           cfg.ServerURL,
			Token:             cfg.AuthToken,
			Timeout:           cfg.RequestTimeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Logger:            log,
		})
	}

	a := &App{
		cfg:      cfg,
		owner:    owner,
		store:    st,
		gw:       gw,
		log:      log,
		logClose: logClose,
	}

	if opts.Offline {
		a.signal = connectivity.NewSwitch(false)
	} else {
		a.watcher = connectivity.NewWatcher(gw, cfg.OnlineCheckInterval, log)
		a.watcher.Check(ctx)
		a.signal = a.watcher
	}

	lock := &sync.Mutex{}
	a.Facade = services.NewFacade(st, gw, a.signal, services.Options{Locker: lock, Logger: log})
	a.Engine = syncer.New(gw, st.Outbox, st.Metadata, a.signal, services.Collections(st), syncer.Options{
		MaxRetries: cfg.MaxRetries,
		PullWindow: cfg.EntryPullWindow,
		Locker:     lock,
		Logger:     log,
	})

	log.Debug(ctx, "app ready", "db", cfg.DBPath, "owner", owner, "online", a.signal.Online())
	return a, nil
}

func (a *App) Owner() string {
	return a.owner
}

func (a *App) Online() bool {
	return a.signal.Online()
}

// Watch syncs right away, then on every reconnect and every sync interval,
// until ctx is done. Status transitions are passed to l.
func (a *App) Watch(ctx context.Context, l syncer.Listener) {
	if l != nil {
		defer a.Engine.Subscribe(l)()
	}

	var wg sync.WaitGroup
	if a.watcher != nil {
		a.watcher.OnChange(func(online bool) {
			if !online {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = a.Engine.Sync(ctx, a.owner)
			}()
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.watcher.Run(ctx)
		}()
	}

	_, _ = a.Engine.Sync(ctx, a.owner)
	a.Engine.Run(ctx, a.owner, a.cfg.SyncInterval)
	wg.Wait()
}

func (a *App) Close() error {
	return errors.Join(a.store.Close(), a.logClose.Close())
}
