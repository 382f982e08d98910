package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/atinyakov/FinKeeper/internal/client/api"
	"github.com/atinyakov/FinKeeper/internal/client/localstore"
	"github.com/atinyakov/FinKeeper/internal/client/mode"
	"github.com/atinyakov/FinKeeper/internal/client/pending"
	"github.com/atinyakov/FinKeeper/internal/client/syncer"
	"github.com/atinyakov/FinKeeper/internal/client/syncstate"
	"github.com/atinyakov/FinKeeper/internal/config"
	"github.com/atinyakov/FinKeeper/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app holds everything a command needs. It is built once per invocation.
type app struct {
	cfg    config.Client
	log    *zap.Logger
	store  localstore.Store
	queue  *pending.Queue
	client *api.Client
	tokens api.FileToken
	state  *syncstate.Broadcaster
	engine *syncer.Engine
}

func openApp(cmd *cobra.Command, v *viper.Viper) (*app, error) {
	cfg, err := config.LoadClient(v, cmd.Root().PersistentFlags())
	if err != nil {
		return nil, err
	}

	l := logger.New()
	if err := l.InitWithFile(cfg.Log.Level, logger.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}); err != nil {
		return nil, err
	}

	store, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	hc, err := api.NewHTTPClient(api.TLSOptions{
		CAFile:   cfg.Server.CAFile,
		CertFile: cfg.Server.CertFile,
		KeyFile:  cfg.Server.KeyFile,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	tokens := api.FileToken{Path: cfg.Session.TokenFile}
	client := api.New(cfg.Server.URL, hc, tokens, api.Options{
		HealthTimeout:  cfg.Heartbeat.Timeout,
		RequestTimeout: cfg.Server.RequestTimeout,
		Retries:        cfg.Server.Retries,
		Logger:         l.Log.Named("api"),
	})

	state := syncstate.New()
	engine := syncer.New(store, client, state, syncer.Config{
		WindowDays: cfg.Sync.WindowDays,
		Logger:     l.Log.Named("sync"),
	})

	return &app{
		cfg:    cfg,
		log:    l.Log,
		store:  store,
		queue:  pending.New(store),
		client: client,
		tokens: tokens,
		state:  state,
		engine: engine,
	}, nil
}

func openStore(cfg config.StoreConfig) (localstore.Store, error) {
	if cfg.Driver == config.DriverMemory {
		return localstore.NewMemory(), nil
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return localstore.OpenSQLite(cfg.Path)
}

// controller wires a mode controller to the app's client and engine.
func (a *app) controller(ui mode.UI) *mode.Controller {
	return mode.New(a.client, a.client, a.engine, ui, mode.Config{
		Logger: a.log.Named("mode"),
	})
}

func (a *app) Close() error {
	_ = a.log.Sync()
	return a.store.Close()
}

// batchUI answers prompts for non-interactive commands: it reports the
// problem and stays offline.
type batchUI struct {
	out    io.Writer
	tokens api.FileToken
}

func (u batchUI) ConfirmOffline(_ context.Context, reason string) mode.Decision {
	fmt.Fprintf(u.out, "offline: %s\n", reason)
	return mode.GoOffline
}

func (u batchUI) SignOut(err error) {
	if cerr := u.tokens.Clear(); cerr != nil {
		fmt.Fprintln(u.out, cerr)
	}
	fmt.Fprintf(u.out, "session expired (%v), run 'finkeeper login' again\n", err)
}

var errNotSignedIn = errors.New("not signed in, run 'finkeeper login' or 'finkeeper register' first")

func (a *app) requireSession(ctx context.Context) error {
	tok, err := a.tokens.Token(ctx)
	if err != nil {
		return err
	}
	if tok == "" {
		return errNotSignedIn
	}
	return nil
}
