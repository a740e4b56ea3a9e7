package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mmcdole/blobnav/internal/adapter"
	"github.com/mmcdole/blobnav/internal/browser"
	"github.com/mmcdole/blobnav/internal/domain"
	"github.com/mmcdole/blobnav/internal/loop"
	"github.com/mmcdole/blobnav/internal/remote"
	"github.com/mmcdole/blobnav/internal/store"
)

// settleTimeout bounds how long non-interactive commands wait for results
const settleTimeout = 30 * time.Second

// env is the configured store plus the ambient services every command needs
type env struct {
	cfg    *adapter.Config
	logger *slog.Logger
	store  domain.Store

	logCloser io.Closer
}

// openEnv loads the configuration, sets up logging and opens the store.
func openEnv() (*env, error) {
	var (
		cfg *adapter.Config
		err error
	)
	if configFlag != "" {
		cfg, err = adapter.LoadConfigFrom(configFlag)
	} else {
		cfg, err = adapter.LoadConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if backendFlag != "" {
		cfg.Store.Backend = adapter.Backend(backendFlag)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closer, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger, closer = adapter.NullLogger(), io.NopCloser(nil)
	}
	slog.SetDefault(logger)
	logger.Info("starting blobnav", "version", Version, "backend", cfg.Store.Backend)

	e := &env{cfg: cfg, logger: logger, logCloser: closer}
	if e.store, err = openStore(cfg, logger); err != nil {
		closer.Close()
		return nil, err
	}
	return e, nil
}

func openStore(cfg *adapter.Config, logger *slog.Logger) (domain.Store, error) {
	switch cfg.Store.Backend {
	case adapter.BackendRemote:
		if cfg.NeedsPassword() {
			if err := adapter.PromptPassword(cfg, os.Stderr); err != nil {
				return nil, err
			}
		}
		c, err := remote.New(remote.Options{
			URL:      cfg.Server.URL,
			UIRoot:   cfg.Server.UIRoot,
			Username: cfg.Server.Username,
			Password: cfg.Server.Password,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create remote client: %w", err)
		}
		return c, nil
	default:
		s, err := store.Open(cfg.Store.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open store %s: %w", cfg.Store.Path, err)
		}
		return s, nil
	}
}

// newBrowser creates the page at location, or at the UI root when empty.
func (e *env) newBrowser(q *loop.Queue, location string) (*browser.Browser, error) {
	if location == "" {
		location = e.cfg.Location("")
	}
	return browser.New(e.store, q, browser.Config{
		Location:          location,
		UIRoot:            e.cfg.Server.UIRoot,
		CacheSize:         e.cfg.Sessions.CacheSize,
		UploadConcurrency: e.cfg.Upload.Concurrency,
	}, e.logger)
}

// settle drains q until the page has its first results
func settle(q *loop.Queue, b *browser.Browser) error {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	return q.RunUntil(ctx, func() bool { return !b.Loading() })
}

// Close releases the store and the log file.
func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("closing store", "error", err)
	}
	e.logCloser.Close()
}
