package main

import (
	"context"
	"log"

	"github.com/yourname/babylog/internal"
	"github.com/yourname/babylog/internal/api"
	"github.com/yourname/babylog/internal/caregiver"
	"github.com/yourname/babylog/internal/config"
	"github.com/yourname/babylog/internal/storage"
)

type app struct {
	logger internal.Logger
	store  storage.EventStore
	reg    *caregiver.Registry
	cfg    *config.Config
}

func (a *app) Logger() internal.Logger         { return a.logger }
func (a *app) Store() storage.EventStore       { return a.store }
func (a *app) Caregivers() *caregiver.Registry { return a.reg }
func (a *app) Config() *config.Config          { return a.cfg }

var _ api.App = (*app)(nil)

func main() {
	cfg := config.Load()

	logger, err := internal.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	store, err := storage.NewEventStore(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatalf("failed to init storage: %v", err)
	}

	a := &app{
		logger: logger,
		store:  store,
		reg:    caregiver.NewRegistry(cfg.Caregivers, logger),
		cfg:    cfg,
	}

	r := api.NewRouter(a)
	logger.Infof("server running on %s (backend=%s, tz=%s)", cfg.HTTPAddr, cfg.StorageBackend, cfg.Timezone)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		logger.Fatalf("failed to start server: %v", err)
	}
}
