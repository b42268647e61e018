package api

import (
	"github.com/yourname/babylog/internal"
	"github.com/yourname/babylog/internal/caregiver"
	"github.com/yourname/babylog/internal/config"
	"github.com/yourname/babylog/internal/storage"
)

type App interface {
	Logger() internal.Logger
	Store() storage.EventStore
	Caregivers() *caregiver.Registry
	Config() *config.Config
}
