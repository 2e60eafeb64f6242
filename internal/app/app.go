// Package app exposes the availability engine over HTTP.
package app

import (
	"context"

	"go.uber.org/zap"

	"availability-service/internal/availability"
)

// RuleLister lists every availability rule an owner has configured.
type RuleLister interface {
	ListAvailabilityRules(ctx context.Context, ownerID string) ([]availability.AvailabilityRule, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type App struct {
	Engine *availability.Engine
	Rules  RuleLister
	// Checks are run by /readyz, keyed by dependency name.
	Checks map[string]ReadinessCheck
	Logger *zap.Logger
}

func New(engine *availability.Engine, rules RuleLister, checks map[string]ReadinessCheck, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		Engine: engine,
		Rules:  rules,
		Checks: checks,
		Logger: logger.Named("http"),
	}
}
