package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/ekballo/heatmap-api/internal/config"
	"github.com/ekballo/heatmap-api/internal/db"
	"github.com/ekballo/heatmap-api/internal/grid"
	"github.com/ekballo/heatmap-api/internal/reports"
	"github.com/ekballo/heatmap-api/internal/saturation"
)

// env bundles the stores shared by the commands. For the postgres
// driver both stores run over one connection pool.
type env struct {
	units   grid.Store
	reports reports.Store
}

func openEnv(ctx context.Context) (*env, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &env{
			units:   grid.NewPostgresStore(pool),
			reports: reports.NewPostgresStore(pool),
		}, nil
	case "sqlite":
		units, err := grid.NewSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		rep, err := reports.NewSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			units.Close()
			return nil, err
		}
		return &env{units: units, reports: rep}, nil
	}
	return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// Close releases both stores. With a shared postgres pool the second
// close is a no-op.
func (e *env) Close() {
	_ = e.reports.Close()
	_ = e.units.Close()
}

// policyFromConfig applies configured divisor overrides on top of the
// built-in exception sets.
func policyFromConfig(sc config.SaturationConfig) saturation.Policy {
	p := saturation.DefaultPolicy()
	if sc.GlobalDivisor > 0 {
		p.GlobalDivisor = sc.GlobalDivisor
	}
	for code, d := range sc.CountryDivisors {
		p.CountryDivisors[code] = d
	}
	return p
}
