package migrate

import (
	"context"
	"fmt"

	"github.com/aryanmotgi/Arcus-Sheets/pkg/config"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/db"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/logger"
)

// MaybeRunDev applies pending migrations at startup in dev when the postgres
// override backend is selected and auto-migrate is enabled.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !ShouldAutoRun(cfg) || client == nil {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir})
	logg.Info(ctx, "running Goose migrations (dev auto-run)")

	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "Goose migrations completed")
	return nil
}

// ShouldAutoRun reports whether startup migrations are enabled for cfg.
func ShouldAutoRun(cfg *config.Config) bool {
	return cfg != nil &&
		cfg.App.IsDev() &&
		cfg.DB.AutoMigrate &&
		cfg.Sync.OverridesBackend == config.OverridesBackendPostgres
}
