package migrate

import (
	"bytes"
	"context"
	"fmt"

	"github.com/angelmondragon/easevote-backend/pkg/config"
	"github.com/angelmondragon/easevote-backend/pkg/db"
	"github.com/angelmondragon/easevote-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations when running in dev with
// EASEVOTE_AUTO_MIGRATE set. Staging and production migrate through
// cmd/migrate as a release step.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !autoRunEnabled(cfg) {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "source": "embedded"})
	pending, err := Pending(ctx, sqlDB, "")
	if err != nil {
		return fmt.Errorf("check pending migrations: %w", err)
	}
	if !pending {
		logg.Debug(ctx, "migrate.up_to_date")
		return nil
	}

	var out bytes.Buffer
	if err := Run(ctx, sqlDB, "", "up", &out); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	logg.Info(logg.WithField(ctx, "applied", bytes.Count(out.Bytes(), []byte("\n"))), "migrate.auto_run_complete")
	return nil
}

// sqlite schemas come from the models when the client opens.
func autoRunEnabled(cfg *config.Config) bool {
	return cfg != nil && cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate && !cfg.DB.IsSQLite()
}
