package migrate

import (
	"context"
	"fmt"

	"github.com/aidigitalagency/storefront-backend/pkg/config"
	"github.com/aidigitalagency/storefront-backend/pkg/db"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot, only in dev and only
// when STOREFRONT_AUTO_MIGRATE is set. Other environments run cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	migrator, err := New(sqlDB, nil, logg)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	ctx = logg.WithField(ctx, "migrations", "embedded")
	logg.Info(ctx, "auto-migrate starting")
	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	logg.Info(ctx, "auto-migrate done")
	return nil
}
