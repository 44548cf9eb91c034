package migrations

import (
	"github.com/deliverhub/webhook-relay/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createDeliveriesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_deliveries",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_deliveries_status_provider_created ON deliveries (status, provider, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_webhook_id ON deliveries (webhook_id)`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_client_id ON deliveries (client_id)`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_retry_due ON deliveries (next_retry_at) WHERE status = 'PENDING' AND next_retry_at IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_failed_updated ON deliveries (updated_at) WHERE status = 'FAILED'`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryModel{})
		},
	}
}
