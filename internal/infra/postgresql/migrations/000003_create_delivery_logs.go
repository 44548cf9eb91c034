package migrations

import (
	"github.com/deliverhub/webhook-relay/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createDeliveryLogsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_delivery_logs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryLogModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_delivery_logs_delivery_id ON delivery_logs (delivery_id)`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_logs_client_created ON delivery_logs (client_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_logs_provider_event ON delivery_logs (provider, event_type)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryLogModel{})
		},
	}
}
