package migrations

import (
	"github.com/deliverhub/webhook-relay/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_webhook_configs",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.WebhookConfigModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_webhook_configs_client_id ON webhook_configs (client_id)`,
					`CREATE INDEX IF NOT EXISTS idx_webhook_configs_provider ON webhook_configs (provider)`,
					`CREATE INDEX IF NOT EXISTS idx_webhook_configs_events ON webhook_configs USING GIN (events)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.WebhookConfigModel{})
			},
		},
		createDeliveriesTable(),
		createDeliveryLogsTable(),
	})

	return m.Migrate()
}
