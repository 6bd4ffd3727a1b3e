package versions

import (
	"log"

	"midad_platform/midad/schema"

	"gorm.io/gorm"
)

func Migration_0_initial_migration(txn *gorm.DB) error {
	log.Println("performing initial migration")

	err := txn.Migrator().AutoMigrate(schema.AllTables()...)
	if err != nil {
		return err
	}

	log.Println("initial migration complete")

	return nil
}
