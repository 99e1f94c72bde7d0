package models

import (
	"github.com/mmdatafocus/isp_backend/config"
	"github.com/mmdatafocus/isp_backend/utils"
)

func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&AssetType{},
		&Warehouse{},
		&Technician{},
		&TrackedUnit{},
		&UnitStatusChange{},
		&UnitLengthChange{},
		&StockCounter{},
		&Checkout{},
		&DebtLine{},
		&Settlement{},
		&SettlementItem{},
		&InstalledAssetRecord{},
		&DomainEventRecord{},
	)
	utils.ErrorPanic(err)
}
