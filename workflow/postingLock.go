package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireTechnicianCustodyLock serializes custody mutations per technician
// across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB transaction that performs the mutation.
func AcquireTechnicianCustodyLock(tx *gorm.DB, technicianId int) error {
	lockName := fmt.Sprintf("custody:%d", technicianId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire custody lock for technician_id=%d", technicianId)
	}
	return nil
}

func ReleaseTechnicianCustodyLock(tx *gorm.DB, technicianId int) {
	lockName := fmt.Sprintf("custody:%d", technicianId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
