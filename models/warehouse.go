package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/isp_backend/config"
	"github.com/mmdatafocus/isp_backend/utils"
	"gorm.io/gorm"
)

type Warehouse struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	OfficeId  int       `gorm:"index;default:0" json:"office_id"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewWarehouse struct {
	Name     string `json:"name" binding:"required"`
	OfficeId int    `json:"office_id"`
}

func CreateWarehouse(ctx context.Context, input *NewWarehouse) (*Warehouse, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: warehouse name is required", utils.ErrValidation)
	}
	warehouse := Warehouse{
		Name:     input.Name,
		OfficeId: input.OfficeId,
		IsActive: utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&warehouse).Error; err != nil {
		return nil, err
	}
	return &warehouse, nil
}

func GetWarehouse(ctx context.Context, id int) (*Warehouse, error) {
	var warehouse Warehouse
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&warehouse, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: warehouse %d", utils.ErrorRecordNotFound, id)
		}
		return nil, err
	}
	return &warehouse, nil
}

func ValidateWarehouseExists(tx *gorm.DB, id int) error {
	var count int64
	if err := tx.Model(&Warehouse{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count <= 0 {
		return fmt.Errorf("%w: warehouse %d", utils.ErrorRecordNotFound, id)
	}
	return nil
}
