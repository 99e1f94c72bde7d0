package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/isp_backend/config"
	"github.com/mmdatafocus/isp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AssetType is a catalog entry: a kind of physical inventory (cable drum,
// ONT, router, consumable). Units/debts reference it by id; price and
// metadata stay editable, the tracking configuration does not once units or
// debt lines exist.
type AssetType struct {
	ID                    int             `gorm:"primary_key" json:"id"`
	Name                  string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Category              string          `gorm:"size:100;index" json:"category"`
	UnitPrice             decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	TracksIndividualUnits *bool           `gorm:"not null;default:false" json:"tracks_individual_units"`
	IsLengthBased         *bool           `gorm:"not null;default:false" json:"is_length_based"`
	StandardUnitLength    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"standard_unit_length"`
	IsActive              *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAssetType struct {
	Name                  string          `json:"name" binding:"required"`
	Category              string          `json:"category"`
	UnitPrice             decimal.Decimal `json:"unit_price"`
	TracksIndividualUnits *bool           `json:"tracks_individual_units"`
	IsLengthBased         *bool           `json:"is_length_based"`
	StandardUnitLength    decimal.Decimal `json:"standard_unit_length"`
}

func (t *AssetType) Tracked() bool {
	return t.TracksIndividualUnits != nil && *t.TracksIndividualUnits
}

func (t *AssetType) LengthBased() bool {
	return t.IsLengthBased != nil && *t.IsLengthBased
}

func assetTypeCacheKey(id int) string {
	return fmt.Sprintf("AssetType:%d", id)
}

func CreateAssetType(ctx context.Context, input *NewAssetType) (*AssetType, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: asset type name is required", utils.ErrValidation)
	}
	if input.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("%w: unit price cannot be negative", utils.ErrValidation)
	}
	lengthBased := input.IsLengthBased != nil && *input.IsLengthBased
	if lengthBased && !input.StandardUnitLength.IsPositive() {
		return nil, fmt.Errorf("%w: length-based asset type requires a standard unit length", utils.ErrValidation)
	}

	assetType := AssetType{
		Name:                 input.Name,
		Category:             input.Category,
		UnitPrice:            input.UnitPrice,
		TracksIndividualUnits: input.TracksIndividualUnits,
		IsLengthBased:        input.IsLengthBased,
		StandardUnitLength:   input.StandardUnitLength,
		IsActive:             utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&assetType).Error; err != nil {
		return nil, err
	}
	return &assetType, nil
}

// GetAssetType reads through the redis cache.
func GetAssetType(ctx context.Context, id int) (*AssetType, error) {
	var assetType AssetType
	exists, err := config.GetRedisObject(assetTypeCacheKey(id), &assetType)
	if err == nil && exists {
		return &assetType, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).First(&assetType, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: asset type %d", utils.ErrorRecordNotFound, id)
		}
		return nil, err
	}
	_ = config.SetRedisObject(assetTypeCacheKey(id), &assetType, time.Hour)
	return &assetType, nil
}

// GetAssetTypeTx reads inside the caller's transaction, bypassing the cache.
func GetAssetTypeTx(tx *gorm.DB, id int) (*AssetType, error) {
	var assetType AssetType
	if err := tx.First(&assetType, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: asset type %d", utils.ErrorRecordNotFound, id)
		}
		return nil, err
	}
	return &assetType, nil
}

// UpdateAssetTypePrice edits price/metadata only; tracking configuration is
// immutable once units or debt lines reference the type.
func UpdateAssetTypePrice(ctx context.Context, id int, unitPrice decimal.Decimal) (*AssetType, error) {
	if unitPrice.IsNegative() {
		return nil, fmt.Errorf("%w: unit price cannot be negative", utils.ErrValidation)
	}
	db := config.GetDB()
	assetType, err := GetAssetTypeTx(db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(assetType).Update("unit_price", unitPrice).Error; err != nil {
		return nil, err
	}
	_ = config.RemoveRedisKey(assetTypeCacheKey(id))
	assetType.UnitPrice = unitPrice
	return assetType, nil
}

func GetAssetTypes(ctx context.Context) ([]*AssetType, error) {
	var assetTypes []*AssetType
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("is_active = true").Order("name ASC").Find(&assetTypes).Error; err != nil {
		return nil, err
	}
	return assetTypes, nil
}
