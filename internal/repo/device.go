package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/account_service/internal/models"
)

func (r *GormRepo) UpsertDevice(ctx context.Context, userID uint, ip string, now time.Time) (*models.UserDevice, error) {
	row := models.UserDevice{UserID: userID, IPAddress: ip, LastUsed: now}
	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"ip_address", "last_used"}),
		}).
		Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert device: %w", translate(err))
	}
	return r.DeviceByUser(ctx, userID)
}

func (r *GormRepo) DeviceByUser(ctx context.Context, userID uint) (*models.UserDevice, error) {
	var d models.UserDevice
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&d).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}
