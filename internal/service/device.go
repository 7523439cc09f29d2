package service

import (
	"context"
	"errors"
	"time"

	"github.com/Skotchmaster/account_service/internal/models"
	"github.com/Skotchmaster/account_service/internal/repo"
)

// DeviceRegistry keeps the last device seen per user. It never gates login.
type DeviceRegistry struct {
	Repo *repo.GormRepo
	Now  func() time.Time
}

func (d *DeviceRegistry) Upsert(ctx context.Context, tx *repo.GormRepo, userID uint, ip string) (*models.UserDevice, error) {
	return tx.UpsertDevice(ctx, userID, ip, now(d.Now))
}

// Get returns nil without error when the user never logged in.
func (d *DeviceRegistry) Get(ctx context.Context, userID uint) (*models.UserDevice, error) {
	dev, err := d.Repo.DeviceByUser(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return dev, err
}
