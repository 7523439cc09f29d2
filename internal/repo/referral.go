package repo

import (
	"context"
	"fmt"

	"github.com/Skotchmaster/account_service/internal/models"
)

func (r *GormRepo) CreateReferral(ctx context.Context, referrerID, referredID uint) error {
	ref := models.Referral{ReferrerID: referrerID, ReferredID: referredID}
	if err := r.DB.WithContext(ctx).Create(&ref).Error; err != nil {
		return fmt.Errorf("create referral: %w", translate(err))
	}
	return nil
}

// ReferredUsers pages through the users referred by referrerID. A
// non-positive limit returns them all.
func (r *GormRepo) ReferredUsers(ctx context.Context, referrerID uint, offset, limit int) ([]models.User, error) {
	var users []models.User
	q := r.DB.WithContext(ctx).
		Joins("JOIN referrals ON referrals.referred_id = users.id").
		Where("referrals.referrer_id = ?", referrerID).
		Order("users.id").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&users).Error
	return users, err
}
