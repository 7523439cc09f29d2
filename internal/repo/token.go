package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Skotchmaster/account_service/internal/models"
)

func (r *GormRepo) CreateToken(ctx context.Context, t *models.Token) error {
	if err := r.DB.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("insert token: %w", translate(err))
	}
	return nil
}

func (r *GormRepo) HasActiveToken(ctx context.Context, userID uint, now time.Time) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.Token{}).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRepo) TokenByValue(ctx context.Context, raw string) (*models.Token, error) {
	var t models.Token
	if err := r.DB.WithContext(ctx).Where("token = ?", raw).First(&t).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *GormRepo) TokensByUser(ctx context.Context, userID uint) ([]models.Token, error) {
	var out []models.Token
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&out).Error
	return out, err
}

func (r *GormRepo) DeleteUserTokens(ctx context.Context, userID uint) (int64, error) {
	res := r.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Token{})
	return res.RowsAffected, res.Error
}

func (r *GormRepo) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.Token{})
	return res.RowsAffected, res.Error
}

// ActiveUsers returns the distinct users holding a token with expires_at > now.
func (r *GormRepo) ActiveUsers(ctx context.Context, now time.Time) ([]models.User, error) {
	db := r.DB.WithContext(ctx)
	active := db.Model(&models.Token{}).Select("user_id").Where("expires_at > ?", now)

	var users []models.User
	if err := db.Where("id IN (?)", active).Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
