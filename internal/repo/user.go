package repo

import (
	"context"
	"fmt"

	"github.com/Skotchmaster/account_service/internal/models"
)

func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	if err := r.DB.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("create user: %w", translate(err))
	}
	return nil
}

func (r *GormRepo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *GormRepo) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *GormRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkEmailVerified flips email_verified once. It reports false when the
// flag was already set.
func (r *GormRepo) MarkEmailVerified(ctx context.Context, userID uint) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND email_verified = ?", userID, false).
		Update("email_verified", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepo) UpdatePasswordHash(ctx context.Context, userID uint, hash string) error {
	return r.updateUser(ctx, userID, "password_hash", hash)
}

func (r *GormRepo) UpdatePhone(ctx context.Context, userID uint, phone string) error {
	return r.updateUser(ctx, userID, "phone", phone)
}

func (r *GormRepo) updateUser(ctx context.Context, userID uint, column string, value any) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update user %s: %w", column, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes the user and every row it owns. Call it inside a
// transaction.
func (r *GormRepo) DeleteUser(ctx context.Context, u *models.User) error {
	db := r.DB.WithContext(ctx)
	steps := []struct {
		name string
		run  func() error
	}{
		{"tokens", func() error { return db.Where("user_id = ?", u.ID).Delete(&models.Token{}).Error }},
		{"token_rate_limits", func() error { return db.Where("user_id = ?", u.ID).Delete(&models.TokenRateLimit{}).Error }},
		{"user_devices", func() error { return db.Where("user_id = ?", u.ID).Delete(&models.UserDevice{}).Error }},
		{"email_verification_codes", func() error {
			return db.Where("user_email = ?", u.Email).Delete(&models.EmailVerificationCode{}).Error
		}},
		{"referrals", func() error {
			return db.Where("referrer_id = ? OR referred_id = ?", u.ID, u.ID).Delete(&models.Referral{}).Error
		}},
		{"users", func() error { return db.Delete(&models.User{}, u.ID).Error }},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			return fmt.Errorf("delete %s: %w", s.name, err)
		}
	}
	return nil
}
