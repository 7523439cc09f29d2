package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/account_service/internal/models"
)

// SaveVerificationCode keeps one code per email; a resend overwrites it.
func (r *GormRepo) SaveVerificationCode(ctx context.Context, email, code string, now, expiresAt time.Time) error {
	row := models.EmailVerificationCode{UserEmail: email, Code: code, CreatedAt: now, ExpiresAt: expiresAt}
	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_email"}},
			DoUpdates: clause.AssignmentColumns([]string{"code", "created_at", "expires_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save verification code: %w", translate(err))
	}
	return nil
}

func (r *GormRepo) VerificationCodeByEmail(ctx context.Context, email string) (*models.EmailVerificationCode, error) {
	var c models.EmailVerificationCode
	if err := r.DB.WithContext(ctx).Where("user_email = ?", email).First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *GormRepo) DeleteVerificationCode(ctx context.Context, email string) error {
	return r.DB.WithContext(ctx).Where("user_email = ?", email).Delete(&models.EmailVerificationCode{}).Error
}
