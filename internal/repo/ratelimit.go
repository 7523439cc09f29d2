package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/account_service/internal/models"
)

// EnsureRateLimit inserts an empty counter for the user unless one exists.
// Concurrent callers racing on the unique user_id both succeed.
func (r *GormRepo) EnsureRateLimit(ctx context.Context, userID uint, now time.Time) error {
	row := models.TokenRateLimit{UserID: userID, Attempts: 0, LastAttempt: now}
	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("ensure rate limit: %w", translate(err))
	}
	return nil
}

// LockRateLimit reads the counter with SELECT ... FOR UPDATE.
func (r *GormRepo) LockRateLimit(ctx context.Context, userID uint) (*models.TokenRateLimit, error) {
	var row models.TokenRateLimit
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&row).Error
	if err != nil {
		return nil, translate(err)
	}
	return &row, nil
}

func (r *GormRepo) RateLimitByUser(ctx context.Context, userID uint) (*models.TokenRateLimit, error) {
	var row models.TokenRateLimit
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		return nil, translate(err)
	}
	return &row, nil
}

// SwapRateLimit stores attempts and lastAttempt only if the row still carries
// revision. It reports false when another writer got there first.
func (r *GormRepo) SwapRateLimit(ctx context.Context, userID uint, revision int64, attempts int, lastAttempt time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.TokenRateLimit{}).
		Where("user_id = ? AND revision = ?", userID, revision).
		Updates(map[string]any{
			"attempts":     attempts,
			"last_attempt": lastAttempt,
			"revision":     gorm.Expr("revision + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
