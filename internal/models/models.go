package models

import (
	"time"
)

type User struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"  json:"id"`
	Email         string    `gorm:"uniqueIndex;not null"      json:"email"`
	PasswordHash  string    `gorm:"not null"                  json:"-"`
	Phone         string    `gorm:"not null;default:''"       json:"phone"`
	EmailVerified bool      `gorm:"not null;default:false"    json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Tokens           []Token                `gorm:"constraint:OnDelete:CASCADE"                                       json:"-"`
	RateLimit        *TokenRateLimit        `gorm:"constraint:OnDelete:CASCADE"                                       json:"-"`
	Device           *UserDevice            `gorm:"constraint:OnDelete:CASCADE"                                       json:"-"`
	VerificationCode *EmailVerificationCode `gorm:"foreignKey:UserEmail;references:Email;constraint:OnDelete:CASCADE" json:"-"`
	Referred         []Referral             `gorm:"foreignKey:ReferrerID;constraint:OnDelete:CASCADE"                 json:"-"`
	ReferredBy       *Referral              `gorm:"foreignKey:ReferredID;constraint:OnDelete:CASCADE"                 json:"-"`
}

// Token is one login session.
type Token struct {
	ID        uint      `gorm:"primaryKey"              json:"id"`
	UserID    uint      `gorm:"index;not null"          json:"user_id"`
	Token     string    `gorm:"uniqueIndex;not null"    json:"token"`
	IssuedAt  time.Time `gorm:"not null"                json:"issued_at"`
	ExpiresAt time.Time `gorm:"index;not null"          json:"expires_at"`
}

// TokenRateLimit is the per-user issuance counter. Revision guards the
// compare-and-swap increment.
type TokenRateLimit struct {
	ID          uint      `gorm:"primaryKey"               json:"id"`
	UserID      uint      `gorm:"uniqueIndex;not null"     json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	Attempts    int       `gorm:"not null;default:0"       json:"attempts"`
	LastAttempt time.Time `gorm:"not null"                 json:"last_attempt"`
	Revision    int64     `gorm:"not null;default:0"       json:"-"`
}

type UserDevice struct {
	ID        uint      `gorm:"primaryKey"              json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null"    json:"user_id"`
	IPAddress string    `gorm:"size:64;not null"        json:"ip_address"`
	LastUsed  time.Time `gorm:"not null"                json:"last_used"`
}

type EmailVerificationCode struct {
	ID        uint      `gorm:"primaryKey"              json:"id"`
	UserEmail string    `gorm:"uniqueIndex;not null"    json:"user_email"`
	Code      string    `gorm:"size:16;not null"        json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `gorm:"not null"                json:"expires_at"`
}

type Referral struct {
	ID         uint      `gorm:"primaryKey"              json:"id"`
	ReferrerID uint      `gorm:"index;not null"          json:"referrer_id"`
	ReferredID uint      `gorm:"uniqueIndex;not null"    json:"referred_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// All returns every model in migration order.
func All() []any {
	return []any{
		&User{},
		&Token{},
		&TokenRateLimit{},
		&UserDevice{},
		&EmailVerificationCode{},
		&Referral{},
	}
}
