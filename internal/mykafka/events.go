package mykafka

import (
	"strconv"
	"time"
)

const (
	UserRegistered = "user_registered"
	UserLoggedIn   = "user_logged_in"
	UserLoggedOut  = "user_logged_out"
	EmailVerified  = "email_verified"
	UserDeleted    = "user_deleted"
)

type UserEvent struct {
	Type   string    `json:"type"`
	UserID uint      `json:"user_id"`
	Email  string    `json:"email"`
	At     time.Time `json:"at"`
}

func (e UserEvent) Key() string {
	return strconv.FormatUint(uint64(e.UserID), 10)
}
