package models

import (
	"database/sql"

	"gorm.io/gorm"
)

type Role string

const (
	AdminRole Role = "ADMIN"
	UserRole  Role = "USER"
)

// User is the local account row. It only exists so the authenticated endpoints
// have someone to issue a JWT to; everything provisioning-related lives on the
// Stripe customer metadata (see CustomerMetadata).
type User struct {
	gorm.Model
	Email            string       `json:"email" binding:"required,email"`
	Password         string       `json:"password" binding:"required,min=6"`
	Role             Role         `json:"role"`
	StripeCustomerId string       `json:"stripeCustomerId"`
	Enable           bool         `json:"enable"`
	EmailVerifiedAt  sql.NullTime `json:"emailVerifiedAt"`
}

type UserCreate struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}
