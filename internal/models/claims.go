package models

import "github.com/golang-jwt/jwt/v5"

// UserClaims is the identity context attached to every request: who is
// acting and with what role. The core only authorizes, never authenticates.
type UserClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
