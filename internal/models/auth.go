package models

import "github.com/golang-jwt/jwt/v5"

// UserRole is the role carried in access tokens issued by the studio application.
type UserRole string

const (
	RoleOwner      UserRole = "OWNER"
	RoleAdmin      UserRole = "ADMIN"
	RoleInstructor UserRole = "INSTRUCTOR"
	RoleMember     UserRole = "MEMBER"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	StudioID string   `json:"studio_id,omitempty"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	jwt.RegisteredClaims
}
