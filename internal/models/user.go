package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the principal record tokens are issued for. The password hash and
// the refresh-token reference never leave the service: both are excluded
// from JSON serialization.
//
// RefreshToken holds the single currently-valid refresh token for this
// principal; empty means no active session.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserName     string             `bson:"userName" json:"userName"`
	Email        string             `bson:"email" json:"email"`
	FullName     string             `bson:"fullName" json:"fullName"`
	Avatar       string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	CoverImage   string             `bson:"coverImage,omitempty" json:"coverImage,omitempty"`
	PasswordHash string             `bson:"password" json:"-"`
	RefreshToken string             `bson:"refreshToken,omitempty" json:"-"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}
