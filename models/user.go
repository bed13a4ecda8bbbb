package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleAuthority Role = "authority"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleCitizen || r == RoleAuthority || r == RoleAdmin
}

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	Password     string             `bson:"password,omitempty" json:"-"`
	MobileNumber string             `bson:"mobileNumber" json:"mobileNumber"`
	Role         Role               `bson:"role" json:"role"`
	Zone         string             `bson:"zone,omitempty" json:"zone,omitempty"`
	Verified     bool               `bson:"isVerified" json:"isVerified"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) HashPassword() error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashed)
	return nil
}

func (u *User) ComparePassword(candidate string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(candidate))
	return err == nil
}

func (u *User) Identity() Identity {
	return Identity{
		UserID: u.ID.Hex(),
		Email:  u.Email,
		Role:   u.Role,
		Zone:   u.Zone,
	}
}
