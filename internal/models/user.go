package models

import (
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type User struct {
	gorm.Model
	Username     string                      `json:"username" gorm:"column:username;uniqueIndex;not null"`
	Email        string                      `json:"email" gorm:"column:email;uniqueIndex;not null"`
	Password     string                      `json:"-" gorm:"-"` // plaintext, only set before HashPassword
	PasswordHash string                      `json:"-" gorm:"column:password_hash"`
	GoogleID     *string                     `json:"-" gorm:"column:google_id;uniqueIndex"`
	Name         string                      `json:"name"`
	Bio          string                      `json:"bio"`
	AvatarURL    string                      `json:"avatarUrl"`
	PhoneNumber  string                      `json:"phoneNumber"`
	Languages    datatypes.JSONSlice[string] `json:"languages"`
	Role         UserRole                    `json:"role" gorm:"not null;default:'user'"`
	IsVerified   bool                        `json:"isVerified" gorm:"not null;default:false"`
	FCMToken     string                      `json:"-" gorm:"column:fcm_token"`
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}

func (u *User) HashPassword() error {
	if u.Password == "" {
		return nil
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	u.Password = ""
	return nil
}

// CheckPassword fails for accounts that only ever signed in with Google.
func (u *User) CheckPassword(password string) error {
	if u.PasswordHash == "" {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PublicUser is the subset of a user shown to other users.
type PublicUser struct {
	ID        uint     `json:"id"`
	Username  string   `json:"username"`
	Name      string   `json:"name"`
	AvatarURL string   `json:"avatarUrl"`
	Bio       string   `json:"bio,omitempty"`
	Languages []string `json:"languages,omitempty"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		Bio:       u.Bio,
		Languages: u.Languages,
	}
}
