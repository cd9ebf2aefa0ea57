package model

import (
	"strings"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Email       string `json:"email" gorm:"uniqueIndex;not null"`
	Password    string `json:"-" gorm:"not null"`
	FullName    string `json:"full_name" gorm:"not null"`
	PhoneNumber string `json:"phone_number" gorm:"uniqueIndex;not null"`

	IsVerified bool `json:"is_verified" gorm:"default:false"`

	// İlişkiler
	Payments     []PaymentRecord   `json:"-"`
	Subscription *UserSubscription `json:"-"`
	Projects     []Project         `json:"-"`
}

func (u *User) FirstName() string {
	parts := strings.Fields(u.FullName)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func (u *User) GetPublicProfile() map[string]interface{} {
	return map[string]interface{}{
		"id":           u.ID,
		"email":        u.Email,
		"full_name":    u.FullName,
		"first_name":   u.FirstName(),
		"phone_number": u.PhoneNumber,
		"is_verified":  u.IsVerified,
	}
}
