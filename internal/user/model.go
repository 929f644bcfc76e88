// Package user owns the user side of registration: the user record, its
// repositories, the synchronous Register entry point that starts the saga,
// and the consumer that finishes user provisioning from the guest side's
// completion event.
package user

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProviderLocal tags users registered directly through the user service.
const ProviderLocal = "local"

// Domain errors.
var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user: not found")
	// ErrEmailExists is returned when a user with the email already exists.
	ErrEmailExists = errors.New("user: email already exists")
)

// User is the user record.
type User struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Name           string     `gorm:"not null" json:"name"`
	Email          string     `gorm:"unique;not null" json:"email"`
	PasswordHash   string     `gorm:"not null" json:"-"`
	ProviderName   string     `json:"provider_name"`
	ProviderUserID string     `json:"provider_user_id"`
	PhoneNumber    string     `json:"phone_number"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	Gender         string     `gorm:"default:'Unknown'" json:"gender"`
	Verified       bool       `gorm:"default:false" json:"verified"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// BeforeCreate assigns an id when none was set.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
