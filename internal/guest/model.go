// Package guest owns the guest side of registration: the guest record, its
// repositories, and the idempotent provisioner that reacts to the user
// service's creation event.
package guest

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Domain errors.
var (
	// ErrNotFound is returned when no guest matches the lookup.
	ErrNotFound = errors.New("guest: not found")
	// ErrEmailExists is returned when a guest with the email already exists.
	ErrEmailExists = errors.New("guest: email already exists")
)

// Guest is the guest record.
type Guest struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Name        string     `gorm:"not null" json:"name"`
	Email       string     `gorm:"unique;not null" json:"email"`
	PhoneNumber string     `json:"phone_number"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Gender      string     `gorm:"default:'Unknown'" json:"gender"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BeforeCreate assigns an id when none was set.
func (g *Guest) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}
