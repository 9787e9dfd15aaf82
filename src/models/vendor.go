package models

import (
	"time"

	"github.com/google/uuid"
)

// A food vendor. Vendors are the only kind of user account.
type Vendor struct {
	ID uuid.UUID `db:"id" json:"id"`

	Email    string `db:"email" json:"email"`
	Password string `db:"password" json:"-"` // argon2id hash, see auth.HashedPassword

	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	Location    string `db:"location" json:"location"`

	// Public URL of the profile image, if any.
	ProfileImage *string `db:"profile_image" json:"profile_image"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (v *Vendor) ProfileImageURL() string {
	if v.ProfileImage == nil {
		return ""
	}
	return *v.ProfileImage
}

// Editable profile fields. Nil fields are left unchanged.
type VendorUpdate struct {
	Name        *string `json:"name" validate:"omitnil,min=1"`
	Description *string `json:"description" validate:"omitnil,min=1"`
	Location    *string `json:"location" validate:"omitnil,campus_location"`
}
