package models

import (
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID       uuid.UUID `db:"id" json:"id"`
	VendorID uuid.UUID `db:"vendor_id" json:"vendor_id"`

	Name        string  `db:"name" json:"name"`
	Price       float64 `db:"price" json:"price"`
	Description string  `db:"description" json:"description"`

	ImageURL *string `db:"image_url" json:"image_url"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (p *Product) ImageURLString() string {
	if p.ImageURL == nil {
		return ""
	}
	return *p.ImageURL
}

type ProductAndVendor struct {
	Product Product `db:"product" json:"product"`
	Vendor  Vendor  `db:"vendor" json:"vendor"`
}

// Nil fields are left alone. Set fields follow the same rules as on creation.
type ProductUpdate struct {
	Name        *string  `json:"name" validate:"omitnil,min=1"`
	Price       *float64 `json:"price" validate:"omitnil,finite,gte=0"`
	Description *string  `json:"description" validate:"omitnil,min=1"`
}
