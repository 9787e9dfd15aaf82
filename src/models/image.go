package models

import "github.com/google/uuid"

// Which record field an image belongs to. Also the object path prefix.
type OwnerKind string

const (
	OwnerProfile OwnerKind = "profile"
	OwnerProduct OwnerKind = "product"
)

func (k OwnerKind) Valid() bool {
	return k == OwnerProfile || k == OwnerProduct
}

// An image file as received from a client, before it is stored anywhere.
type ImageAsset struct {
	OwnerKind OwnerKind
	// For product images this is the vendor's id, not the product's.
	OwnerID uuid.UUID

	Filename string
	MimeType string
	ByteSize int64
	Width    int
	Height   int
	Content  []byte
}

// Where an uploaded image lives. Only PublicURL is persisted, in
// Vendor.ProfileImage or Product.ImageURL.
type StoredImageRef struct {
	Bucket    string `json:"bucket"`
	Path      string `json:"path"`
	PublicURL string `json:"public_url"`
}

func (r StoredImageRef) IsZero() bool {
	return r == StoredImageRef{}
}
