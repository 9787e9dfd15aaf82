package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AldoManuel/juchifood/src/auth"
	"github.com/AldoManuel/juchifood/src/db"
	"github.com/AldoManuel/juchifood/src/imaging"
	"github.com/AldoManuel/juchifood/src/logging"
	"github.com/AldoManuel/juchifood/src/models"
	"github.com/google/uuid"
)

var (
	ErrNotOwner           = errors.New("product belongs to another vendor")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

const MinPasswordLength = 6

// A problem with what the user typed. Message is safe to show them.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// The image operations the editors rely on. *assets.Coordinator implements it.
type Images interface {
	ReplaceImage(ctx context.Context, kind models.OwnerKind, ownerID uuid.UUID, file models.ImageAsset, previousURL string, preset imaging.Preset) (models.StoredImageRef, error)
	DeleteImage(ctx context.Context, kind models.OwnerKind, url string) error
	RetireImage(ctx context.Context, kind models.OwnerKind, previousURL, currentURL string)
}

/*
Editor is the profile editor and product editor. Every change that touches an
image follows the same order: upload the new image, write its URL into the
record, and only then delete the image the record used to point at. Deleting
a record deletes its images first and the record second.

Image deletions never fail an operation. They are logged and the operation
carries on.
*/
type Editor struct {
	records Records
	images  Images
}

func NewEditor(records Records, images Images) *Editor {
	return &Editor{
		records: records,
		images:  images,
	}
}

// The password min tag has to match MinPasswordLength.
type RegisterInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"min=6"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description" validate:"required"`
	Location    string `json:"location" validate:"campus_location"`
}

func (e *Editor) RegisterVendor(ctx context.Context, in RegisterInput) (*models.Vendor, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)

	if err := validateInput(in); err != nil {
		return nil, err
	}

	v, err := e.records.InsertVendor(ctx, models.Vendor{
		ID:          uuid.New(),
		Email:       in.Email,
		Password:    auth.HashPassword(in.Password).String(),
		Name:        in.Name,
		Description: in.Description,
		Location:    in.Location,
	})
	if err != nil {
		return nil, err
	}

	logging.ExtractLogger(ctx).Info().Str("vendor", v.ID.String()).Str("location", v.Location).Msg("registered vendor")
	return v, nil
}

func (e *Editor) Login(ctx context.Context, email, password string) (*models.Vendor, error) {
	v, err := e.records.GetVendorByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !auth.CheckPasswordString(password, v.Password) {
		return nil, ErrInvalidCredentials
	}
	return v, nil
}

func (e *Editor) GetVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	return e.records.GetVendor(ctx, id)
}

func (e *Editor) ListVendors(ctx context.Context, location string) ([]*models.Vendor, error) {
	return e.records.ListVendors(ctx, location)
}

func (e *Editor) ListVendorProducts(ctx context.Context, vendorID uuid.UUID) ([]*models.Product, error) {
	return e.records.ListProductsByVendor(ctx, vendorID)
}

func (e *Editor) ListProducts(ctx context.Context, location string) ([]*models.ProductAndVendor, error) {
	return e.records.ListProducts(ctx, location)
}

func (e *Editor) UpdateProfile(ctx context.Context, vendorID uuid.UUID, upd models.VendorUpdate) (*models.Vendor, error) {
	upd.Name = trimPtr(upd.Name)
	upd.Description = trimPtr(upd.Description)
	if err := validateInput(upd); err != nil {
		return nil, err
	}

	return e.records.UpdateVendor(ctx, vendorID, upd)
}

// Uploads file as the vendor's profile image, points the vendor at it and
// deletes the image it replaced.
func (e *Editor) SetVendorImage(ctx context.Context, vendorID uuid.UUID, file models.ImageAsset) (*models.Vendor, error) {
	v, err := e.records.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	previous := v.ProfileImageURL()

	file.OwnerKind = models.OwnerProfile
	file.OwnerID = vendorID
	ref, err := e.images.ReplaceImage(ctx, models.OwnerProfile, vendorID, file, previous, imaging.PresetFor(models.OwnerProfile))
	if err != nil {
		return nil, err
	}

	if err := e.records.SetVendorImage(ctx, vendorID, &ref.PublicURL); err != nil {
		logOrphan(ctx, ref, err)
		return nil, err
	}
	v.ProfileImage = &ref.PublicURL

	e.images.RetireImage(ctx, models.OwnerProfile, previous, ref.PublicURL)
	return v, nil
}

func (e *Editor) RemoveVendorImage(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error) {
	v, err := e.records.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	previous := v.ProfileImageURL()
	if previous == "" {
		return v, nil
	}

	if err := e.records.SetVendorImage(ctx, vendorID, nil); err != nil {
		return nil, err
	}
	v.ProfileImage = nil

	e.images.RetireImage(ctx, models.OwnerProfile, previous, "")
	return v, nil
}

// Deletes the vendor's profile image, every product image and then the vendor
// record. Products go with the vendor record.
func (e *Editor) DeleteVendor(ctx context.Context, vendorID uuid.UUID) error {
	v, err := e.records.GetVendor(ctx, vendorID)
	if err != nil {
		return err
	}
	products, err := e.records.ListProductsByVendor(ctx, vendorID)
	if err != nil {
		return err
	}

	e.deleteImage(ctx, models.OwnerProfile, v.ProfileImageURL())
	for _, p := range products {
		e.deleteImage(ctx, models.OwnerProduct, p.ImageURLString())
	}

	if err := e.records.DeleteVendor(ctx, vendorID); err != nil {
		return err
	}

	logging.ExtractLogger(ctx).Info().
		Str("vendor", vendorID.String()).
		Int("products", len(products)).
		Msg("deleted vendor")
	return nil
}

type ProductInput struct {
	Name        string  `json:"name" validate:"required"`
	Price       float64 `json:"price" validate:"finite,gte=0"`
	Description string  `json:"description" validate:"required"`
}

func (in *ProductInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	return validateInput(in)
}

// Creates a product. When file is given it is uploaded first and the product
// is created pointing at it.
func (e *Editor) CreateProduct(ctx context.Context, vendorID uuid.UUID, in ProductInput, file *models.ImageAsset) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	product := models.Product{
		ID:          uuid.New(),
		VendorID:    vendorID,
		Name:        in.Name,
		Price:       in.Price,
		Description: in.Description,
	}

	var ref models.StoredImageRef
	if file != nil {
		file.OwnerKind = models.OwnerProduct
		file.OwnerID = vendorID
		var err error
		ref, err = e.images.ReplaceImage(ctx, models.OwnerProduct, vendorID, *file, "", imaging.PresetFor(models.OwnerProduct))
		if err != nil {
			return nil, err
		}
		product.ImageURL = &ref.PublicURL
	}

	created, err := e.records.InsertProduct(ctx, product)
	if err != nil {
		if file != nil {
			logOrphan(ctx, ref, err)
		}
		return nil, err
	}
	return created, nil
}

func (e *Editor) UpdateProduct(ctx context.Context, vendorID, productID uuid.UUID, upd models.ProductUpdate) (*models.Product, error) {
	if _, err := e.ownedProduct(ctx, vendorID, productID); err != nil {
		return nil, err
	}

	upd.Name = trimPtr(upd.Name)
	upd.Description = trimPtr(upd.Description)
	if err := validateInput(upd); err != nil {
		return nil, err
	}

	return e.records.UpdateProduct(ctx, productID, upd)
}

// Replaces the product's image. Only the vendor that owns the product may do
// this; anyone else gets ErrNotOwner and nothing is uploaded.
func (e *Editor) SetProductImage(ctx context.Context, vendorID, productID uuid.UUID, file models.ImageAsset) (*models.Product, error) {
	p, err := e.ownedProduct(ctx, vendorID, productID)
	if err != nil {
		return nil, err
	}
	previous := p.ImageURLString()

	file.OwnerKind = models.OwnerProduct
	file.OwnerID = vendorID
	ref, err := e.images.ReplaceImage(ctx, models.OwnerProduct, vendorID, file, previous, imaging.PresetFor(models.OwnerProduct))
	if err != nil {
		return nil, err
	}

	if err := e.records.SetProductImage(ctx, productID, &ref.PublicURL); err != nil {
		logOrphan(ctx, ref, err)
		return nil, err
	}
	p.ImageURL = &ref.PublicURL

	e.images.RetireImage(ctx, models.OwnerProduct, previous, ref.PublicURL)
	return p, nil
}

func (e *Editor) DeleteProduct(ctx context.Context, vendorID, productID uuid.UUID) error {
	p, err := e.ownedProduct(ctx, vendorID, productID)
	if err != nil {
		return err
	}

	e.deleteImage(ctx, models.OwnerProduct, p.ImageURLString())
	return e.records.DeleteProduct(ctx, productID)
}

func (e *Editor) ownedProduct(ctx context.Context, vendorID, productID uuid.UUID) (*models.Product, error) {
	p, err := e.records.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.VendorID != vendorID {
		return nil, ErrNotOwner
	}
	return p, nil
}

func (e *Editor) deleteImage(ctx context.Context, kind models.OwnerKind, url string) {
	if url == "" {
		return
	}
	if err := e.images.DeleteImage(ctx, kind, url); err != nil {
		logging.ExtractLogger(ctx).Warn().
			Err(err).
			Str("kind", string(kind)).
			Str("url", url).
			Msg("failed to delete image of deleted record")
	}
}

// An uploaded image that no record points at. Nothing cleans these up.
func logOrphan(ctx context.Context, ref models.StoredImageRef, cause error) {
	logging.ExtractLogger(ctx).Warn().
		Err(cause).
		Str("bucket", ref.Bucket).
		Str("url", ref.PublicURL).
		Msg("image was uploaded but the record could not be updated; the image is orphaned")
}
