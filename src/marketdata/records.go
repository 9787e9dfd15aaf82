// Package marketdata reads and writes vendors and products, and keeps their
// images in step with the records that reference them.
package marketdata

import (
	"context"
	"errors"

	"github.com/AldoManuel/juchifood/src/db"
	"github.com/AldoManuel/juchifood/src/models"
	"github.com/AldoManuel/juchifood/src/oops"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrEmailTaken = errors.New("email is already registered")

// The record store. Lookups of a single record return db.NotFound when there
// is nothing to return. Lists are ordered newest first.
type Records interface {
	GetVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
	GetVendorByEmail(ctx context.Context, email string) (*models.Vendor, error)
	// An empty location lists every vendor.
	ListVendors(ctx context.Context, location string) ([]*models.Vendor, error)
	InsertVendor(ctx context.Context, v models.Vendor) (*models.Vendor, error)
	UpdateVendor(ctx context.Context, id uuid.UUID, upd models.VendorUpdate) (*models.Vendor, error)
	SetVendorImage(ctx context.Context, id uuid.UUID, url *string) error
	DeleteVendor(ctx context.Context, id uuid.UUID) error

	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProductsByVendor(ctx context.Context, vendorID uuid.UUID) ([]*models.Product, error)
	// An empty location lists every product.
	ListProducts(ctx context.Context, location string) ([]*models.ProductAndVendor, error)
	InsertProduct(ctx context.Context, p models.Product) (*models.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, upd models.ProductUpdate) (*models.Product, error)
	SetProductImage(ctx context.Context, id uuid.UUID, url *string) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
}

type PgRecords struct {
	conn db.ConnOrTx
}

var _ Records = &PgRecords{}

func NewPgRecords(conn db.ConnOrTx) *PgRecords {
	return &PgRecords{conn: conn}
}

func (r *PgRecords) GetVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	v, err := db.QueryOne[models.Vendor](ctx, r.conn,
		`
		---- Get vendor
		SELECT $columns
		FROM vendor
		WHERE id = $1
		`,
		id,
	)
	if err != nil {
		return nil, wrapNotFound(err, "failed to fetch vendor")
	}
	return v, nil
}

func (r *PgRecords) GetVendorByEmail(ctx context.Context, email string) (*models.Vendor, error) {
	v, err := db.QueryOne[models.Vendor](ctx, r.conn,
		`
		---- Get vendor by email
		SELECT $columns
		FROM vendor
		WHERE lower(email) = lower($1)
		`,
		email,
	)
	if err != nil {
		return nil, wrapNotFound(err, "failed to fetch vendor by email")
	}
	return v, nil
}

func (r *PgRecords) ListVendors(ctx context.Context, location string) ([]*models.Vendor, error) {
	qb := listVendorsQuery(location)
	vendors, err := db.Query[models.Vendor](ctx, r.conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to list vendors")
	}
	return vendors, nil
}

func listVendorsQuery(location string) db.QueryBuilder {
	var qb db.QueryBuilder
	qb.Add(`
		---- List vendors
		SELECT $columns
		FROM vendor
		WHERE TRUE
	`)
	if location != "" {
		qb.Add(`AND location = $?`, location)
	}
	qb.Add(`ORDER BY created_at DESC, id`)
	return qb
}

func (r *PgRecords) InsertVendor(ctx context.Context, v models.Vendor) (*models.Vendor, error) {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	inserted, err := db.QueryOne[models.Vendor](ctx, r.conn,
		`
		---- Insert vendor
		INSERT INTO vendor (id, email, password, name, description, location, profile_image)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING $columns
		`,
		v.ID, v.Email, v.Password, v.Name, v.Description, v.Location, v.ProfileImage,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, oops.New(err, "failed to insert vendor")
	}
	return inserted, nil
}

func (r *PgRecords) UpdateVendor(ctx context.Context, id uuid.UUID, upd models.VendorUpdate) (*models.Vendor, error) {
	var qb db.QueryBuilder
	qb.Add(`
		---- Update vendor
		UPDATE vendor
		SET id = id
	`)
	if upd.Name != nil {
		qb.Add(`, name = $?`, *upd.Name)
	}
	if upd.Description != nil {
		qb.Add(`, description = $?`, *upd.Description)
	}
	if upd.Location != nil {
		qb.Add(`, location = $?`, *upd.Location)
	}
	qb.Add(`WHERE id = $? RETURNING $columns`, id)

	v, err := db.QueryOne[models.Vendor](ctx, r.conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, wrapNotFound(err, "failed to update vendor")
	}
	return v, nil
}

func (r *PgRecords) SetVendorImage(ctx context.Context, id uuid.UUID, url *string) error {
	tag, err := r.conn.Exec(ctx,
		`
		---- Set vendor image
		UPDATE vendor
		SET profile_image = $1
		WHERE id = $2
		`,
		url, id,
	)
	if err != nil {
		return oops.New(err, "failed to set vendor image")
	}
	if tag.RowsAffected() == 0 {
		return db.NotFound
	}
	return nil
}

func (r *PgRecords) DeleteVendor(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn.Exec(ctx,
		`
		---- Delete vendor
		DELETE FROM vendor
		WHERE id = $1
		`,
		id,
	)
	if err != nil {
		return oops.New(err, "failed to delete vendor")
	}
	if tag.RowsAffected() == 0 {
		return db.NotFound
	}
	return nil
}

func (r *PgRecords) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := db.QueryOne[models.Product](ctx, r.conn,
		`
		---- Get product
		SELECT $columns
		FROM product
		WHERE id = $1
		`,
		id,
	)
	if err != nil {
		return nil, wrapNotFound(err, "failed to fetch product")
	}
	return p, nil
}

func (r *PgRecords) ListProductsByVendor(ctx context.Context, vendorID uuid.UUID) ([]*models.Product, error) {
	products, err := db.Query[models.Product](ctx, r.conn,
		`
		---- List vendor products
		SELECT $columns
		FROM product
		WHERE vendor_id = $1
		ORDER BY created_at DESC, id
		`,
		vendorID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to list products for vendor")
	}
	return products, nil
}

func (r *PgRecords) ListProducts(ctx context.Context, location string) ([]*models.ProductAndVendor, error) {
	qb := listProductsQuery(location)
	products, err := db.Query[models.ProductAndVendor](ctx, r.conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to list products")
	}
	return products, nil
}

func listProductsQuery(location string) db.QueryBuilder {
	var qb db.QueryBuilder
	qb.Add(`
		---- List products
		SELECT $columns
		FROM
			product
			JOIN vendor ON vendor.id = product.vendor_id
		WHERE TRUE
	`)
	if location != "" {
		qb.Add(`AND vendor.location = $?`, location)
	}
	qb.Add(`ORDER BY product.created_at DESC, product.id`)
	return qb
}

func (r *PgRecords) InsertProduct(ctx context.Context, p models.Product) (*models.Product, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	inserted, err := db.QueryOne[models.Product](ctx, r.conn,
		`
		---- Insert product
		INSERT INTO product (id, vendor_id, name, price, description, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING $columns
		`,
		p.ID, p.VendorID, p.Name, p.Price, p.Description, p.ImageURL,
	)
	if err != nil {
		return nil, oops.New(err, "failed to insert product")
	}
	return inserted, nil
}

func (r *PgRecords) UpdateProduct(ctx context.Context, id uuid.UUID, upd models.ProductUpdate) (*models.Product, error) {
	var qb db.QueryBuilder
	qb.Add(`
		---- Update product
		UPDATE product
		SET id = id
	`)
	if upd.Name != nil {
		qb.Add(`, name = $?`, *upd.Name)
	}
	if upd.Price != nil {
		qb.Add(`, price = $?`, *upd.Price)
	}
	if upd.Description != nil {
		qb.Add(`, description = $?`, *upd.Description)
	}
	qb.Add(`WHERE id = $? RETURNING $columns`, id)

	p, err := db.QueryOne[models.Product](ctx, r.conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, wrapNotFound(err, "failed to update product")
	}
	return p, nil
}

func (r *PgRecords) SetProductImage(ctx context.Context, id uuid.UUID, url *string) error {
	tag, err := r.conn.Exec(ctx,
		`
		---- Set product image
		UPDATE product
		SET image_url = $1
		WHERE id = $2
		`,
		url, id,
	)
	if err != nil {
		return oops.New(err, "failed to set product image")
	}
	if tag.RowsAffected() == 0 {
		return db.NotFound
	}
	return nil
}

func (r *PgRecords) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn.Exec(ctx,
		`
		---- Delete product
		DELETE FROM product
		WHERE id = $1
		`,
		id,
	)
	if err != nil {
		return oops.New(err, "failed to delete product")
	}
	if tag.RowsAffected() == 0 {
		return db.NotFound
	}
	return nil
}

func wrapNotFound(err error, msg string) error {
	if errors.Is(err, db.NotFound) {
		return db.NotFound
	}
	return oops.New(err, msg)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
