package migrations

import (
	"context"
	"time"

	"github.com/AldoManuel/juchifood/src/migration/types"
	"github.com/AldoManuel/juchifood/src/utils"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(CreateVendorsAndProducts{})
}

type CreateVendorsAndProducts struct{}

func (m CreateVendorsAndProducts) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
}

func (m CreateVendorsAndProducts) Name() string {
	return "CreateVendorsAndProducts"
}

func (m CreateVendorsAndProducts) Description() string {
	return "Create the vendor and product tables"
}

func (m CreateVendorsAndProducts) Up(ctx context.Context, tx pgx.Tx) error {
	utils.Must1(tx.Exec(ctx,
		`
		CREATE TABLE vendor (
			id UUID PRIMARY KEY,
			email VARCHAR(255) NOT NULL,
			password VARCHAR(256) NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			location VARCHAR(64) NOT NULL,
			profile_image TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX vendor_email ON vendor (lower(email));
		CREATE INDEX vendor_location ON vendor (location, created_at DESC);

		CREATE TABLE product (
			id UUID PRIMARY KEY,
			vendor_id UUID NOT NULL REFERENCES vendor (id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			price DOUBLE PRECISION NOT NULL CHECK (price >= 0),
			description TEXT NOT NULL DEFAULT '',
			image_url TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX product_vendor ON product (vendor_id, created_at DESC);
		`,
	))
	return nil
}

func (m CreateVendorsAndProducts) Down(ctx context.Context, tx pgx.Tx) error {
	utils.Must1(tx.Exec(ctx,
		`
		DROP TABLE product;
		DROP TABLE vendor;
		`,
	))
	return nil
}
