package migrations

import (
	"context"
	"time"

	"github.com/AldoManuel/juchifood/src/migration/types"
	"github.com/AldoManuel/juchifood/src/utils"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(AddProductCreatedIndex{})
}

type AddProductCreatedIndex struct{}

func (m AddProductCreatedIndex) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2024, 4, 12, 18, 15, 0, 0, time.UTC))
}

func (m AddProductCreatedIndex) Name() string {
	return "AddProductCreatedIndex"
}

func (m AddProductCreatedIndex) Description() string {
	return "Index products by creation time for the location feed"
}

func (m AddProductCreatedIndex) Up(ctx context.Context, tx pgx.Tx) error {
	utils.Must1(tx.Exec(ctx,
		`
		CREATE INDEX product_created_at ON product (created_at DESC);
		`,
	))
	return nil
}

func (m AddProductCreatedIndex) Down(ctx context.Context, tx pgx.Tx) error {
	utils.Must1(tx.Exec(ctx,
		`
		DROP INDEX product_created_at;
		`,
	))
	return nil
}
