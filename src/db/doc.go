/*
Package db holds the low-level helpers for talking to Postgres. It maps query
results onto Go types while still letting you write plain SQL.

The primary functions are Query, QueryOne and their Scalar variants.

# Query syntax

Arguments use the usual $1, $2 placeholders and go straight through to pgx.

	ids, err := db.QueryScalar[uuid.UUID](ctx, conn,
		`
		SELECT id
		FROM vendor
		WHERE location = ANY($1)
		`,
		[]string{"DAIA", "DACB"},
	)

To fetch several columns at once, query into a struct with `db:"column"` tags
and use the $columns placeholder:

	type Vendor struct {
		ID        uuid.UUID `db:"id"`
		Name      string    `db:"name"`
		CreatedAt time.Time `db:"created_at"`
	}
	vendors, err := db.Query[Vendor](ctx, conn, `SELECT $columns FROM vendor`)
	// SELECT id, name, created_at FROM vendor

$columns{alias} prefixes every column with a table alias. A nested struct
field with a `db` tag is expanded using its tag as the alias, which makes joins
easy to map:

	type ProductAndVendor struct {
		Product models.Product `db:"product"`
		Vendor  models.Vendor  `db:"vendor"`
	}
	rows, err := db.Query[ProductAndVendor](ctx, conn, `
		SELECT $columns
		FROM product JOIN vendor ON vendor.id = product.vendor_id
	`)
	// SELECT product.id, ..., vendor.id, ... FROM ...

A query may start with a "---- Name" comment line; the name is used for the
SQL blocks in request perf output.
*/
package db
