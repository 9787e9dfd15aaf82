package db

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaths(t *testing.T) {
	type CustomInt int
	type S struct {
		I   int        `db:"I"`
		PI  *int       `db:"PI"`
		CI  CustomInt  `db:"CI"`
		PCI *CustomInt `db:"PCI"`
		B   bool       `db:"B"`
		PB  *bool      `db:"PB"`

		NoTag int
	}
	type Nested struct {
		S  S  `db:"S"`
		PS *S `db:"PS"`

		NoTag S
	}

	names, paths, err := getColumnNamesAndPaths(reflect.TypeOf(Nested{}), nil, "")
	require.Nil(t, err)
	assert.Equal(t, []string{
		"S.I", "S.PI",
		"S.CI", "S.PCI",
		"S.B", "S.PB",
		"PS.I", "PS.PI",
		"PS.CI", "PS.PCI",
		"PS.B", "PS.PB",
	}, names)
	assert.Equal(t, [][]int{
		{0, 0}, {0, 1}, {0, 2}, {0, 3}, {0, 4}, {0, 5},
		{1, 0}, {1, 1}, {1, 2}, {1, 3}, {1, 4}, {1, 5},
	}, paths)

	testStruct := Nested{}
	for i, path := range paths {
		val, field := followPathThroughStructs(reflect.ValueOf(&testStruct), path)
		assert.True(t, val.IsValid())
		assert.True(t, strings.Contains(names[i], field.Name))
	}
	assert.NotNil(t, testStruct.PS, "following a path through a nil pointer should allocate it")
}

type testVendor struct {
	ID           uuid.UUID `db:"id"`
	Name         string    `db:"name"`
	ProfileImage *string   `db:"profile_image"`
	CreatedAt    time.Time `db:"created_at"`
}

type testProductRow struct {
	Name   string     `db:"name"`
	Price  float64    `db:"price"`
	Vendor testVendor `db:"vendor"`
}

func TestCompileQuery(t *testing.T) {
	t.Run("plain columns", func(t *testing.T) {
		compiled, err := compileQuery("SELECT $columns FROM vendor WHERE id = $1", reflect.TypeOf(testVendor{}))
		require.Nil(t, err)
		assert.Equal(t, "SELECT id, name, profile_image, created_at FROM vendor WHERE id = $1", compiled.query)
		assert.Len(t, compiled.fieldPaths, 4)
	})
	t.Run("prefixed columns", func(t *testing.T) {
		compiled, err := compileQuery("SELECT $columns{v} FROM vendor AS v", reflect.TypeOf(testVendor{}))
		require.Nil(t, err)
		assert.Equal(t, "SELECT v.id, v.name, v.profile_image, v.created_at FROM vendor AS v", compiled.query)
	})
	t.Run("nested struct becomes table prefix", func(t *testing.T) {
		compiled, err := compileQuery("SELECT $columns{product} FROM product JOIN vendor ON vendor.id = product.vendor_id", reflect.TypeOf(testProductRow{}))
		require.Nil(t, err)
		assert.Equal(t,
			"SELECT product.name, product.price, vendor.id, vendor.name, vendor.profile_image, vendor.created_at FROM product JOIN vendor ON vendor.id = product.vendor_id",
			compiled.query,
		)
	})
	t.Run("scalar with $columns is rejected", func(t *testing.T) {
		_, err := compileQuery("SELECT $columns FROM vendor", reflect.TypeOf(0))
		assert.NotNil(t, err)
	})
	t.Run("no placeholder", func(t *testing.T) {
		compiled, err := compileQuery("SELECT COUNT(*) FROM vendor", reflect.TypeOf(0))
		require.Nil(t, err)
		assert.Equal(t, "SELECT COUNT(*) FROM vendor", compiled.query)
		assert.Nil(t, compiled.fieldPaths)
	})
}

func TestSetValueFromDB(t *testing.T) {
	var n int
	require.Nil(t, setValueFromDB(reflect.ValueOf(&n).Elem(), reflect.ValueOf(int64(7))))
	assert.Equal(t, 7, n)

	var id uuid.UUID
	raw := [16]byte{1, 2, 3}
	require.Nil(t, setValueFromDB(reflect.ValueOf(&id).Elem(), reflect.ValueOf(raw)))
	assert.Equal(t, uuid.UUID(raw), id)

	var price float64
	require.Nil(t, setValueFromDB(reflect.ValueOf(&price).Elem(), reflect.ValueOf(float32(2.5))))
	assert.Equal(t, 2.5, price)

	var s string
	assert.NotNil(t, setValueFromDB(reflect.ValueOf(&s).Elem(), reflect.ValueOf(time.Now())))
}

func TestQueryBuilder(t *testing.T) {
	var qb QueryBuilder
	qb.Add("SELECT $columns FROM vendor WHERE TRUE")
	qb.Add("AND location = $?", "DAIA")
	qb.Add("AND name ILIKE $? AND created_at > $?", "%taco%", time.Time{})

	assert.Equal(t, "SELECT $columns FROM vendor WHERE TRUE\nAND location = $1\nAND name ILIKE $2 AND created_at > $3\n", qb.String())
	assert.Len(t, qb.Args(), 3)
	assert.Panics(t, func() {
		qb.Add("AND id = $?")
	})
}
