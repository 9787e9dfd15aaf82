package db

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/AldoManuel/juchifood/src/logging"
	"github.com/AldoManuel/juchifood/src/oops"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

/*
A general error to be used when no results are found. This is the error returned
by QueryOne, and can generally be used by other database helpers that fetch a single
result but find nothing.
*/
var NotFound = errors.New("not found")

var (
	pgTypeMap   = pgtype.NewMap()
	pgTypeMapMu sync.Mutex
)

/*
Performs a SQL query and returns a slice of all the result rows. The query is just plain SQL, but make sure to read the package documentation for details. You must explicitly provide the type argument - this is how it knows what Go type to map the results to, and it cannot be inferred.

Any SQL query may be performed, including INSERT and UPDATE - as long as it returns a result set, you can use this. If the query does not return a result set, or you simply do not care about the result set, call Exec directly on your pgx connection.

This function always returns pointers to the values. This is convenient for structs, but for other types, you may wish to use QueryScalar.
*/
func Query[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) ([]*T, error) {
	it, err := QueryIterator[T](ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}
	return it.ToSlice()
}

/*
Identical to Query, but returns only the first result row. If there are no
rows in the result set, returns NotFound.
*/
func QueryOne[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) (*T, error) {
	rows, err := QueryIterator[T](ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result, hasRow := rows.Next()
	if !hasRow {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, NotFound
	}

	return result, nil
}

/*
Identical to Query, but returns concrete values instead of pointers. More convenient
for primitive types.
*/
func QueryScalar[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) ([]T, error) {
	rows, err := QueryIterator[T](ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []T
	for {
		val, hasRow := rows.Next()
		if !hasRow {
			break
		}
		result = append(result, *val)
	}

	return result, rows.Err()
}

/*
Identical to QueryScalar, but returns only the first result value. If there are
no rows in the result set, returns NotFound.
*/
func QueryOneScalar[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) (T, error) {
	var zero T

	rows, err := QueryIterator[T](ctx, conn, query, args...)
	if err != nil {
		return zero, err
	}
	defer rows.Close()

	result, hasRow := rows.Next()
	if !hasRow {
		if err := rows.Err(); err != nil {
			return zero, err
		}
		return zero, NotFound
	}

	return *result, nil
}

/*
Identical to Query, but returns the ResultIterator instead of automatically converting the results to a slice. The iterator must be closed after use.
*/
func QueryIterator[T any](
	ctx context.Context,
	conn ConnOrTx,
	query string,
	args ...any,
) (*Iterator[T], error) {
	var destExample T
	destType := reflect.TypeOf(destExample)

	compiled, err := compileQuery(query, destType)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, compiled.query, args...)
	if err != nil {
		return nil, err
	}

	it := &Iterator[T]{
		fieldPaths:       compiled.fieldPaths,
		rows:             rows,
		destType:         compiled.destType,
		destTypeIsScalar: typeIsQueryable(compiled.destType),
		closed:           make(chan struct{}, 1),
	}

	// Close the iterator if the context is cancelled, so an abandoned request
	// does not hold a pooled connection.
	go func() {
		done := ctx.Done()
		if done == nil {
			return
		}
		select {
		case <-done:
			it.Close()
		case <-it.closed:
		}
	}()

	return it, nil
}

type compiledQuery struct {
	query      string
	destType   reflect.Type
	fieldPaths [][]int
}

var reColumnsPlaceholder = regexp.MustCompile(`\$columns({(.*?)})?`)

func compileQuery(query string, destType reflect.Type) (compiledQuery, error) {
	columnsMatch := reColumnsPlaceholder.FindStringSubmatch(query)
	if columnsMatch == nil {
		return compiledQuery{
			query:    query,
			destType: destType,
		}, nil
	}

	// The presence of the $columns placeholder means that the destination type
	// must be a struct, and we will plonk that struct's fields into the query.
	if destType.Kind() != reflect.Struct {
		return compiledQuery{}, oops.New(nil, "$columns can only be used when querying into a struct")
	}

	columnNames, fieldPaths, err := getColumnNamesAndPaths(destType, nil, columnsMatch[2])
	if err != nil {
		return compiledQuery{}, err
	}

	return compiledQuery{
		query:      reColumnsPlaceholder.ReplaceAllString(query, strings.Join(columnNames, ", ")),
		destType:   destType,
		fieldPaths: fieldPaths,
	}, nil
}

/*
Walks the `db` tags of a struct type and returns the fully qualified column
names along with the field index path of each. Nested structs with a `db` tag
contribute their tag as a table prefix, so a field tagged "vendor" holding a
struct with a field tagged "name" becomes the column "vendor.name".
*/
func getColumnNamesAndPaths(destType reflect.Type, pathSoFar []int, prefix string) (names []string, paths [][]int, err error) {
	if destType.Kind() == reflect.Ptr {
		destType = destType.Elem()
	}

	if destType.Kind() != reflect.Struct {
		return nil, nil, oops.New(nil, "can only get column names and paths from a struct, got type '%v' (at prefix '%v')", destType.Name(), prefix)
	}

	for _, field := range reflect.VisibleFields(destType) {
		if len(field.Index) != 1 {
			// promoted from an embedded struct; handled when we visit the embedded field
			continue
		}

		columnName := field.Tag.Get("db")
		if columnName == "" {
			continue
		}

		path := make([]int, len(pathSoFar), len(pathSoFar)+1)
		copy(path, pathSoFar)
		path = append(path, field.Index...)

		fullName := columnName
		if prefix != "" {
			fullName = prefix + "." + columnName
		}

		fieldType := field.Type
		if fieldType.Kind() == reflect.Ptr {
			fieldType = fieldType.Elem()
		}

		if typeIsQueryable(fieldType) {
			names = append(names, fullName)
			paths = append(paths, path)
		} else if fieldType.Kind() == reflect.Struct {
			subCols, subPaths, err := getColumnNamesAndPaths(fieldType, path, columnName)
			if err != nil {
				return nil, nil, err
			}
			names = append(names, subCols...)
			paths = append(paths, subPaths...)
		} else {
			return nil, nil, oops.New(nil, "field '%s' in type %s has invalid type '%s'", field.Name, destType, field.Type)
		}
	}

	return names, paths, nil
}

/*
Values of these kinds are ok to query even if they are not directly understood by pgtype.
This is common for custom types like:

	type OwnerKind string
*/
var queryableKinds = []reflect.Kind{
	reflect.Bool,
	reflect.Int,
	reflect.Int16,
	reflect.Int32,
	reflect.Int64,
	reflect.Float32,
	reflect.Float64,
	reflect.String,
}

/*
Checks if we are able to handle a particular type in a database query. This applies only to
primitive types and not structs, since the database only returns individual primitive types
and it is our job to stitch them back together into structs later.
*/
func typeIsQueryable(t reflect.Type) bool {
	if t == reflect.TypeOf(uuid.UUID{}) || t == reflect.TypeOf(time.Time{}) {
		return true
	}

	if t.Kind() != reflect.Struct {
		pgTypeMapMu.Lock()
		_, ok := pgTypeMap.TypeForValue(reflect.New(t).Elem().Interface())
		pgTypeMapMu.Unlock()
		if ok {
			return true
		}
	}

	k := t.Kind()
	for _, qk := range queryableKinds {
		if k == qk {
			return true
		}
	}

	return false
}

type Iterator[T any] struct {
	fieldPaths       [][]int
	rows             pgx.Rows
	destType         reflect.Type
	destTypeIsScalar bool
	closed           chan struct{}
	err              error
}

func (it *Iterator[T]) Next() (*T, bool) {
	if it.err != nil {
		return nil, false
	}

	hasNext := it.rows.Next()
	if !hasNext {
		it.Close()
		return nil, false
	}

	result := reflect.New(it.destType)

	vals, err := it.rows.Values()
	if err != nil {
		it.err = err
		it.Close()
		return nil, false
	}

	if it.destTypeIsScalar {
		if len(vals) != 1 {
			it.err = oops.New(nil, "tried to query a scalar value, but got %v values in the row", len(vals))
			it.Close()
			return nil, false
		}
		if vals[0] != nil {
			if err := setValueFromDB(result.Elem(), reflect.ValueOf(vals[0])); err != nil {
				it.err = err
				it.Close()
				return nil, false
			}
		}
		return result.Interface().(*T), true
	}

	for i, val := range vals {
		if val == nil {
			continue
		}

		field, structField := followPathThroughStructs(result, it.fieldPaths[i])
		if field.Kind() == reflect.Ptr {
			field.Set(reflect.New(field.Type().Elem()))
			field = field.Elem()
		}

		valReflected := reflect.ValueOf(val)
		if valReflected.Kind() == reflect.Ptr {
			valReflected = valReflected.Elem()
		}

		if err := setValueFromDB(field, valReflected); err != nil {
			logging.Error().
				Int("index", i).
				Str("field name", structField.Name).
				Stringer("field type", structField.Type).
				Stringer("value type", valReflected.Type()).
				Msg("failed to map column to field")
			it.err = oops.New(err, "failed to set field '%s'", structField.Name)
			it.Close()
			return nil, false
		}
	}

	return result.Interface().(*T), true
}

func setValueFromDB(dest reflect.Value, value reflect.Value) error {
	switch dest.Kind() {
	case reflect.Int, reflect.Int16, reflect.Int32, reflect.Int64:
		if value.CanInt() {
			dest.SetInt(value.Int())
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if value.CanFloat() {
			dest.SetFloat(value.Float())
			return nil
		}
	}

	if value.Type().AssignableTo(dest.Type()) {
		dest.Set(value)
		return nil
	}
	if value.Type().ConvertibleTo(dest.Type()) {
		dest.Set(value.Convert(dest.Type()))
		return nil
	}
	return fmt.Errorf("cannot store %s in %s", value.Type(), dest.Type())
}

func (it *Iterator[T]) Close() {
	it.rows.Close()
	select {
	case it.closed <- struct{}{}:
	default:
	}
}

// Returns the first error hit while iterating, including row errors from pgx.
func (it *Iterator[T]) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

/*
Pulls all the remaining values into a slice, and closes the iterator.
*/
func (it *Iterator[T]) ToSlice() ([]*T, error) {
	defer it.Close()
	var result []*T
	for {
		row, ok := it.Next()
		if !ok {
			if err := it.Err(); err != nil {
				return nil, oops.New(err, "error while iterating through db results")
			}
			break
		}
		result = append(result, row)
	}
	return result, nil
}

func followPathThroughStructs(structPtrVal reflect.Value, path []int) (reflect.Value, reflect.StructField) {
	if len(path) < 1 {
		panic(oops.New(nil, "can't follow an empty path"))
	}

	if structPtrVal.Kind() != reflect.Ptr || structPtrVal.Elem().Kind() != reflect.Struct {
		panic(oops.New(nil, "structPtrVal must be a pointer to a struct; got value of type %s", structPtrVal.Type()))
	}

	var field reflect.StructField
	val := structPtrVal
	for _, i := range path {
		if val.Kind() == reflect.Ptr && val.Type().Elem().Kind() == reflect.Struct {
			if val.IsNil() {
				val.Set(reflect.New(val.Type().Elem()))
			}
			val = val.Elem()
		}
		field = val.Type().Field(i)
		val = val.Field(i)
	}
	return val, field
}
