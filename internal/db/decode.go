package db

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/banshee-data/coolweather/internal/monitoring"
)

// rowSource is the part of *sql.Rows the loaders use.
type rowSource interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// columnMap binds column names to the scan destinations of one record.
type columnMap map[string]any

// textField scans a TEXT cell into a string; NULL becomes "".
type textField struct{ dst *string }

func (f textField) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f.dst = ""
	case string:
		*f.dst = v
	case []byte:
		*f.dst = string(v)
	default:
		*f.dst = fmt.Sprint(v)
	}
	return nil
}

// intField scans an INTEGER cell into an int; NULL becomes 0.
type intField struct{ dst *int }

func (f intField) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f.dst = 0
	case int64:
		*f.dst = int(v)
	case float64:
		*f.dst = int(v)
	case []byte:
		return f.parse(string(v))
	case string:
		return f.parse(v)
	default:
		return fmt.Errorf("cannot decode %T into int", src)
	}
	return nil
}

func (f intField) parse(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("cannot decode %q into int: %w", s, err)
	}
	*f.dst = n
	return nil
}

// rowDecoder maps a result set's columns onto a columnMap by name. Result
// columns with no binding are discarded; bound columns missing from the
// result set are left at their zero value.
type rowDecoder struct {
	columns []string
	missing []string
}

// newRowDecoder reads the result set's columns and warns once about every
// column in expected that the result set lacks.
func newRowDecoder(table string, rows rowSource, expected columnMap) (*rowDecoder, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	present := make(map[string]bool, len(cols))
	for _, c := range cols {
		present[c] = true
	}

	d := &rowDecoder{columns: cols}
	for name := range expected {
		if !present[name] {
			d.missing = append(d.missing, name)
		}
	}
	sort.Strings(d.missing)
	for _, name := range d.missing {
		monitoring.Warnf("%s: column %q not in result set, field left unset", table, name)
	}

	return d, nil
}

// scan decodes the current row into fields.
func (d *rowDecoder) scan(rows rowSource, fields columnMap) error {
	dest := make([]any, len(d.columns))
	for i, c := range d.columns {
		if f, ok := fields[c]; ok {
			dest[i] = f
		} else {
			dest[i] = new(any)
		}
	}
	return rows.Scan(dest...)
}

// collect drains rows into a LoadResult. Any failure stops iteration and is
// logged; the records decoded before it are kept. rows is closed on every
// path.
func collect[T any](table string, rows rowSource, queryErr error, bind func(*T) columnMap) LoadResult[T] {
	res := LoadResult[T]{Items: []T{}}

	fail := func(err error) LoadResult[T] {
		res.Err = fmt.Errorf("load %s: %w", table, err)
		monitoring.Logf("%v (returning %d rows)", res.Err, len(res.Items))
		return res
	}

	if queryErr != nil {
		return fail(queryErr)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			monitoring.Logf("load %s: close rows: %v", table, err)
		}
	}()

	var probe T
	dec, err := newRowDecoder(table, rows, bind(&probe))
	if err != nil {
		return fail(err)
	}

	for rows.Next() {
		var item T
		if err := dec.scan(rows, bind(&item)); err != nil {
			return fail(err)
		}
		res.Items = append(res.Items, item)
	}
	if err := rows.Err(); err != nil {
		return fail(err)
	}

	return res
}
