package repository

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"promptjudge/internal/common/db"
)

type execCall struct {
	query string
	args  []interface{}
}

// fakeDB serves canned rows and records writes.
type fakeDB struct {
	rows      [][]interface{}
	queries   int
	lastQuery string
	lastArgs  []interface{}
	execs     []execCall
	execErr   error
}

func (f *fakeDB) Query(_ context.Context, query string, args ...interface{}) (db.Rows, error) {
	f.queries++
	f.lastQuery = query
	f.lastArgs = args
	return &fakeRows{rows: f.rows, idx: -1}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, query string, args ...interface{}) db.Row {
	f.queries++
	f.lastQuery = query
	f.lastArgs = args
	if len(f.rows) == 0 {
		return fakeRow{err: fmt.Errorf("scan failed: %w", sql.ErrNoRows)}
	}
	return fakeRow{values: f.rows[0]}
}

func (f *fakeDB) Exec(_ context.Context, query string, args ...interface{}) (db.Result, error) {
	if f.execErr != nil {
		return nil, f.execErr
	}
	f.execs = append(f.execs, execCall{query: query, args: args})
	return fakeResult{}, nil
}

func (f *fakeDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return fmt.Errorf("transactions not supported by fake")
}

func (f *fakeDB) Ping(context.Context) error { return nil }
func (f *fakeDB) Close() error              { return nil }

type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	rows [][]interface{}
	idx  int
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *fakeRows) Scan(dest ...interface{}) error { return assign(dest, r.rows[r.idx]) }
func (r *fakeRows) Close() error                   { return nil }
func (r *fakeRows) Err() error                     { return nil }

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

func assign(dest []interface{}, values []interface{}) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(values[i]))
	}
	return nil
}
