// Package mysql reads image metadata from a MySQL table.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/metadata"
)

// DefaultTable is the table holding one row per image.
const DefaultTable = "totenbilder_bilder"

// Source implements metadata.Source over a table with the columns
// filename, nid and delta.
type Source struct {
	db    *sql.DB
	table string
}

var _ metadata.Source = (*Source)(nil)

// DSN builds a driver connection string from its parts. host may omit the
// port, 3306 is assumed.
func DSN(host, user, password, name string) string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = host
	cfg.User = user
	cfg.Passwd = password
	cfg.DBName = name
	return cfg.FormatDSN()
}

// NewSource connects to the database at dsn, e.g.
// "user:pass@tcp(localhost:3306)/totenbilder". table may be database
// qualified ("totenbilder.totenbilder_bilder").
func NewSource(ctx context.Context, dsn, table string) (*Source, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewSourceWithDB(db, table), nil
}

// NewSourceWithDB wraps an open database handle.
func NewSourceWithDB(db *sql.DB, table string) *Source {
	if table == "" {
		table = DefaultTable
	}
	return &Source{db: db, table: quoteTable(table)}
}

// quoteTable backtick-quotes each part of a possibly qualified table name.
func quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
	}
	return strings.Join(parts, ".")
}

func (s *Source) Lookup(ctx context.Context, filename string) (*metadata.Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT filename, nid, delta FROM "+s.table+" WHERE filename = ? LIMIT 1", filename)

	rec, err := metadata.ScanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no metadata for filename %s", errdefs.ErrNotFound, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("querying metadata for %s: %w", filename, err)
	}
	return rec, nil
}

func (s *Source) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting metadata: %w", err)
	}
	return n, nil
}

func (s *Source) Records(ctx context.Context) iter.Seq2[metadata.Record, error] {
	return func(yield func(metadata.Record, error) bool) {
		rows, err := s.db.QueryContext(ctx, "SELECT filename, nid, delta FROM "+s.table+" ORDER BY filename")
		if err != nil {
			yield(metadata.Record{}, fmt.Errorf("querying metadata: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := metadata.ScanRecord(rows)
			if err != nil {
				yield(metadata.Record{}, fmt.Errorf("scanning metadata: %w", err))
				return
			}
			if !yield(*rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(metadata.Record{}, fmt.Errorf("reading metadata: %w", err))
		}
	}
}

func (s *Source) Close() error {
	return s.db.Close()
}
