// Package sqlitevec implements index.Index on a single SQLite file using the
// sqlite-vec extension. It suits development and offline use.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/index"
)

// Config holds configuration for the sqlite-vec index.
type Config struct {
	// DBPath is the SQLite database file. Use ":memory:" for a throwaway index.
	DBPath string

	// Dimensions is the embedding length.
	Dimensions uint
}

// Index stores payloads in an images table and vectors in a vec0 virtual
// table sharing its rowid.
type Index struct {
	db     *sql.DB
	dims   int
	logger *slog.Logger
}

var _ index.Index = (*Index)(nil)

// New opens (or creates) the database and its tables.
func New(c Config, logger *slog.Logger) (*Index, error) {
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, errors.New("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// vec0 tables and the rowid mapping must be seen by one connection when
	// the path is ":memory:".
	db.SetMaxOpenConns(1)

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS images (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			point_id TEXT NOT NULL UNIQUE,
			filename TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			nid INTEGER,
			delta INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS images_filename ON images(filename)`,
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS image_embeddings USING vec0(embedding float[%d])`, c.Dimensions),
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	logger.Info("sqlite-vec index initialized",
		"db_path", c.DBPath,
		"dimensions", c.Dimensions,
		"vec_version", vecVersion,
	)

	return &Index{db: db, dims: int(c.Dimensions), logger: logger}, nil
}

func (d *Index) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, `SELECT 1 FROM images WHERE filename = ? LIMIT 1`, key).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("looking up %s: %w", key, err)
	}
	return true, nil
}

// Upsert writes all points in one transaction. vec0 has no UPDATE, so an
// existing embedding is deleted and re-inserted under the same rowid.
func (d *Index) Upsert(ctx context.Context, points ...index.Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := index.CheckDimensions(d.dims, points...); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range points {
		blob := serializeFloat32(p.Vector)

		var rowID int64
		err := tx.QueryRowContext(ctx, `SELECT rowid FROM images WHERE point_id = ?`, p.ID).Scan(&rowID)
		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx,
				`UPDATE images SET filename = ?, image_url = ?, nid = ?, delta = ? WHERE rowid = ?`,
				p.Payload.Filename, p.Payload.ImageURL, p.Payload.NID, p.Payload.Delta, rowID,
			); err != nil {
				return fmt.Errorf("updating point %s: %w", p.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM image_embeddings WHERE rowid = ?`, rowID); err != nil {
				return fmt.Errorf("deleting old embedding for %s: %w", p.ID, err)
			}
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx,
				`INSERT INTO images(point_id, filename, image_url, nid, delta) VALUES (?, ?, ?, ?, ?)`,
				p.ID, p.Payload.Filename, p.Payload.ImageURL, p.Payload.NID, p.Payload.Delta,
			)
			if err != nil {
				return fmt.Errorf("inserting point %s: %w", p.ID, err)
			}
			if rowID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("getting rowid for %s: %w", p.ID, err)
			}
		default:
			return fmt.Errorf("checking for existing point %s: %w", p.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO image_embeddings(rowid, embedding) VALUES (?, ?)`, rowID, blob,
		); err != nil {
			return fmt.Errorf("inserting embedding for %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("upserted points to sqlite-vec", "count", len(points))
	return nil
}

func (d *Index) FindByFilename(ctx context.Context, key string) (*index.Point, error) {
	var (
		p         index.Point
		nid, dlt  sql.NullInt64
		embedding []byte
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT i.point_id, i.filename, i.image_url, i.nid, i.delta, e.embedding
		FROM images i
		INNER JOIN image_embeddings e ON e.rowid = i.rowid
		WHERE i.filename = ?
		ORDER BY i.point_id
		LIMIT 1
	`, key).Scan(&p.ID, &p.Payload.Filename, &p.Payload.ImageURL, &nid, &dlt, &embedding)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("finding %s: %w", key, err)
	}

	if p.Vector, err = deserializeFloat32(embedding); err != nil {
		return nil, err
	}
	p.Payload.NID = nullable(nid)
	p.Payload.Delta = nullable(dlt)
	return &p, nil
}

// Search ranks every candidate by exact cosine distance. Ties are broken by
// point id inside SQL so pages are stable.
func (d *Index) Search(ctx context.Context, q index.Query) ([]index.Hit, error) {
	if err := index.CheckQuery(d.dims, q); err != nil {
		return nil, err
	}
	if q.Limit == 0 {
		return nil, nil
	}

	where := ""
	switch q.Filter.Delta {
	case index.DeltaZero:
		where = "WHERE i.delta = 0"
	case index.DeltaPositive:
		where = "WHERE i.delta > 0"
	}

	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT i.point_id, i.filename, i.image_url, i.nid, i.delta,
			vec_distance_cosine(e.embedding, ?) AS distance
		FROM images i
		INNER JOIN image_embeddings e ON e.rowid = i.rowid
		%s
		ORDER BY distance ASC, i.point_id ASC
		LIMIT ? OFFSET ?
	`, where), serializeFloat32(q.Vector), q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var hits []index.Hit
	for rows.Next() {
		var (
			h        index.Hit
			nid, dlt sql.NullInt64
			distance float64
		)
		if err := rows.Scan(&h.ID, &h.Payload.Filename, &h.Payload.ImageURL, &nid, &dlt, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}
		h.Payload.NID = nullable(nid)
		h.Payload.Delta = nullable(dlt)
		h.Score = float32(1 - distance)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}
	return hits, nil
}

func (d *Index) PatchPayload(ctx context.Context, id string, patch index.Patch) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE images SET nid = COALESCE(?, nid), delta = COALESCE(?, delta) WHERE point_id = ?`,
		patch.NID, patch.Delta, id,
	)
	if err != nil {
		return fmt.Errorf("patching point %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("patching point %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("point %s: %w", id, errdefs.ErrNotFound)
	}
	return nil
}

func (d *Index) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrIndexUnavailable, err)
	}
	return nil
}

// Close releases the database handle.
func (d *Index) Close() error {
	return d.db.Close()
}

// serializeFloat32 converts a float32 slice to the little-endian blob format
// sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func nullable(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
