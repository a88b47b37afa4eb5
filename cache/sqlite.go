package cache

import (
	"context"
	"database/sql"
	"iter"

	"github.com/agentuity/steam-mirror/serializer"
	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// sqlitePageSize is how many sequence items Iterate reads per query.
const sqlitePageSize = 100

// OpenSQLite opens (or creates) the database at dbPath and prepares the
// cache schema. If dbPath is empty or ":memory:", an in-memory database is
// used. The returned handle can be shared by any number of prefixes.
func OpenSQLite(ctx context.Context, dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS entries (
			prefix TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB,
			sequence INTEGER NOT NULL DEFAULT 0,
			complete INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (prefix, key)
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			prefix TEXT NOT NULL,
			key TEXT NOT NULL,
			seq INTEGER NOT NULL,
			value BLOB NOT NULL,
			PRIMARY KEY (prefix, key, seq)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "prepare sqlite cache schema")
		}
	}
	return db, nil
}

// SQLite stores the entries of one prefix in a SQLite database opened with
// OpenSQLite. Values are msgpack encoded. Sequence items are rows of their
// own, so they can be appended and read back one page at a time.
type SQLite struct {
	modeState
	db     *sql.DB
	prefix string
	cfg    config
}

var _ Backend = (*SQLite)(nil)

// NewSQLite returns a Backend for prefix. The caller owns db; Close is a
// no-op.
func NewSQLite(db *sql.DB, prefix string, opts ...Option) *SQLite {
	return &SQLite{db: db, prefix: prefix, cfg: applyOptions(opts)}
}

func (c *SQLite) Configure(mode Mode) error {
	return c.set(mode, nil)
}

func (c *SQLite) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.cfg.queryTimeout)
}

func (c *SQLite) entryKey(key string) (string, error) {
	if err := c.check(); err != nil {
		return "", err
	}
	if c.mode == ModeSingleton {
		return "", nil
	}
	return key, nil
}

func (c *SQLite) Location(key string) string {
	if c.mode == ModeSingleton {
		return "sqlite:" + c.prefix
	}
	return "sqlite:" + c.prefix + "/" + key
}

func (c *SQLite) Contains(ctx context.Context, key string) (bool, error) {
	k, err := c.entryKey(key)
	if err != nil {
		return false, err
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	var complete bool
	err = c.db.QueryRowContext(qctx,
		`SELECT complete FROM entries WHERE prefix = ? AND key = ?`, c.prefix, k,
	).Scan(&complete)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return complete, nil
}

func (c *SQLite) Get(ctx context.Context, key string) (any, error) {
	k, err := c.entryKey(key)
	if err != nil {
		return nil, err
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	var data []byte
	err = c.db.QueryRowContext(qctx,
		`SELECT value FROM entries WHERE prefix = ? AND key = ? AND sequence = 0`, c.prefix, k,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "%s", c.Location(key))
	}
	if err != nil {
		return nil, err
	}
	return decodeStored(data, c.Location(key))
}

func (c *SQLite) Set(ctx context.Context, key string, val any) error {
	k, err := c.entryKey(key)
	if err != nil {
		return err
	}
	data, err := serializer.MarshalValue(val)
	if err != nil {
		return err
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	tx, err := c.db.BeginTx(qctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(qctx,
		`DELETE FROM items WHERE prefix = ? AND key = ?`, c.prefix, k,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(qctx,
		`INSERT INTO entries (prefix, key, value, sequence, complete) VALUES (?, ?, ?, 0, 1)
		ON CONFLICT(prefix, key) DO UPDATE SET value = excluded.value, sequence = 0, complete = 1`,
		c.prefix, k, data,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *SQLite) SupportsSequences() bool { return true }

func (c *SQLite) Iterate(ctx context.Context, key string) iter.Seq2[any, error] {
	k, err := c.entryKey(key)
	if err != nil {
		return errSeq(err)
	}
	return func(yield func(any, error) bool) {
		last := int64(-1)
		for {
			page, err := c.page(ctx, k, last)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, row := range page {
				last = row.seq
				v, err := decodeStored(row.data, c.Location(key))
				if err != nil {
					yield(nil, err)
					return
				}
				if !yield(v, nil) {
					return
				}
			}
			if len(page) < sqlitePageSize {
				return
			}
		}
	}
}

type sqliteRow struct {
	seq  int64
	data []byte
}

func (c *SQLite) page(ctx context.Context, key string, after int64) ([]sqliteRow, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	rows, err := c.db.QueryContext(qctx,
		`SELECT seq, value FROM items WHERE prefix = ? AND key = ? AND seq > ? ORDER BY seq LIMIT ?`,
		c.prefix, key, after, sqlitePageSize,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	page := make([]sqliteRow, 0, sqlitePageSize)
	for rows.Next() {
		var row sqliteRow
		if err := rows.Scan(&row.seq, &row.data); err != nil {
			return nil, err
		}
		page = append(page, row)
	}
	return page, rows.Err()
}

func (c *SQLite) OpenSequence(ctx context.Context, key string) (SequenceWriter, error) {
	k, err := c.entryKey(key)
	if err != nil {
		return nil, err
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	tx, err := c.db.BeginTx(qctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(qctx,
		`DELETE FROM items WHERE prefix = ? AND key = ?`, c.prefix, k,
	); err != nil {
		return nil, err
	}
	complete := c.cfg.commit == CommitEachItem
	if _, err := tx.ExecContext(qctx,
		`INSERT INTO entries (prefix, key, value, sequence, complete) VALUES (?, ?, NULL, 1, ?)
		ON CONFLICT(prefix, key) DO UPDATE SET value = NULL, sequence = 1, complete = excluded.complete`,
		c.prefix, k, complete,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sqliteSequence{c: c, key: k}, nil
}

func (c *SQLite) Remove(ctx context.Context, key string) (bool, error) {
	k, err := c.entryKey(key)
	if err != nil {
		return false, err
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	if _, err := c.db.ExecContext(qctx,
		`DELETE FROM items WHERE prefix = ? AND key = ?`, c.prefix, k,
	); err != nil {
		return false, err
	}
	result, err := c.db.ExecContext(qctx,
		`DELETE FROM entries WHERE prefix = ? AND key = ?`, c.prefix, k,
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (c *SQLite) Close() error { return nil }

type sqliteSequence struct {
	c    *SQLite
	key  string
	next int64
}

func (s *sqliteSequence) Append(ctx context.Context, item any) error {
	data, err := serializer.MarshalValue(item)
	if err != nil {
		return err
	}
	qctx, cancel := s.c.queryCtx(ctx)
	defer cancel()
	if _, err := s.c.db.ExecContext(qctx,
		`INSERT INTO items (prefix, key, seq, value) VALUES (?, ?, ?, ?)`,
		s.c.prefix, s.key, s.next, data,
	); err != nil {
		return err
	}
	s.next++
	return nil
}

func (s *sqliteSequence) Commit(ctx context.Context) error {
	qctx, cancel := s.c.queryCtx(ctx)
	defer cancel()
	_, err := s.c.db.ExecContext(qctx,
		`UPDATE entries SET complete = 1 WHERE prefix = ? AND key = ?`, s.c.prefix, s.key,
	)
	return err
}

func (s *sqliteSequence) Close() error { return nil }

func decodeStored(data []byte, location string) (any, error) {
	v, err := serializer.UnmarshalValue(data)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decode %s", location), serializer.ErrFormat)
	}
	return v, nil
}
