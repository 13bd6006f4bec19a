// Package dochook implements vigil.DocumentHook on an embedded SQLite document store and on
// MongoDB.
package dochook

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jkbrsn/vigil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

// DefaultDatabase is the namespace used when a query names no database.
const DefaultDatabase = "default"

const schema = `CREATE TABLE IF NOT EXISTS documents(db_name TEXT NOT NULL, coll_name TEXT NOT NULL, doc TEXT NOT NULL);
CREATE INDEX IF NOT EXISTS idx_documents_ns ON documents(db_name, coll_name);`

// SQLite is a vigil.DocumentHook storing JSON documents per (database, collection) in a SQLite
// file. Filters match by equality on top level keys and dotted paths.
type SQLite struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenSQLite opens, and creates if needed, the document store at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, vigil.ResourceError("sqlite open", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, vigil.ResourceError("sqlite ping", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, vigil.ResourceError("sqlite init schema", err)
	}

	return &SQLite{
		db:     db,
		logger: log.Logger.With().Str("component", vigil.ComponentDocuments).Logger(),
	}, nil
}

// SetLoggers takes the logger of the documents component.
func (s *SQLite) SetLoggers(l *vigil.Loggers) {
	s.logger = l.For(vigil.ComponentDocuments)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Insert stores doc in database/collection.
func (s *SQLite) Insert(ctx context.Context, database, collection string, doc map[string]any) error {
	b, err := sonic.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents(db_name, coll_name, doc) VALUES(?,?,?)`,
		namespace(database), collection, string(b))
	if err != nil {
		return vigil.ResourceError("sqlite insert", err)
	}
	return nil
}

// Exists reports whether at least one document of the queried collection matches the filter.
func (s *SQLite) Exists(ctx context.Context, q vigil.DocumentQuery) (bool, error) {
	want, err := normalize(q.Filter)
	if err != nil {
		return false, fmt.Errorf("encoding filter: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM documents WHERE db_name=? AND coll_name=?`,
		namespace(q.Database), q.Collection)
	if err != nil {
		return false, vigil.ResourceError("sqlite query", err)
	}
	defer rows.Close()

	scanned := 0
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return false, vigil.ResourceError("sqlite scan", err)
		}
		scanned++
		if matches([]byte(doc), want) {
			s.logger.Debug().Str("collection", q.Collection).Int("scanned", scanned).Msg("document found")
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, vigil.ResourceError("sqlite rows", err)
	}
	s.logger.Debug().Str("collection", q.Collection).Int("scanned", scanned).Msg("no matching document")
	return false, nil
}

func namespace(database string) string {
	if database == "" {
		return DefaultDatabase
	}
	return database
}

// matches reports whether every filter key holds the wanted value in doc.
func matches(doc []byte, filter map[string]any) bool {
	for key, want := range filter {
		path := make([]any, 0, strings.Count(key, ".")+1)
		for _, part := range strings.Split(key, ".") {
			path = append(path, part)
		}
		node, err := sonic.Get(doc, path...)
		if err != nil || !node.Exists() {
			return false
		}
		got, err := node.Interface()
		if err != nil || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// normalize round-trips the filter values through JSON so they compare equal to decoded
// document values.
func normalize(filter map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(filter))
	for k, v := range filter {
		b, err := sonic.Marshal(v)
		if err != nil {
			return nil, err
		}
		var decoded any
		if err := sonic.Unmarshal(b, &decoded); err != nil {
			return nil, err
		}
		out[k] = decoded
	}
	return out, nil
}
