package ticktock

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// MetaStore is the sqlite-backed catalog of metric names, tag keys and
// tag values, serving the OpenTSDB suggest API.
type MetaStore struct {
	db *sql.DB
}

// OpenMetaStore opens (or creates) the catalog at path.
func OpenMetaStore(path string) (*MetaStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open meta store: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS metrics (name TEXT PRIMARY KEY)`,
		`CREATE TABLE IF NOT EXISTS tag_keys (name TEXT PRIMARY KEY)`,
		`CREATE TABLE IF NOT EXISTS tag_values (name TEXT PRIMARY KEY)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init meta store: %w", err)
		}
	}
	return &MetaStore{db: db}, nil
}

// RecordSeries registers a newly seen series in the catalog.
func (m *MetaStore) RecordSeries(metric string, tags TagList) error {
	if _, err := m.db.Exec(`INSERT OR IGNORE INTO metrics (name) VALUES (?)`, metric); err != nil {
		return err
	}
	for _, t := range tags {
		if _, err := m.db.Exec(`INSERT OR IGNORE INTO tag_keys (name) VALUES (?)`, t.Key); err != nil {
			return err
		}
		if _, err := m.db.Exec(`INSERT OR IGNORE INTO tag_values (name) VALUES (?)`, t.Value); err != nil {
			return err
		}
	}
	return nil
}

// suggestTables maps the suggest API's type parameter to catalog tables.
var suggestTables = map[string]string{
	"metrics": "metrics",
	"tagk":    "tag_keys",
	"tagv":    "tag_values",
}

// Suggest returns up to max catalog entries of the given kind starting
// with prefix, in lexical order.
func (m *MetaStore) Suggest(kind, prefix string, max int) ([]string, error) {
	table, ok := suggestTables[kind]
	if !ok {
		return nil, newQueryError(ErrBadRequest, "unknown suggest type: "+kind, nil)
	}
	if max <= 0 {
		max = 25
	}

	rows, err := m.db.Query(
		`SELECT name FROM `+table+` WHERE name LIKE ? || '%' ORDER BY name LIMIT ?`,
		prefix, max)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Close closes the catalog.
func (m *MetaStore) Close() error {
	return m.db.Close()
}
