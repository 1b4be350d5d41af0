package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS fetches (
	handle INTEGER PRIMARY KEY AUTOINCREMENT,
	asset_id TEXT NOT NULL,
	url TEXT NOT NULL,
	destination TEXT NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	bytes INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	owner TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS fetches_one_active_per_asset
	ON fetches(asset_id) WHERE status IN ('pending', 'running');

CREATE INDEX IF NOT EXISTS fetches_destination ON fetches(destination);
`

// InitDB opens the fetch journal at path and creates the schema if needed.
// Write transactions take the database lock up front so concurrent StartFetch calls serialize.
func InitDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate&_foreign_keys=on", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open fetch journal: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create fetch journal schema: %w", err)
	}

	return db, nil
}
