package migrations

import (
	"os"
	"path/filepath"
)

var (
	// MigrationsDir can be overridden in tests or by the application
	MigrationsDir = "scripts/migrations"
)

// GetInitialSchema returns the initial database schema. The on-disk
// schema file wins so deployments can patch it; the embedded copy
// keeps the binary self-contained.
func GetInitialSchema() (string, error) {
	searchPaths := []string{
		filepath.Join(MigrationsDir, "001_initial_schema.sql"),
		filepath.Join("..", "..", MigrationsDir, "001_initial_schema.sql"),
		filepath.Join("..", MigrationsDir, "001_initial_schema.sql"),
	}

	for _, path := range searchPaths {
		if schemaContent, err := os.ReadFile(path); err == nil { // #nosec G304 - fixed search paths
			return string(schemaContent), nil
		}
	}

	return initialSchema, nil
}

const initialSchema = `CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY,
    username TEXT NOT NULL DEFAULT '',
    first_name TEXT NOT NULL DEFAULT '',
    phone_number TEXT NOT NULL DEFAULT '',
    is_authenticated INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_active_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS credentials (
    user_id INTEGER PRIMARY KEY,
    session_blob TEXT NOT NULL,
    app_id INTEGER NOT NULL DEFAULT 0,
    app_hash TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS credential_backups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    session_blob TEXT NOT NULL,
    app_id INTEGER NOT NULL DEFAULT 0,
    app_hash TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_credential_backups_user ON credential_backups(user_id, created_at);

CREATE TABLE IF NOT EXISTS forwarding_rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    source_chat_id INTEGER NOT NULL,
    source_chat_name TEXT NOT NULL DEFAULT '',
    target_chat_id INTEGER NOT NULL,
    target_chat_name TEXT NOT NULL DEFAULT '',
    extract_pattern TEXT NOT NULL DEFAULT '',
    header_text TEXT NOT NULL DEFAULT '',
    footer_text TEXT NOT NULL DEFAULT '',
    button_label TEXT NOT NULL DEFAULT '',
    button_url TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_forwarding_rules_user ON forwarding_rules(user_id, active);
CREATE INDEX IF NOT EXISTS idx_forwarding_rules_source ON forwarding_rules(user_id, source_chat_id);

CREATE TRIGGER IF NOT EXISTS credentials_updated_at
AFTER UPDATE ON credentials
BEGIN
    UPDATE credentials SET updated_at = CURRENT_TIMESTAMP
    WHERE user_id = NEW.user_id;
END;
`
