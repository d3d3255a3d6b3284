//go:build !cgo

package sqlitedriver

import (
	"database/sql"

	"modernc.org/sqlite"
)

func init() {
	sql.Register("sqlite3", &sqlite.Driver{})
}

// EncryptionSupported reports whether the active driver accepts a
// PRAGMA key for SQLCipher encryption. False when built without CGO.
const EncryptionSupported = false
