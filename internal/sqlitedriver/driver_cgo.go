//go:build cgo

package sqlitedriver

import (
	_ "github.com/mutecomm/go-sqlcipher/v4" // registers "sqlite3" driver with encryption
)

// EncryptionSupported reports whether the active driver accepts a
// PRAGMA key for SQLCipher encryption. True when built with CGO.
const EncryptionSupported = true
