// Package sqlitedriver registers a SQLite database/sql driver under the name
// "sqlite3". When built with CGO it uses go-sqlcipher, which supports
// SQLCipher encryption of per-user databases. When CGO is unavailable it
// falls back to the pure-Go modernc.org/sqlite driver — functional but
// without encryption.
//
// Import this package for its side effects only:
//
//	import _ "github.com/kurame123/confidant/internal/sqlitedriver"
package sqlitedriver
