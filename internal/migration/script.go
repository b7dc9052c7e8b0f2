package migration

import (
	"crypto/sha256"
	"encoding/hex"
)

// Script is an immutable descriptor of one migration file loaded from disk.
type Script struct {
	Version     int64  // ordinal parsed from the filename, e.g. 2 for v2-create-user.sql
	Description string // "create_user", extracted from the filename
	SQL         string // contents of the .sql file, exactly as read
	Checksum    string // SHA-256 hex digest of SQL
	FilePath    string // path the script was loaded from
}

// ComputeChecksum returns the SHA-256 hex digest of the given SQL string.
// The hash covers the literal file content, so any edit to an applied
// script, including whitespace, is detected as drift.
func ComputeChecksum(sql string) string {
	h := sha256.Sum256([]byte(sql))

	return hex.EncodeToString(h[:])
}
