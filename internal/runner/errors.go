package runner

import "errors"

// ErrChecksumMismatch indicates an already-applied script's content no
// longer matches the checksum recorded in the ledger.
var ErrChecksumMismatch = errors.New("checksum mismatch for applied migration")

// ErrMissingMigration indicates a gap in the discovered version sequence.
var ErrMissingMigration = errors.New("missing migration version")

// ErrExecution indicates a script failed while executing against the database.
var ErrExecution = errors.New("migration execution failed")
