package ledger

import "errors"

// ErrTableCreation indicates the schema_migrations table could not be created.
var ErrTableCreation = errors.New("creating schema_migrations table")

// ErrWriteConflict indicates a ledger insert hit an existing row for the
// same version. With the advisory lock held this should be impossible, so
// a caller seeing it must treat the run as failed rather than retry.
var ErrWriteConflict = errors.New("ledger row already exists for version")
