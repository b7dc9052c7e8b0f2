package migration

import "errors"

// ErrSourceUnreadable indicates the migration source directory could not be read.
var ErrSourceUnreadable = errors.New("migration source unreadable")

// ErrBadScriptName indicates a .sql file name does not encode a parseable version.
var ErrBadScriptName = errors.New("cannot parse migration version from file name")

// ErrDuplicateVersion indicates two scripts declare the same version.
var ErrDuplicateVersion = errors.New("duplicate migration version")
