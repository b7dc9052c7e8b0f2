package database

import "errors"

// ErrInvalidDatabaseURL indicates the provided database URL could not be parsed.
var ErrInvalidDatabaseURL = errors.New("invalid database URL")

// ErrConnectionFailed indicates a connection to the database could not be established.
var ErrConnectionFailed = errors.New("database connection failed")

// ErrLockTimeout indicates the advisory lock could not be acquired before the timeout elapsed.
var ErrLockTimeout = errors.New("timed out waiting for migration lock")
