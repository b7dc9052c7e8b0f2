package ledger

// createSchemaSQL is the DDL for the schema_migrations ledger table.
// CREATE TABLE IF NOT EXISTS keeps bootstrap idempotent under
// concurrent callers.
const createSchemaSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version                BIGINT PRIMARY KEY,
    description            TEXT NOT NULL,
    checksum               TEXT NOT NULL,
    applied_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    execution_duration_ms  INTEGER NOT NULL
)`
