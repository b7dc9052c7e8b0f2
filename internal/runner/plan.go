package runner

import (
	"fmt"

	"github.com/pgforge/migrate/internal/ledger"
	"github.com/pgforge/migrate/internal/migration"
)

// Plan diffs the discovered scripts against the applied ledger entries and
// returns the pending scripts in ascending version order. It is a pure
// function: no I/O, so every edge case is testable without a database.
//
// Plan fails, without producing any pending list, when the history can no
// longer be trusted:
//   - a script at or below the ledger high-water mark hashes differently
//     than its ledger entry recorded at apply time (drift), or has no
//     ledger entry at all (a version inserted behind already-applied ones);
//   - the discovered versions do not form an unbroken consecutive run,
//     meaning a script somewhere in the middle of history is absent from
//     the source.
func Plan(applied []ledger.Entry, scripts []migration.Script) ([]migration.Script, error) {
	entries := make(map[int64]ledger.Entry, len(applied))

	var maxApplied int64

	for _, e := range applied {
		entries[e.Version] = e
		if e.Version > maxApplied {
			maxApplied = e.Version
		}
	}

	for i, s := range scripts {
		if i > 0 {
			if prev := scripts[i-1].Version; s.Version != prev+1 {
				return nil, fmt.Errorf("%w: %d (source jumps from %d to %d)",
					ErrMissingMigration, prev+1, prev, s.Version)
			}
		}

		if s.Version > maxApplied {
			continue
		}

		entry, ok := entries[s.Version]
		if !ok {
			return nil, fmt.Errorf("%w: %d is below the ledger high-water mark (%d) but was never applied",
				ErrMissingMigration, s.Version, maxApplied)
		}

		if entry.Checksum != s.Checksum {
			return nil, fmt.Errorf("%w: version %d (%s): recorded %s, current %s",
				ErrChecksumMismatch, s.Version, s.Description, entry.Checksum, s.Checksum)
		}
	}

	var pending []migration.Script

	for _, s := range scripts {
		if s.Version > maxApplied {
			pending = append(pending, s)
		}
	}

	return pending, nil
}
