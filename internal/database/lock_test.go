package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgforge/migrate/internal/database"
)

func TestLockKeyForTarget_deterministic(t *testing.T) {
	t.Parallel()

	k1 := database.LockKeyForTarget("appdb", "public")
	k2 := database.LockKeyForTarget("appdb", "public")

	assert.Equal(t, k1, k2)
}

func TestLockKeyForTarget_distinctTargets_distinctKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		dbA, schemaA     string
		dbB, schemaB     string
	}{
		{name: "different databases", dbA: "appdb", schemaA: "public", dbB: "otherdb", schemaB: "public"},
		{name: "different schemas", dbA: "appdb", schemaA: "public", dbB: "appdb", schemaB: "tenant_a"},
		{name: "separator prevents concatenation collisions", dbA: "app", schemaA: "dbpublic", dbB: "appdb", schemaB: "public"},
	}

	for _, tt := range tests {
		tt := tt // capture range variable for parallel subtests (go1.21 loop semantics)
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			kA := database.LockKeyForTarget(tt.dbA, tt.schemaA)
			kB := database.LockKeyForTarget(tt.dbB, tt.schemaB)

			assert.NotEqual(t, kA, kB)
		})
	}
}

func TestLockHandle_Release_nilHandle_noError(t *testing.T) {
	t.Parallel()

	var handle *database.LockHandle

	assert.NoError(t, handle.Release(context.Background()))
}
