package migrate

import (
	"context"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-household-identity/migrations"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/database"
)

func TestUpIsIdempotentAndStatusReportsApplied(t *testing.T) {
	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "migrate.db"),
	})
	require.NoError(t, err)
	defer db.Close()

	r, err := NewRunner(db, nil)
	require.NoError(t, err)

	ctx := context.Background()
	before, err := r.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, before)
	for _, st := range before {
		assert.Nil(t, st.AppliedAt, st.Name)
	}

	n, err := r.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(before), n)

	n, err = r.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	after, err := r.Status(ctx)
	require.NoError(t, err)
	for _, st := range after {
		assert.NotNil(t, st.AppliedAt, st.Name)
	}

	var tables int
	require.NoError(t, db.GetContext(ctx, &tables,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('users','households','household_members','invitations','auth_identities','otp_requests')`))
	assert.Equal(t, 6, tables)
}

func TestMigrationsLoadInOrder(t *testing.T) {
	for _, dir := range []string{"postgres", "sqlite"} {
		t.Run(dir, func(t *testing.T) {
			sub, err := fs.Sub(migrations.Files, dir)
			require.NoError(t, err)
			r := &Runner{fsys: sub}
			all, err := r.load()
			require.NoError(t, err)
			require.NotEmpty(t, all)
			for i := 1; i < len(all); i++ {
				assert.Less(t, all[i-1].Order, all[i].Order)
			}
		})
	}
}

func TestNewRunnerRejectsUnknownDriver(t *testing.T) {
	_, err := dialectDir("mysql")
	assert.Error(t, err)
}
