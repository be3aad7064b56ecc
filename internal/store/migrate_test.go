// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natours/natours/pkg/errutil"
)

func TestNewMigrator_InvalidURL(t *testing.T) {
	_, err := NewMigrator("invalid://url")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestNewMigrator_PostgresqlScheme(t *testing.T) {
	// Connection fails against a missing host, but the scheme is understood.
	_, err := NewMigrator("postgresql://localhost:1/testdb?connect_timeout=1")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
	assert.NotContains(t, err.Error(), "unknown driver")
}

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@db:5432/natours":   "pgx5://u:p@db:5432/natours",
		"postgresql://u:p@db:5432/natours": "pgx5://u:p@db:5432/natours",
		"pgx5://u:p@db:5432/natours":       "pgx5://u:p@db:5432/natours",
	}
	for in, want := range tests {
		assert.Equal(t, want, migrateURL(in), in)
	}
}

// mockMigrate implements migrateIface for testing.
type mockMigrate struct {
	upErr          error
	downErr        error
	stepsErr       error
	stepsCalls     int
	versionVal     uint
	versionErr     error
	dirty          bool
	forceErr       error
	closeSourceErr error
	closeDbErr     error
}

func (m *mockMigrate) Up() error                    { return m.upErr }
func (m *mockMigrate) Down() error                  { return m.downErr }
func (m *mockMigrate) Steps(_ int) error            { m.stepsCalls++; return m.stepsErr }
func (m *mockMigrate) Version() (uint, bool, error) { return m.versionVal, m.dirty, m.versionErr }
func (m *mockMigrate) Force(_ int) error            { return m.forceErr }
func (m *mockMigrate) Close() (error, error)        { return m.closeSourceErr, m.closeDbErr }

func TestMigrator_Operations(t *testing.T) {
	boom := errors.New("database locked")

	tests := []struct {
		name     string
		mock     *mockMigrate
		run      func(*Migrator) error
		wantCode string
	}{
		{"up", &mockMigrate{}, (*Migrator).Up, ""},
		{"up no change", &mockMigrate{upErr: migrate.ErrNoChange}, (*Migrator).Up, ""},
		{"up error", &mockMigrate{upErr: boom}, (*Migrator).Up, "MIGRATION_UP_FAILED"},
		{"down", &mockMigrate{}, (*Migrator).Down, ""},
		{"down no change", &mockMigrate{downErr: migrate.ErrNoChange}, (*Migrator).Down, ""},
		{"down error", &mockMigrate{downErr: boom}, (*Migrator).Down, "MIGRATION_DOWN_FAILED"},
		{"steps", &mockMigrate{}, func(m *Migrator) error { return m.Steps(1) }, ""},
		{"steps no change", &mockMigrate{stepsErr: migrate.ErrNoChange}, func(m *Migrator) error { return m.Steps(-1) }, ""},
		{"steps error", &mockMigrate{stepsErr: boom}, func(m *Migrator) error { return m.Steps(2) }, "MIGRATION_STEPS_FAILED"},
		{"force", &mockMigrate{}, func(m *Migrator) error { return m.Force(1) }, ""},
		{"force error", &mockMigrate{forceErr: boom}, func(m *Migrator) error { return m.Force(1) }, "MIGRATION_FORCE_FAILED"},
		{"force negative", &mockMigrate{}, func(m *Migrator) error { return m.Force(-1) }, "INVALID_VERSION"},
		{"close", &mockMigrate{}, (*Migrator).Close, ""},
		{"close source error", &mockMigrate{closeSourceErr: boom}, (*Migrator).Close, "MIGRATION_CLOSE_FAILED"},
		{"close database error", &mockMigrate{closeDbErr: boom}, (*Migrator).Close, "MIGRATION_CLOSE_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(&Migrator{m: tt.mock})
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestMigrator_Steps_ZeroIsNoOp(t *testing.T) {
	mock := &mockMigrate{stepsErr: errors.New("should not be called")}
	require.NoError(t, (&Migrator{m: mock}).Steps(0))
	assert.Zero(t, mock.stepsCalls)
}

func TestMigrator_Close_BothErrors(t *testing.T) {
	m := &Migrator{m: &mockMigrate{
		closeSourceErr: errors.New("source gone"),
		closeDbErr:     errors.New("db gone"),
	}}
	err := m.Close()
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "component", "both")
	assert.Contains(t, err.Error(), "source gone")
	assert.Contains(t, err.Error(), "db gone")
}

func TestMigrator_Version(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		version, dirty, err := (&Migrator{m: &mockMigrate{versionVal: 2}}).Version()
		require.NoError(t, err)
		assert.Equal(t, uint(2), version)
		assert.False(t, dirty)
	})

	t.Run("dirty", func(t *testing.T) {
		_, dirty, err := (&Migrator{m: &mockMigrate{versionVal: 1, dirty: true}}).Version()
		require.NoError(t, err)
		assert.True(t, dirty)
	})

	t.Run("empty database", func(t *testing.T) {
		version, dirty, err := (&Migrator{m: &mockMigrate{versionErr: migrate.ErrNilVersion}}).Version()
		require.NoError(t, err)
		assert.Zero(t, version)
		assert.False(t, dirty)
	})

	t.Run("error", func(t *testing.T) {
		_, _, err := (&Migrator{m: &mockMigrate{versionErr: errors.New("connection lost")}}).Version()
		errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
	})
}

func TestMigrator_PendingAndApplied(t *testing.T) {
	tests := []struct {
		version uint
		pending []uint
		applied []uint
	}{
		{0, []uint{1, 2}, nil},
		{1, []uint{2}, []uint{1}},
		{2, nil, []uint{1, 2}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("at_%d", tt.version), func(t *testing.T) {
			m := &Migrator{m: &mockMigrate{versionVal: tt.version}}

			pending, err := m.PendingMigrations()
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.pending, pending)

			applied, err := m.AppliedMigrations()
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.applied, applied)
		})
	}

	t.Run("version error carries operation", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{versionErr: errors.New("connection lost")}}
		_, err := m.PendingMigrations()
		errutil.AssertErrorContext(t, err, "operation", "get pending migrations")
		_, err = m.AppliedMigrations()
		errutil.AssertErrorContext(t, err, "operation", "get applied migrations")
	})
}

func TestMigrator_Status(t *testing.T) {
	status, err := (&Migrator{m: &mockMigrate{versionVal: 1}}).Status()
	require.NoError(t, err)
	assert.Equal(t, uint(1), status.Version)
	assert.Equal(t, "000001_create_users", status.Name)
	assert.False(t, status.Dirty)
	assert.Equal(t, []uint{2}, status.Pending)

	_, err = (&Migrator{m: &mockMigrate{versionErr: errors.New("connection lost")}}).Status()
	require.Error(t, err)
}

func TestMigrationName(t *testing.T) {
	tests := []struct {
		version  uint
		expected string
	}{
		{1, "000001_create_users"},
		{2, "000002_reset_token_index"},
		{0, ""},
		{999, ""},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("version_%d", tt.version), func(t *testing.T) {
			name, err := MigrationName(tt.version)
			require.NoError(t, err, "unknown versions are not an error")
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestMigrationVersions_Sorted(t *testing.T) {
	versions, err := migrationVersions()
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, versions)
}
