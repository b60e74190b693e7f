package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eaglesoak/portal/adapters/sqlite"
	"github.com/eaglesoak/portal/core"
	"github.com/eaglesoak/portal/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		verbose bool
		want    zapcore.Level
		wantErr bool
	}{
		{name: "info", level: "info", want: zapcore.InfoLevel},
		{name: "case insensitive", level: "WARN", want: zapcore.WarnLevel},
		{name: "verbose wins", level: "error", verbose: true, want: zapcore.DebugLevel},
		{name: "unknown level", level: "loud", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			l, err := newLogger(test.level, test.verbose)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(test.want))
			assert.False(t, l.Core().Enabled(test.want-1))
		})
	}
}

// Requirement: a passphrase seals the token before it reaches the store
func TestOpenTokenStore_SealsWithPassphrase(t *testing.T) {
	logger = zap.NewNop()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	store, cleanup, err := openTokenStore(ctx, config.StoreConfig{Kind: config.StoreSQLite, DSN: path, Passphrase: "hunter2"})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "tok1"))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok1", got)
	cleanup()

	raw, err := sqlite.Open(path, core.TokenKey)
	require.NoError(t, err)
	defer raw.Close()
	stored, err := raw.Load(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "tok1", stored)
}

func TestOpenTokenStore_UnknownKind(t *testing.T) {
	_, _, err := openTokenStore(context.Background(), config.StoreConfig{Kind: "floppy"})
	assert.Error(t, err)
}

func TestEndpointsCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORTAL_TOKEN_STORE", config.StoreMemory)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"endpoints"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), core.PathChat)
	assert.Contains(t, out.String(), "(bearer)")
}
