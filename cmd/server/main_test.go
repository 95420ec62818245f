package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/backend/internal/broadcast"
	"retailpos/backend/internal/config"
	"retailpos/backend/internal/store/memory"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, Env: "development"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigRequiresDatabaseInProduction(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, Env: "production", AllowedOrigin: "https://pos.example"})
	assert.True(t, errors.Is(err, errInMemoryProduction))

	err = validateSecurityConfig(config.Config{
		AuthSecret: strongSecret, Env: "production", AllowedOrigin: "*", DatabaseURL: "postgres://x",
	})
	assert.Error(t, err)
}

func TestOpenRepositoryFallsBackToMemory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo, closeRepo, err := openRepository(context.Background(), config.Config{}, logger)
	require.NoError(t, err)
	defer closeRepo()
	_, ok := repo.(*memory.Store)
	assert.True(t, ok)

	b, closeB := openBroadcaster(context.Background(), config.Config{}, logger)
	defer closeB()
	_, ok = b.(*broadcast.Log)
	assert.True(t, ok)
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
	assert.True(t, names["scan"])
}
