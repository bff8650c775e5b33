package main

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horizon.shop/internal/config"
	"horizon.shop/internal/store/pg"
)

func stubBackend(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	prevOpen, prevMigrate := openBackend, runMigrations
	t.Cleanup(func() { openBackend, runMigrations = prevOpen, prevMigrate })
	openBackend = func(string, time.Duration) (*pg.Backend, error) {
		return pg.NewBackend(db, time.Second), nil
	}
	return mock
}

func TestOpenStoreClosesBackendWhenMigrationFails(t *testing.T) {
	mock := stubBackend(t)
	runMigrations = func(*pg.Backend) error { return errors.New("dirty database version 2") }
	mock.ExpectClose()

	st, err := openStore(&config.Config{DatabaseURL: "postgres://stub", StoreTimeout: time.Second}, true)
	require.Error(t, err)
	assert.Nil(t, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenStoreClosesBackendOnBadRedisURL(t *testing.T) {
	mock := stubBackend(t)
	mock.ExpectClose()

	st, err := openStore(&config.Config{DatabaseURL: "postgres://stub", StoreTimeout: time.Second, RedisURL: "::not a url"}, false)
	require.Error(t, err)
	assert.Nil(t, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenStoreSkipsMigrationsUnlessAsked(t *testing.T) {
	mock := stubBackend(t)
	runMigrations = func(*pg.Backend) error {
		t.Fatal("migrations ran without --migrate")
		return nil
	}

	st, err := openStore(&config.Config{DatabaseURL: "postgres://stub", StoreTimeout: time.Second}, false)
	require.NoError(t, err)
	mock.ExpectClose()
	require.NoError(t, st.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
