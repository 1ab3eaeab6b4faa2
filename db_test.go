package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoTracker/iplookup"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := openAndInitDB(filepath.Join(t.TempDir(), "cache", "lookupCache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLookupCacheExpiry(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return now }

	in := &iplookup.Result{Query: "8.8.8.8", Status: "success", City: "X", Country: "Y", Lat: 1, Lon: 2, Source: "ip-api"}
	require.NoError(t, db.Put(ctx, "8.8.8.8", in, time.Hour))

	got, ok, err := db.Get(ctx, "8.8.8.8")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, *in, *got)

	now = now.Add(2 * time.Hour)
	_, ok, err = db.Get(ctx, "8.8.8.8")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := db.pruneExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLookupCacheUpsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, "1.1.1.1", &iplookup.Result{City: "old"}, time.Hour))
	require.NoError(t, db.Put(ctx, "1.1.1.1", &iplookup.Result{City: "new"}, time.Hour))

	got, ok, err := db.Get(ctx, "1.1.1.1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", got.City)

	assert.Error(t, db.Put(ctx, " ", &iplookup.Result{}, time.Hour))
}

func TestClearDBTables(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Put(ctx, "1.1.1.1", &iplookup.Result{}, time.Hour))

	require.NoError(t, db.clearDBTables())
	_, ok, err := db.Get(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.False(t, ok)
}
