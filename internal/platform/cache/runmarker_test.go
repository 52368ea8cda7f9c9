package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestMarker(t *testing.T) (*RunMarker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRunMarker(client, time.Hour), mr
}

func TestRunMarkerClaimsOncePerDay(t *testing.T) {
	marker, mr := newTestMarker(t)
	ctx := context.Background()
	day := time.Date(2024, time.May, 2, 8, 0, 0, 0, time.UTC)

	ok, err := marker.Claim(ctx, "overdue_sweep", day)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = marker.Claim(ctx, "overdue_sweep", day.Add(3*time.Hour))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = marker.Claim(ctx, "overdue_sweep", day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.True(t, ok)

	ttl := mr.TTL("tally:run:overdue_sweep:2024-05-02")
	require.Equal(t, time.Hour, ttl)
}

func TestRunMarkerRelease(t *testing.T) {
	marker, _ := newTestMarker(t)
	ctx := context.Background()
	day := time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC)

	ok, err := marker.Claim(ctx, "due_tasks", day)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, marker.Release(ctx, "due_tasks", day))

	ok, err = marker.Claim(ctx, "due_tasks", day)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRunMarkerWithoutClientAlwaysClaims(t *testing.T) {
	var marker *RunMarker
	ok, err := marker.Claim(context.Background(), "x", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = NewRunMarker(nil, 0).Claim(context.Background(), "x", time.Now())
	require.NoError(t, err)
	require.True(t, ok)
}
