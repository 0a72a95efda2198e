package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenCacheRepo struct{}

func (brokenCacheRepo) Get(context.Context, string, interface{}) error {
	return errors.New("connection refused")
}

func (brokenCacheRepo) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("connection refused")
}

func (brokenCacheRepo) DeleteByPattern(context.Context, string) error {
	return errors.New("connection refused")
}

func TestCacheServiceHitMissAndInvalidate(t *testing.T) {
	ctx := context.Background()
	svc := NewCacheService(newMemoryCacheRepo(), NewMetricsService(), 0, nil, true)

	var roster []string
	hit, err := svc.Get(ctx, "timetable:roster:A", &roster)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, "timetable:roster:A", []string{"1", "2"}, 0))
	hit, err = svc.Get(ctx, "timetable:roster:A", &roster)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"1", "2"}, roster)

	require.NoError(t, svc.Invalidate(ctx, "timetable:*"))
	hit, err = svc.Get(ctx, "timetable:roster:A", &roster)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceDisabled(t *testing.T) {
	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())

	svc := NewCacheService(brokenCacheRepo{}, nil, time.Minute, nil, false)
	hit, err := svc.Get(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, svc.Set(context.Background(), "k", 1, 0))
	assert.NoError(t, svc.Invalidate(context.Background(), "*"))
}

func TestCacheServiceSurfacesBackendErrors(t *testing.T) {
	svc := NewCacheService(brokenCacheRepo{}, nil, time.Minute, nil, true)
	hit, err := svc.Get(context.Background(), "k", &struct{}{})
	require.Error(t, err)
	assert.False(t, hit)
	assert.Error(t, svc.Set(context.Background(), "k", 1, 0))
	assert.Error(t, svc.Invalidate(context.Background(), "*"))
}
