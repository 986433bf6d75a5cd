package services

import (
	"context"
	"testing"
	"time"

	"github.com/smarttransit/seat-inventory/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronService_StartAndStatus(t *testing.T) {
	f := newInventoryFixture(t)
	svc := NewCronService(f.inventory, CronSchedules{Sweep: "@every 30s", Evict: "0 0 3 * * *", EvictAfter: 24 * time.Hour}, quietLogger())

	require.NoError(t, svc.Start())
	defer svc.Stop()

	status := svc.GetJobStatus()
	assert.Equal(t, true, status["running"])
	assert.Equal(t, 2, status["job_count"])
}

func TestCronService_RateLimitCleanupJob(t *testing.T) {
	f := newInventoryFixture(t)
	limiter := NewRateLimitService(DefaultRateLimitConfig())
	svc := NewCronService(f.inventory, CronSchedules{Sweep: "@every 30s", Evict: "0 0 3 * * *"}, quietLogger()).
		WithRateLimiter(limiter)

	require.NoError(t, svc.Start())
	assert.Equal(t, 3, svc.GetJobStatus()["job_count"])
	svc.Stop()

	_, err := limiter.Allow("owner-a", "", t0)
	require.NoError(t, err)
	require.Equal(t, 1, limiter.Tracked())
	svc.now = func() time.Time { return t0.Add(2 * time.Hour) }
	svc.cleanupRateLimitsJob()
	assert.Equal(t, 0, limiter.Tracked())
}

func TestCronService_InvalidSchedule(t *testing.T) {
	f := newInventoryFixture(t)
	svc := NewCronService(f.inventory, CronSchedules{Sweep: "not a schedule", Evict: "0 0 3 * * *"}, quietLogger())

	err := svc.Start()
	assert.ErrorContains(t, err, "hold sweep job")
}

func TestCronService_RunSweepNow(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	hold, err := f.inventory.RequestHold(ctx, "trip-T", []string{"L1"}, "actor-a", t0)
	require.NoError(t, err)

	svc := NewCronService(f.inventory, CronSchedules{EvictAfter: 24 * time.Hour}, quietLogger())
	svc.now = func() time.Time { return t0.Add(20 * time.Minute) }
	svc.RunSweepNow()

	stored, err := f.store.GetHold(ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldStatusExpired, stored.Status)
}

func TestCronService_RunEvictNow(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	_, err := f.inventory.QuoteAvailability(ctx, "trip-T", t0)
	require.NoError(t, err)
	require.Len(t, f.ledger.LoadedTrips(), 1)

	svc := NewCronService(f.inventory, CronSchedules{EvictAfter: 24 * time.Hour}, quietLogger())

	svc.now = func() time.Time { return t0 }
	svc.RunEvictNow()
	assert.Len(t, f.ledger.LoadedTrips(), 1)

	// departure is t0+48h; a day after it the ledger goes
	svc.now = func() time.Time { return t0.Add(73 * time.Hour) }
	svc.RunEvictNow()
	assert.Empty(t, f.ledger.LoadedTrips())
}
