package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/aspy/internal/app/service/billing"
	"github.com/fatflowers/aspy/internal/app/service/gateway"
	"github.com/fatflowers/aspy/internal/app/service/ledger"
	"github.com/fatflowers/aspy/internal/app/service/statistics"
	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/internal/testutil"
	"github.com/fatflowers/aspy/pkg/config"
	"github.com/fatflowers/aspy/pkg/types"
)

func newTestScheduler(t *testing.T, cfg *config.Config) (*Scheduler, *ledger.Store, error) {
	t.Helper()
	db := testutil.NewDB(t)
	log := zap.NewNop().Sugar()
	store := ledger.NewStore(db)
	billingSvc := billing.NewService(cfg, log, store, gateway.NewMock("", time.Now), billing.NewLocalLocker(time.Second), nil)
	s, err := NewScheduler(cfg, log, nil, billingSvc, statistics.New(log, store))
	return s, store, err
}

func validConfig() *config.Config {
	return &config.Config{Jobs: config.JobsConfig{ExpirySweepSpec: "0 */10 * * * *", DailySnapshotSpec: "0 5 0 * * *"}}
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	cfg := validConfig()
	cfg.Jobs.DailySnapshotSpec = "every day"
	_, _, err := newTestScheduler(t, cfg)
	assert.Error(t, err)
}

func TestJobs(t *testing.T) {
	s, store, err := newTestScheduler(t, validConfig())
	require.NoError(t, err)
	ctx := context.Background()
	db := store.DB(ctx)

	u := testutil.CreateUser(t, db, "asha")
	pro := testutil.CreateProPlan(t, db, "plan_x")
	sub := testutil.CreateActiveSubscription(t, db, u.ID, pro, time.Hour)
	past := time.Now().Add(-time.Minute)
	require.NoError(t, db.Model(sub).Updates(map[string]any{"cancel_at_period_end": true, "current_period_end": past}).Error)

	other := testutil.CreateUser(t, db, "ravi")
	testutil.CreateActiveSubscription(t, db, other.ID, testutil.CreateFreePlan(t, db), 0)

	require.NoError(t, s.ExpirySweep(ctx))
	var got models.Subscription
	require.NoError(t, db.Where("id = ?", sub.ID).Take(&got).Error)
	assert.Equal(t, types.SubscriptionStatusExpired, got.Status)

	s.now = func() time.Time { return time.Date(2025, 3, 2, 0, 5, 0, 0, time.UTC) }
	require.NoError(t, s.DailySnapshot(ctx))
	var snaps []models.SubscriptionDailySnapshot
	require.NoError(t, db.Find(&snaps).Error)
	require.Len(t, snaps, 1)
	assert.Equal(t, "2025-03-01", snaps[0].SnapshotDate)
	assert.Equal(t, other.ID, snaps[0].UserID)
}

func TestStartStop(t *testing.T) {
	s, _, err := newTestScheduler(t, validConfig())
	require.NoError(t, err)
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
