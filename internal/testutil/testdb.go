// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/pkg/gormlog"
	"github.com/fatflowers/aspy/pkg/tool"
	"github.com/fatflowers/aspy/pkg/types"
)

// NewDB opens an isolated in-memory SQLite database with every model
// migrated. One connection keeps the shared-cache database single-writer.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlog.New(zap.NewNop().Sugar()).LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func CreateUser(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{
		ID:           tool.GenerateUUIDV7(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		UserType:     types.UserTypeUser,
		IsActive:     true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func CreateFreePlan(t testing.TB, db *gorm.DB) *models.Plan {
	t.Helper()
	p := &models.Plan{
		ID:       tool.GenerateUUIDV7(),
		Name:     "Free",
		Type:     types.PlanTypeFree,
		Price:    0,
		Currency: "INR",
		Features: datatypes.JSONMap{"code_runs": "20 runs/month", "export": false},
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// CreateProPlan creates the paid plan; gatewayPlanID may be empty.
func CreateProPlan(t testing.TB, db *gorm.DB, gatewayPlanID string) *models.Plan {
	t.Helper()
	p := &models.Plan{
		ID:       tool.GenerateUUIDV7(),
		Name:     "Pro",
		Type:     types.PlanTypePro,
		Price:    49900,
		Currency: "INR",
		Features: datatypes.JSONMap{"code_runs": "Unlimited", "export": "Export output"},
	}
	if gatewayPlanID != "" {
		p.GatewayPlanID = &gatewayPlanID
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// CreateActiveSubscription creates an ACTIVE subscription on plan. A zero
// period leaves the period end empty, as for the free plan.
func CreateActiveSubscription(t testing.TB, db *gorm.DB, userID string, plan *models.Plan, period time.Duration) *models.Subscription {
	t.Helper()
	now := time.Now().UTC()
	s := &models.Subscription{
		ID:                 tool.GenerateUUIDV7(),
		UserID:             userID,
		PlanID:             plan.ID,
		Status:             types.SubscriptionStatusActive,
		CurrentPeriodStart: &now,
	}
	if period > 0 {
		end := now.Add(period)
		s.CurrentPeriodEnd = &end
	}
	require.NoError(t, db.Create(s).Error)
	return s
}
