// Package billing is the subscription state machine. It keeps the ledger
// consistent with the payment gateway: purchase, verify and activate,
// cancel, resume, webhook-driven renewals and expiry.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fatflowers/aspy/internal/app/service/gateway"
	"github.com/fatflowers/aspy/internal/app/service/ledger"
	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/pkg/config"
	"github.com/fatflowers/aspy/pkg/logctx"
	"github.com/fatflowers/aspy/pkg/metrics"
	"github.com/fatflowers/aspy/pkg/types"
)

const (
	BillingPeriod = 30 * 24 * time.Hour
	// TotalCycles is the fixed one-year commitment of a gateway subscription.
	TotalCycles = 12
)

var hundred = decimal.NewFromInt(100)

// minorToMajor converts a gateway amount (paise) to a ledger amount (rupees).
func minorToMajor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}

type Service struct {
	cfg    *config.Config
	log    *zap.SugaredLogger
	store  *ledger.Store
	gw     gateway.Client
	locker UserLocker
	rec    *metrics.Recorder
	now    func() time.Time
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, store *ledger.Store, gw gateway.Client, locker UserLocker, rec *metrics.Recorder) *Service {
	return &Service{cfg: cfg, log: log, store: store, gw: gw, locker: locker, rec: rec, now: time.Now}
}

// GatewayMode is the mode the process resolved at startup.
func (s *Service) GatewayMode() config.GatewayMode {
	return s.gw.Mode()
}

func (s *Service) observe(transition string, start time.Time, err *error) {
	s.rec.ObserveProcess(metrics.ProcessTypeBilling, transition, start)
	s.rec.IncTransition(transition, *err)
}

// snapshot copies sub for the change log before it is mutated.
func snapshot(sub *models.Subscription) *models.Subscription {
	if sub == nil {
		return nil
	}
	cp := *sub
	cp.Plan = nil
	return &cp
}

func (s *Service) logChange(ctx context.Context, tx *ledger.Store, before, after *models.Subscription, reason types.SubscriptionChangeReason, extra map[string]any) error {
	entry := &models.SubscriptionLog{
		UserID:         after.UserID,
		SubscriptionID: after.ID,
		Reason:         reason,
		Before:         datatypes.NewJSONType(before),
		After:          datatypes.NewJSONType(snapshot(after)),
		Extra:          extra,
	}
	if err := tx.CreateSubscriptionLog(ctx, entry); err != nil {
		return fmt.Errorf("failed to write subscription log: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription changed",
		"user_id", after.UserID, "subscription_id", after.ID, "reason", reason, "status", after.Status)
	return nil
}

// AssignFreePlan gives a new user an ACTIVE free subscription with no end.
// It runs inside the caller's transaction.
func (s *Service) AssignFreePlan(ctx context.Context, tx *ledger.Store, userID string) (*models.Subscription, error) {
	plan, err := tx.GetPlanByType(ctx, types.PlanTypeFree)
	if err != nil {
		return nil, fmt.Errorf("failed to load free plan: %w", err)
	}
	now := s.now().UTC()
	sub := &models.Subscription{
		UserID:             userID,
		PlanID:             plan.ID,
		Status:             types.SubscriptionStatusActive,
		CurrentPeriodStart: &now,
	}
	if err := tx.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create free subscription: %w", err)
	}
	if err := s.logChange(ctx, tx, nil, sub, types.SubscriptionChangeReasonRegister, nil); err != nil {
		return nil, err
	}
	return sub, nil
}

// SubscriptionInfo summarizes the user's current subscription. A user with
// no ACTIVE row is reported on the free plan.
func (s *Service) SubscriptionInfo(ctx context.Context, userID string) (*types.UserSubscriptionInfo, error) {
	sub, err := s.store.ActiveSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return &types.UserSubscriptionInfo{PlanType: types.PlanTypeFree}, nil
		}
		return nil, err
	}
	info := &types.UserSubscriptionInfo{
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
	}
	if sub.Plan != nil {
		info.PlanType = sub.Plan.Type
	}
	return info, nil
}

// SyncCatalog upserts the configured plans.
func (s *Service) SyncCatalog(ctx context.Context) error {
	for _, p := range s.cfg.Plans {
		plan, err := s.store.UpsertPlanByType(ctx, p)
		if err != nil {
			return err
		}
		s.log.Infow("plan synced", "type", plan.Type, "name", plan.Name, "price", plan.Price,
			"gateway_plan_configured", plan.GatewayPlanID != nil)
	}
	return nil
}

func registerCatalogSync(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.SyncCatalog(ctx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(NewUserLocker),
	fx.Provide(NewService),
	fx.Invoke(registerCatalogSync),
)
