package statistics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/aspy/internal/app/service/ledger"
	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/pkg/tool"
	"github.com/fatflowers/aspy/pkg/types"
)

// Overview figures
type StatisticType string

const (
	StatisticTypeTotalUsers          StatisticType = "total_users"
	StatisticTypeTotalAdmins         StatisticType = "total_admins"
	StatisticTypeActiveSubscriptions StatisticType = "active_subscriptions"
	StatisticTypeTotalRevenue        StatisticType = "total_revenue"
	StatisticTypeTotalExecutions     StatisticType = "total_executions"
	StatisticTypeTotalLanguages      StatisticType = "total_languages"
)

var overviewTypes = []StatisticType{
	StatisticTypeTotalUsers,
	StatisticTypeTotalAdmins,
	StatisticTypeActiveSubscriptions,
	StatisticTypeTotalRevenue,
	StatisticTypeTotalExecutions,
	StatisticTypeTotalLanguages,
}

type Overview struct {
	TotalUsers          int64           `json:"total_users"`
	TotalAdmins         int64           `json:"total_admins"`
	ActiveSubscriptions int64           `json:"active_subscriptions"`
	TotalRevenue        decimal.Decimal `json:"total_revenue"`
	TotalExecutions     int64           `json:"total_executions"`
	TotalLanguages      int64           `json:"total_languages"`
}

// Filterable columns of the admin subscription list.
var subscriptionFilterFields = map[string]struct{}{
	"status":               {},
	"user_id":              {},
	"plan_id":              {},
	"cancel_at_period_end": {},
	"created_at":           {},
	"current_period_end":   {},
}

type SubscriptionListRequest struct {
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	Filters  []*types.CommonFilter `json:"filters"`
}

func (r *SubscriptionListRequest) normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = 20
	}
	r.PageSize = min(r.PageSize, 100)
}

type LatestPayment struct {
	ID        string              `json:"id"`
	Amount    decimal.Decimal     `json:"amount"`
	Currency  string              `json:"currency"`
	Status    types.PaymentStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
}

type SubscriptionRow struct {
	ID                string                   `json:"id"`
	UserID            string                   `json:"user_id"`
	PlanName          string                   `json:"plan_name"`
	PlanType          types.PlanType           `json:"plan_type"`
	Status            types.SubscriptionStatus `json:"status"`
	CancelAtPeriodEnd bool                     `json:"cancel_at_period_end"`
	CurrentPeriodEnd  *time.Time               `json:"current_period_end"`
	CreatedAt         time.Time                `json:"created_at"`
	LatestPayment     *LatestPayment           `json:"latest_payment"`
}

type SubscriptionPage struct {
	Items    []SubscriptionRow `json:"items"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

type DailyStatisticItem struct {
	Date  string `json:"date"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type DailyRevenueItem struct {
	Date     string          `json:"date"`
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

type DailyStatisticResponse struct {
	Subscriptions []DailyStatisticItem `json:"subscriptions"`
	Revenue       []DailyRevenueItem   `json:"revenue"`
}

// Service answers the admin reporting queries. It only reads, except for the
// daily snapshot writer used by the scheduler.
type Service struct {
	log   *zap.SugaredLogger
	store *ledger.Store
	now   func() time.Time
}

func New(log *zap.SugaredLogger, store *ledger.Store) *Service {
	return &Service{log: log, store: store, now: time.Now}
}

func (s *Service) count(ctx context.Context, model any, query string, args ...any) (int64, error) {
	var n int64
	q := s.store.DB(ctx).Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	err := q.Count(&n).Error
	return n, err
}

func (s *Service) totalRevenue(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.store.DB(ctx).Model(&models.Payment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("status = ?", types.PaymentStatusCompleted).
		Scan(&total).Error
	return total, err
}

func (s *Service) overviewValue(ctx context.Context, typ StatisticType, out *Overview) error {
	var err error
	switch typ {
	case StatisticTypeTotalUsers:
		out.TotalUsers, err = s.count(ctx, &models.User{}, "")
	case StatisticTypeTotalAdmins:
		out.TotalAdmins, err = s.count(ctx, &models.User{}, "user_type = ?", types.UserTypeAdmin)
	case StatisticTypeActiveSubscriptions:
		out.ActiveSubscriptions, err = s.count(ctx, &models.Subscription{}, "status = ?", types.SubscriptionStatusActive)
	case StatisticTypeTotalRevenue:
		out.TotalRevenue, err = s.totalRevenue(ctx)
	case StatisticTypeTotalExecutions:
		out.TotalExecutions, err = s.count(ctx, &models.CodeExecution{}, "")
	case StatisticTypeTotalLanguages:
		out.TotalLanguages, err = s.count(ctx, &models.Language{}, "")
	default:
		return fmt.Errorf("invalid statistic type: %s", typ)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", typ, err)
	}
	return nil
}

// Overview computes the dashboard figures concurrently. Each goroutine owns
// one field of the result.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	var (
		wg  sync.WaitGroup
		out Overview
	)
	errChan := make(chan error, len(overviewTypes))
	for _, typ := range overviewTypes {
		wg.Add(1)
		go func(typ StatisticType) {
			defer wg.Done()
			if err := s.overviewValue(ctx, typ, &out); err != nil {
				errChan <- err
			}
		}(typ)
	}
	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSubscriptions pages through all subscriptions, newest first, each with
// its most recent completed payment.
func (s *Service) ListSubscriptions(ctx context.Context, req SubscriptionListRequest) (*SubscriptionPage, error) {
	req.normalize()
	for _, f := range req.Filters {
		if err := f.Validate(subscriptionFilterFields); err != nil {
			return nil, err
		}
	}

	q := s.store.DB(ctx).Model(&models.Subscription{})
	if len(req.Filters) > 0 {
		exprs := lo.Map(req.Filters, func(f *types.CommonFilter, _ int) clause.Expression { return f })
		q = q.Where(clause.Where{Exprs: exprs})
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	var subs []*models.Subscription
	err := q.Preload("Plan").
		Order("created_at DESC").Order("id DESC").
		Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	latest, err := s.latestPayments(ctx, lo.Map(subs, func(sub *models.Subscription, _ int) string { return sub.ID }))
	if err != nil {
		return nil, err
	}

	items := lo.Map(subs, func(sub *models.Subscription, _ int) SubscriptionRow {
		row := SubscriptionRow{
			ID:                sub.ID,
			UserID:            sub.UserID,
			Status:            sub.Status,
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			CurrentPeriodEnd:  sub.CurrentPeriodEnd,
			CreatedAt:         sub.CreatedAt,
			LatestPayment:     latest[sub.ID],
		}
		if sub.Plan != nil {
			row.PlanName = sub.Plan.Name
			row.PlanType = sub.Plan.Type
		}
		return row
	})
	return &SubscriptionPage{Items: items, Total: total, Page: req.Page, PageSize: req.PageSize}, nil
}

func (s *Service) latestPayments(ctx context.Context, subIDs []string) (map[string]*LatestPayment, error) {
	out := make(map[string]*LatestPayment, len(subIDs))
	if len(subIDs) == 0 {
		return out, nil
	}
	var payments []models.Payment
	err := s.store.DB(ctx).
		Where("subscription_id IN ? AND status = ?", subIDs, types.PaymentStatusCompleted).
		Order("created_at DESC").Order("id DESC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	for _, p := range payments {
		if p.SubscriptionID == nil {
			continue
		}
		if _, ok := out[*p.SubscriptionID]; ok {
			continue
		}
		out[*p.SubscriptionID] = &LatestPayment{
			ID:        p.ID,
			Amount:    p.Amount,
			Currency:  p.Currency,
			Status:    p.Status,
			CreatedAt: p.CreatedAt,
		}
	}
	return out, nil
}

// SaveDailySnapshots copies every ACTIVE subscription into the snapshot table
// for date. Running it twice for the same date keeps the first copy.
func (s *Service) SaveDailySnapshots(ctx context.Context, date time.Time) (int, error) {
	var subs []*models.Subscription
	err := s.store.DB(ctx).Preload("Plan").
		Where("status = ?", types.SubscriptionStatusActive).
		Find(&subs).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return 0, nil
	}

	day := date.UTC().Format(time.DateOnly)
	created := s.now()
	snaps := lo.Map(subs, func(sub *models.Subscription, _ int) *models.SubscriptionDailySnapshot {
		snap := &models.SubscriptionDailySnapshot{
			ID:                tool.GenerateUUIDV7(),
			UserID:            sub.UserID,
			SnapshotDate:      day,
			SubscriptionID:    sub.ID,
			Status:            sub.Status,
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			CurrentPeriodEnd:  sub.CurrentPeriodEnd,
			SnapshotCreatedAt: created,
		}
		if sub.Plan != nil {
			snap.PlanType = sub.Plan.Type
		}
		return snap
	})
	res := s.store.DB(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(snaps, 200)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to save snapshots: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// Daily returns active subscriptions per plan type from the snapshots and the
// completed payment revenue per day, both for the inclusive date range.
func (s *Service) Daily(ctx context.Context, from, to time.Time) (*DailyStatisticResponse, error) {
	from, to = from.UTC(), to.UTC()
	if to.Before(from) {
		return nil, fmt.Errorf("invalid date range: %s > %s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	var subs []DailyStatisticItem
	err := s.store.DB(ctx).Model(&models.SubscriptionDailySnapshot{}).
		Select("snapshot_date AS date, plan_type AS label, count(*) AS value").
		Where("snapshot_date BETWEEN ? AND ?", from.Format(time.DateOnly), to.Format(time.DateOnly)).
		Group("snapshot_date").Group("plan_type").
		Order("snapshot_date").Order("plan_type").
		Scan(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}

	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	var payments []models.Payment
	err = s.store.DB(ctx).
		Select("amount", "currency", "created_at").
		Where("status = ? AND created_at >= ? AND created_at < ?", types.PaymentStatusCompleted, start, end).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}

	type key struct{ date, currency string }
	sums := make(map[key]decimal.Decimal)
	for _, p := range payments {
		k := key{p.CreatedAt.UTC().Format(time.DateOnly), p.Currency}
		sums[k] = sums[k].Add(p.Amount)
	}
	revenue := make([]DailyRevenueItem, 0, len(sums))
	for k, v := range sums {
		revenue = append(revenue, DailyRevenueItem{Date: k.date, Currency: k.currency, Amount: v})
	}
	sort.Slice(revenue, func(i, j int) bool {
		if revenue[i].Date != revenue[j].Date {
			return revenue[i].Date < revenue[j].Date
		}
		return revenue[i].Currency < revenue[j].Currency
	})

	return &DailyStatisticResponse{Subscriptions: subs, Revenue: revenue}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
