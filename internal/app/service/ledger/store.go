// Package ledger is the durable store for plans, subscriptions, invoices and
// payments. Every billing transition goes through Store.Transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/pkg/tool"
	"github.com/fatflowers/aspy/pkg/types"
)

var ErrNotFound = errors.New("ledger: record not found")

var forUpdate = clause.Locking{Strength: "UPDATE"}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn with a Store bound to one database transaction. The
// transaction commits only when fn returns nil and rolls back otherwise,
// including on panic.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// DB exposes the underlying handle for read models outside the ledger.
func (s *Store) DB(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Plans

func (s *Store) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	var p models.Plan
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

func (s *Store) GetPlanByType(ctx context.Context, planType types.PlanType) (*models.Plan, error) {
	var p models.Plan
	if err := s.db.WithContext(ctx).Where("type = ?", planType).Take(&p).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

func (s *Store) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	var plans []*models.Plan
	if err := s.db.WithContext(ctx).Order("price ASC").Order("name ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

// UpsertPlanByType creates or updates the plan with cfg.Type. An empty
// GatewayPlanID in cfg keeps whatever reference is stored.
func (s *Store) UpsertPlanByType(ctx context.Context, cfg types.PlanConfig) (*models.Plan, error) {
	p, err := s.GetPlanByType(ctx, cfg.Type)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if p == nil {
		p = &models.Plan{ID: tool.GenerateUUIDV7(), Type: cfg.Type}
	}
	p.Name = cfg.Name
	p.Price = cfg.Price
	p.Currency = cfg.Currency
	p.Features = datatypes.JSONMap(cfg.Features)
	if cfg.GatewayPlanID != "" {
		ref := cfg.GatewayPlanID
		p.GatewayPlanID = &ref
	}
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return nil, fmt.Errorf("save plan %s: %w", cfg.Type, err)
	}
	return p, nil
}

// Subscriptions

func (s *Store) activeQuery(ctx context.Context, userID string) *gorm.DB {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, types.SubscriptionStatusActive).
		Order("updated_at DESC").Order("id DESC")
}

// ActiveSubscription returns the user's current ACTIVE subscription with its
// plan. More than one ACTIVE row is tolerated; the most recently updated wins.
func (s *Store) ActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.activeQuery(ctx, userID).Preload("Plan").Take(&sub).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &sub, nil
}

// ActiveSubscriptionForUpdate is ActiveSubscription with a row lock and
// without the plan.
func (s *Store) ActiveSubscriptionForUpdate(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.activeQuery(ctx, userID).Clauses(forUpdate).Take(&sub).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &sub, nil
}

// LatestSubscriptionForUpdate returns the user's most recent subscription of
// any status, locked.
func (s *Store) LatestSubscriptionForUpdate(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").Order("id DESC").
		Clauses(forUpdate).
		Take(&sub).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &sub, nil
}

func (s *Store) SubscriptionForUpdate(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).Where("id = ?", id).Clauses(forUpdate).Take(&sub).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &sub, nil
}

func (s *Store) SubscriptionByGatewayRef(ctx context.Context, ref string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("gateway_subscription_id = ?", ref).
		Order("updated_at DESC").
		Clauses(forUpdate).
		Take(&sub).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &sub, nil
}

func (s *Store) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = tool.GenerateUUIDV7()
	}
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(sub).Error
}

// SaveSubscription writes every column of sub (last write wins).
func (s *Store) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(sub).Error
}

// DueForExpiry lists ACTIVE subscriptions flagged for cancellation whose
// period ended before now.
func (s *Store) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND cancel_at_period_end = ? AND current_period_end < ?", types.SubscriptionStatusActive, true, now).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (s *Store) CreateSubscriptionLog(ctx context.Context, log *models.SubscriptionLog) error {
	if log.ID == "" {
		log.ID = tool.GenerateUUIDV7()
	}
	return s.db.WithContext(ctx).Create(log).Error
}

// Invoices

func (s *Store) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if inv.ID == "" {
		inv.ID = tool.GenerateUUIDV7()
	}
	return s.db.WithContext(ctx).Create(inv).Error
}

// PendingInvoiceForUpdate returns the PENDING invoice for (userID, ref). When
// several match, the most recently created one is chosen.
func (s *Store) PendingInvoiceForUpdate(ctx context.Context, userID, ref string) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND gateway_ref = ? AND status = ?", userID, ref, types.InvoiceStatusPending).
		Order("created_at DESC").Order("id DESC").
		Clauses(forUpdate).
		Take(&inv).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &inv, nil
}

func (s *Store) PaidInvoiceByRef(ctx context.Context, userID, ref string) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND gateway_ref = ? AND status = ?", userID, ref, types.InvoiceStatusPaid).
		Order("paid_at DESC").
		Take(&inv).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &inv, nil
}

func (s *Store) GetUserInvoice(ctx context.Context, userID, id string) (*models.Invoice, error) {
	var inv models.Invoice
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Take(&inv).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &inv, nil
}

func (s *Store) SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	return s.db.WithContext(ctx).Save(inv).Error
}

// Payments

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Store) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

func (s *Store) PaymentByGatewayID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).Where("gateway_payment_id = ?", gatewayPaymentID).Take(&p).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

// LinkPayment sets the subscription and invoice a completed payment belongs
// to. No other payment column is touched.
func (s *Store) LinkPayment(ctx context.Context, paymentID, subscriptionID, invoiceID string) error {
	return s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Updates(map[string]any{"subscription_id": subscriptionID, "invoice_id": invoiceID}).Error
}

func (s *Store) LatestCompletedPayment(ctx context.Context, subscriptionID string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.WithContext(ctx).
		Where("subscription_id = ? AND status = ?", subscriptionID, types.PaymentStatusCompleted).
		Order("created_at DESC").Order("id DESC").
		Take(&p).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

// PaymentHistoryRow is one payment with the name of the plan it paid for.
type PaymentHistoryRow struct {
	ID            string
	Amount        decimal.Decimal
	Currency      string
	Status        types.PaymentStatus
	Provider      types.PaymentProvider
	MethodDetails datatypes.JSONMap
	PlanName      *string
	CreatedAt     time.Time
}

// PaymentHistory lists a user's payments, newest first. The plan name comes
// from the invoice's plan and falls back to the subscription's plan.
func (s *Store) PaymentHistory(ctx context.Context, userID string) ([]PaymentHistoryRow, error) {
	var rows []PaymentHistoryRow
	err := s.db.WithContext(ctx).
		Table("payment AS p").
		Select("p.id, p.amount, p.currency, p.status, p.provider, p.method_details, p.created_at, COALESCE(ip.name, sp.name) AS plan_name").
		Joins("LEFT JOIN invoice i ON i.id = p.invoice_id").
		Joins("LEFT JOIN plan ip ON ip.id = i.plan_id").
		Joins("LEFT JOIN subscription s ON s.id = p.subscription_id").
		Joins("LEFT JOIN plan sp ON sp.id = s.plan_id").
		Where("p.user_id = ?", userID).
		Order("p.created_at DESC").Order("p.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Users

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&u).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &u, nil
}

func (s *Store) SetGatewayCustomerID(ctx context.Context, userID, customerRef string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("gateway_customer_id", customerRef)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(NewStore),
)
