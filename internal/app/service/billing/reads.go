package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/fatflowers/aspy/internal/app/service/ledger"
	"github.com/fatflowers/aspy/pkg/config"
	"github.com/fatflowers/aspy/pkg/logctx"
	"github.com/fatflowers/aspy/pkg/types"
)

const SupportEmail = "support@desicodes.com"

type PaymentHistoryItem struct {
	ID            string              `json:"id"`
	Amount        float64             `json:"amount"`
	Currency      string              `json:"currency"`
	Status        types.PaymentStatus `json:"status"`
	Provider      string              `json:"provider"`
	PlanName      *string             `json:"plan_name"`
	PaymentMethod string              `json:"payment_method"`
	CreatedAt     time.Time           `json:"created_at"`
}

// PaymentHistory lists the user's payments, newest first.
func (s *Service) PaymentHistory(ctx context.Context, userID string) ([]PaymentHistoryItem, error) {
	rows, err := s.store.PaymentHistory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment history: %w", err)
	}
	return lo.Map(rows, func(r ledger.PaymentHistoryRow, _ int) PaymentHistoryItem {
		method, _ := r.MethodDetails["method"].(string)
		return PaymentHistoryItem{
			ID:            r.ID,
			Amount:        r.Amount.InexactFloat64(),
			Currency:      r.Currency,
			Status:        r.Status,
			Provider:      string(r.Provider),
			PlanName:      r.PlanName,
			PaymentMethod: lo.Ternary(method != "", method, "Unknown"),
			CreatedAt:     r.CreatedAt,
		}
	}), nil
}

type PaymentMethodInfo struct {
	HasPaymentMethod bool           `json:"has_payment_method"`
	PaymentMethod    map[string]any `json:"payment_method,omitempty"`
	Message          string         `json:"message,omitempty"`
}

// CurrentPaymentMethod prefers the card stored on the subscription and
// falls back to the method of the last completed payment.
func (s *Service) CurrentPaymentMethod(ctx context.Context, userID string) (*PaymentMethodInfo, error) {
	sub, err := s.store.ActiveSubscription(ctx, userID)
	if errors.Is(err, ledger.ErrNotFound) {
		return &PaymentMethodInfo{Message: "No active subscription found"}, nil
	}
	if err != nil {
		return nil, err
	}

	if sub.CardLast4 != nil {
		return &PaymentMethodInfo{
			HasPaymentMethod: true,
			PaymentMethod: map[string]any{
				"type":           "card",
				"card_brand":     lo.Ternary(lo.FromPtr(sub.CardBrand) != "", lo.FromPtr(sub.CardBrand), "Unknown"),
				"card_last4":     *sub.CardLast4,
				"card_exp_month": sub.CardExpMonth,
				"card_exp_year":  sub.CardExpYear,
			},
		}, nil
	}

	last, err := s.store.LatestCompletedPayment(ctx, sub.ID)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}
	if last != nil && len(last.MethodDetails) > 0 {
		method := last.Method()
		return &PaymentMethodInfo{
			HasPaymentMethod: true,
			PaymentMethod: map[string]any{
				"type":    lo.Ternary(method != "", method, "Unknown"),
				"details": map[string]any(last.MethodDetails),
			},
		}, nil
	}
	return &PaymentMethodInfo{Message: "Payment method details not available"}, nil
}

type InvoiceDownload struct {
	InvoiceURL string `json:"invoice_url"`
	InvoiceID  string `json:"invoice_id"`
}

// InvoiceDownload returns the stored invoice URL, fetching and storing it
// from the gateway on first request in live mode.
func (s *Service) InvoiceDownload(ctx context.Context, userID, invoiceID string) (*InvoiceDownload, error) {
	inv, err := s.store.GetUserInvoice(ctx, userID, invoiceID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	if url := lo.FromPtr(inv.InvoiceURL); url != "" {
		return &InvoiceDownload{InvoiceURL: url, InvoiceID: inv.ID}, nil
	}
	if inv.PaymentID == nil || s.gw.Mode() != config.GatewayModeLive {
		return nil, ErrInvoiceURLUnavailable
	}

	payment, err := s.store.GetPayment(ctx, *inv.PaymentID)
	if err != nil || lo.FromPtr(payment.GatewayInvoiceID) == "" {
		return nil, ErrInvoiceURLUnavailable
	}
	d, err := s.gw.FetchInvoice(ctx, *payment.GatewayInvoiceID)
	if err != nil || d.DownloadURL == "" {
		if err != nil {
			logctx.FromCtx(ctx, s.log).Warnw("failed to fetch gateway invoice", "invoice_id", inv.ID, "error", err.Error())
		}
		return nil, ErrInvoiceURLUnavailable
	}
	inv.InvoiceURL = lo.ToPtr(d.DownloadURL)
	if err := s.store.SaveInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to save invoice url: %w", err)
	}
	return &InvoiceDownload{InvoiceURL: d.DownloadURL, InvoiceID: inv.ID}, nil
}

type UpdatePaymentMethodResult struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	SubscriptionID string `json:"subscription_id"`
	SupportEmail   string `json:"support_email"`
}

// UpdatePaymentMethod has no gateway primitive behind it; it confirms the
// subscription exists remotely and returns support instructions.
func (s *Service) UpdatePaymentMethod(ctx context.Context, userID string) (*UpdatePaymentMethodResult, error) {
	sub, err := s.store.ActiveSubscription(ctx, userID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}
	ref := lo.FromPtr(sub.GatewaySubscriptionID)
	if ref == "" {
		return nil, ErrNotLinkedToGateway
	}
	if s.isMock(ref) {
		return nil, ErrUpdateInTestMode
	}
	if _, err := s.gw.FetchSubscription(ctx, ref); err != nil {
		return nil, fmt.Errorf("failed to process update: %w", err)
	}
	return &UpdatePaymentMethodResult{
		Status:         "success",
		Message:        "To update your payment method, please contact support or cancel and create a new subscription",
		SubscriptionID: ref,
		SupportEmail:   SupportEmail,
	}, nil
}

type AvailableMethod struct {
	Provider       string   `json:"provider"`
	Currencies     []string `json:"currencies"`
	SupportedCards []string `json:"supported_cards"`
	Netbanking     bool     `json:"netbanking"`
	UPI            bool     `json:"upi"`
	Wallet         bool     `json:"wallet"`
}

func (s *Service) AvailablePaymentMethods() map[string][]AvailableMethod {
	return map[string][]AvailableMethod{
		"available_methods": {{
			Provider:       string(types.PaymentProviderRazorpay),
			Currencies:     []string{"INR"},
			SupportedCards: []string{"visa", "mastercard", "rupay", "amex"},
			Netbanking:     true,
			UPI:            true,
			Wallet:         true,
		}},
	}
}

type PlanView struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Type            types.PlanType `json:"type"`
	Price           int64          `json:"price"`
	Currency        string         `json:"currency"`
	Features        map[string]any `json:"features"`
	FeaturesSummary string         `json:"features_summary"`
	Purchasable     bool           `json:"purchasable"`
}

func (s *Service) ListPlans(ctx context.Context) ([]PlanView, error) {
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	out := make([]PlanView, 0, len(plans))
	for _, p := range plans {
		out = append(out, PlanView{
			ID:              p.ID,
			Name:            p.Name,
			Type:            p.Type,
			Price:           p.Price,
			Currency:        p.Currency,
			Features:        p.Features,
			FeaturesSummary: FormatFeatures(p.Features),
			Purchasable:     lo.FromPtr(p.GatewayPlanID) != "",
		})
	}
	return out, nil
}

// FormatFeatures renders features as "Key Name: value | ..." in key order.
func FormatFeatures(features map[string]any) string {
	keys := lo.Keys(features)
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		label := strings.Join(lo.Map(strings.Split(k, "_"), func(w string, _ int) string {
			if w == "" {
				return w
			}
			return strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}), " ")
		var value string
		switch v := features[k].(type) {
		case bool:
			value = lo.Ternary(v, "Yes", "No")
		default:
			value = fmt.Sprint(v)
		}
		parts = append(parts, label+": "+value)
	}
	return strings.Join(parts, " | ")
}
