package certificates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/aspy/internal/app/service/ledger"
	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/pkg/types"
)

const upgradeMessage = "Upgrade to Pro to unlock certificates."

type Certificate struct {
	ID          string    `json:"id"`
	Language    string    `json:"language"`
	Slug        string    `json:"slug"`
	IssuedAt    time.Time `json:"issued_at"`
	DownloadURL string    `json:"download_url"`
}

type Result struct {
	Eligible     bool          `json:"eligible"`
	Message      string        `json:"message,omitempty"`
	Certificates []Certificate `json:"certificates"`
}

type Service struct {
	log   *zap.SugaredLogger
	store *ledger.Store
}

func NewService(log *zap.SugaredLogger, store *ledger.Store) *Service {
	return &Service{log: log, store: store}
}

func (s *Service) eligible(ctx context.Context, userID string) (bool, error) {
	sub, err := s.store.ActiveSubscription(ctx, userID)
	if errors.Is(err, ledger.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if sub.Plan == nil {
		return false, nil
	}
	return sub.Plan.Type == types.PlanTypePro || sub.Plan.Price > 0, nil
}

type usage struct {
	Language  string
	FirstUsed time.Time
}

// List returns one certificate per language the user has run code in,
// dated at the first run.
func (s *Service) List(ctx context.Context, userID string) (*Result, error) {
	ok, err := s.eligible(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Result{Message: upgradeMessage, Certificates: []Certificate{}}, nil
	}

	var rows []models.CodeExecution
	err = s.store.DB(ctx).
		Select("language", "created_at").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}

	seen := make(map[string]bool)
	certs := make([]Certificate, 0)
	for _, r := range rows {
		slug := strings.ToLower(r.Language)
		if seen[slug] {
			continue
		}
		seen[slug] = true
		certs = append(certs, Certificate{
			ID:          fmt.Sprintf("cert_%s_%s", userID, slug),
			Language:    r.Language,
			Slug:        slug,
			IssuedAt:    r.CreatedAt,
			DownloadURL: "#",
		})
	}
	return &Result{Eligible: true, Certificates: certs}, nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
