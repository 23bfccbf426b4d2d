// Package execution runs user code: it enforces the free-plan run limit,
// translates the source to Python and runs it in the sandbox.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/aspy/internal/app/service/ledger"
	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/internal/platform/openai"
	"github.com/fatflowers/aspy/internal/platform/sandbox"
	"github.com/fatflowers/aspy/pkg/config"
	"github.com/fatflowers/aspy/pkg/logctx"
	"github.com/fatflowers/aspy/pkg/metrics"
	"github.com/fatflowers/aspy/pkg/tool"
)

var ErrRunLimitReached = errors.New("run limit reached")

// LimitError carries the limit that was hit.
type LimitError struct {
	Limit int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("Free plan limit reached (%d runs). Please upgrade to purchase a subscription to continue running code.", e.Limit)
}

func (e *LimitError) Unwrap() error { return ErrRunLimitReached }

type Translator interface {
	ToPython(ctx context.Context, language, code string) (string, error)
}

type RunRequest struct {
	Language string `json:"language" binding:"required"`
	Code     string `json:"code" binding:"required"`
}

type RunResult struct {
	Output string `json:"output"`
}

type Service struct {
	cfg        *config.Config
	log        *zap.SugaredLogger
	store      *ledger.Store
	translator Translator
	runner     sandbox.Runner
	rec        *metrics.Recorder
}

// NewService runs in simulated mode when tr is nil.
func NewService(cfg *config.Config, log *zap.SugaredLogger, store *ledger.Store, tr *openai.Client, runner sandbox.Runner, rec *metrics.Recorder) *Service {
	s := &Service{cfg: cfg, log: log, store: store, runner: runner, rec: rec}
	if tr != nil {
		s.translator = tr
	}
	return s
}

func (s *Service) freeLimit() int64 {
	if s.cfg.Execution.FreeRunLimit > 0 {
		return s.cfg.Execution.FreeRunLimit
	}
	return 2
}

// CheckLimit fails once a user without a paid plan has used up the free runs.
func (s *Service) CheckLimit(ctx context.Context, userID string) error {
	sub, err := s.store.ActiveSubscription(ctx, userID)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return err
	}
	if sub != nil && sub.Plan != nil && sub.Plan.Price > 0 {
		return nil
	}

	var n int64
	if err := s.store.DB(ctx).Model(&models.CodeExecution{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to count executions: %w", err)
	}
	if limit := s.freeLimit(); n >= limit {
		return &LimitError{Limit: limit}
	}
	return nil
}

func (s *Service) Run(ctx context.Context, user *models.User, req RunRequest) (*RunResult, error) {
	if err := s.CheckLimit(ctx, user.ID); err != nil {
		return nil, err
	}
	defer s.rec.ObserveProcess(metrics.ProcessTypeExecution, "run", time.Now())

	output := s.execute(ctx, req)

	exec := &models.CodeExecution{
		ID:       tool.GenerateUUIDV7(),
		UserID:   user.ID,
		Language: req.Language,
		Code:     req.Code,
		Output:   output,
	}
	var lang models.Language
	if err := s.store.DB(ctx).Where("slug = ?", strings.ToLower(req.Language)).Take(&lang).Error; err == nil {
		exec.LanguageID = lo.ToPtr(lang.ID)
	}
	if err := s.store.DB(ctx).Create(exec).Error; err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}
	return &RunResult{Output: output}, nil
}

func (s *Service) execute(ctx context.Context, req RunRequest) string {
	log := logctx.FromCtx(ctx, s.log)
	if s.translator == nil {
		return simulated(req.Language)
	}

	code, err := s.translator.ToPython(ctx, req.Language, req.Code)
	if err != nil {
		log.Warnw("translation failed", "language", req.Language, "error", err.Error())
		if openai.IsUnauthorized(err) {
			return simulated(req.Language)
		}
		return fmt.Sprintf("Error processing request: %s", err.Error())
	}

	out, err := s.runner.RunPython(ctx, code)
	if err != nil && !errors.Is(err, sandbox.ErrTimeout) {
		log.Errorw("sandbox run failed", "error", err.Error())
		out = fmt.Sprintf("Execution failed: %s", err.Error())
	}
	return fmt.Sprintf("> Generated Python Code:\n%s\n\n> Output:\n%s", code, out)
}

func simulated(language string) string {
	return fmt.Sprintf("> Executing %s code...\n\n> Output:\nHello from DesiCodes (Simulated)!\nLanguage: %s\n(OpenAI API Key missing or invalid)", language, language)
}

// Languages lists the active languages by name.
func (s *Service) Languages(ctx context.Context) ([]models.Language, error) {
	var langs []models.Language
	err := s.store.DB(ctx).Where("is_active = ?", true).Order("name ASC").Find(&langs).Error
	return langs, err
}

var Module = fx.Options(
	fx.Provide(NewService),
)
