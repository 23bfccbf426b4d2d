package notification_log

import (
	"context"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/aspy/internal/app/service/ledger"
	"github.com/fatflowers/aspy/internal/models"
	"github.com/fatflowers/aspy/pkg/logctx"
	"github.com/fatflowers/aspy/pkg/tool"
)

type Service struct {
	store *ledger.Store
	log   *zap.SugaredLogger
	wg    sync.WaitGroup
}

func New(store *ledger.Store, log *zap.SugaredLogger) *Service {
	return &Service{store: store, log: log}
}

// Save asynchronously persists a payment notification log. Nil input is ignored.
func (s *Service) Save(ctx context.Context, log *models.PaymentNotificationLog) {
	if log == nil {
		return
	}
	if log.ID == "" {
		log.ID = tool.GenerateUUIDV7()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.store.DB(context.WithoutCancel(ctx)).Save(log).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save notification log: %v", err)
		}
	}()
}

// Wait blocks until pending saves finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func registerDrain(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.StopHook(s.Wait))
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerDrain),
)
