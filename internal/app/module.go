package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/aspy/internal/app/api/server"
	"github.com/fatflowers/aspy/internal/app/jobs"
	"github.com/fatflowers/aspy/internal/app/service/billing"
	"github.com/fatflowers/aspy/internal/app/service/certificates"
	"github.com/fatflowers/aspy/internal/app/service/execution"
	"github.com/fatflowers/aspy/internal/app/service/gateway"
	"github.com/fatflowers/aspy/internal/app/service/ledger"
	notificationhandler "github.com/fatflowers/aspy/internal/app/service/notification_handler"
	notificationlog "github.com/fatflowers/aspy/internal/app/service/notification_log"
	"github.com/fatflowers/aspy/internal/app/service/statistics"
	"github.com/fatflowers/aspy/internal/app/service/user"
	"github.com/fatflowers/aspy/internal/platform/cache"
	"github.com/fatflowers/aspy/internal/platform/db"
	"github.com/fatflowers/aspy/internal/platform/openai"
	"github.com/fatflowers/aspy/internal/platform/sandbox"
	"github.com/fatflowers/aspy/internal/platform/social"
	"github.com/fatflowers/aspy/pkg/config"
	"github.com/fatflowers/aspy/pkg/logger"
	"github.com/fatflowers/aspy/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	db.Module,
	cache.Module,
	openai.Module,
	sandbox.Module,
	social.Module,
	ledger.Module,
	gateway.Module,
	billing.Module,
	user.Module,
	execution.Module,
	certificates.Module,
	statistics.Module,
	notificationlog.Module,
	notificationhandler.Module,
	jobs.Module,
	server.Module,
)
