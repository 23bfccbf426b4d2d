package main

// @title           Aspy Backend API
// @version         1.0
// @description     Subscription billing, code execution and admin reporting API.
// @termsOfService  http://example.com/terms/

// @contact.name   API Support
// @contact.url    http://www.example.com/support
// @contact.email  support@example.com

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8888
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in                          header
// @name                        Authorization

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/aspy/internal/app"
	"github.com/fatflowers/aspy/pkg/config"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (overrides APP_CONFIG_FILE)")
	checkOnly := flag.Bool("check-config", false, "load and validate the config, then exit")
	flag.Parse()

	os.Exit(run(*configFile, *checkOnly))
}

func run(configFile string, checkOnly bool) int {
	boot := zap.NewExample().Sugar()
	if configFile != "" {
		if err := os.Setenv("APP_CONFIG_FILE", configFile); err != nil {
			boot.Errorf("set config file: %v", err)
			return 1
		}
	}

	if checkOnly {
		cfg, err := config.New()
		if err != nil {
			boot.Errorf("config invalid: %v", err)
			return 1
		}
		fmt.Printf("config ok: env=%s gateway=%s plans=%d\n", cfg.Env, cfg.Gateway.ResolveMode(), len(cfg.Plans))
		return 0
	}

	a := fx.New(app.Module)
	startCtx, cancel := context.WithTimeout(context.Background(), app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		// Logging might not be ready yet.
		boot.Errorf("failed to start app: %v", err)
		return 1
	}

	// fx handles SIGINT/SIGTERM.
	<-a.Done()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.DefaultStopTimeout)
	defer cancelStop()
	if err := a.Stop(stopCtx); err != nil {
		boot.Errorf("failed to stop app: %v", err)
		return 1
	}
	return 0
}
