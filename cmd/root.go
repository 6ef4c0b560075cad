// Package cmd defines and implements the CLI commands for the newsrelay
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pwieczorek/newsrelay/internal/app"
	internalconfig "github.com/pwieczorek/newsrelay/internal/config"
	"github.com/pwieczorek/newsrelay/internal/logging"
	"github.com/pwieczorek/newsrelay/internal/notify"
	"github.com/pwieczorek/newsrelay/internal/queue"
	"github.com/pwieczorek/newsrelay/internal/store"
	"github.com/pwieczorek/newsrelay/pkg/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use. This allows us to
// inject a mock app during tests.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetConfig() internalconfig.Config
	GetStore() store.Store
	GetPublisher() queue.Publisher
	GetConsumer() queue.Consumer
	GetNotifier() notify.Notifier
}

// newApp is the application factory. It's a variable so we can replace it
// with a mock factory in tests.
var newApp func(ctx context.Context) (App, error) = func(ctx context.Context) (App, error) {
	return app.NewApp(ctx)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newsrelay",
		Short: "Relays fresh news articles from the source site to a Telegram channel.",
		Long: `newsrelay crawls the configured category tree of the source site,
publishes newly discovered articles to a durable queue, stores them exactly
once, and announces each stored article on a Telegram channel.`,

		// Runs AFTER config is loaded but BEFORE the subcommand's RunE, so
		// every subcommand finds an initialized application in its context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cobra.OnInitialize(func() {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		}
		config.InitConfig()
	}, logging.InitLogger)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.newsrelay/config.yaml)")

	cmd.AddCommand(newCollectCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newDispatchCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("Command execution failed", zap.Error(err))
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
