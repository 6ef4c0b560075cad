// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pwieczorek/newsrelay/internal/config"
	"github.com/pwieczorek/newsrelay/internal/logging"
	"github.com/pwieczorek/newsrelay/internal/metrics"
	"github.com/pwieczorek/newsrelay/internal/notify"
	"github.com/pwieczorek/newsrelay/internal/notify/telegram"
	"github.com/pwieczorek/newsrelay/internal/queue"
	queuememory "github.com/pwieczorek/newsrelay/internal/queue/memory"
	"github.com/pwieczorek/newsrelay/internal/queue/pubsub"
	"github.com/pwieczorek/newsrelay/internal/store"
	storememory "github.com/pwieczorek/newsrelay/internal/store/memory"
	storepostgres "github.com/pwieczorek/newsrelay/internal/store/postgres"
)

// App holds all the shared, long-lived services for the application. It is
// initialized once at startup and passed to the components that need it.
type App struct {
	logger    *zap.Logger
	cfg       config.Config
	store     store.Store
	publisher queue.Publisher
	consumer  queue.Consumer
	notifier  notify.Notifier
	psClient  *gcppubsub.Client
}

// GetLogger returns the shared zap logger instance.
func (a *App) GetLogger() *zap.Logger { return a.logger }

// GetConfig returns the validated configuration.
func (a *App) GetConfig() config.Config { return a.cfg }

// GetStore returns the article store.
func (a *App) GetStore() store.Store { return a.store }

// GetPublisher returns the queue publisher.
func (a *App) GetPublisher() queue.Publisher { return a.publisher }

// GetConsumer returns the queue consumer.
func (a *App) GetConsumer() queue.Consumer { return a.consumer }

// GetNotifier returns the channel notifier.
func (a *App) GetNotifier() notify.Notifier { return a.notifier }

// NewApp creates and initializes a new App from the loaded configuration.
// It is designed to fail fast if any critical service cannot be initialized.
func NewApp(ctx context.Context) (*App, error) {
	l := logging.L
	l.Info("Initializing application services...")

	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	metrics.Init()

	a := &App{logger: l, cfg: cfg}

	// 1. Article store.
	switch cfg.DB.Provider {
	case "postgres":
		l.Info("Connecting to PostgreSQL...")
		a.store, err = storepostgres.Connect(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize store: %w", err)
		}
	case "memory":
		l.Info("Using in-memory article store. Data will not survive restarts.")
		a.store = storememory.New()
	default:
		return nil, fmt.Errorf("unknown db provider: %s", cfg.DB.Provider)
	}

	// 2. Queue.
	switch cfg.Queue.Provider {
	case "pubsub":
		l.Info("Connecting to GCP Pub/Sub",
			zap.String("project", cfg.Queue.ProjectID),
			zap.String("topic", cfg.Queue.TopicID))
		a.psClient, err = gcppubsub.NewClient(ctx, cfg.Queue.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize pubsub client: %w", err)
		}
		a.publisher, err = pubsub.NewPublisher(ctx, a.psClient, cfg.Queue.TopicID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize publisher: %w", err)
		}
		a.consumer, err = pubsub.NewConsumer(ctx, a.psClient, cfg.Queue.SubscriptionID, cfg.Queue.MaxOutstanding, l)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize consumer: %w", err)
		}
	case "memory":
		l.Info("Using in-memory queue. Messages will not survive restarts.")
		broker := queuememory.NewBroker(1024, 0)
		a.publisher = broker
		a.consumer = broker
	default:
		return nil, fmt.Errorf("unknown queue provider: %s", cfg.Queue.Provider)
	}

	// 3. Notification channel.
	if cfg.Telegram.Token != "" {
		l.Info("Using Telegram notifier", zap.String("chat_id", cfg.Telegram.ChatID))
		a.notifier, err = telegram.New(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize notifier: %w", err)
		}
	} else {
		l.Info("No Telegram token configured. Announcements will only be logged.")
		a.notifier = &logNotifier{logger: l}
	}

	l.Info("Application services initialized.")
	return a, nil
}

// Close shuts down all held services.
func (a *App) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("Closing publisher failed", zap.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Warn("Closing consumer failed", zap.Error(err))
		}
	}
	if a.psClient != nil {
		if err := a.psClient.Close(); err != nil {
			a.logger.Warn("Closing pubsub client failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Closing store failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync() //nolint:errcheck // best-effort flush
}

// logNotifier stands in for a real channel when no credentials are set.
type logNotifier struct {
	logger *zap.Logger
}

func (n *logNotifier) Deliver(_ context.Context, msg notify.Message) error {
	n.logger.Info("Channel announcement (log only)", zap.String("text", msg.Text))
	return nil
}
