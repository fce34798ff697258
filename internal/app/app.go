package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"polywhales/internal/aggregator"
	"polywhales/internal/alerting"
	"polywhales/internal/category"
	"polywhales/internal/config"
	"polywhales/internal/dedup"
	"polywhales/internal/fetcher"
	"polywhales/internal/poller"
	"polywhales/internal/router"
	"polywhales/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() fetcher.TradeFetcher {
	return fetcher.NewDataAPI(fetcher.DataAPIOptions{
		BaseURL:    a.Config.Fetcher.BaseURL,
		MinFillUSD: a.Config.Fetcher.MinFillUSD,
		TakerOnly:  a.Config.Fetcher.TakerOnly,
		Timeout:    a.Config.Fetcher.RequestTimeout,
		UserAgent:  a.Config.Fetcher.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (storage.Store, func(), error) {
	store, err := storage.Open(ctx, a.Config.Database, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// subscribers materialises the configured recipient set.
func (a *App) subscribers() router.StaticSubscribers {
	subs := make(router.StaticSubscribers, 0, len(a.Config.Subscribers))
	for _, sc := range a.Config.Subscribers {
		cats := make(map[string]bool, len(sc.Categories))
		for _, c := range sc.Categories {
			cats[c] = true
		}
		if len(cats) == 0 {
			cats["all"] = true
		}

		lang := sc.Language
		if lang == "" {
			lang = "en"
		}

		subs = append(subs, router.Subscriber{
			ChatID:     sc.ChatID,
			MinUSD:     decimal.NewFromFloat(sc.MinUSD),
			Categories: cats,
			ProbMin:    decimal.NewFromFloat(sc.ProbMin),
			ProbMax:    decimal.NewFromFloat(sc.ProbMax),
			Active:     !sc.Paused,
			Language:   lang,
		})
	}
	return subs
}

// Run executes the long-running ingestion pipeline.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	seen, err := dedup.New(dedup.Options{
		CacheSize:     a.Config.Dedup.CacheSize,
		RetentionTTL:  a.Config.Dedup.RetentionTTL,
		SweepInterval: a.Config.Dedup.SweepInterval,
	}, store, a.Logger)
	if err != nil {
		return err
	}

	agg := aggregator.New(aggregator.Options{
		Window:      a.Config.Aggregator.Window,
		Grace:       a.Config.Aggregator.Grace,
		MinAlertUSD: decimal.NewFromFloat(a.Config.Aggregator.MinAlertUSD),
	}, a.Logger)

	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("no alert transport configured; alerts will only be audited")
	}

	alertRouter := router.New(router.Options{
		QueueSize:   a.Config.Dispatch.QueueSize,
		SendTimeout: a.Config.Dispatch.SendTimeout,
	}, a.subscribers(), category.NewKeywords(), notifier, store, a.Logger)
	alertRouter.Start(ctx)
	defer alertRouter.Close()

	p := poller.New(poller.Options{
		Interval:   a.Config.Poller.Interval,
		PageLimit:  a.Config.Poller.PageLimit,
		MaxPages:   a.Config.Poller.MaxPages,
		StatsEvery: a.Config.Poller.StatsEvery,
	}, a.newFetcher(), seen, agg, alertRouter.Enqueue, a.Logger)

	a.Logger.Info().Msg("starting trade ingestion pipeline")
	err = p.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("pipeline terminated with error")
		return err
	}

	a.Logger.Info().Msg("trade ingestion pipeline stopped")
	return nil
}

// ExportOptions hold parameters for exporting alert history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SimulateOptions configure the synthetic fill replay.
type SimulateOptions struct {
	Fills    int
	FillUSD  float64
	Price    float64
	Interval time.Duration
}
