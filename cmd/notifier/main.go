package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/divanjapones/notifier"
	"github.com/divanjapones/notifier/http"
	"github.com/divanjapones/notifier/inmem"
	"github.com/divanjapones/notifier/metrics"
	"github.com/divanjapones/notifier/notification"
	"github.com/divanjapones/notifier/postgres"
	"github.com/divanjapones/notifier/rabbitmq"
	"github.com/divanjapones/notifier/redis"
	"github.com/divanjapones/notifier/resend"
	"github.com/divanjapones/notifier/smtp"
)

func main() {
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatal(err)
		}
	}

	var config *notifier.Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatal(err)
	}

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Logger()

	if err := sentry.Init(sentry.ClientOptions{
		Dsn: config.Sentry.DSN,
	}); err != nil {
		log.Fatalf("sentry.Init: %v", err)
	}
	defer sentry.Flush(2 * time.Second)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	a, err := newApp(config, logger)
	if err != nil {
		log.Fatalf("%+v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		_ = a.Close()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	<-ctx.Done()

	if err := a.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// every key is defaulted so AutomaticEnv can override it without a config file
func setDefaults() {
	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("db.url", "")
	viper.SetDefault("server.url", "")
	viper.SetDefault("site.name", notification.DefaultSiteName)
	viper.SetDefault("site.url", "")
	viper.SetDefault("smtp.host", "")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.username", "")
	viper.SetDefault("smtp.password", "")
	viper.SetDefault("smtp.from", "")
	viper.SetDefault("resend.api_key", "")
	viper.SetDefault("resend.base_url", resend.DefaultBaseURL)
	viper.SetDefault("newsletter.hmac.secret", "")
	viper.SetDefault("notifications.initial_delay", notification.DefaultInitialDelay)
	viper.SetDefault("notifications.interval", notification.DefaultInterval)
	viper.SetDefault("notifications.batch_size", notification.DefaultBatchSize)
	viper.SetDefault("notifications.delivery", notifier.DeliveryAtLeastOnce)
	viper.SetDefault("notifications.timezone", notification.DefaultTimezone)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("amqp.url", "")
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.lock_ttl", notification.DefaultLockTTL)
}

type app struct {
	config *notifier.Config
	logger zerolog.Logger

	db         *postgres.DB
	queue      notifier.QueueService
	locker     *redis.Locker
	scheduler  *notification.Scheduler
	service    *notification.Service
	httpServer *http.Server

	cancel     context.CancelFunc
	workerDone <-chan struct{}
}

func newApp(config *notifier.Config, logger zerolog.Logger) (*app, error) {
	httpServer, err := http.NewServer(logger)
	if err != nil {
		return nil, err
	}

	composer, err := notification.NewComposer(config)
	if err != nil {
		return nil, err
	}

	mailer, err := newMailer(config, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		config:     config,
		logger:     logger,
		httpServer: httpServer,
		service: &notification.Service{
			Mailer:    mailer,
			Composer:  composer,
			BatchSize: config.Notifications.BatchSize,
			Delivery:  config.Notifications.Delivery,
			Logger:    logger.With().Str("component", "notifications").Logger(),
		},
	}
	if config.DB.URL != "" {
		a.db = postgres.NewDB(config.DB.URL, composer.Location.String(), logger)
	}

	return a, nil
}

func newMailer(config *notifier.Config, logger zerolog.Logger) (notifier.Mailer, error) {
	if config.Resend.APIKey != "" {
		logger.Info().Msg("Sending email through the Resend API")
		return resend.NewMailer(config)
	}
	logger.Info().Str("host", config.SMTP.Host).Msg("Sending email through SMTP")
	return smtp.NewMailer(config), nil
}

func (a *app) Run(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.Open(); err != nil {
			return err
		}
		a.service.Subscribers = postgres.NewSubscriberService(a.db)
		a.service.Articles = postgres.NewArticleService(a.db)
		a.service.Magazines = postgres.NewMagazineService(a.db)
	} else {
		a.logger.Warn().Msg("db.url is not set, running without a database")
	}

	if a.config.AMQP.URL != "" {
		queue, err := rabbitmq.NewQueueService(a.config.AMQP.URL)
		if err != nil {
			return err
		}
		a.queue = queue
	} else {
		a.queue = inmem.NewQueueService(inmem.DefaultBufferSize)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	done, err := notification.NewWelcomeWorker(a.queue, a.service, a.logger).Start(workerCtx)
	if err != nil {
		return err
	}
	a.workerDone = done

	a.httpServer.Addr = a.config.HTTP.Addr
	a.httpServer.HMACSecret = a.config.Newsletter.HMAC.Secret
	a.httpServer.QueueService = a.queue

	// without a database a manual flush reports zero counts and nothing is scheduled
	a.scheduler = notification.NewScheduler(a.service, a.config, a.logger)
	a.httpServer.Flusher = a.scheduler

	if a.db != nil {
		if a.config.Redis.Addr != "" {
			a.locker = redis.NewLocker(a.config.Redis.Addr, a.config.Redis.Password)
			if err := a.locker.Ping(ctx); err != nil {
				return err
			}
			a.scheduler.Locker = a.locker
		}
		a.scheduler.Start()

		a.httpServer.SubscriberService = a.service.Subscribers
		a.httpServer.ArticleService = a.service.Articles
		a.httpServer.MagazineService = a.service.Magazines
	}

	if err := a.httpServer.Open(); err != nil {
		return err
	}
	a.logger.Info().Str("addr", a.httpServer.Addr).Msg("HTTP server listening")

	return nil
}

func (a *app) Close() error {
	if a.httpServer != nil {
		if err := a.httpServer.Close(); err != nil {
			return err
		}
	}

	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if a.cancel != nil {
		a.cancel()
		if a.workerDone != nil {
			<-a.workerDone
		}
	}

	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			return err
		}
	}

	if a.locker != nil {
		if err := a.locker.Close(); err != nil {
			return err
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			return err
		}
	}

	return nil
}
