// README: Entry point; loads config, wires stores and services, starts the HTTP server and the auto-dispatch scheduler.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hyperlocal/internal/config"
	httptransport "hyperlocal/internal/http"
	"hyperlocal/internal/infra"
	"hyperlocal/internal/logger"
	"hyperlocal/internal/maps"
	"hyperlocal/internal/modules/dispatch"
	"hyperlocal/internal/modules/eta"
	"hyperlocal/internal/modules/notification"
	"hyperlocal/internal/modules/order"
	"hyperlocal/internal/modules/rider"
	"hyperlocal/internal/modules/shop"
	"hyperlocal/internal/types"
)

const drainTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("hyperlocal-api exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	if cfg.Firebase.ProjectID == "" {
		return errors.New("HYPERLOCAL_FIREBASE_PROJECT_ID is required")
	}
	app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
	if err != nil {
		return err
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, app)
	if err != nil {
		return err
	}
	fcm, err := infra.NewMessaging(ctx, app)
	if err != nil {
		return err
	}

	db, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	clock := types.SystemClock{}
	ids := types.RandomIDGenerator{}

	senders := []notification.Sender{notification.NewFCMSender(fcm)}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSender := notification.NewKafkaSender(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaSender.Close()
		senders = append(senders, kafkaSender)
	}
	notifier := notification.NewDispatcher(notification.NewPostgresRecorder(db), senders, ids, clock, cfg.Notification.QueueSize)
	stopNotifier := notifier.Start(cfg.Notification.Workers)

	shopStore := shop.NewPostgresStore(db)
	riderStore := rider.NewPostgresStore(db)
	var riderOpts []rider.Option
	if cfg.Firebase.DatabaseURL != "" {
		rtdb, err := infra.NewDatabase(ctx, app)
		if err != nil {
			return err
		}
		riderOpts = append(riderOpts, rider.WithMirror(rider.NewRTDBMirror(rtdb)))
	}
	riderSvc := rider.NewService(riderStore, rider.NewRedisGeoPool(redisClient), clock, riderOpts...)
	orderSvc := order.NewService(order.NewPostgresStore(db), shopStore, riderStore, notifier,
		order.WithClock(clock), order.WithIDGenerator(ids))
	dispatchSvc := dispatch.NewService(orderSvc, riderSvc, shopStore, dispatch.NewRedisAttemptStore(redisClient), clock, cfg.Dispatch)

	peak, err := eta.ParsePeakSchedule(cfg.ETA.PeakWindows, cfg.ETA.Timezone)
	if err != nil {
		return fmt.Errorf("eta peak windows: %w", err)
	}
	var distance eta.DistanceSource
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		distance = routes
	}
	tracker := eta.NewTracker(eta.NewEstimator(cfg.ETA.PeakPenaltyMinutes), peak, orderSvc, riderStore, shopStore, distance, clock)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Verifier: verifier,
		Order:    orderSvc,
		Rider:    riderSvc,
		Dispatch: dispatchSvc,
		Tracker:  tracker,
	})

	go dispatchSvc.RunScheduler(ctx)

	serveErr := httptransport.NewServer(cfg.HTTP.Addr, router).Run(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := stopNotifier(drainCtx); err != nil {
		logger.Warn("notification queue not drained", zap.Error(err))
	}
	return serveErr
}
