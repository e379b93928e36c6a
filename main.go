package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"campus_parking/internal/api"
	"campus_parking/internal/api/handler"
	"campus_parking/internal/config"
	"campus_parking/internal/iot"
	"campus_parking/internal/logging"
	"campus_parking/internal/repository/postgresql"
	"campus_parking/internal/service"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsgo_config "github.com/aws/aws-sdk-go-v2/config" // Alias để tránh trùng tên
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog/log"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("shortfall_policy", string(cfg.ShortfallPolicy)).Dur("reservation_hold", cfg.ReservationHold).Msg("configuration loaded")

	// 2. Setup Database Connection
	db, err := postgresql.NewDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to database")
	}
	defer db.Close()
	if cfg.DBRunMigrations {
		if err := postgresql.RunMigrations(cfg.DatabaseURL()); err != nil {
			log.Fatal().Err(err).Msg("could not apply migrations")
		}
	}
	store := postgresql.NewStore(db)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()
	var wg sync.WaitGroup

	webSocketManager := handler.NewWebSocketManager()
	wg.Add(1)
	go func() {
		defer wg.Done()
		webSocketManager.Start(rootCtx)
	}()

	// 3. Initialize Services
	qrIssuer := service.NewQRIssuer(cfg.QRImageSize)
	activity := service.NewActivityRecorder(store.ActivityLog())
	billing := service.NewBillingEngine(cfg.ShortfallPolicy)

	authService := service.NewAuthService(store.Users(), cfg.JWTSecret, cfg.JWTExpirationHours)
	bookingService := service.NewBookingService(store, qrIssuer, webSocketManager, activity)
	sessionService := service.NewSessionService(store, qrIssuer, billing, webSocketManager, activity)
	subscriptionService := service.NewSubscriptionService(store, activity)

	sweeper := service.NewExpirySweeper(sessionService, cfg.ReservationHold, cfg.ReservationSweepEvery)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(rootCtx)
	}()

	// 4. Gate scanners (SQS in, IoT barrier commands out)
	if cfg.ScannerQueueURL == "" {
		log.Warn().Msg("SCANNER_QUEUE_URL is not set, gate scanner consumer will not run")
	} else {
		awsSDKCfg, err := awsgo_config.LoadDefaultConfig(rootCtx, awsgo_config.WithRegion(cfg.AWSRegion))
		if err != nil {
			log.Fatal().Err(err).Msg("could not load AWS SDK config")
		}

		var publisher service.BarrierPublisher
		if cfg.IoTMQTTEndpoint != "" {
			iotDataPlaneClient := iotdataplane.NewFromConfig(awsSDKCfg, func(o *iotdataplane.Options) {
				endpointWithSchema := cfg.IoTMQTTEndpoint
				if !strings.HasPrefix(endpointWithSchema, "https://") && !strings.HasPrefix(endpointWithSchema, "http://") {
					endpointWithSchema = "https://" + endpointWithSchema
				}
				o.BaseEndpoint = aws.String(endpointWithSchema)
			})
			publisher = service.NewIoTBarrierPublisher(iotDataPlaneClient)
		} else {
			log.Warn().Msg("IOT_MQTT_ENDPOINT is not set, barriers will not be opened after scans")
		}

		gateService := service.NewGateService(sessionService, publisher)
		sqsConsumer := iot.NewSQSConsumer(sqs.NewFromConfig(awsSDKCfg), cfg.ScannerQueueURL, gateService)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sqsConsumer.Start(rootCtx)
		}()
	}

	// 5. Setup HTTP Router
	router := api.SetupRouter(api.Deps{
		Auth:          authService,
		Bookings:      bookingService,
		Sessions:      sessionService,
		Subscriptions: subscriptionService,
		WSManager:     webSocketManager,
		DB:            db,
		AllowOrigins:  cfg.CORSAllowedOrigins,
	})

	// 6. Start HTTP Server
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shut down")
	}

	cancelRoot()
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
		log.Info().Msg("background workers stopped")
	case <-time.After(5 * time.Second):
		log.Warn().Msg("background workers did not stop in time")
	}

	log.Info().Msg("server stopped")
}
