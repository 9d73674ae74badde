package main

import (
	"context"
	"time"

	"ridepool/internal/rides/handler"
	"ridepool/internal/rides/repository"
	"ridepool/internal/rides/service"
	"ridepool/internal/rides/validator"
	"ridepool/pkg/app"
	"ridepool/pkg/auth"
	"ridepool/pkg/config"
	"ridepool/pkg/kafka"
	kafka_config "ridepool/pkg/kafka/config"
)

const ServiceName = "rides"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Rides service")

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTokenTTL)

	notifier, producer := initNotifier(cfg)

	rideRepo := repository.NewMongoRideRepository(cfg)
	bookingRepo := repository.NewMongoBookingRepository(cfg)
	lockRepo := repository.NewRideLockRepository(cfg)

	promoter := service.NewWaitlistPromoter(rideRepo, bookingRepo, cfg.Log)

	bookingService := service.NewBookingService(
		rideRepo,
		bookingRepo,
		lockRepo,
		validator.NewBookingValidator(cfg.Log),
		promoter,
		notifier,
		cfg,
	)
	rideService := service.NewRideService(
		rideRepo,
		bookingRepo,
		lockRepo,
		validator.NewRideValidator(cfg.Log),
		promoter,
		notifier,
		cfg,
	)
	lifecycleService := service.NewLifecycleService(rideRepo, bookingRepo, cfg)
	sweepService := service.NewSweepService(rideRepo, bookingRepo, cfg)

	cfg.Log.Info("Rides service initialized", "database", cfg.MongoDatabaseName)

	serverApp := app.NewApplication(cfg, jwtManager)
	serverApp.SetApp(
		handler.NewRideHandler(rideService, lifecycleService, sweepService, cfg.Log),
		handler.NewBookingHandler(bookingService, cfg.Log),
	)
	serverApp.SetSweep(func(ctx context.Context, now time.Time) error {
		_, err := sweepService.RunSweep(ctx, now)
		return err
	})
	if producer != nil {
		serverApp.AddCloser("kafka-producer", producer.Close)
	}
	serverApp.Run()
}

func initNotifier(cfg *config.Config) (service.Notifier, *kafka.Producer) {
	producer, err := kafka.NewProducer(
		kafka_config.Load(),
		cfg.BookingEventsTopic,
		cfg.BookingEventsDLQ,
	)
	if err != nil {
		cfg.Log.Warn("Kafka producer unavailable, booking events disabled", "error", err)
		return service.NopNotifier{}, nil
	}
	return service.NewKafkaNotifier(producer, cfg.Log), producer
}
