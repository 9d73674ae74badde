package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "ridepool"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultJWTTokenTTL = 24 * time.Hour

	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// RideLockTTL bounds how long a crashed lock holder can block a ride.
	DefaultRideLockTTL = 10 * time.Second

	DefaultSweepInterval = 1 * time.Minute
	// Grace period past arrival before an active ride is auto-completed.
	DefaultSweepGracePeriod = 1 * time.Hour

	DefaultBookingEventsTopic = "ridepool.booking-events"
	DefaultBookingEventsDLQ   = "ridepool.booking-events.dlq"

	DefaultPaginationLimit = 100
)
