package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017/?replicaSet=rs0"
	DefaultMongoDatabaseName = "darna"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultNotificationQueue = "darna.notifications"

	DefaultChangeFeedSource = ChangeFeedMongo
	DefaultChangeTopic      = "darna.changes"
	DefaultChangeGroupID    = "darna-server"
	DefaultChangeDLQTopic   = "dlq-darna-changes"
	DefaultHubBufferSize    = 64

	DefaultCalendarWriteRetries = 3
	DefaultLiveHeartbeat        = 25 * time.Second

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)

// Change feed sources for the server's realtime hub.
const (
	ChangeFeedMongo = "mongo"
	ChangeFeedKafka = "kafka"
)
