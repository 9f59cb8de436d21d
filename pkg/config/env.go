package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvJWTSecret = "JWT_SECRET"
	EnvJWTIssuer = "JWT_ISSUER"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvRabbitMQURL       = "RABBITMQ_URL"
	EnvNotificationQueue = "NOTIFICATION_QUEUE"

	EnvChangeFeedSource = "CHANGE_FEED_SOURCE"
	EnvChangeTopic      = "CHANGE_TOPIC"
	EnvChangeGroupID    = "CHANGE_GROUP_ID"
	EnvChangeDLQTopic   = "CHANGE_DLQ_TOPIC"
	EnvHubBufferSize    = "HUB_BUFFER_SIZE"

	EnvCalendarWriteRetries = "CALENDAR_WRITE_RETRIES"
	EnvLiveHeartbeat        = "LIVE_HEARTBEAT"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
