package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type AppConfig struct {
	CampaignFile string
	DatabaseURL  string // optional, empty disables the archive sink
	RabbitMQURL  string // optional, empty disables the report notifier
	OTLPEndpoint string // optional, empty disables telemetry
	LogLevel     string
	ServiceName  string
	ReadWorkers  int
	WatchMode    bool
}

func LoadConfig() *AppConfig {
	// use a temporary logger for now
	logger := zap.NewExample().Named("config")

	godotenv.Load()

	config := &AppConfig{
		CampaignFile: os.Getenv("CAMPAIGN_FILE"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RabbitMQURL:  os.Getenv("RABBITMQ_URL"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		ServiceName:  os.Getenv("SERVICE_NAME"),
		ReadWorkers:  parseInt(os.Getenv("READ_WORKERS"), 8),
		WatchMode:    parseBool(os.Getenv("WATCH_MODE"), false),
	}

	if config.CampaignFile == "" {
		config.CampaignFile = "campaign.yaml"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info" // Set default log level
	}
	if config.ServiceName == "" {
		config.ServiceName = "stellabench" // Default service name
	}
	if config.ReadWorkers <= 0 {
		logger.Warn("READ_WORKERS must be positive, using default")
		config.ReadWorkers = 8
	}

	return config
}

func parseInt(val string, defaultVal int) int {
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func parseBool(val string, defaultVal bool) bool {
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
