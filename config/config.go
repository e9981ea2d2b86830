package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	ParcelScope ParcelScopeConfig `yaml:"parcelscope"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	ShipmentUpdatedTopicName string `yaml:"shipment_updated_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ParcelScopeConfig struct {
	HTTPAddr                string `yaml:"http_addr"`
	KafkaConsumerGroup      string `yaml:"kafka_consumer_group"`
	CurrentStatusTTLSeconds int    `yaml:"current_status_ttl_seconds"`

	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int `yaml:"worker_batch_size"`
	WorkerConcurrency         int `yaml:"worker_concurrency"`
	WorkerLeaseSeconds        int `yaml:"worker_lease_seconds"`
	WorkerRateLimitPerMinute  int `yaml:"worker_rate_limit_per_minute"`

	// Пер-carrier лимиты запросов в минуту, код перевозчика -> лимит.
	WorkerCarrierRateLimitsPerMinute map[string]int64 `yaml:"worker_carrier_rate_limits_per_minute"`

	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	// Worker scheduling (optional). If not set, defaults are "prod-like" minutes/hours:
	// IN_TRANSIT: 30..120 minutes, UNKNOWN: 90 minutes, backoff: 5/15/30/60 minutes.
	WorkerNextCheckOutForDeliverySeconds int `yaml:"worker_next_check_out_for_delivery_seconds"`
	WorkerNextCheckInTransitMinSeconds   int `yaml:"worker_next_check_in_transit_min_seconds"`
	WorkerNextCheckInTransitMaxSeconds   int `yaml:"worker_next_check_in_transit_max_seconds"`
	WorkerNextCheckExceptionSeconds      int `yaml:"worker_next_check_exception_seconds"`
	WorkerNextCheckPendingSeconds        int `yaml:"worker_next_check_pending_seconds"`
	WorkerNextCheckUnknownSeconds        int `yaml:"worker_next_check_unknown_seconds"`
	WorkerBackoff1Seconds                int `yaml:"worker_backoff_1_seconds"`
	WorkerBackoff2Seconds                int `yaml:"worker_backoff_2_seconds"`
	WorkerBackoff3Seconds                int `yaml:"worker_backoff_3_seconds"`
	WorkerBackoff4Seconds                int `yaml:"worker_backoff_4_seconds"`
	// Парковка при auth_required (не backoff): ждём действий пользователя.
	WorkerAuthRequiredParkSeconds int `yaml:"worker_auth_required_park_seconds"`

	// Таймаут одной стратегии перевозчика.
	StrategyTimeoutSeconds int `yaml:"strategy_timeout_seconds"`

	// Headless-рендеринг (envia): пауза после load до снятия HTML.
	BrowserSettleMillis int `yaml:"browser_settle_millis"`

	// Геокодер (Nominatim-совместимый).
	GeocoderBaseURL   string `yaml:"geocoder_base_url"`
	GeocoderUserAgent string `yaml:"geocoder_user_agent"`

	// Учётки авторизованных перевозчиков, код -> секрет (например DEPRISA).
	CarrierCredentials map[string]string `yaml:"carrier_credentials"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
