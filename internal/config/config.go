package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/alecthomas/kong"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Every field can be set by flag or by environment variable; defaults let the
// binary run locally with only a database URL and a JWT secret.
type ServerConfig struct {
	HTTPAddr        string        `name:"http-addr" env:"HTTP_ADDR" default:":8080"`
	ReadTimeout     time.Duration `name:"http-read-timeout" env:"HTTP_READ_TIMEOUT" default:"5s"`
	WriteTimeout    time.Duration `name:"http-write-timeout" env:"HTTP_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout     time.Duration `name:"http-idle-timeout" env:"HTTP_IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `name:"http-shutdown-timeout" env:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`

	DatabaseURL   string `name:"database-url" env:"DATABASE_URL"`
	StoreDriver   string `name:"store-driver" env:"STORE_DRIVER" enum:"postgres,memory" default:"postgres"`
	RunMigrations bool   `name:"migrate" env:"MIGRATE"`

	JWTSecret string `name:"jwt-secret" env:"JWT_SECRET"`

	RedisAddr     string `name:"redis-addr" env:"REDIS_ADDR"`
	RedisPassword string `name:"redis-password" env:"REDIS_PASSWORD"`
	RedisGeoKey   string `name:"redis-geo-key" env:"REDIS_GEO_KEY" default:"drivers_geo"`

	KafkaBrokers       []string `name:"kafka-brokers" env:"KAFKA_BROKERS" sep:","`
	KafkaLocationTopic string   `name:"kafka-location-topic" env:"KAFKA_LOCATION_TOPIC" default:"driver-locations"`
	KafkaRideTopic     string   `name:"kafka-ride-topic" env:"KAFKA_RIDE_TOPIC" default:"ride-events"`

	OSRMURL       string        `name:"osrm-url" env:"OSRM_URL"`
	GoogleMapsKey string        `name:"google-maps-key" env:"GOOGLE_MAPS_API_KEY"`
	RouteCacheTTL time.Duration `name:"route-cache-ttl" env:"ROUTE_CACHE_TTL" default:"10m"`
	BaseFare      float64       `name:"base-fare" env:"PRICING_BASE_FARE" default:"5.0"`
	PerKmRate     float64       `name:"per-km-rate" env:"PRICING_PER_KM" default:"2.5"`
	AvgSpeedKmh   float64       `name:"avg-speed-kmh" env:"PRICING_AVG_SPEED_KMH" default:"30"`

	OfferTTL          time.Duration `name:"offer-ttl" env:"OFFER_TTL" default:"5m"`
	WalletMaxAttempts int           `name:"wallet-max-attempts" env:"WALLET_MAX_ATTEMPTS" default:"5"`
	ReferralBonus     float64       `name:"referral-bonus" env:"REFERRAL_BONUS" default:"10"`

	RateWindow time.Duration `name:"rate-window" env:"RATE_WINDOW" default:"1m"`
	RateWrite  int           `name:"rate-write" env:"RATE_WRITE" default:"15"`
	RateRead   int           `name:"rate-read" env:"RATE_READ" default:"30"`
	RateSearch int           `name:"rate-search" env:"RATE_SEARCH" default:"20"`
	// TrustedProxies are CIDRs or addresses of load balancers whose
	// X-Forwarded-For header identifies the client.
	TrustedProxies []string `name:"trusted-proxies" env:"TRUSTED_PROXIES" sep:","`

	FCMEndpoint string `name:"fcm-endpoint" env:"FCM_ENDPOINT"`
	FCMKey      string `name:"fcm-key" env:"FCM_KEY"`

	StripeKey      string `name:"stripe-key" env:"STRIPE_API_KEY"`
	StripeCurrency string `name:"stripe-currency" env:"STRIPE_CURRENCY" default:"usd"`

	OTLPEndpoint string `name:"otlp-endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	DefaultSpeedMps float64 `name:"matcher-default-speed-mps" env:"MATCHER_DEFAULT_SPEED_MPS" default:"10"`
	MatcherTopN     int     `name:"matcher-top-n" env:"MATCHER_TOP_N" default:"8"`

	LogLevel string `name:"log-level" env:"LOG_LEVEL" default:"info"`
}

// ConsumerConfig is the configuration of the location stream consumer.
type ConsumerConfig struct {
	KafkaBrokers []string `name:"kafka-brokers" env:"KAFKA_BROKERS" sep:"," default:"localhost:9092"`
	KafkaTopic   string   `name:"kafka-topic" env:"KAFKA_LOCATION_TOPIC" default:"driver-locations"`
	KafkaGroup   string   `name:"kafka-group" env:"KAFKA_GROUP" default:"ride-negotiation-consumer"`

	RedisAddr     string `name:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `name:"redis-password" env:"REDIS_PASSWORD"`
	RedisGeoKey   string `name:"redis-geo-key" env:"REDIS_GEO_KEY" default:"drivers_geo"`

	MetricsAddr string `name:"metrics-addr" env:"METRICS_ADDR" default:":2112"`
	LogLevel    string `name:"log-level" env:"LOG_LEVEL" default:"info"`
}

func LoadServerConfig(args []string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := parse("ride-negotiation", &cfg, args); err != nil {
		return cfg, err
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	return cfg, cfg.validate()
}

func LoadConsumerConfig(args []string) (ConsumerConfig, error) {
	var cfg ConsumerConfig
	if err := parse("ride-negotiation-consumer", &cfg, args); err != nil {
		return cfg, err
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if len(cfg.KafkaBrokers) == 0 {
		return cfg, errors.New("KAFKA_BROKERS must not be empty")
	}
	return cfg, nil
}

func parse(name string, target any, args []string) error {
	parser, err := kong.New(target, kong.Name(name))
	if err != nil {
		return fmt.Errorf("build config parser: %w", err)
	}
	if _, err := parser.Parse(args); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// validate fails closed on settings the service cannot run without.
func (c ServerConfig) validate() error {
	var errs []error
	if c.StoreDriver == "postgres" && strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.MatcherTopN <= 0 {
		errs = append(errs, errors.New("MATCHER_TOP_N must be > 0"))
	}
	if c.WalletMaxAttempts <= 0 {
		errs = append(errs, errors.New("WALLET_MAX_ATTEMPTS must be > 0"))
	}
	if c.OfferTTL <= 0 {
		errs = append(errs, errors.New("OFFER_TTL must be > 0"))
	}
	if c.RateWindow <= 0 || c.RateWrite <= 0 || c.RateRead <= 0 || c.RateSearch <= 0 {
		errs = append(errs, errors.New("rate limits and window must be > 0"))
	}
	if c.BaseFare < 0 || c.PerKmRate < 0 || c.AvgSpeedKmh <= 0 {
		errs = append(errs, errors.New("invalid pricing constants"))
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is a single
// host prefix.
func (c ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
