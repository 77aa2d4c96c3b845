package storage

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/engine/internal/types"
)

// RedisConfig holds the configuration parameters for connecting to a Redis
// instance.
type RedisConfig struct {
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     string `mapstructure:"port" json:"port,omitempty"`
	User     string `mapstructure:"user" json:"user,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	DB       int    `mapstructure:"db" json:"db,omitempty"`
}

// tickTTL bounds how long a stale observation lingers; the cache is
// telemetry only and is never consulted for scheduling.
const tickTTL = 24 * time.Hour

// RedisTickCache stores the last observed tick per asset pair.
type RedisTickCache struct {
	cfg    RedisConfig
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisTickCache(cfg RedisConfig, logger *logrus.Logger) (*RedisTickCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Username: cfg.User,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	status := client.Ping(context.Background())
	if status.Err() != nil {
		return nil, status.Err()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisTickCache{
		cfg:    cfg,
		client: client,
		logger: logger,
	}, nil
}

func tickKey(pair types.Pair) string {
	return "spendsave:tick:" + pair.String()
}

func (r *RedisTickCache) LastTick(ctx context.Context, pair types.Pair) (int64, bool, error) {
	val, err := r.client.Get(ctx, tickKey(pair)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	tick, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return tick, true, nil
}

func (r *RedisTickCache) StoreTick(ctx context.Context, pair types.Pair, tick int64) error {
	r.logger.WithFields(logrus.Fields{
		"pair":  pair.String(),
		"tick":  tick,
		"price": ApproxPrice(tick).String(),
	}).Debug("tick observed")
	return r.client.Set(ctx, tickKey(pair), strconv.FormatInt(tick, 10), tickTTL).Err()
}

func (r *RedisTickCache) Close() error {
	return r.client.Close()
}

// ApproxPrice converts a tick into the approximate relative price of token
// zero versus token one (1.0001^tick), for telemetry and event payloads.
func ApproxPrice(tick int64) decimal.Decimal {
	return decimal.NewFromFloat(math.Pow(1.0001, float64(tick))).Round(8)
}
