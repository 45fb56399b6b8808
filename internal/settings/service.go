package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/vibes-market-backend/pkg/db/models"
	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/vibes-market-backend/pkg/redis"
)

// Runtime tunables stored in app_settings.
const (
	KeyPlatformFeePercents               = "platform_fee_percents"
	KeyStripeFeePercents                 = "stripe_fee_percents"
	KeyCoinRewardRate                    = "coin_reward_rate"
	KeyOrderingItemsInterval             = "ordering_items_interval"
	KeyExperienceOrderManagementInterval = "experience_order_management_interval"
)

var (
	DefaultPlatformFeePercents = decimal.NewFromInt(10)
	DefaultStripeFeePercents   = decimal.RequireFromString("3.6")
	DefaultCoinRewardRate      = decimal.NewFromInt(1)
)

// DefaultLockInterval is the lock TTL in seconds used when no row exists.
const DefaultLockInterval int64 = 1800

// PaymentSettings are the fee and reward percentages read per checkout.
type PaymentSettings struct {
	PlatformFeePercents decimal.Decimal
	StripeFeePercents   decimal.Decimal
	CoinRewardRate      decimal.Decimal
}

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SettingsKey(name string) string
}

// Service reads app_settings through an optional redis read-through cache.
type Service struct {
	db    *gorm.DB
	cache cacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

func NewService(db *gorm.DB, cache cacheStore, ttl time.Duration, logg *logger.Logger) (*Service, error) {
	if db == nil {
		return nil, errors.New("db required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{db: db, cache: cache, ttl: ttl, logg: logg}, nil
}

// String returns the raw value for key and whether it exists.
func (s *Service) String(ctx context.Context, key string) (string, bool, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, s.cache.SettingsKey(key))
		switch {
		case err == nil:
			return cached, true, nil
		case !errors.Is(err, pkgredis.Nil):
			s.logg.Warn(s.logg.WithField(ctx, "setting", key), "settings cache read failed")
		}
	}

	var row models.AppSetting
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load setting %s: %w", key, err)
	}

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.Set(ctx, s.cache.SettingsKey(key), row.Value, s.ttl); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "setting", key), "settings cache write failed")
		}
	}
	return row.Value, true, nil
}

// Int parses an integer setting, falling back to def when the row is absent.
func (s *Service) Int(ctx context.Context, key string, def int64) (int64, error) {
	raw, ok, err := s.String(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return def, fmt.Errorf("setting %s is not an integer: %w", key, err)
	}
	return v, nil
}

// Decimal parses a numeric setting, falling back to def when the row is absent.
func (s *Service) Decimal(ctx context.Context, key string, def decimal.Decimal) (decimal.Decimal, error) {
	raw, ok, err := s.String(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return def, fmt.Errorf("setting %s is not numeric: %w", key, err)
	}
	return v, nil
}

// Duration reads a value stored in seconds.
func (s *Service) Duration(ctx context.Context, key string, defSeconds int64) (time.Duration, error) {
	secs, err := s.Int(ctx, key, defSeconds)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

func (s *Service) PaymentSettings(ctx context.Context) (PaymentSettings, error) {
	platform, err := s.Decimal(ctx, KeyPlatformFeePercents, DefaultPlatformFeePercents)
	if err != nil {
		return PaymentSettings{}, err
	}
	stripe, err := s.Decimal(ctx, KeyStripeFeePercents, DefaultStripeFeePercents)
	if err != nil {
		return PaymentSettings{}, err
	}
	reward, err := s.Decimal(ctx, KeyCoinRewardRate, DefaultCoinRewardRate)
	if err != nil {
		return PaymentSettings{}, err
	}
	return PaymentSettings{
		PlatformFeePercents: platform,
		StripeFeePercents:   stripe,
		CoinRewardRate:      reward,
	}, nil
}

// Set upserts a value and drops the cached copy.
func (s *Service) Set(ctx context.Context, key, value string) error {
	row := models.AppSetting{Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, s.cache.SettingsKey(key)); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "setting", key), "settings cache invalidation failed")
		}
	}
	return nil
}
