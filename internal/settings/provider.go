package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kitchenpay-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/kitchenpay-backend/pkg/errors"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
)

var maxCommissionRate = decimal.NewFromInt(100)

// cache is the slice of the redis client the provider reads through.
type cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CommissionRateKey(tenantID string) string
	HoldHoursKey() string
}

// Provider resolves tenant commission rates and the platform hold period,
// falling back to configured defaults when nothing is stored.
type Provider struct {
	repo      Repository
	cache     cache
	logg      *logger.Logger
	ttl       time.Duration
	rate      decimal.Decimal
	holdHours int
}

// NewProvider builds a provider. cache may be nil, in which case every read hits the database.
func NewProvider(repo Repository, c cache, cfg config.WalletConfig, logg *logger.Logger) (*Provider, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Provider{
		repo:      repo,
		cache:     c,
		logg:      logg,
		ttl:       cfg.SettingsCacheTTL,
		rate:      cfg.CommissionRate(),
		holdHours: cfg.DefaultHoldHours,
	}, nil
}

// CommissionRate returns the tenant's percentage rate, e.g. 7.5 for 7.5%.
func (p *Provider) CommissionRate(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error) {
	key := ""
	if p.cache != nil {
		key = p.cache.CommissionRateKey(tenantID.String())
		if raw, ok := p.cached(ctx, key); ok {
			if rate, err := decimal.NewFromString(raw); err == nil {
				return rate, nil
			}
		}
	}

	row, err := p.repo.FindTenant(ctx, tenantID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant settings")
	}
	rate := p.rate
	if row != nil {
		rate = row.CommissionRate
	}
	p.store(ctx, key, rate.String())
	return rate, nil
}

// WithdrawableHoldHours returns the platform hold period applied to new timers.
func (p *Provider) WithdrawableHoldHours(ctx context.Context) (int, error) {
	key := ""
	if p.cache != nil {
		key = p.cache.HoldHoursKey()
		if raw, ok := p.cached(ctx, key); ok {
			if hours, err := strconv.Atoi(raw); err == nil {
				return hours, nil
			}
		}
	}

	row, err := p.repo.FindPlatform(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load platform settings")
	}
	hours := p.holdHours
	if row != nil {
		hours = row.WithdrawableHoldHours
	}
	p.store(ctx, key, strconv.Itoa(hours))
	return hours, nil
}

func (p *Provider) SetCommissionRate(ctx context.Context, tenantID uuid.UUID, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(maxCommissionRate) {
		return pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be between 0 and 100").
			WithDetails(map[string]string{"commission_rate": rate.String()})
	}
	if err := p.repo.UpsertCommissionRate(ctx, tenantID, rate); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save commission rate")
	}
	if p.cache != nil {
		p.evict(ctx, p.cache.CommissionRateKey(tenantID.String()))
	}
	return nil
}

func (p *Provider) SetHoldHours(ctx context.Context, hours int) error {
	if hours < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "hold hours must not be negative").
			WithDetails(map[string]string{"withdrawable_hold_hours": strconv.Itoa(hours)})
	}
	if err := p.repo.UpsertHoldHours(ctx, hours); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save hold hours")
	}
	if p.cache != nil {
		p.evict(ctx, p.cache.HoldHoursKey())
	}
	return nil
}

func (p *Provider) cached(ctx context.Context, key string) (string, bool) {
	raw, err := p.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			p.logg.Warn(p.logg.WithField(ctx, "cache_key", key), "settings cache read failed")
		}
		return "", false
	}
	return raw, true
}

func (p *Provider) store(ctx context.Context, key, value string) {
	if p.cache == nil || key == "" {
		return
	}
	if err := p.cache.Set(ctx, key, value, p.ttl); err != nil {
		p.logg.Warn(p.logg.WithField(ctx, "cache_key", key), "settings cache write failed")
	}
}

func (p *Provider) evict(ctx context.Context, key string) {
	if err := p.cache.Del(ctx, key); err != nil {
		p.logg.Error(p.logg.WithField(ctx, "cache_key", key), "settings cache eviction failed", err)
	}
}
