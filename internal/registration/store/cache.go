package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"idregistry/internal/registration/models"
	id "idregistry/pkg/domain"
)

// Cached decorates a RecordStore with a Redis read cache for FindByID.
// Mutations pass straight through to the inner store and invalidate the key,
// so the conditional-update semantics are untouched. Cache failures degrade
// to the inner store and are logged at Debug; the cache is never
// load-bearing.
//
// The cached entry deliberately omits the verification token hash; it never
// leaves the durable store.
type Cached struct {
	RecordStore
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCached(inner RecordStore, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cached {
	return &Cached{RecordStore: inner, client: client, ttl: ttl, logger: logger}
}

func cacheKey(registrationID id.RegistrationID) string {
	return "registration:" + registrationID.String()
}

func (c *Cached) FindByID(ctx context.Context, registrationID id.RegistrationID) (*models.Registration, error) {
	key := cacheKey(registrationID)
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var record models.Registration
		if err := json.Unmarshal(raw, &record); err == nil {
			return &record, nil
		}
		// Corrupt entry: drop it and fall through to the store.
		c.client.Del(ctx, key)
	}

	record, err := c.RecordStore.FindByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(record); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.DebugContext(ctx, "registration cache set failed",
				"registration_id", registrationID.String(), "error", err)
		}
	}
	return record, nil
}

func (c *Cached) UpdateIf(ctx context.Context, registrationID id.RegistrationID, expected models.Status,
	mutate func(*models.Registration) error) (*models.Registration, error) {
	record, err := c.RecordStore.UpdateIf(ctx, registrationID, expected, mutate)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, registrationID)
	return record, nil
}

func (c *Cached) invalidate(ctx context.Context, registrationID id.RegistrationID) {
	if err := c.client.Del(ctx, cacheKey(registrationID)).Err(); err != nil {
		c.logger.DebugContext(ctx, "registration cache invalidation failed",
			"registration_id", registrationID.String(), "error", err)
	}
}
