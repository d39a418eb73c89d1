package caching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"hawkinsfarm/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "hawkinsfarm:"

// pendingMarker is stored under an idempotency key while its order is in flight.
const pendingMarker = "pending"

type CacheService interface {
	// Product caching. A miss returns (nil, nil).
	GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	SetProduct(ctx context.Context, product *models.Product, ttl time.Duration) error
	DeleteProduct(ctx context.Context, productID uuid.UUID) error

	// Marketplace listing snapshot. A miss returns (nil, nil).
	GetMarketplace(ctx context.Context) ([]*models.Product, error)
	SetMarketplace(ctx context.Context, products []*models.Product, ttl time.Duration) error
	InvalidateMarketplace(ctx context.Context) error

	// Idempotency keys for order placement.
	Reserve(ctx context.Context, key string, ttl time.Duration) (existing uuid.UUID, reserved bool, err error)
	Complete(ctx context.Context, key string, orderID uuid.UUID, ttl time.Duration) error
	Release(ctx context.Context, key string) error

	Ping(ctx context.Context) error
	Close() error
}

type redisCacheService struct {
	client *redis.Client
}

// NewRedisClient accepts either host:port or a redis:// or rediss:// URL.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	opts, err := redisOptions(addr, password, db)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", pingErr, opts.Addr)
	} else {
		log.Printf("Redis connection established (%s)", opts.Addr)
	}
	return client, nil
}

// redisOptions lets credentials and the DB index in a URL win over the
// separately configured ones.
func redisOptions(addr, password string, db int) (*redis.Options, error) {
	if !strings.HasPrefix(addr, "redis://") && !strings.HasPrefix(addr, "rediss://") {
		return &redis.Options{Addr: addr, Password: password, DB: db}, nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.Password == "" {
		opts.Password = password
	}
	if opts.DB == 0 {
		opts.DB = db
	}
	return opts, nil
}

func NewRedisCacheService(client *redis.Client) CacheService {
	return &redisCacheService{client: client}
}

func productKey(id uuid.UUID) string {
	return fmt.Sprintf("%sproduct:%s", keyPrefix, id.String())
}

func marketplaceKey() string {
	return keyPrefix + "marketplace"
}

func idempotencyKey(key string) string {
	return keyPrefix + "idempotency:" + key
}

func (r *redisCacheService) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	data, err := r.client.Get(ctx, productKey(productID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *redisCacheService) SetProduct(ctx context.Context, product *models.Product, ttl time.Duration) error {
	data, err := json.Marshal(product)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, productKey(product.ID), data, ttl).Err()
}

func (r *redisCacheService) DeleteProduct(ctx context.Context, productID uuid.UUID) error {
	return r.client.Del(ctx, productKey(productID)).Err()
}

func (r *redisCacheService) GetMarketplace(ctx context.Context) ([]*models.Product, error) {
	data, err := r.client.Get(ctx, marketplaceKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // cache miss
		}
		return nil, err
	}

	products := make([]*models.Product, 0)
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *redisCacheService) SetMarketplace(ctx context.Context, products []*models.Product, ttl time.Duration) error {
	if products == nil {
		products = []*models.Product{}
	}
	data, err := json.Marshal(products)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, marketplaceKey(), data, ttl).Err()
}

func (r *redisCacheService) InvalidateMarketplace(ctx context.Context) error {
	return r.client.Del(ctx, marketplaceKey()).Err()
}

// Reserve claims key for a new placement. When the key already exists it
// reports the order recorded under it, or uuid.Nil while that placement is
// still running.
func (r *redisCacheService) Reserve(ctx context.Context, key string, ttl time.Duration) (uuid.UUID, bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKey(key), pendingMarker, ttl).Result()
	if err != nil {
		return uuid.Nil, false, err
	}
	if ok {
		return uuid.Nil, true, nil
	}

	val, err := r.client.Get(ctx, idempotencyKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			return r.Reserve(ctx, key, ttl)
		}
		return uuid.Nil, false, err
	}
	if val == pendingMarker {
		return uuid.Nil, false, nil
	}
	orderID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt idempotency record %q: %w", key, err)
	}
	return orderID, false, nil
}

func (r *redisCacheService) Complete(ctx context.Context, key string, orderID uuid.UUID, ttl time.Duration) error {
	return r.client.Set(ctx, idempotencyKey(key), orderID.String(), ttl).Err()
}

func (r *redisCacheService) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKey(key)).Err()
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisCacheService) Close() error {
	return r.client.Close()
}
