package predictor

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Skufu/RenalRisk/internal/clinical"
)

// Cached memoises a predictor in process. Feature vectors are comparable
// arrays, so identical inputs hit the same entry.
type Cached struct {
	next  StagePredictor
	cache *lru.Cache[clinical.FeatureVector, string]
}

func NewCached(next StagePredictor, size int) (*Cached, error) {
	if size <= 0 {
		size = 1000
	}
	cache, err := lru.New[clinical.FeatureVector, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Name() string { return c.next.Name() }

func (c *Cached) PredictStage(ctx context.Context, features clinical.FeatureVector) (string, error) {
	if stage, ok := c.cache.Get(features); ok {
		return stage, nil
	}
	stage, err := c.next.PredictStage(ctx, features)
	if err != nil {
		return "", err
	}
	c.cache.Add(features, stage)
	return stage, nil
}

// Len reports the number of cached predictions.
func (c *Cached) Len() int {
	return c.cache.Len()
}

func (c *Cached) Ping(ctx context.Context) error {
	if p, ok := c.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// RedisCached shares predictions between replicas. Redis failures are logged
// and the call falls through to the wrapped predictor.
type RedisCached struct {
	next   StagePredictor
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *logrus.Logger
}

func NewRedisCached(next StagePredictor, client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisCached {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCached{
		next:   next,
		client: client,
		ttl:    ttl,
		prefix: "ckd:stage:",
		logger: logger,
	}
}

func (r *RedisCached) Name() string { return r.next.Name() }

func (r *RedisCached) PredictStage(ctx context.Context, features clinical.FeatureVector) (string, error) {
	key := r.prefix + r.next.Name() + ":" + VectorKey(features)

	stage, err := r.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return stage, nil
	case !errors.Is(err, redis.Nil):
		r.logger.WithError(err).WithField("key", key).Warn("Prediction cache read failed")
	}

	stage, err = r.next.PredictStage(ctx, features)
	if err != nil {
		return "", err
	}
	if err := r.client.Set(ctx, key, stage, r.ttl).Err(); err != nil {
		r.logger.WithError(err).WithField("key", key).Warn("Prediction cache write failed")
	}
	return stage, nil
}

func (r *RedisCached) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	if p, ok := r.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// VectorKey hashes the exact bit patterns of a vector.
func VectorKey(features clinical.FeatureVector) string {
	h := sha256.New()
	var buf [8]byte
	for _, v := range features {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
