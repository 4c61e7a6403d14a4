// Package cache реализует кэширование векторов признаков и счетчики в Redis
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// FeatureKeyPrefix префикс для ключей векторов признаков
	FeatureKeyPrefix = "features:"
	// PredictionsKey счетчик предсказаний
	PredictionsKey = "predictions:total"
	// DiagnosisKeyPrefix префикс счетчиков по диагнозам
	DiagnosisKeyPrefix = "diagnosis:"
	// DriftKey счетчик аномалий дрейфа
	DriftKey = "drift:total"
	// DefaultFeatureTTL время жизни вектора признаков по умолчанию
	DefaultFeatureTTL = 1 * time.Hour
)

// RedisCache реализует кэширование в Redis
type RedisCache struct {
	client     *redis.Client
	featureTTL time.Duration
}

// NewRedisCache создает новое подключение к Redis
func NewRedisCache(addr, password string, db int, featureTTL time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     100,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if featureTTL <= 0 {
		featureTTL = DefaultFeatureTTL
	}

	return &RedisCache{
		client:     client,
		featureTTL: featureTTL,
	}, nil
}

// GetFeatures возвращает закэшированный вектор признаков
func (r *RedisCache) GetFeatures(ctx context.Context, key string) ([]float64, bool, error) {
	data, err := r.client.Get(ctx, FeatureKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get features: %w", err)
	}

	var features []float64
	if err := json.Unmarshal(data, &features); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal features: %w", err)
	}
	return features, true, nil
}

// SetFeatures сохраняет вектор признаков с TTL
func (r *RedisCache) SetFeatures(ctx context.Context, key string, features []float64) error {
	data, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}
	if err := r.client.Set(ctx, FeatureKeyPrefix+key, data, r.featureTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache features: %w", err)
	}
	return nil
}

// RecordPrediction увеличивает общий счетчик и счетчик диагноза
func (r *RedisCache) RecordPrediction(ctx context.Context, diagnosis string) error {
	pipe := r.client.Pipeline()
	pipe.Incr(ctx, PredictionsKey)
	pipe.Incr(ctx, DiagnosisKeyPrefix+DiagnosisSlug(diagnosis))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record prediction: %w", err)
	}
	return nil
}

// DiagnosisCounts возвращает счетчики для перечисленных диагнозов
func (r *RedisCache) DiagnosisCounts(ctx context.Context, diagnoses []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(diagnoses))
	for _, d := range diagnoses {
		n, err := r.GetCounter(ctx, DiagnosisKeyPrefix+DiagnosisSlug(d))
		if err != nil {
			return nil, err
		}
		counts[d] = n
	}
	return counts, nil
}

// IncrementCounter увеличивает счетчик
func (r *RedisCache) IncrementCounter(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

// GetCounter возвращает значение счетчика
func (r *RedisCache) GetCounter(ctx context.Context, key string) (int64, error) {
	val, err := r.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

// Ping проверяет соединение с Redis
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close закрывает соединение
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// DiagnosisSlug ключ счетчика для диагноза: "Normal Sinus Rhythm" -> "normal_sinus_rhythm"
func DiagnosisSlug(diagnosis string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(diagnosis)), " ", "_")
}
