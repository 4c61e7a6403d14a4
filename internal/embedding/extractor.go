package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// FeatureStore кэш векторов признаков
type FeatureStore interface {
	GetFeatures(ctx context.Context, key string) ([]float64, bool, error)
	SetFeatures(ctx context.Context, key string, features []float64) error
}

// FeatureExtractor вызывает модель и усредняет скрытые состояния.
// Если задан store, результаты кэшируются по хешу отведения; ошибки
// кэша логируются и не прерывают запрос.
type FeatureExtractor struct {
	embedder Embedder
	store    FeatureStore
	logger   *zap.Logger
}

// NewFeatureExtractor создает экстрактор. store может быть nil.
func NewFeatureExtractor(embedder Embedder, store FeatureStore, logger *zap.Logger) *FeatureExtractor {
	return &FeatureExtractor{
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Embedder возвращает используемую модель
func (x *FeatureExtractor) Embedder() Embedder {
	return x.embedder
}

// Features возвращает вектор признаков отведения и признак попадания в кэш
func (x *FeatureExtractor) Features(ctx context.Context, lead []float64) ([]float64, bool, error) {
	if len(lead) == 0 {
		return nil, false, ErrEmptyInput
	}

	var key string
	if x.store != nil {
		key = LeadKey(lead)
		features, ok, err := x.store.GetFeatures(ctx, key)
		if err != nil {
			x.logger.Warn("Feature cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			return features, true, nil
		}
	}

	hidden, err := x.embedder.Embed(ctx, lead)
	if err != nil {
		return nil, false, err
	}

	features := MeanPool(hidden)
	if err := checkFinite(features); err != nil {
		return nil, false, fmt.Errorf("embedding output: %w", err)
	}

	if x.store != nil {
		if err := x.store.SetFeatures(ctx, key, features); err != nil {
			x.logger.Warn("Feature cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	return features, false, nil
}

// LeadKey SHA-256 от битового представления отсчетов
func LeadKey(lead []float64) string {
	h := sha256.New()
	var buf [8]byte
	for _, v := range lead {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
