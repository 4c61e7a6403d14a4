// Package main запускает сервис анализа ЭКГ
// Сервис реализует:
// - POST /predict: предобработка 12-канальной ЭКГ, эмбеддинг и отчет
// - Кэширование векторов признаков и счетчики предсказаний в Redis
// - Мониторинг дрейфа признаков (окно 50 предсказаний, z-score > 2σ)
// - Экспорт метрик в Prometheus
package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ecg-service/internal/analytics"
	"ecg-service/internal/cache"
	"ecg-service/internal/config"
	"ecg-service/internal/embedding"
	"ecg-service/internal/handlers"
	"ecg-service/internal/interpret"
	"ecg-service/internal/logger"
	"ecg-service/internal/metrics"
	"ecg-service/internal/preprocess"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "ecg-service")
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	log.Info("Starting ECG service",
		zap.String("go_version", runtime.Version()),
		zap.Int("num_cpu", runtime.NumCPU()),
	)

	// Анализатор дрейфа признаков
	analyzer := analytics.NewAnalyzer(cfg.BufferSize)
	analyzer.Start(cfg.WorkerCount)
	log.Info("Drift monitor started", zap.Int("workers", cfg.WorkerCount))

	redisCache := connectRedis(cfg, log)

	embedder := newEmbedder(cfg, log)

	pipeline, err := preprocess.NewPipeline()
	if err != nil {
		log.Fatal("Failed to design bandpass filter", zap.Error(err))
	}
	log.Info("Preprocessing pipeline ready", zap.Int("filter_taps", len(pipeline.Taps())))

	// nil-указатель в интерфейсе не равен nil, поэтому store задается явно
	var store embedding.FeatureStore
	if redisCache != nil {
		store = redisCache
	}
	extractor := embedding.NewFeatureExtractor(embedder, store, log)

	handler := handlers.NewHandler(
		pipeline,
		extractor,
		interpret.NewStubInterpreter(uint64(time.Now().UnixNano())),
		analyzer,
		redisCache,
		log,
		handlers.Options{
			DefaultHeartRate: cfg.DefaultHeartRate,
			MaxBodyBytes:     cfg.MaxBodyBytes,
			RequestTimeout:   cfg.RequestTimeout,
		},
	)

	router := mux.NewRouter()

	// API эндпоинты
	router.HandleFunc("/predict", handler.PredictHandler).Methods("POST", "OPTIONS")
	router.HandleFunc("/health", handler.HealthHandler).Methods("GET", "OPTIONS")
	router.HandleFunc("/stats", handler.StatsHandler).Methods("GET", "OPTIONS")

	// Prometheus метрики
	router.Handle("/prometheus", promhttp.Handler())

	// pprof для профилирования
	router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	router.Use(handlers.RequestIDMiddleware)
	router.Use(handlers.LoggingMiddleware(log))
	router.Use(handlers.MetricsMiddleware)
	router.Use(handlers.CORSMiddleware)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go updateMetricsLoop(analyzer)
	go processDriftResults(analyzer, redisCache, log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("Server listening",
			zap.String("addr", cfg.ServerAddr),
			zap.Strings("endpoints", []string{
				"POST /predict",
				"GET /health",
				"GET /stats",
				"GET /prometheus",
			}),
		)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	<-stop
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	analyzer.Stop()

	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			log.Warn("Failed to close Redis", zap.Error(err))
		}
	}

	log.Info("Server stopped")
}

// connectRedis подключается к Redis с повторами; nil, если Redis недоступен
func connectRedis(cfg config.Config, log *zap.Logger) *cache.RedisCache {
	var redisCache *cache.RedisCache
	var err error

	for i := 0; i < 5; i++ {
		redisCache, err = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.FeatureCacheTTL)
		if err == nil {
			log.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
			return redisCache
		}
		log.Warn("Redis connection attempt failed", zap.Int("attempt", i+1), zap.Error(err))
		if i < 4 {
			time.Sleep(time.Duration(i+1) * time.Second)
		}
	}

	log.Warn("Running without Redis cache", zap.Error(err))
	return nil
}

// newEmbedder выбирает модель: внешний сервис или локальную проекцию
func newEmbedder(cfg config.Config, log *zap.Logger) embedding.Embedder {
	if cfg.Embedder == config.EmbedderRemote {
		client := embedding.NewClient(cfg.EmbeddingServiceURL, cfg.EmbeddingTimeout, log)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.HealthCheck(ctx); err != nil {
			log.Warn("Embedding service is not available yet", zap.String("url", cfg.EmbeddingServiceURL), zap.Error(err))
		} else {
			log.Info("Connected to embedding service", zap.String("url", cfg.EmbeddingServiceURL))
		}
		return client
	}

	log.Info("Using local projection embedder", zap.Uint64("seed", cfg.EmbeddingSeed))
	return embedding.NewProjectionModel(embedding.DefaultFrameSize, embedding.DefaultHiddenSize, cfg.EmbeddingSeed)
}

// updateMetricsLoop периодически обновляет метрики Prometheus
func updateMetricsLoop(analyzer *analytics.Analyzer) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		rollingMean, rollingStd, _ := analyzer.GetStats()
		metrics.RollingFeatureMean.Set(rollingMean)
		metrics.RollingFeatureStdDev.Set(rollingStd)
		metrics.ActiveGoroutines.Set(float64(runtime.NumGoroutine()))
	}
}

// processDriftResults обрабатывает результаты мониторинга дрейфа
func processDriftResults(analyzer *analytics.Analyzer, redisCache *cache.RedisCache, log *zap.Logger) {
	for result := range analyzer.GetResults() {
		metrics.UpdateDriftMetrics(result.RollingMean, result.RollingStdDev, result.DriftDetected)
		if !result.DriftDetected {
			continue
		}

		if redisCache != nil {
			if _, err := redisCache.IncrementCounter(context.Background(), cache.DriftKey); err != nil {
				log.Warn("Failed to increment drift counter", zap.Error(err))
			}
		}
		log.Warn("Feature drift detected",
			zap.Float64("z_score_mean", result.ZScoreMean),
			zap.Float64("z_score_std_dev", result.ZScoreStdDev),
			zap.String("diagnosis", result.Diagnosis),
		)
	}
}
