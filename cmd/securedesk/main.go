package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/skillancer/securedesk/internal/audit"
	"github.com/skillancer/securedesk/internal/connectors"
	"github.com/skillancer/securedesk/internal/detector"
	"github.com/skillancer/securedesk/internal/infra"
	"github.com/skillancer/securedesk/internal/killswitch"
	"github.com/skillancer/securedesk/internal/policy"
	"github.com/skillancer/securedesk/internal/repository/postgres"
	"github.com/skillancer/securedesk/internal/server"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Контекст жизненного цикла фоновых горутин:
	// cancel() останавливает всех слушателей при SIGTERM
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(appCtx).Err(); err != nil {
		logger.Fatal("redis unreachable", zap.Error(err))
	}

	pool, err := postgres.NewPool(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer pool.Close()

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := infra.NewMetrics(reg)

	// 3. Аудит: фоновый батчер, данные летят в базу пачками
	trail := audit.NewTrail(postgres.NewAuditRepo(pool), logger)
	trail.SetFillGauge(func(n int) { metrics.AuditBufferFill.Set(float64(n)) })
	trail.Start()

	// 4. Control Plane (кэши, синхронизируемые через Redis)
	revoked := killswitch.NewRevokedUserCache(rdb, logger)
	if err := revoked.Init(appCtx); err != nil {
		logger.Fatal("failed to init revoked user cache", zap.Error(err))
	}
	go revoked.StartListener(appCtx)

	policyCache := policy.NewMemoCache(postgres.NewPolicyRepo(pool), rdb, logger)
	if err := policyCache.Refresh(appCtx); err != nil {
		logger.Fatal("failed to load policies", zap.Error(err))
	}
	policyCache.StartListener(appCtx)

	// 5. Execution Layer: обращения к Workspace Control Plane
	// обернуты в Reliability (Rate Limit, Circuit Breaker, Retries).
	// TODO: заменить mock на реального клиента оркестратора сессий,
	// когда его API станет доступен из этого контура.
	mock := connectors.NewMockWorkspaceConnector()
	workspace := connectors.NewReliableWorkspace(mock, mock, cfg.KillSwitch.TargetTimeout)

	// 6. Ядро: координатор kill switch и детектор нарушений
	coordinator := killswitch.NewCoordinator(
		postgres.NewKillSwitchRepo(pool),
		workspace,
		workspace,
		killswitch.NewRedisBroadcaster(rdb),
		trail,
		cfg.KillSwitch,
		metrics,
		logger,
	)

	det := detector.NewDetector(
		postgres.NewViolationRepo(pool),
		detector.NewRedisCounterStore(rdb),
		detector.NewRedisAlertPublisher(rdb),
		killswitch.NewEnforcer(coordinator, trail, logger),
		cfg.Detector,
		metrics,
		logger,
	)
	det.SetRiskAnalyzer(detector.NewRiskAnalyzer(logger))

	// 7. HTTP-периметр
	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.NewServer(
			cfg,
			logger,
			revoked,
			server.NewViolationHandler(det),
			server.NewKillSwitchHandler(coordinator),
			server.NewPolicyHandler(postgres.NewPolicyRepo(pool), policyCache, rdb),
			server.NewWatermarkHandler(cfg.Watermark, metrics),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Экспортируем метрики для Prometheus на отдельном порту
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("containment service started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("containment service stopping")
	cancel()

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	_ = metricsSrv.Shutdown(shutdownCtx)

	// Аудит дописывает буфер в базу до самого конца
	trail.Stop()
	logger.Info("containment service exited properly")
}
