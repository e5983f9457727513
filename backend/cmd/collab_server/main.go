package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"collabDelta/backend/config"
	"collabDelta/backend/internal/cache"
	"collabDelta/backend/internal/collab"
	"collabDelta/backend/internal/httpapi"
	"collabDelta/backend/internal/logger"
	"collabDelta/backend/internal/store"
	"collabDelta/backend/internal/ws"
)

const cursorTTL = 30 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init config failed: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Running.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("collab server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	rdb := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	db, err := store.OpenMySQL(ctx, cfg.Mysql.DSN)
	if err != nil {
		return fmt.Errorf("connect mysql: %w", err)
	}
	defer db.Close()

	gormDB, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		return fmt.Errorf("init op log: %w", err)
	}

	// === 初始化 Kafka Producer ===
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}
	defer producer.Close()

	// Kafka 本地队列 + worker 重试发送
	kafkaDispatcher := collab.NewKafkaDispatcher(
		producer,
		cfg.Kafka.Topic,
		collab.NewSemaphoreControl(collab.DefaultMaxSemaphore),
		log,
		collab.KafkaDispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  1 * time.Second,
		},
	)
	// 先于 producer.Close 执行，把队列里剩下的事件发完
	defer kafkaDispatcher.Close()

	cursors := cache.NewCursorCache(rdb, cursorTTL)
	svc := collab.NewInMemoryService(collab.Deps{
		Snapshots:     store.NewSnapshotStore(db),
		Documents:     store.NewDocumentStore(db),
		OpLog:         store.NewOpLogStore(gormDB),
		Cursors:       cursors,
		SnapshotCache: cache.NewSnapshotCache(rdb),
		Events:        kafkaDispatcher,
	}, collab.Options{
		RingCap:       cfg.Collab.RingCap,
		HistoryDepth:  cfg.Collab.HistoryDepth,
		SnapshotEvery: cfg.Collab.SnapshotEvery,
	})

	hub := ws.NewHub(cache.NewRedisPresence(rdb), cursors)
	manager := ws.NewManager(hub, svc, collab.NewSemaphoreControl(collab.DefaultMaxSemaphore))

	secret := cfg.Auth.Secret
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		return errors.New("jwt secret is empty, set auth.secret or JWT_SECRET")
	}

	if cfg.Running.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := httpapi.NewRouter(httpapi.RouterDeps{
		Service:   svc,
		WebSocket: manager.WebSocketConnect,
		JWTSecret: []byte(secret),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Running.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("collab server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
