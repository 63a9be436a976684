package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"creditpay/internal/handler"
	"creditpay/internal/infrastructure/cache"
	"creditpay/internal/infrastructure/mq"
	"creditpay/internal/job"
	"creditpay/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务与后台任务",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, db, err := bootstrap()
	if err != nil {
		return err
	}

	// Redis 只用于履约锁，不可用时退化为仅依赖唯一索引
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient, err = cache.NewRedis(&cfg.Redis)
		if err != nil {
			logger.Warn("Redis 不可用，履约锁关闭", "err", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	// 收到中断信号后取消上下文，停止后台任务并关闭 HTTP 服务
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// 启动后台任务
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(&cfg.Kafka)
		if err != nil {
			return err
		}
		defer producer.Close()

		outboxSender := job.NewOutboxSender(db, producer, cfg, logger)
		g.Go(func() error {
			outboxSender.Start(ctx)
			return nil
		})
	} else {
		logger.Warn("未配置 Kafka，积分到账消息保留在消息表中")
	}

	credits := service.NewCreditService(db, cfg, logger)
	reconcileJob := job.NewGrantReconcileJob(db, credits, cfg, logger)
	g.Go(func() error {
		reconcileJob.Start(ctx)
		return nil
	})

	// 设置路由
	gin.SetMode(gin.ReleaseMode)
	router := handler.SetupRouter(db, redisClient, cfg, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("服务启动", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("服务启动失败: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("正在关闭服务...")

		// 关闭 HTTP 服务（等待最多5秒）
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("服务关闭异常", "err", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("服务已关闭")
	return err
}
