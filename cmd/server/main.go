package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"creditpay/internal/config"
	"creditpay/internal/infrastructure/database"
	"creditpay/pkg/idgen"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	configPath string
	workerID   int64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "creditpay",
		Short: "积分购买履约服务",
		// 不带子命令时直接启动服务
		RunE: runServe,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().Int64Var(&workerID, "worker-id", 1, "ID 生成器机器号")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reconcileCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap 启动公共部分：配置、日志、ID 生成器、数据库
// 配置缺少必填密钥时直接返回错误，进程退出
func bootstrap() (*config.Config, *slog.Logger, *gorm.DB, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	if err := idgen.Init(workerID); err != nil {
		return nil, nil, nil, err
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, db, nil
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lv}))
}
