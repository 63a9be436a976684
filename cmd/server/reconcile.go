package main

import (
	"context"
	"fmt"
	"time"

	"creditpay/internal/job"
	"creditpay/internal/service"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	var (
		grace         time.Duration
		requeueOutbox bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "补发一批已落流水但未入账的积分",
		Long: `扫描超过宽限期、没有入账记录的购买流水并补发积分。
买家账户不存在的流水会被列出，需人工处理。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, db, err := bootstrap()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("grace") {
				cfg.Business.ReconcileGraceSeconds = int(grace.Seconds())
			}

			credits := service.NewCreditService(db, cfg, logger)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			report, err := job.NewGrantReconcileJob(db, credits, cfg, logger).RunOnce(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if requeueOutbox {
				n, err := job.NewOutboxSender(db, nil, cfg, logger).RequeueFailed(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "requeued outbox messages=%d\n", n)
			}

			fmt.Fprintf(out, "scanned=%d granted=%d failed=%d orphaned=%d\n",
				report.Scanned, report.Granted, report.Failed, len(report.Orphaned))
			for _, id := range report.Orphaned {
				fmt.Fprintf(out, "orphaned %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 0, "覆盖配置中的宽限期，例如 10m")
	cmd.Flags().BoolVar(&requeueOutbox, "requeue-outbox", false, "同时把投递失败的消息重新置为待发送")
	return cmd
}
