package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"creditpay/internal/config"
	"creditpay/internal/infrastructure/metrics"
	"creditpay/internal/model"
	"creditpay/internal/repository"
	"creditpay/internal/service"

	"gorm.io/gorm"
)

// GrantReconcileJob 补发"流水已落库、积分未入账"的购买
//
// 【关键点】
// 1. 只处理超过宽限期的流水，避免与正在进行的履约抢同一笔
// 2. 通过 CreditService.Apply 补发，入账记录唯一索引保证不会重复加积分
// 3. 买家账户不存在的流水只记录日志，等待人工处理
type GrantReconcileJob struct {
	transactionRepo *repository.TransactionRepository
	credits         *service.CreditService
	log             *slog.Logger
	stopCh          chan struct{}
	interval        time.Duration
	grace           time.Duration
	batchSize       int
}

// ReconcileReport 一轮补偿的结果
type ReconcileReport struct {
	Scanned  int
	Granted  int
	Orphaned []string // 买家不存在的渠道单号
	Failed   int
}

func NewGrantReconcileJob(db *gorm.DB, credits *service.CreditService, cfg *config.Config, logger *slog.Logger) *GrantReconcileJob {
	return &GrantReconcileJob{
		transactionRepo: repository.NewTransactionRepository(db),
		credits:         credits,
		log:             logger.With("component", "grant_reconcile"),
		stopCh:          make(chan struct{}),
		interval:        time.Duration(cfg.Business.ReconcileIntervalSeconds) * time.Second,
		grace:           time.Duration(cfg.Business.ReconcileGraceSeconds) * time.Second,
		batchSize:       50,
	}
}

// Start 周期执行，interval 为 0 时不启动
func (j *GrantReconcileJob) Start(ctx context.Context) {
	if j.interval <= 0 {
		j.log.Info("补偿任务未启用")
		return
	}
	j.log.Info("补偿任务启动", "interval", j.interval, "grace", j.grace)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info("任务停止")
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.log.Error("补偿失败", "err", err)
			}
		}
	}
}

func (j *GrantReconcileJob) Stop() {
	close(j.stopCh)
}

// RunOnce 扫描一批未入账流水并补发
func (j *GrantReconcileJob) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	transactions, err := j.transactionRepo.ListUngranted(ctx, time.Now().Add(-j.grace), j.batchSize)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{Scanned: len(transactions)}
	if len(transactions) == 0 {
		return report, nil
	}
	j.log.Info("发现未入账流水", "count", len(transactions))

	for _, trans := range transactions {
		j.reconcile(ctx, trans, report)
	}

	j.log.Info("本轮补偿完成",
		"scanned", report.Scanned,
		"granted", report.Granted,
		"orphaned", len(report.Orphaned),
		"failed", report.Failed,
	)
	return report, nil
}

func (j *GrantReconcileJob) reconcile(ctx context.Context, trans *model.Transaction, report *ReconcileReport) {
	res, err := j.credits.Apply(ctx, service.Grant{
		ExternalID: trans.ExternalID,
		BuyerID:    trans.BuyerID,
		Credits:    trans.Credits,
	})
	switch {
	case err == nil:
		report.Granted++
		if !res.AlreadyApplied {
			metrics.ReconciledGrants.Inc()
		}
		j.log.Info("补发成功", "external_id", trans.ExternalID, "buyer_id", trans.BuyerID, "balance", res.NewBalance)
	case errors.Is(err, service.ErrAccountNotFound):
		report.Orphaned = append(report.Orphaned, trans.ExternalID)
		j.log.Warn("买家账户不存在，需人工处理", "external_id", trans.ExternalID, "buyer_id", trans.BuyerID)
	default:
		report.Failed++
		j.log.Error("补发失败", "external_id", trans.ExternalID, "err", err)
	}
}
