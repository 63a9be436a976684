package job

import (
	"context"
	"log/slog"
	"time"

	"creditpay/internal/config"
	"creditpay/internal/infrastructure/metrics"
	"creditpay/internal/model"
	"creditpay/internal/repository"

	"gorm.io/gorm"
)

// MessageProducer 消息投递接口，由 mq.Producer 实现
type MessageProducer interface {
	SendMessage(topic, key, value string) error
}

// OutboxSender 把积分到账消息从本地消息表投递到 Kafka
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	producer   MessageProducer
	cfg        *config.Config
	log        *slog.Logger
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, producer MessageProducer, cfg *config.Config, logger *slog.Logger) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		producer:   producer,
		cfg:        cfg,
		log:        logger.With("component", "outbox_sender"),
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info("消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info("任务停止")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// RunOnce 投递一批待发送消息，返回成功条数
func (s *OutboxSender) RunOnce(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.Error("查询消息失败", "err", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.producer.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		metrics.OutboxSends.WithLabelValues("sent").Inc()
		if updateErr := s.outboxRepo.MarkAsSent(ctx, msg.ID); updateErr != nil {
			// 下一轮会重复投递，消费方按 external_id 去重
			s.log.Error("更新消息状态失败", "id", msg.ID, "err", updateErr)
		}
		return true
	}

	giveUp := msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount
	if giveUp {
		metrics.OutboxSends.WithLabelValues("failed").Inc()
		s.log.Error("消息超过最大重试次数，标记为失败", "id", msg.ID, "key", msg.MessageKey, "err", err)
	} else {
		metrics.OutboxSends.WithLabelValues("retry").Inc()
		s.log.Warn("消息发送失败", "id", msg.ID, "retry_count", msg.RetryCount+1, "err", err)
	}

	if recErr := s.outboxRepo.RecordFailure(ctx, msg.ID, err.Error(), giveUp); recErr != nil {
		s.log.Error("记录发送失败出错", "id", msg.ID, "err", recErr)
	}
	return false
}

// RequeueFailed 把超过重试上限的消息重新置为待发送，用于 Kafka 故障恢复后人工补投
func (s *OutboxSender) RequeueFailed(ctx context.Context) (int, error) {
	messages, err := s.outboxRepo.GetFailedMessages(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}
	for i, msg := range messages {
		if err := s.outboxRepo.Requeue(ctx, msg.ID); err != nil {
			return i, err
		}
	}
	if len(messages) > 0 {
		s.log.Info("失败消息已重新入队", "count", len(messages))
	}
	return len(messages), nil
}
