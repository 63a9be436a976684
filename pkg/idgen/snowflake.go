package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
// 入账单号、消息键等内部编号统一由此生成：
//   1. 全局唯一 - 多实例部署时靠 workerID 区分
//   2. 趋势递增 - 便于数据库索引
//   3. 信息隐藏 - 不暴露业务量
//
// 底层使用 bwmarrin/snowflake：41位时间戳 + 10位节点ID + 12位序列号
// ============================================================================

const epoch = int64(1704067200000) // 起始时间戳（2024-01-01 00:00:00 UTC）

var (
	defaultNode *snowflake.Node
	mu          sync.Mutex
)

// Init 初始化默认ID生成器
func Init(workerID int64) error {
	mu.Lock()
	defer mu.Unlock()

	snowflake.Epoch = epoch
	node, err := snowflake.NewNode(workerID)
	if err != nil {
		return fmt.Errorf("初始化雪花节点失败: %w", err)
	}
	defaultNode = node
	return nil
}

// NextID 生成下一个ID
func NextID() int64 {
	mu.Lock()
	node := defaultNode
	mu.Unlock()

	if node == nil {
		if err := Init(1); err != nil { // 默认使用 workerID = 1
			panic(err)
		}
		return NextID()
	}
	return node.Generate().Int64()
}

// GenerateEntryNo 生成入账单号
// 格式：CRD + 年月日时分秒 + 雪花ID后8位
// 例如：CRD20240115143052_12345678
func GenerateEntryNo() string {
	return withPrefix("CRD")
}

func withPrefix(prefix string) string {
	id := NextID()
	timestamp := time.Now().Format("20060102150405")
	return fmt.Sprintf("%s%s%08d", prefix, timestamp, id%100000000)
}
