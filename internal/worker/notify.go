package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// 通知状态。
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

// PDFGenerationNotifyMessage 是通过 Redis Pub/Sub 转发到 WebSocket 的消息。
// 字段名与前端解析保持一致。
type PDFGenerationNotifyMessage struct {
	Status        string   `json:"status"`
	CVID          string   `json:"cv_id"`
	CorrelationID string   `json:"correlation_id"`
	ErrorCode     int      `json:"error_code"`
	ErrorMessage  string   `json:"error_message"`
	MissingKeys   []string `json:"missing_keys,omitempty"`
}

// Publisher 由 *redis.Client 实现。
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NotifyChannel 返回用户的通知频道。
func NotifyChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

func publishNotify(ctx context.Context, pub Publisher, userID uint, msg PDFGenerationNotifyMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := NotifyChannel(userID)
	if err := pub.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
