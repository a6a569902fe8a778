package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeCVPDFGenerate = "cv:pdf:generate"
)

// CVPDFGeneratePayload 描述生成 CV PDF 所需的最小信息。
type CVPDFGeneratePayload struct {
	CVID          string `json:"cv_id"`
	UserID        uint   `json:"user_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewCVPDFGenerateTask 构造一个新的 CV PDF 生成任务。
func NewCVPDFGenerateTask(cvID string, userID uint, correlationID string, maxRetry int) (*asynq.Task, error) {
	payload, err := json.Marshal(CVPDFGeneratePayload{
		CVID:          cvID,
		UserID:        userID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	var opts []asynq.Option
	if maxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(maxRetry))
	}
	return asynq.NewTask(TypeCVPDFGenerate, payload, opts...), nil
}

// ParseCVPDFGeneratePayload 解析并校验任务 payload。
func ParseCVPDFGeneratePayload(data []byte) (CVPDFGeneratePayload, error) {
	var p CVPDFGeneratePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("unmarshal %s payload: %w", TypeCVPDFGenerate, err)
	}
	if p.CVID == "" || p.UserID == 0 {
		return p, fmt.Errorf("%s payload missing cv_id or user_id", TypeCVPDFGenerate)
	}
	return p, nil
}
