package queue

import (
	"encoding/json"

	"github.com/mixpitch-payouts/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskPayoutNotify 打款状态通知任务
	TaskPayoutNotify = constants.TaskPayoutNotify
)

// PayoutNotifyPayload 打款状态通知任务载荷
type PayoutNotifyPayload struct {
	PayoutID uint   `json:"payout_id"`
	Event    string `json:"event"`
	Reason   string `json:"reason,omitempty"`
}

// NewPayoutNotifyTask 创建打款状态通知任务
func NewPayoutNotifyTask(payload PayoutNotifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayoutNotify, body), nil
}
