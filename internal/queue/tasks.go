package queue

import (
	"encoding/json"

	"github.com/lipa-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskSMSSend 短信发送任务
	TaskSMSSend = constants.TaskSMSSend
)

// SMSSendPayload 短信发送任务载荷（正文已渲染）
type SMSSendPayload struct {
	TenantID  uint   `json:"tenant_id"`
	Phone     string `json:"phone"`
	Template  string `json:"template"`
	Message   string `json:"message"`
	Reference string `json:"reference"`
}

// NewSMSSendTask 创建短信发送任务
func NewSMSSendTask(payload SMSSendPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSMSSend, body), nil
}

// ParseSMSSendPayload 解析短信发送任务载荷
func ParseSMSSendPayload(task *asynq.Task) (SMSSendPayload, error) {
	var payload SMSSendPayload
	if task == nil {
		return payload, nil
	}
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}
