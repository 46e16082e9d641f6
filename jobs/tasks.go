package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAlertSweep re-evaluates stock alerts for every active part.
	TaskAlertSweep = "inventory:alerts:sweep"
	// TaskLedgerVerify walks transaction chains and compares them with batch totals.
	TaskLedgerVerify = "inventory:ledger:verify"
)

// AlertSweepPayload describes an alert sweep run.
type AlertSweepPayload struct {
	Trigger string `json:"trigger"`
}

// LedgerVerifyPayload limits verification to specific parts. Empty means every active part.
type LedgerVerifyPayload struct {
	PartIDs []int64 `json:"part_ids,omitempty"`
}

// NewAlertSweepTask constructs an alert sweep task.
func NewAlertSweepTask(trigger string) (*asynq.Task, error) {
	data, err := json.Marshal(AlertSweepPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAlertSweep, data), nil
}

// NewLedgerVerifyTask constructs a ledger verification task.
func NewLedgerVerifyTask(partIDs ...int64) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerVerifyPayload{PartIDs: partIDs})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerVerify, data), nil
}

// NewTask builds a task by name with its default payload.
func NewTask(name string) (*asynq.Task, error) {
	switch name {
	case TaskAlertSweep:
		return NewAlertSweepTask("manual")
	case TaskLedgerVerify:
		return NewLedgerVerifyTask()
	default:
		return nil, ErrUnknownTask
	}
}
