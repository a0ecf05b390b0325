package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"fatture/internal/core"
)

// ExportRequestedMessage announces a stored export job. The worker loads the
// job and the owning session by id.
type ExportRequestedMessage struct {
	JobID     string            `json:"job_id"`
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id"`
	Format    core.ExportFormat `json:"format"`
	Timestamp time.Time         `json:"timestamp"`
}

func NewExportRequestedMessage(job core.ExportJob) *ExportRequestedMessage {
	return &ExportRequestedMessage{
		JobID:     job.ID,
		SessionID: job.SessionID,
		UserID:    job.UserID,
		Format:    job.Format,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExportRequestedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExportRequestedMessageFromJSON decodes a message and rejects one without a job id.
func ExportRequestedMessageFromJSON(data []byte) (*ExportRequestedMessage, error) {
	var msg ExportRequestedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.JobID == "" {
		return nil, errors.New("missing job_id")
	}
	return &msg, nil
}
