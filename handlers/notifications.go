package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"go_jobs_backend/models"
	"go_jobs_backend/scheduler"
	"go_jobs_backend/services"
	"go_jobs_backend/worker"
)

// PushDeliverer delivers a push notification to all of one user's
// subscriptions
type PushDeliverer interface {
	SendToUser(userID uint, title, body string, data map[string]string) error
}

// PushPayload is the payload of a send-push job
type PushPayload struct {
	UserID uint              `json:"userId"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// SendEmail returns the handler for send-email jobs
func SendEmail(sender services.EmailSender) worker.Handler {
	return func(ctx context.Context, job *models.Job, progress worker.ProgressFunc) (string, error) {
		var payload scheduler.EmailPayload
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			return "", fmt.Errorf("failed to decode email payload: %w", err)
		}

		if err := sender.SendEmail(payload.UserID, payload.Subject, payload.Body); err != nil {
			return "", err
		}
		return fmt.Sprintf("email sent to user %d", payload.UserID), nil
	}
}

// SendPush returns the handler for send-push jobs
func SendPush(push PushDeliverer) worker.Handler {
	return func(ctx context.Context, job *models.Job, progress worker.ProgressFunc) (string, error) {
		var payload PushPayload
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			return "", fmt.Errorf("failed to decode push payload: %w", err)
		}

		if err := push.SendToUser(payload.UserID, payload.Title, payload.Body, payload.Data); err != nil {
			return "", err
		}
		return fmt.Sprintf("push sent to user %d", payload.UserID), nil
	}
}
