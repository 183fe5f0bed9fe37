package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"go_jobs_backend/models"

	"gorm.io/gorm"
)

// ErrSubscriptionGone signals that the push endpoint no longer exists
// and its stored subscription must be removed
var ErrSubscriptionGone = errors.New("push subscription gone")

// EmailSender delivers an email to one user
type EmailSender interface {
	SendEmail(userID uint, subject, body string) error
}

// PushSender delivers a push message to one subscription endpoint
type PushSender interface {
	SendPush(endpoint, title, body string, data map[string]string) error
}

// RelayEmailSender sends email through an HTTP relay service
type RelayEmailSender struct {
	relayURL   string
	httpClient *http.Client
}

// NewRelayEmailSender creates an email sender against the given relay
func NewRelayEmailSender(relayURL string) *RelayEmailSender {
	return &RelayEmailSender{
		relayURL: relayURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SendEmail posts the message to the relay
func (s *RelayEmailSender) SendEmail(userID uint, subject, body string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"user_id": userID,
		"subject": subject,
		"body":    body,
	})
	if err != nil {
		return fmt.Errorf("failed to encode email for user %d: %w", userID, err)
	}

	resp, err := s.httpClient.Post(s.relayURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to send email for user %d: %w", userID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("email relay returned %d for user %d", resp.StatusCode, userID)
	}
	return nil
}

// RelayPushSender sends web-push messages through an HTTP relay service
type RelayPushSender struct {
	relayURL   string
	httpClient *http.Client
}

// NewRelayPushSender creates a push sender against the given relay
func NewRelayPushSender(relayURL string) *RelayPushSender {
	return &RelayPushSender{
		relayURL: relayURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SendPush posts the message to the relay. A 404 or 410 from the relay
// means the endpoint's subscription is gone.
func (s *RelayPushSender) SendPush(endpoint, title, body string, data map[string]string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"endpoint": endpoint,
		"title":    title,
		"body":     body,
		"data":     data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode push message: %w", err)
	}

	resp, err := s.httpClient.Post(s.relayURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return ErrSubscriptionGone
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push relay returned %d", resp.StatusCode)
	}
	return nil
}

// PushService delivers push notifications to every subscription a user
// holds, pruning subscriptions the relay reports gone
type PushService struct {
	db     *gorm.DB
	sender PushSender
}

// NewPushService creates a push service
func NewPushService(db *gorm.DB, sender PushSender) *PushService {
	return &PushService{db: db, sender: sender}
}

// SendToUser pushes to each of the user's subscriptions. A gone
// subscription is deleted and does not fail the delivery; any other
// failure is returned so the job retries.
func (ps *PushService) SendToUser(userID uint, title, body string, data map[string]string) error {
	var subs []models.PushSubscription
	if err := ps.db.Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return fmt.Errorf("failed to load subscriptions for user %d: %w", userID, err)
	}

	var lastErr error
	for _, sub := range subs {
		err := ps.sender.SendPush(sub.Endpoint, title, body, data)
		if errors.Is(err, ErrSubscriptionGone) {
			log.Printf("Push subscription %d for user %d is gone, deleting", sub.ID, userID)
			if derr := ps.db.Delete(&models.PushSubscription{}, sub.ID).Error; derr != nil {
				log.Printf("Error deleting gone subscription %d: %v", sub.ID, derr)
			}
			continue
		}
		if err != nil {
			log.Printf("Error pushing to subscription %d for user %d: %v", sub.ID, userID, err)
			lastErr = err
		}
	}
	return lastErr
}
