package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"tresorerie/config"

	"go.mongodb.org/mongo-driver/bson"
)

// Bounded retry for notification delivery. Notifications are sent only after
// the financial state committed; a delivery failure is logged and escalated,
// never rolled back into the state.
const (
	notifyAttempts     = 3
	notifyBaseInterval = 1 * time.Second
)

// NotifyChannel delivers a message to a chat channel through the relay
// webhook. Retries with exponential backoff; on exhaustion the failure is
// escalated by email and swallowed.
func NotifyChannel(channelID, message string) error {
	if channelID == "" {
		channelID = os.Getenv("ADMIN_CHANNEL_ID")
	}
	webhookURL := os.Getenv("NOTIFY_WEBHOOK_URL")
	if webhookURL == "" {
		log.Printf("NOTIFY_WEBHOOK_URL not set, dropping notification for %s: %s", channelID, message)
		return nil
	}

	payload := map[string]string{
		"channel": channelID,
		"text":    message,
	}
	reqBody, _ := json.Marshal(payload)

	client := &http.Client{Timeout: 10 * time.Second}
	var lastErr error
	for attempt := 0; attempt < notifyAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(notifyBaseInterval << (attempt - 1))
		}

		resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(reqBody))
		if err != nil {
			lastErr = err
			log.Printf("notification to %s failed (attempt %d): %v", channelID, attempt+1, err)
			continue
		}
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("received non-200 response from notification relay: %d", resp.StatusCode)
		log.Printf("notification to %s failed (attempt %d): status %d, body: %s", channelID, attempt+1, resp.StatusCode, respBody)
	}

	EscalateFailure("Notification non délivrée",
		fmt.Sprintf("Canal %s, message: %s, erreur: %v", channelID, message, lastErr))
	return lastErr
}

// NotifyAdmins targets the admin channel.
func NotifyAdmins(message string) error {
	return NotifyChannel(os.Getenv("ADMIN_CHANNEL_ID"), message)
}

// EscalateFailure emails the escalation address. Last resort after retries;
// only logs if the email itself fails.
func EscalateFailure(subject, body string) {
	to := os.Getenv("ESCALATION_EMAIL")
	if to == "" {
		log.Printf("ESCALATION_EMAIL not set, escalation dropped: %s — %s", subject, body)
		return
	}
	if err := SendEmail(os.Getenv("SMTP_FROM"), to, subject, body); err != nil {
		log.Printf("escalation email failed: %v (%s — %s)", err, subject, body)
	}
}

// ResolveDisplayName maps a user handle to a display name, best effort: any
// lookup failure falls back to the handle itself.
func ResolveDisplayName(handle string) string {
	if handle == "" {
		return "inconnu"
	}
	if config.UserCollection == nil {
		return handle
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var user struct {
		FirstName string `bson:"first_name"`
		LastName  string `bson:"last_name"`
	}
	err := config.UserCollection.FindOne(ctx, bson.M{"$or": []bson.M{
		{"handle": handle},
		{"phone": handle},
	}}).Decode(&user)
	if err != nil {
		return handle
	}
	return fmt.Sprintf("%s %s", user.FirstName, user.LastName)
}
