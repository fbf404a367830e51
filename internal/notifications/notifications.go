package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-controller/internal/model"
)

var client *http.Client
var topic string
var initialized bool

// baseURL is swapped in tests.
var baseURL = "https://ntfy.sh"

// Init initializes the notification client
func Init(ntfyTopic string) {
	if ntfyTopic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return
	}

	client = &http.Client{
		Timeout: 10 * time.Second,
	}
	topic = ntfyTopic
	initialized = true

	log.Info().
		Str("topic", topic).
		Msg("Ntfy notifications initialized")
}

// Send sends a notification to ntfy.sh
func Send(title, message string) error {
	if !initialized {
		return fmt.Errorf("notifications not initialized")
	}

	url := fmt.Sprintf("%s/%s", baseURL, topic)

	payload := map[string]interface{}{
		"topic":   topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}

// Message returns the notification for an event kind, or ok false for
// events that are only logged.
func Message(kind model.EventKind, value float64) (title, message string, ok bool) {
	switch kind {
	case model.EventChargerError:
		return "Charger error", "Charger entered the error phase and stopped charging", true
	case model.EventChargerRecovered:
		return "Charger recovered", "Battery voltage back within bounds, charging resumed", true
	case model.EventCapacityLearned:
		return "Capacity learned", fmt.Sprintf("Measured battery capacity: %.1f Ah", value), true
	case model.EventEnergyLearned:
		return "Energy capacity learned", fmt.Sprintf("Measured battery energy: %.0f Wh", value), true
	case model.EventCapacityRejected:
		return "Capacity rejected", fmt.Sprintf("Discharge cycle measured %.1f Ah, keeping previous capacity", value), true
	}
	return "", "", false
}

// Recorder sends a notification for notable events without blocking the
// caller.
type Recorder struct{}

func (Recorder) Record(kind model.EventKind, value float64) {
	title, message, ok := Message(kind, value)
	if !ok || !initialized {
		return
	}
	go func() {
		if err := Send(title, message); err != nil {
			log.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to send notification")
		}
	}()
}
