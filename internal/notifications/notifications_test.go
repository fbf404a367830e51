package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/battery-controller/internal/model"
)

func reset() {
	client, topic, initialized = nil, "", false
	baseURL = "https://ntfy.sh"
}

func TestSend_NotInitialized(t *testing.T) {
	reset()
	Init("")
	assert.Error(t, Send("title", "msg"))
}

func TestSend_PostsJSON(t *testing.T) {
	reset()
	defer reset()

	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	baseURL = srv.URL
	Init("battery-alerts")
	require.NoError(t, Send("Charger error", "stopped"))

	assert.Equal(t, "/battery-alerts", path)
	assert.Equal(t, map[string]string{"topic": "battery-alerts", "title": "Charger error", "message": "stopped"}, got)
}

func TestSend_NonSuccessStatus(t *testing.T) {
	reset()
	defer reset()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	baseURL = srv.URL
	Init("battery-alerts")
	assert.ErrorContains(t, Send("t", "m"), "429")
}

func TestMessage(t *testing.T) {
	title, msg, ok := Message(model.EventCapacityLearned, 92.44)
	assert.True(t, ok)
	assert.Equal(t, "Capacity learned", title)
	assert.Equal(t, "Measured battery capacity: 92.4 Ah", msg)

	_, _, ok = Message(model.EventFullCharge, 14.2)
	assert.False(t, ok)
}
