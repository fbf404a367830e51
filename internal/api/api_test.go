package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/battery-controller/db"
	"github.com/thatsimonsguy/battery-controller/internal/model"
	"github.com/thatsimonsguy/battery-controller/internal/state"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sql.DB {
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.InsertEvent(conn, model.EventFullCharge, 14.2, now))
	require.NoError(t, db.InsertEvent(conn, model.EventCapacityLearned, 92.5, now.Add(time.Hour)))
	return conn
}

func setupServer(t *testing.T) (*Server, *state.Board) {
	board := state.NewBoard(now)
	v := 13.4
	board.Update(
		model.ChargerSnapshot{Phase: model.PhaseFloat, Target: 13.5, Voltage: &v, Timers: []string{"ABSORPTION_TIMER_RESTART"}},
		model.MeterSnapshot{State: model.MeterIdle, LevelPercent: 88, RemainingAh: 88},
		now,
	)
	return NewServer(setupTestDB(t), board), board
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestGetCharger(t *testing.T) {
	s, _ := setupServer(t)
	w := do(t, s, http.MethodGet, "/api/charger")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	var resp model.ChargerSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.PhaseFloat, resp.Phase)
	assert.Equal(t, 13.5, resp.Target)
	require.NotNil(t, resp.Voltage)
	assert.Equal(t, 13.4, *resp.Voltage)
	assert.Nil(t, resp.Current)
}

func TestGetMeter(t *testing.T) {
	s, _ := setupServer(t)
	w := do(t, s, http.MethodGet, "/api/meter")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(88), resp["level_percent"])
	assert.Nil(t, resp["time_to_full_min"])
}

func TestGetHealth(t *testing.T) {
	s, board := setupServer(t)
	w := do(t, s, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, w.Code)

	board.Update(model.ChargerSnapshot{Phase: model.PhaseError, Status: model.Status{Error: true}}, model.MeterSnapshot{}, now)
	w = do(t, s, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetEvents(t *testing.T) {
	s, _ := setupServer(t)

	w := do(t, s, http.MethodGet, "/api/events?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	var events []model.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, model.EventCapacityLearned, events[0].Kind)

	w = do(t, s, http.MethodGet, "/api/events?limit=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetLastEvent(t *testing.T) {
	s, _ := setupServer(t)

	w := do(t, s, http.MethodGet, "/api/events/last?kind=full_charge")
	require.Equal(t, http.StatusOK, w.Code)
	var event model.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &event))
	assert.Equal(t, 14.2, event.Value)
	assert.True(t, now.Equal(event.At))

	w = do(t, s, http.MethodGet, "/api/events/last?kind=charger_error")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodGet, "/api/events/last")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWritesRejected(t *testing.T) {
	s, _ := setupServer(t)
	w := do(t, s, http.MethodPut, "/api/charger")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Method not allowed", resp.Error)
}

func TestPreflight(t *testing.T) {
	s, _ := setupServer(t)
	w := do(t, s, http.MethodOptions, "/api/meter")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "GET, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
}
