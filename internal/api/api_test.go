package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourname/babylog/internal"
	"github.com/yourname/babylog/internal/caregiver"
	"github.com/yourname/babylog/internal/config"
	"github.com/yourname/babylog/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testApp struct {
	logger internal.Logger
	store  storage.EventStore
	reg    *caregiver.Registry
	cfg    *config.Config
}

func (a *testApp) Logger() internal.Logger         { return a.logger }
func (a *testApp) Store() storage.EventStore       { return a.store }
func (a *testApp) Caregivers() *caregiver.Registry { return a.reg }
func (a *testApp) Config() *config.Config          { return a.cfg }

var _ App = (*testApp)(nil)

func newTestRouter() (*gin.Engine, *storage.MemoryStore) {
	logger := internal.NewNopLogger()
	store := storage.NewMemoryStore(logger)
	app := &testApp{
		logger: logger,
		store:  store,
		reg:    caregiver.NewRegistry([]string{"alice", "bob"}, logger),
		cfg: &config.Config{
			Env:                     "development",
			StorageBackend:          "memory",
			Timezone:                "UTC",
			Caregivers:              []string{"alice", "bob"},
			RecommendedSleepMinutes: 840,
		},
	}
	return NewRouter(app), store
}

type envelope struct {
	Data  json.RawMessage    `json:"data"`
	Meta  map[string]any     `json:"meta"`
	Error *internal.AppError `json:"error"`
}

func perform(t *testing.T, r *gin.Engine, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if s, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(s))
	} else if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	}
	return w, env
}

var apiBase = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func TestPostEventCreates(t *testing.T) {
	r, _ := newTestRouter()
	w, env := perform(t, r, http.MethodPost, "/events", map[string]any{
		"type": "milk", "amount": 120, "user_name": "alice",
		"timestamp": apiBase.Add(9 * time.Hour),
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code)
	var ev internal.Event
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, int64(1), ev.ID)
	assert.Equal(t, internal.EventMilk, ev.Type)
	assert.Equal(t, 120, *ev.Amount)
}

func TestPostEventRejectsBadJSON(t *testing.T) {
	r, _ := newTestRouter()
	w, env := perform(t, r, http.MethodPost, "/events", `{"type":`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, 400, env.Error.Code)
}

func TestPostEventRejectsUnknownCaregiver(t *testing.T) {
	r, _ := newTestRouter()
	w, _ := perform(t, r, http.MethodPost, "/events", map[string]any{
		"type": "milk", "amount": 100, "user_name": "grandma",
		"timestamp": apiBase.Add(9 * time.Hour),
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostEventTakesCaregiverFromHeader(t *testing.T) {
	r, _ := newTestRouter()
	w, env := perform(t, r, http.MethodPost, "/events", map[string]any{
		"type": "bath", "timestamp": apiBase.Add(18 * time.Hour),
	}, map[string]string{"X-Caregiver": "ALICE"})

	require.Equal(t, http.StatusCreated, w.Code)
	var ev internal.Event
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, "alice", ev.UserName)
}

func TestUnknownCaregiverHeaderAborts(t *testing.T) {
	r, _ := newTestRouter()
	w, _ := perform(t, r, http.MethodGet, "/events", nil, map[string]string{"X-Caregiver": "grandma"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSleepStartConflictAndConfirmedEnd(t *testing.T) {
	r, _ := newTestRouter()
	start := apiBase.Add(13 * time.Hour)

	w, _ := perform(t, r, http.MethodPost, "/sleep/start", map[string]any{
		"user_name": "alice", "at": start,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	// A second open session for the same caregiver is a conflict.
	w, env := perform(t, r, http.MethodPost, "/sleep/start", map[string]any{
		"user_name": "alice", "at": start.Add(10 * time.Minute),
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, 409, env.Error.Code)

	// Ending after 5 minutes needs a confirmation round-trip.
	endAt := start.Add(5 * time.Minute)
	w, env = perform(t, r, http.MethodPost, "/sleep/end", map[string]any{
		"user_name": "alice", "at": endAt,
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, true, env.Meta["confirmation_required"])
	assert.Equal(t, float64(5), env.Meta["computed_minutes"])

	w, env = perform(t, r, http.MethodPost, "/sleep/end", map[string]any{
		"user_name": "alice", "at": endAt, "confirmed": true,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ev internal.Event
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, 5, *ev.Amount)
	require.NotNil(t, ev.Sleep.End)
}

func TestNonSleepEventAutoClosesOpenSession(t *testing.T) {
	r, _ := newTestRouter()
	start := apiBase.Add(22 * time.Hour)

	w, _ := perform(t, r, http.MethodPost, "/sleep/start", map[string]any{
		"user_name": "alice", "at": start,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = perform(t, r, http.MethodPost, "/events", map[string]any{
		"type": "diaper", "subtype": "pee", "user_name": "bob",
		"timestamp": start.Add(90 * time.Minute),
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := perform(t, r, http.MethodGet, "/events?type=sleep", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events []internal.Event
	require.NoError(t, json.Unmarshal(env.Data, &events))
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Sleep.End)
	assert.Equal(t, 90, *events[0].Amount)
	assert.Equal(t, float64(1), env.Meta["count"])
}

func TestGetEventsValidatesQuery(t *testing.T) {
	r, _ := newTestRouter()
	w, _ := perform(t, r, http.MethodGet, "/events?from=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = perform(t, r, http.MethodGet, "/events?type=juggling", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteEvent(t *testing.T) {
	r, _ := newTestRouter()
	w, env := perform(t, r, http.MethodPost, "/events", map[string]any{
		"type": "milk", "amount": 100, "user_name": "bob",
		"timestamp": apiBase.Add(9 * time.Hour),
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var ev internal.Event
	require.NoError(t, json.Unmarshal(env.Data, &ev))

	w, env = perform(t, r, http.MethodDelete, fmt.Sprintf("/events/%d", ev.ID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(ev.ID), env.Meta["deleted"])

	w, _ = perform(t, r, http.MethodDelete, fmt.Sprintf("/events/%d", ev.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = perform(t, r, http.MethodDelete, "/events/latest", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostCorrection(t *testing.T) {
	r, store := newTestRouter()
	short := internal.NewSleepEvent("alice", apiBase.Add(12*time.Hour))
	end := short.Sleep.Start.Add(3 * time.Minute)
	short.Sleep.End = &end
	_, err := store.Create(context.Background(), short)
	require.NoError(t, err)

	w, env := perform(t, r, http.MethodPost, "/corrections/anomalies", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), env.Meta["anomalies"])
	assert.Equal(t, float64(0), env.Meta["corrected"])

	w, _ = perform(t, r, http.MethodPost, "/corrections/defrag", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAnalytics(t *testing.T) {
	r, _ := newTestRouter()
	asOf := apiBase.Add(12 * time.Hour).Format(time.RFC3339)

	w, env := perform(t, r, http.MethodGet, "/analytics?as_of="+asOf, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, "2026-05-01", snap["date"])
	assert.Equal(t, "UTC", snap["timezone"])

	w, _ = perform(t, r, http.MethodGet, "/analytics?as_of=noon", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = perform(t, r, http.MethodGet, "/analytics?tz=Mars/Olympus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestIDEchoedOnResponses(t *testing.T) {
	r, _ := newTestRouter()

	w, _ := perform(t, r, http.MethodGet, "/events", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w, _ = perform(t, r, http.MethodGet, "/events", nil, map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestGetInsights(t *testing.T) {
	r, _ := newTestRouter()
	w, env := perform(t, r, http.MethodGet, "/insights", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var insights []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &insights))
	require.Len(t, insights, 1)
	assert.Equal(t, "insufficient_data", insights[0]["kind"])
	assert.Equal(t, float64(1), env.Meta["count"])
}
