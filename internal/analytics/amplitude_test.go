package analytics

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfsight/shelfsight/internal/httputil"
	"github.com/shelfsight/shelfsight/internal/movement"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.FlushSize = 3
	return cfg
}

func movedEvent(id string) movement.Event {
	return movement.Event{
		ID: id, Type: movement.EventMoved, ObjectID: 7,
		ClassName: "cup", ViewAngle: 90,
		Timestamp:     time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
		DisplacementX: 250, DisplacementY: 10,
	}
}

func TestDisabledWithoutAPIKey(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	cfg := DefaultConfig() // no key
	e := NewExporter(cfg, mock)

	assert.False(t, e.Enabled())
	e.Record(movedEvent("ev-1"))
	assert.Zero(t, e.Pending())
	require.NoError(t, e.Flush())
	assert.Zero(t, mock.RequestCount())
}

func TestRecordBuffersUntilFlushSize(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	e := NewExporter(testConfig(), mock)

	e.Record(movedEvent("ev-1"))
	e.Record(movedEvent("ev-2"))
	assert.Equal(t, 2, e.Pending())
	assert.Zero(t, mock.RequestCount())

	e.Record(movedEvent("ev-3"))
	assert.Zero(t, e.Pending())
	require.Equal(t, 1, mock.RequestCount())
}

func TestFlushPayloadShape(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	e := NewExporter(testConfig(), mock)

	e.Record(movedEvent("ev-1"))
	require.NoError(t, e.Flush())
	require.Equal(t, 1, mock.RequestCount())

	req := mock.Requests[0]
	assert.Equal(t, "https://api2.amplitude.com/2/httpapi", req.URL.String())
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	var payload amplitudePayload
	require.NoError(t, json.Unmarshal(mock.RequestBody(0), &payload))
	assert.Equal(t, "test-key", payload.APIKey)
	require.Len(t, payload.Events, 1)

	ev := payload.Events[0]
	assert.Equal(t, "MOVED", ev.EventType)
	assert.Equal(t, "ev-1", ev.InsertID)
	assert.Equal(t, "shelfsight", ev.DeviceID)
	assert.Equal(t, time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC).UnixMilli(), ev.Time)
	assert.Equal(t, "cup", ev.EventProperties["class_name"])
	assert.EqualValues(t, 250, ev.EventProperties["displacement_x"])
}

func TestEventPropertiesPerType(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	e := NewExporter(testConfig(), mock)

	e.Record(movement.Event{
		ID: "ev-wshop", Type: movement.EventWindowShopped, ObjectID: 1,
		ClassName: "cup", ViewAngle: 0, Timestamp: time.Now(),
		PersonDwell: 5 * time.Second,
	})
	e.Record(movement.Event{
		ID: "ev-exit", Type: movement.EventProductPurchased, ObjectID: 1,
		ClassName: "cup", ViewAngle: 0, Timestamp: time.Now(),
		TimePresent: time.Minute, WasMoved: true,
	})
	require.NoError(t, e.Flush())

	var payload amplitudePayload
	require.NoError(t, json.Unmarshal(mock.RequestBody(0), &payload))
	require.Len(t, payload.Events, 2)
	assert.EqualValues(t, 5000, payload.Events[0].EventProperties["person_dwell_ms"])
	assert.Equal(t, true, payload.Events[1].EventProperties["was_moved"])
}

func TestFailedFlushKeepsBatch(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddError(errors.New("network down"))
	mock.AddResponse(http.StatusOK, `{"code": 200}`)
	e := NewExporter(testConfig(), mock)

	e.Record(movedEvent("ev-1"))
	require.Error(t, e.Flush())
	assert.Equal(t, 1, e.Pending())

	// Retry succeeds with the same insert id.
	require.NoError(t, e.Flush())
	assert.Zero(t, e.Pending())

	var payload amplitudePayload
	require.NoError(t, json.Unmarshal(mock.RequestBody(1), &payload))
	require.Len(t, payload.Events, 1)
	assert.Equal(t, "ev-1", payload.Events[0].InsertID)
}

func TestNon200IsAnError(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusTooManyRequests, `{"code": 429}`)
	e := NewExporter(testConfig(), mock)

	e.Record(movedEvent("ev-1"))
	err := e.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, 1, e.Pending())
}

func TestCloseDrains(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	cfg := testConfig()
	cfg.FlushInterval = time.Hour // background flush never fires in test
	e := NewExporter(cfg, mock)
	e.Start()

	e.Record(movedEvent("ev-1"))
	require.NoError(t, e.Close())
	assert.Zero(t, e.Pending())
	assert.Equal(t, 1, mock.RequestCount())
}
