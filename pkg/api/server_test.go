package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NotCoffee418/adm300_monitor/pkg/port_reader"
	"github.com/NotCoffee418/adm300_monitor/pkg/sentence"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSentence = "11a010-1 251-1 040-1 R..L.I00U01A1513 49620 3A]"

type fakeSession struct {
	mu       sync.Mutex
	running  bool
	powerOn  bool
	sentence bool
	rawLine  string
	commands []string
	cmdErr   error
}

func (f *fakeSession) Running() bool       { return f.running }
func (f *fakeSession) GotPowerOn() bool    { return f.powerOn }
func (f *fakeSession) GotSentence() bool   { return f.sentence }
func (f *fakeSession) LastRawLine() string { return f.rawLine }

func (f *fakeSession) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cmdErr != nil {
		return f.cmdErr
	}
	f.commands = append(f.commands, name)
	return nil
}

func (f *fakeSession) StartMonitoring() error      { return f.record("start") }
func (f *fakeSession) StopMonitoring() error       { return f.record("stop") }
func (f *fakeSession) ClearAccumulatedDose() error { return f.record("clear-dose") }
func (f *fakeSession) AcknowledgeAlarm() error     { return f.record("ack-alarm") }

func (f *fakeSession) SetRateAlarmThreshold(float64) error { return port_reader.ErrNotSupported }
func (f *fakeSession) SetDoseAlarmThreshold(float64) error { return port_reader.ErrNotSupported }

func newTestServer(t *testing.T, session *fakeSession, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	server := NewServer(session, opts, log)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return server, ts
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	body := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestIndexAndStatus(t *testing.T) {
	session := &fakeSession{running: true, powerOn: true}
	_, ts := newTestServer(t, session, Options{})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ADM-300 Monitor API", decodeBody(t, resp)["message"])

	resp, err = http.Get(ts.URL + "/status")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["running"])
	assert.Equal(t, true, body["got_power_on"])
	assert.Equal(t, false, body["got_sentence"])
}

func TestHealth(t *testing.T) {
	session := &fakeSession{}
	_, ts := newTestServer(t, session, Options{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	session.running = true
	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLatest(t *testing.T) {
	server, ts := newTestServer(t, &fakeSession{}, Options{})

	resp, err := http.Get(ts.URL + "/latest")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	server.Broadcast(sentence.DecodeSentence(testSentence))
	// Invalid reports never replace the latest one.
	server.Broadcast(sentence.Invalid())

	resp, err = http.Get(ts.URL + "/latest")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	report := sentence.ReportFromJsonBytes(raw)
	require.NotNil(t, report)
	assert.True(t, report.Valid)
	assert.Equal(t, 11, report.SeqNo)
	assert.InDelta(t, 0.000251, report.DoseAcc, 1e-9)
}

func TestRaw(t *testing.T) {
	_, ts := newTestServer(t, &fakeSession{rawLine: testSentence + "\r\n"}, Options{})

	resp, err := http.Get(ts.URL + "/raw")
	require.NoError(t, err)
	assert.Equal(t, testSentence+"\r\n", decodeBody(t, resp)["line"])
}

func TestCommands(t *testing.T) {
	session := &fakeSession{running: true}
	_, ts := newTestServer(t, session, Options{})

	for _, name := range []string{"start", "clear-dose", "ack-alarm", "stop"} {
		resp, err := http.Post(ts.URL+"/commands/"+name, "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode, name)
	}
	assert.Equal(t, []string{"start", "clear-dose", "ack-alarm", "stop"}, session.commands)

	resp, err := http.Post(ts.URL+"/commands/rate-alarm", "application/json", strings.NewReader(`{"threshold":0.05}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/commands/dose-alarm", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/commands/self-destruct", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/commands/start")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCommandQueueFull(t *testing.T) {
	session := &fakeSession{cmdErr: port_reader.ErrQueueFull}
	_, ts := newTestServer(t, session, Options{})

	resp, err := http.Post(ts.URL+"/commands/start", "application/json", nil)
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body["error"], "queue full")
}

func TestMetricsToggle(t *testing.T) {
	_, ts := newTestServer(t, &fakeSession{}, Options{})
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, ts = newTestServer(t, &fakeSession{}, Options{MetricsEnabled: true})
	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketBroadcast(t *testing.T) {
	server, ts := newTestServer(t, &fakeSession{}, Options{})
	first := sentence.DecodeSentence(testSentence)
	server.Broadcast(first)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// The latest report is sent on connect.
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	report := sentence.ReportFromJsonBytes(msg)
	require.NotNil(t, report)
	assert.Equal(t, 11, report.SeqNo)

	require.Eventually(t, func() bool { return server.hub.count() == 1 }, time.Second, 5*time.Millisecond)

	next := sentence.DecodeSentence("12" + testSentence[2:])
	server.Broadcast(next)

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	report = sentence.ReportFromJsonBytes(msg)
	require.NotNil(t, report)
	assert.Equal(t, 12, report.SeqNo)

	conn.Close()
	require.Eventually(t, func() bool { return server.hub.count() == 0 }, time.Second, 5*time.Millisecond)
}
