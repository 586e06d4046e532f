package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, rapi *RelayApi, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	rapi.Api.ServeHTTP(rec, req)
	return rec
}

func TestApiStats(t *testing.T) {
	r, _, _ := newTestRelay(t, 8)
	require.NoError(t, r.HandleDatagram(datagram(testInfo), udpAddr(1)))
	require.NoError(t, r.HandleDatagram(testHeader, udpAddr(1)))

	rec := serve(t, NewRelayApi(r), "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var got StatsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, uint64(2), got.DatagramsReceived)
	assert.Equal(t, uint64(1), got.DatagramsDropped)
	assert.Equal(t, 1, got.Peers)
}

func TestApiSessions(t *testing.T) {
	r, _, _ := newTestRelay(t, 8)
	require.NoError(t, r.HandleDatagram(datagram(testInfo, testState), udpAddr(1)))
	require.NoError(t, r.HandleDatagram(datagram(testInfo), udpAddr(2)))

	rec := serve(t, NewRelayApi(r), "/sessions")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []SessionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Len(t, got[0].Peers, 2)
	assert.Equal(t, udpAddr(1).String(), got[0].Peers[0].Addr)
	assert.True(t, got[0].Peers[0].CarState)
	assert.False(t, got[0].Peers[1].CarState)
	assert.NotEmpty(t, got[0].ID)
}

func TestApiLogs(t *testing.T) {
	r, _, _ := newTestRelay(t, 8)
	rapi := NewRelayApi(r)

	assert.Equal(t, http.StatusBadRequest, serve(t, rapi, "/logs?n=abc").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, rapi, "/logs?n=0").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, rapi, "/logs").Code)
}
