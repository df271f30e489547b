package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/relay/internal/domain/errors"
	"github.com/cassiomorais/relay/internal/proxy"
	"github.com/cassiomorais/relay/internal/routing"
	"github.com/cassiomorais/relay/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(requester *testutil.MockRequester) *ProxyController {
	svc := proxy.NewService(requester, "relay:index:inbound", time.Second, zerolog.Nop(), nil)
	return NewProxyController(svc)
}

func doRoute(t *testing.T, c *ProxyController, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/route", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c.Route(rec, req)
	return rec
}

func TestRoute_Success(t *testing.T) {
	requester := &testutil.MockRequester{Reply: routing.Envelope{
		"status": "success",
		"data":   map[string]any{"title": "test"},
	}}
	c := newTestController(requester)

	rec := doRoute(t, c, `{"operation":"search","aggregate_id":"agg-1","auth_token":"tok","data":{"q":"go"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var reply map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "success", reply["status"])

	sent := requester.Requests()
	require.Len(t, sent, 1)
	assert.Equal(t, "search", sent[0].Operation())
	assert.Equal(t, "agg-1", sent[0].AggregateID())
	assert.Equal(t, 1, sent[0].Hops())
}

func TestRoute_InvalidBody(t *testing.T) {
	c := newTestController(&testutil.MockRequester{})

	rec := doRoute(t, c, `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Code)
}

func TestRoute_MissingOperation(t *testing.T) {
	c := newTestController(&testutil.MockRequester{})

	rec := doRoute(t, c, `{"data":{"q":"go"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Code)
}

func TestRoute_ReplyTimeout(t *testing.T) {
	c := newTestController(&testutil.MockRequester{RequestErr: domainErrors.ErrReplyTimeout})

	rec := doRoute(t, c, `{"operation":"search"}`)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "reply_timeout", resp.Code)
}

func TestRoute_BackendError(t *testing.T) {
	c := newTestController(&testutil.MockRequester{RequestErr: assert.AnError})

	rec := doRoute(t, c, `{"operation":"search"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "backend_error", resp.Code)
}

func TestRoute_BackendUnavailable(t *testing.T) {
	c := newTestController(&testutil.MockRequester{RequestErr: domainErrors.ErrBackendUnavailable})

	rec := doRoute(t, c, `{"operation":"search"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "backend_unavailable", resp.Code)
}
