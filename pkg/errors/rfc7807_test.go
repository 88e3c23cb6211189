package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesKindThroughWrapping(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := ConnectionError.Explain("dial %s", "wss://feed").Wrap(cause)
	wrapped := fmt.Errorf("session: %w", err)

	assert.True(t, Is(wrapped, ConnectionError))
	assert.False(t, Is(wrapped, DestinationWriteError))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, KindConnection, KindOf(wrapped))
	assert.Equal(t, "[ConnectionError] dial wss://feed (dial tcp: refused)", err.Error())
}

func TestExplainDoesNotMutateSentinel(t *testing.T) {
	_ = MalformedMessage.Explain("bad").Wrap(context.Canceled)
	assert.Empty(t, MalformedMessage.Message)
	assert.Nil(t, MalformedMessage.Unwrap())
}

func TestToProblemDetails(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"config", InvalidConfig.WithField("required", "stream", "missing"), http.StatusBadRequest, TypeValidationError},
		{"busy", SessionInProgress.Explain("already running"), http.StatusConflict, TypeSessionInProgress},
		{"connection", ConnectionError.Wrap(context.DeadlineExceeded), http.StatusBadGateway, TypeUpstream},
		{"write", DestinationWriteError.Explain("put"), http.StatusBadGateway, TypeUpstream},
		{"rate", RateLimited.Explain("slow down"), http.StatusTooManyRequests, TypeRateLimited},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError, TypeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ToProblemDetails(tt.err, "/v1/invoke")
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, tt.typ, p.Type)
			assert.Equal(t, "/v1/invoke", p.Instance)
		})
	}
}

func TestProblemDetailsMarshalFlattensExtra(t *testing.T) {
	p := ToProblemDetails(InvalidConfig.WithField("required", "stream", "missing"), "/x")
	p.WithExtra("session_id", "abc")

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "abc", out["session_id"])
	assert.Equal(t, float64(http.StatusBadRequest), out["status"])
	assert.Len(t, out["errors"], 1)
}
