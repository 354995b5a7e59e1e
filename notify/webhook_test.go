package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"recipeagent/notify"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"
)

type mockDoer struct {
	doFunc func(req *http.Request) (*http.Response, error)
	body   []byte
	calls  int
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	m.calls++
	if req.Body != nil {
		m.body, _ = io.ReadAll(req.Body)
	}
	return m.doFunc(req)
}

func reply(code int, status, body string) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: code, Status: status, Body: io.NopCloser(bytes.NewBufferString(body))}, nil
	}
}

func TestPostMessage(t *testing.T) {
	tests := []struct {
		name    string
		doFunc  func(req *http.Request) (*http.Response, error)
		wantErr error
	}{
		{
			name:    "success",
			doFunc:  reply(http.StatusOK, "200 OK", "ok"),
			wantErr: nil,
		},
		{
			name:    "no content is success",
			doFunc:  reply(http.StatusNoContent, "204 No Content", ""),
			wantErr: nil,
		},
		{
			name:    "failure status with body",
			doFunc:  reply(http.StatusBadRequest, "400 Bad Request", "invalid_payload\n"),
			wantErr: fmt.Errorf("failed to post message: 400 Bad Request: invalid_payload"),
		},
		{
			name:    "failure status without body",
			doFunc:  reply(http.StatusInternalServerError, "500 Internal Server Error", ""),
			wantErr: fmt.Errorf("failed to post message: 500 Internal Server Error"),
		},
		{
			name: "do error",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("network error")
			},
			wantErr: fmt.Errorf("network error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &mockDoer{doFunc: tt.doFunc}
			err := notify.NewWebhook("http://example.com/webhook", doer).PostMessage(context.Background(), "#alerts", "provider down")
			should.Equal(t, tt.wantErr, err)

			var payload map[string]string
			must.NoError(t, json.Unmarshal(doer.body, &payload))
			should.Equal(t, map[string]string{"channel": "#alerts", "text": "provider down"}, payload)
		})
	}
}

type recordingPoster struct {
	channel, message string
	err              error
}

func (r *recordingPoster) PostMessage(ctx context.Context, channel string, message string) error {
	r.channel, r.message = channel, message
	return r.err
}

func TestAlert(t *testing.T) {
	p := &recordingPoster{}
	notify.Alert(context.Background(), p, "#ops", "recipe tools", errors.New("missing RECIPE_API_KEY"))
	should.Equal(t, "#ops", p.channel)
	should.Contains(t, p.message, "recipe tools failed: missing RECIPE_API_KEY")

	// Delivery errors are swallowed.
	notify.Alert(context.Background(), &recordingPoster{err: errors.New("down")}, "#ops", "x", errors.New("y"))
}

func TestDiscard(t *testing.T) {
	should.NoError(t, notify.Discard{}.PostMessage(context.Background(), "#ops", "ignored"))
}
