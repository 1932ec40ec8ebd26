package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRelay accepts "good" and rejects every other token. Each emitted
// frame is echoed back as an event, then acknowledged.
func fakeRelay(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			var hs struct {
				Auth struct {
					Token string `json:"token"`
				} `json:"auth"`
			}
			if err := conn.ReadJSON(&hs); err != nil {
				return
			}
			token = hs.Auth.Token
		}
		if token != "good" {
			_ = conn.WriteJSON(frame{Event: "connect_error", Data: json.RawMessage(`{"message":"Sem permissão"}`)})
			return
		}
		_ = conn.WriteJSON(frame{Event: "connect", Data: json.RawMessage(`{"id":"peer-1"}`)})

		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			_ = conn.WriteJSON(frame{Event: "command:echo", Data: f.Data})
			if f.Ack != nil {
				_ = conn.WriteJSON(frame{Event: "ack", Ack: f.Ack, Data: json.RawMessage(`{"success":true}`)})
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialRejected(t *testing.T) {
	url := fakeRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Dial(ctx, url, "bad")
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected), "got %v", err)
	assert.Equal(t, "Sem permissão", rejected.Message)
}

func TestEmitWithAckAndEvents(t *testing.T) {
	for _, header := range []bool{false, true} {
		url := fakeRelay(t)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)

		var opts []Option
		if header {
			opts = append(opts, WithBearerHeader())
		}
		c, err := Dial(ctx, url, "good", opts...)
		require.NoError(t, err)
		assert.Equal(t, "peer-1", c.ID)

		ack, err := c.EmitWithAck(ctx, "action:unmute", map[string]int{"id": 7})
		require.NoError(t, err)
		assert.True(t, ack.Success)

		select {
		case ev := <-c.Events():
			assert.Equal(t, "command:echo", ev.Name)
			assert.JSONEq(t, `{"id":7}`, string(ev.Data))
		case <-ctx.Done():
			t.Fatal("no event received")
		}

		require.NoError(t, c.Close())
		<-c.Done()
		assert.ErrorIs(t, c.Err(), ErrClosed)
		_, err = c.EmitWithAck(ctx, "action:unmute", nil)
		assert.ErrorIs(t, err, ErrClosed)
		cancel()
	}
}
