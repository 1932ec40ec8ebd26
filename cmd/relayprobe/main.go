// Command relayprobe connects to the relay like the game server does, prints
// every command it receives and can emit one action.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"borerelay/pkg/logger"
	"borerelay/pkg/relayclient"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/api/socketio", "relay websocket URL")
	token := flag.String("token", os.Getenv("BORE_RELAY_TOKEN"), "bearer token (defaults to $BORE_RELAY_TOKEN)")
	useHeader := flag.Bool("header", false, "send the token as an Authorization header instead of a handshake frame")
	emit := flag.String("emit", "", "action event to emit after connecting, e.g. action:unmute")
	data := flag.String("data", "{}", "JSON payload for -emit")
	once := flag.Bool("once", false, "exit after the emitted action is acknowledged")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	log := logger.New(*level).Sugar()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []relayclient.Option
	if *useHeader {
		opts = append(opts, relayclient.WithBearerHeader())
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := relayclient.Dial(dialCtx, *url, *token, opts...)
	cancel()
	var rejected *relayclient.RejectedError
	if errors.As(err, &rejected) {
		log.Fatalw("Relay rejected the connection", "message", rejected.Message)
	}
	if err != nil {
		log.Fatalw("Failed to connect", "url", *url, "error", err)
	}
	defer client.Close()
	log.Infow("Connected", "peer_id", client.ID)

	if *emit != "" {
		if !json.Valid([]byte(*data)) {
			log.Fatalw("Payload is not valid JSON", "data", *data)
		}
		ackCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		ack, err := client.EmitWithAck(ackCtx, *emit, json.RawMessage(*data))
		cancel()
		if err != nil {
			log.Fatalw("Emit failed", "event", *emit, "error", err)
		}
		log.Infow("Acknowledged", "event", *emit, "success", ack.Success, "error", ack.Error)
		if *once {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-client.Events():
			if !ok {
				if err := client.Err(); err != nil && !errors.Is(err, relayclient.ErrClosed) {
					log.Fatalw("Connection lost", "error", err)
				}
				return
			}
			log.Infow("Command received", "event", ev.Name, "data", string(ev.Data))
		}
	}
}
