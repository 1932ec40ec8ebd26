package relayclient_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"borerelay/pkg/relayclient"
)

// The game process connects with a service token and applies every command
// the relay fans out.
func Example() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := relayclient.Dial(ctx, "ws://localhost:8080/api/socketio", "service-token")
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ack, err := client.EmitWithAck(ctx, "sync:players", map[string]int{"online": 12})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("acknowledged:", ack.Success)

	for {
		select {
		case ev := <-client.Events():
			fmt.Printf("%s %s\n", ev.Name, ev.Data)
		case <-client.Done():
			log.Println("relay closed:", client.Err())
			return
		}
	}
}
