package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"ekh_mining/internal/ws"

	"github.com/gorilla/websocket"
)

// Dials the profile stream, triggers a mining collection over HTTP and
// prints every message until the stream goes quiet.
func main() {
	token := os.Getenv("SMOKE_TOKEN")
	if token == "" {
		log.Fatal("SMOKE_TOKEN not set (see cmd/create_test_user)")
	}
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	base := fmt.Sprintf("127.0.0.1:%s", port)
	wsURL := fmt.Sprintf("ws://%s/api/v1/profile/stream?token=%s", base, token)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() (ws.Message, bool) {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var m ws.Message
		if err := conn.ReadJSON(&m); err != nil {
			log.Printf("read: %v", err)
			return m, false
		}
		b, _ := json.Marshal(m)
		log.Printf("got: %s", b)
		return m, true
	}

	// ready + snapshot
	for i := 0; i < 2; i++ {
		if _, ok := read(); !ok {
			log.Fatal("stream did not start")
		}
	}

	if err := conn.WriteJSON(ws.Message{Type: ws.TypePing}); err != nil {
		log.Fatalf("write ping: %v", err)
	}
	read()

	req, _ := http.NewRequest(http.MethodPost, "http://"+base+"/api/v1/mining/collect", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("collect: %v", err)
	}
	resp.Body.Close()
	log.Printf("collect status=%d", resp.StatusCode)

	for {
		if _, ok := read(); !ok {
			break
		}
	}
	log.Println("smoke test finished")
}
