// Package main runs a demo WebSocket client for plan events: it opens the
// plan stream, triggers one planning cycle, and prints the events it receives.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/plans/stream"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	go func() {
		body := []byte(`{"algorithm":"anneal"}`)
		req, _ := http.NewRequest(http.MethodPost, base+"/v1/plan", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Fatal(err)
		}
		defer func() { _ = resp.Body.Close() }()
		log.Printf("plan trigger: %s", resp.Status)
	}()

	deadline := time.After(30 * time.Second)
	got := make(chan struct{})
	go func() {
		for {
			var evt struct {
				Type string         `json:"type"`
				Data map[string]any `json:"data"`
			}
			if err := c.ReadJSON(&evt); err != nil {
				log.Printf("read: %v", err)
				close(got)
				return
			}
			payload, _ := json.Marshal(evt.Data)
			log.Printf("event %s: %s", evt.Type, payload)
			if evt.Type == "plan.completed" {
				close(got)
				return
			}
		}
	}()

	select {
	case <-got:
	case <-deadline:
		log.Fatal("timed out waiting for plan.completed")
	}
}
