package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// Smoke check for the gateway's internal fanout endpoint: posts a
// channel_created record for a throwaway personal room and expects 202.
func main() {
	record := map[string]interface{}{
		"room": "user:verify",
		"type": "channel_created",
		"payload": map[string]string{
			"id":   "verify-channel",
			"name": "verify",
		},
	}

	body, _ := json.Marshal(record)
	resp, err := http.Post("http://localhost:8080/internal/fanout", "application/json", bytes.NewBuffer(body))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("unexpected status: %s", resp.Status)
	}
	fmt.Println("fanout endpoint OK")
}
