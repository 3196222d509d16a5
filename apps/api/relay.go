package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/mahaj/realtime-core/pkg/auth"
	"github.com/mahaj/realtime-core/pkg/event"
	"github.com/segmentio/kafka-go"
)

type RelayRequest struct {
	Room    string          `json:"room"`
	Type    event.Type      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RelayHandler publishes fanout records to the bus after the request
// layer has persisted the underlying entity. The gateways consume the
// topic and deliver to whichever connections live on them.
type RelayHandler struct {
	writer *kafka.Writer
}

func NewRelayHandler(brokers []string, topic string) *RelayHandler {
	return &RelayHandler{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, ok := r.Context().Value(auth.UserKey).(*auth.Claims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req RelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Room == "" || req.Type == "" {
		http.Error(w, "room and type are required", http.StatusBadRequest)
		return
	}

	value, err := json.Marshal(req)
	if err != nil {
		http.Error(w, "Failed to encode record", http.StatusInternalServerError)
		return
	}

	if err := h.writer.WriteMessages(r.Context(), kafka.Message{
		Value: value,
		Time:  time.Now(),
	}); err != nil {
		log.Printf("Failed to publish relay from %s: %v", claims.UserID, err)
		http.Error(w, "Failed to publish", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *RelayHandler) Close() {
	if err := h.writer.Close(); err != nil {
		log.Printf("Failed to close Kafka writer: %v", err)
	}
}
