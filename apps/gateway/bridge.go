package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/mahaj/realtime-core/pkg/router"
	"github.com/segmentio/kafka-go"
)

// bridge consumes collaborator fanout records from Kafka and relays them
// to local rooms. Every gateway instance reads the whole topic under its
// own group id, so an event published once reaches the connections on
// every gateway.
type bridge struct {
	reader *kafka.Reader
	router *router.Router
}

func newBridge(brokers []string, topic string, rt *router.Router) *bridge {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "gateway-group-" + time.Now().String(), // Unique group for fanout (broadcast to all gateways)
		StartOffset: kafka.LastOffset,
		MinBytes:    10e3,
		MaxBytes:    10e6,
	})
	return &bridge{reader: reader, router: rt}
}

func (b *bridge) run() {
	for {
		m, err := b.reader.ReadMessage(context.Background())
		if err != nil {
			log.Printf("Gateway consumer error: %v", err)
			return
		}

		var rec fanoutRequest
		if err := json.Unmarshal(m.Value, &rec); err != nil {
			log.Printf("Failed to unmarshal fanout record from Kafka: %v", err)
			continue
		}
		b.router.RelayExternal(rec.Room, rec.Type, rec.Payload)
	}
}

func (b *bridge) close() {
	if err := b.reader.Close(); err != nil {
		log.Printf("Failed to close Kafka reader: %v", err)
	}
}

// busPublisher mirrors presence transitions and status updates onto the
// event bus for sibling gateways and platform consumers.
type busPublisher struct {
	writer *kafka.Writer
}

func newBusPublisher(brokers []string, topic string) *busPublisher {
	return &busPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *busPublisher) Publish(ctx context.Context, payload []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Value: payload,
		Time:  time.Now(),
	})
}

func (p *busPublisher) Close() {
	if err := p.writer.Close(); err != nil {
		log.Printf("Failed to close Kafka writer: %v", err)
	}
}
