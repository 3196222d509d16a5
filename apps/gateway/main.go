package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mahaj/realtime-core/pkg/db"
	"github.com/mahaj/realtime-core/pkg/hub"
	"github.com/mahaj/realtime-core/pkg/presence"
	"github.com/mahaj/realtime-core/pkg/router"
	"github.com/mahaj/realtime-core/pkg/snowflake"
	"github.com/mahaj/realtime-core/pkg/status"
	"github.com/mahaj/realtime-core/pkg/typing"
)

type config struct {
	Addr         string
	KafkaBrokers []string
	FanoutTopic  string
	EventsTopic  string
	RedisAddr    string
	ScyllaHosts  []string
	Keyspace     string
	NodeID       int64
	LogFile      string
}

func loadConfig() config {
	_ = godotenv.Load()

	cfg := config{
		Addr:        getenv("GATEWAY_ADDR", ":8080"),
		FanoutTopic: getenv("KAFKA_FANOUT_TOPIC", "room-fanout"),
		EventsTopic: getenv("KAFKA_EVENTS_TOPIC", "realtime-events"),
		RedisAddr:   getenv("REDIS_ADDR", "localhost:6379"),
		Keyspace:    getenv("SCYLLA_KEYSPACE", "realtime"),
		LogFile:     getenv("GATEWAY_LOG", "gateway.log"),
	}
	cfg.KafkaBrokers = strings.Split(getenv("KAFKA_BROKERS", "localhost:19092"), ",")
	cfg.ScyllaHosts = strings.Split(getenv("SCYLLA_HOSTS", "localhost:9042"), ",")

	nodeID, err := strconv.ParseInt(getenv("GATEWAY_NODE_ID", "1"), 10, 64)
	if err != nil {
		log.Fatalf("invalid GATEWAY_NODE_ID: %v", err)
	}
	cfg.NodeID = nodeID
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg := loadConfig()

	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening file: %v", err)
	}
	defer f.Close()
	log.SetOutput(f)

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		log.Fatalf("Failed to initialize snowflake node: %v", err)
	}

	session, err := db.Bootstrap(cfg.ScyllaHosts, cfg.Keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer session.Close()

	presStore := db.NewPresenceStore(cfg.RedisAddr)
	defer presStore.Close()

	pub := newBusPublisher(cfg.KafkaBrokers, cfg.EventsTopic)
	defer pub.Close()

	h := hub.NewHub()
	registry := presence.NewRegistry(h, presStore, pub, node)
	tracker := status.NewTracker(session, h, pub, node)
	relay := typing.NewRelay(h, node)
	rt := router.New(h, tracker, relay, node)

	bridge := newBridge(cfg.KafkaBrokers, cfg.FanoutTopic, rt)
	go bridge.run()
	defer bridge.close()

	srv := &server{
		hub:      h,
		presence: registry,
		router:   rt,
		ids:      node,
	}

	http.HandleFunc("/ws", srv.serveWS)
	http.HandleFunc("/internal/fanout", srv.serveFanout)

	log.Printf("Gateway Service Starting on %s...", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, nil); err != nil {
		log.Fatal(err)
	}
}
