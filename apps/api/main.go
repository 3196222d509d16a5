package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mahaj/realtime-core/pkg/db"
)

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // Allow all for dev, or specific origin
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	redisAddr := getenv("REDIS_ADDR", "localhost:6379")
	kafkaBrokers := strings.Split(getenv("KAFKA_BROKERS", "localhost:19092"), ",")
	fanoutTopic := getenv("KAFKA_FANOUT_TOPIC", "room-fanout")
	addr := getenv("API_ADDR", ":8081")

	presStore := db.NewPresenceStore(redisAddr)
	defer presStore.Close()

	log.Printf("API Service Starting on %s...", addr)

	// Public endpoint
	http.Handle("/login", CORSMiddleware(http.HandlerFunc(LoginHandler)))

	// Protected endpoints
	http.Handle("/presence/online", CORSMiddleware(AuthMiddleware(OnlineUsersHandler(presStore))))

	relayHandler := NewRelayHandler(kafkaBrokers, fanoutTopic)
	defer relayHandler.Close()
	http.Handle("/relay", CORSMiddleware(AuthMiddleware(relayHandler)))

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal(err)
	}
}
