package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/mahaj/realtime-core/pkg/db"
)

// OnlineUsersHandler reports who has at least one live connection on any
// gateway, from the snapshots the gateways write to Redis.
func OnlineUsersHandler(store *db.PresenceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := store.OnlineUsers(r.Context())
		if err != nil {
			log.Printf("Failed to fetch online users: %v", err)
			http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(users)
	}
}
