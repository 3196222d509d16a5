package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/mahaj/realtime-core/pkg/auth"
	"github.com/mahaj/realtime-core/pkg/event"
	"github.com/mahaj/realtime-core/pkg/hub"
	"github.com/mahaj/realtime-core/pkg/presence"
	"github.com/mahaj/realtime-core/pkg/router"
	"github.com/mahaj/realtime-core/pkg/snowflake"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

type server struct {
	hub      *hub.Hub
	presence *presence.Registry
	router   *router.Router
	ids      *snowflake.Node
}

// serveWS authenticates the handshake, admits the connection, and runs
// its pumps. Auth runs exactly once, before the upgrade; the rejection
// reason distinguishes a missing credential from a bad one.
func (s *server) serveWS(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.Authenticate(r)
	if err != nil {
		reason := "invalid credential"
		if errors.Is(err, auth.ErrNoCredential) {
			reason = "no credential"
		}
		log.Printf("Unauthorized: %v", err)
		http.Error(w, "Unauthorized: "+reason, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := hub.NewClient(s.hub, conn, userID, s.ids.GenerateString(), s.router)
	s.hub.Register(client)
	s.presence.Connect(userID)
	log.Printf("Client connected: user %s conn %s", client.UserID, client.ConnID)

	go client.WritePump()
	client.ReadPump()

	// The connection is gone: any in-flight store writes still complete,
	// but no new frames from it are accepted past this point.
	s.hub.Unregister(client)
	s.presence.Disconnect(userID)
	log.Printf("Client disconnected: user %s conn %s", client.UserID, client.ConnID)
}

type fanoutRequest struct {
	Room    string          `json:"room"`
	Type    event.Type      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// serveFanout is the collaborator-facing fanout primitive: the request
// layer calls it after persisting a message, friend request, or channel
// so live connections in the target room hear about it.
func (s *server) serveFanout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req fanoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Room == "" || req.Type == "" {
		http.Error(w, "room and type are required", http.StatusBadRequest)
		return
	}

	s.router.RelayExternal(req.Room, req.Type, req.Payload)
	w.WriteHeader(http.StatusAccepted)
}
