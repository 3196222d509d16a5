package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/realtime-core/pkg/event"
	"github.com/mahaj/realtime-core/pkg/model"
)

type LoginResponse struct {
	Token string `json:"token"`
}

func login(apiAddr, userID string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"user_id": userID})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", string(body))
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", err
	}

	return loginResp.Token, nil
}

func send(conn *websocket.Conn, t event.Type, payload interface{}) {
	frame, err := event.Marshal(0, t, payload)
	if err != nil {
		log.Printf("marshal failed: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Printf("write failed: %v", err)
	}
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.String("user", "user1", "user id")
	channelID := flag.String("channel", "general", "channel id to join on connect")
	flag.Parse()

	// 1. Login to get token
	log.Printf("Logging in as %s...", *userID)
	token, err := login(*apiAddr, *userID)
	if err != nil {
		log.Fatal("Login failed:", err)
	}
	log.Printf("Login successful. Token: %s...", token[:10])

	// 2. Connect to WebSocket with token
	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer conn.Close()

	send(conn, event.TypeJoinRoom, event.RoomPayload{ChannelID: *channelID})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}
			fmt.Printf("<< %s\n", data)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	fmt.Println("Commands: /join <ch>, /leave <ch>, /delivered <msg> <sender>, /read <msg> <sender>, /typing <on|off>, anything else relays a message")
	input := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- scanner.Text()
		}
		close(input)
	}()

	current := *channelID
	for {
		select {
		case line, ok := <-input:
			if !ok {
				return
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			switch fields[0] {
			case "/join":
				if len(fields) == 2 {
					current = fields[1]
					send(conn, event.TypeJoinRoom, event.RoomPayload{ChannelID: current})
				}
			case "/leave":
				if len(fields) == 2 {
					send(conn, event.TypeLeaveRoom, event.RoomPayload{ChannelID: fields[1]})
				}
			case "/delivered":
				if len(fields) == 3 {
					send(conn, event.TypeMessageDelivered, event.StatusSignalPayload{
						ChannelID: current, MessageID: fields[1], SenderID: fields[2],
					})
				}
			case "/read":
				if len(fields) == 3 {
					send(conn, event.TypeMessageRead, event.StatusSignalPayload{
						ChannelID: current, MessageID: fields[1], SenderID: fields[2],
					})
				}
			case "/typing":
				t := event.TypeTypingStop
				if len(fields) == 2 && fields[1] == "on" {
					t = event.TypeTypingStart
				}
				send(conn, t, event.TypingPayload{ChannelID: current})
			default:
				send(conn, event.TypeNewMessage, event.NewMessagePayload{
					ChannelID: current,
					Message: model.Message{
						ChannelID: current,
						SenderID:  *userID,
						Content:   line,
					},
				})
			}
		case <-done:
			return
		case <-interrupt:
			log.Println("interrupt")
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
