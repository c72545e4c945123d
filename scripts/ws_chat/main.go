package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/teamchat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	token := flag.String("token", "", "session token (see `teamchat token`)")
	room := flag.String("room", "", "room id to subscribe to")
	flag.Parse()

	if *token == "" || *room == "" {
		return errors.New("-token and -room are required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	header := http.Header{"Authorization": {"Bearer " + *token}}
	wsURL := "ws" + strings.TrimPrefix(*server, "http") + "/ws/chat"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSubscribe, RoomID: *room}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	fmt.Printf("Connected to %s, room %s\n", wsURL, *room)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, *server, *token, *room)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

type serverFrame struct {
	Type    string          `json:"type"`
	UserID  string          `json:"userId"`
	RoomID  string          `json:"roomId"`
	Message json.RawMessage `json:"message"`
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f serverFrame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			case websocket.StatusPolicyViolation:
				log.Printf("rejected by server: %v", err)
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch f.Type {
		case proto.OutboundTypeConnected:
			fmt.Printf("authenticated as %s\n", f.UserID)
		case proto.OutboundTypeSubscribed:
			fmt.Printf("subscribed to %s\n", f.RoomID)
		case proto.OutboundTypeMessageNew:
			var msg proto.Message
			if err := json.Unmarshal(f.Message, &msg); err != nil {
				log.Printf("unmarshal message: %v", err)
				continue
			}
			fmt.Printf("[%s] %s: %s\n", msg.CreatedAt, msg.SenderName, msg.Content)
		case proto.OutboundTypeError:
			var text string
			_ = json.Unmarshal(f.Message, &text)
			fmt.Printf("error: %s\n", text)
		default:
			fmt.Printf("unknown frame type=%s\n", f.Type)
		}
	}
}

func writeLoop(ctx context.Context, server, token, room string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := postMessage(ctx, server, token, room, text); err != nil {
				log.Printf("send error: %v", err)
			}
		}
	}
}

// postMessage sends through the HTTP API; the server pushes it back over the socket.
func postMessage(ctx context.Context, server, token, room, content string) error {
	body, err := json.Marshal(map[string]string{"roomId": room, "content": content})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/chat/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		var e struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("status %d: %s %s", resp.StatusCode, e.Error, e.Details)
	}
	return nil
}
