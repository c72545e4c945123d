package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/teamchat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	token := flag.String("token", "", "session token (see `teamchat token`)")
	room := flag.String("room", "", "room id; defaults to the first sidebar room")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" {
		return errors.New("-token is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := &client{base: strings.TrimRight(*server, "/"), token: *token}

	roomID := *room
	if roomID == "" {
		var err error
		if roomID, err = c.firstRoom(ctx); err != nil {
			return err
		}
	}

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(c.base, "http")+"/ws/chat", &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + c.token}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	f, err := expect(ctx, conn, proto.OutboundTypeConnected)
	if err != nil {
		return err
	}
	fmt.Printf("connected as %s\n", f.UserID)

	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSubscribe, RoomID: roomID}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if _, err := expect(ctx, conn, proto.OutboundTypeSubscribed); err != nil {
		return err
	}
	fmt.Printf("subscribed to %s\n", roomID)

	sent, err := c.postMessage(ctx, roomID, *text)
	if err != nil {
		return err
	}

	f, err = expect(ctx, conn, proto.OutboundTypeMessageNew)
	if err != nil {
		return err
	}
	var got proto.Message
	if err := json.Unmarshal(f.Message, &got); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	if got.ID != sent.ID {
		return fmt.Errorf("pushed message %s, expected %s", got.ID, sent.ID)
	}
	fmt.Printf("round trip ok: id=%s sender=%s content=%q at=%s\n", got.ID, got.SenderName, got.Content, got.CreatedAt)
	return nil
}

type serverFrame struct {
	Type    string          `json:"type"`
	UserID  string          `json:"userId"`
	RoomID  string          `json:"roomId"`
	Message json.RawMessage `json:"message"`
}

func expect(ctx context.Context, conn *websocket.Conn, typ string) (serverFrame, error) {
	var f serverFrame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		return f, fmt.Errorf("read %s: %w", typ, err)
	}
	if f.Type == proto.OutboundTypeError {
		var text string
		_ = json.Unmarshal(f.Message, &text)
		return f, fmt.Errorf("server error while waiting for %s: %s", typ, text)
	}
	if f.Type != typ {
		return f, fmt.Errorf("expected %s, got %s", typ, f.Type)
	}
	return f, nil
}

type client struct {
	base  string
	token string
}

func (c *client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) firstRoom(ctx context.Context) (string, error) {
	var sidebar struct {
		Projects []struct {
			Rooms []struct {
				ID string `json:"id"`
			} `json:"rooms"`
		} `json:"projects"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/projects/sidebar", nil, http.StatusOK, &sidebar); err != nil {
		return "", err
	}
	for _, p := range sidebar.Projects {
		if len(p.Rooms) > 0 {
			return p.Rooms[0].ID, nil
		}
	}
	return "", errors.New("no rooms in sidebar")
}

func (c *client) postMessage(ctx context.Context, roomID, content string) (proto.Message, error) {
	var out struct {
		Message proto.Message `json:"message"`
	}
	body := map[string]string{"roomId": roomID, "content": content}
	if err := c.do(ctx, http.MethodPost, "/api/chat/messages", body, http.StatusCreated, &out); err != nil {
		return proto.Message{}, err
	}
	return out.Message, nil
}
