// Smoke test for a running server: signs up a throwaway account, connects
// over WebSocket, joins, and verifies the join confirmation and the online
// snapshot come back.
package main

import (
	"bytes"
	"context"
	"encoding/json"
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

	"github.com/chatconnect/chatconnect-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	email := fmt.Sprintf("smoke-%d@example.com", time.Now().UnixNano())
	token, userID, err := signup(ctx, *server, email)
	if err != nil {
		return err
	}

	wsURL := "ws" + strings.TrimPrefix(*server, "http") + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	joinPayload, err := json.Marshal(proto.JoinData{UserID: userID})
	if err != nil {
		return fmt.Errorf("marshal join: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeJoin, Data: joinPayload}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	confirmed := false
	snapshot := false
	for !confirmed || !snapshot {
		var frame struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		switch frame.Type {
		case proto.OutboundTypeJoinConfirmed:
			var data proto.JoinConfirmedData
			if err := json.Unmarshal(frame.Data, &data); err != nil {
				return fmt.Errorf("unmarshal joinConfirmed: %w", err)
			}
			if data.UserID != userID {
				return fmt.Errorf("joinConfirmed for %s, want %s", data.UserID, userID)
			}
			fmt.Printf("joined as %s (session %s)\n", data.UserID, data.SessionID)
			confirmed = true
		case proto.OutboundTypeOnlineUsers:
			var users []string
			if err := json.Unmarshal(frame.Data, &users); err != nil {
				return fmt.Errorf("unmarshal onlineUsers: %w", err)
			}
			fmt.Printf("online users: %d\n", len(users))
			snapshot = true
		}
	}

	fmt.Println("smoke test passed")
	return nil
}

func signup(ctx context.Context, server, email string) (token, userID string, err error) {
	body, err := json.Marshal(map[string]string{
		"name":     "smoke tester",
		"email":    email,
		"password": "smoke-secret",
	})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/auth/signup", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("signup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return "", "", fmt.Errorf("signup: status %d: %s", resp.StatusCode, raw)
	}

	var out struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"_id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("decode signup: %w", err)
	}
	return out.Token, out.User.ID, nil
}
