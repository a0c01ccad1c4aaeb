// Interactive two-party chat client. Logs in over the REST API, opens a
// conversation with a partner, then bridges stdin and the WebSocket while a
// Reconciler keeps the local view consistent with the server.
package main

import (
	"bufio"
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
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/chatconnect/chatconnect-server/internal/client"
	"github.com/chatconnect/chatconnect-server/internal/proto"
	"github.com/chatconnect/chatconnect-server/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

type apiUser struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type chatApp struct {
	server string
	token  string
	self   apiUser

	mu       sync.Mutex
	rec      *client.Reconciler
	epoch    uint64
	notifier *client.TypingNotifier
	partner  apiUser
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	email := flag.String("email", "", "account email")
	password := flag.String("password", "", "account password")
	partner := flag.String("partner", "", "partner email to chat with")
	flag.Parse()

	if *email == "" || *password == "" || *partner == "" {
		return errors.New("-email, -password and -partner are required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	app := &chatApp{server: *server}
	if err := app.login(ctx, *email, *password); err != nil {
		return err
	}
	if err := app.resolvePartner(ctx, *partner); err != nil {
		return err
	}

	app.rec = client.NewReconciler(app.self.ID)
	app.notifier = client.NewTypingNotifier(client.DefaultTypingDebounce)
	app.epoch = app.rec.Open(app.partner.ID)

	if err := app.loadHistory(ctx); err != nil {
		return err
	}

	wsURL := "ws" + strings.TrimPrefix(app.server, "http") + "/ws?token=" + app.token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	joinPayload, err := json.Marshal(proto.JoinData{UserID: app.self.ID})
	if err != nil {
		return fmt.Errorf("marshal join: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeJoin, Data: joinPayload}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	fmt.Printf("Chatting with %s (%s) as %s\n", app.partner.Name, app.partner.Email, app.self.Name)
	for _, v := range app.rec.Messages() {
		printMessage(app, v.Message)
	}
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		app.readLoop(ctx, conn)
	}()

	app.writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func (a *chatApp) login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	var resp struct {
		Token string  `json:"token"`
		User  apiUser `json:"user"`
	}
	if err := a.doJSON(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	a.token = resp.Token
	a.self = resp.User
	return nil
}

func (a *chatApp) resolvePartner(ctx context.Context, email string) error {
	var resp struct {
		Users []apiUser `json:"users"`
	}
	if err := a.doJSON(ctx, http.MethodGet, "/api/users", nil, &resp); err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, u := range resp.Users {
		if u.Email == email {
			a.partner = u
			return nil
		}
	}
	return fmt.Errorf("no user with email %s", email)
}

// loadHistory fetches the conversation and installs it under the current
// epoch. The fetch also marks the partner's messages as read server-side.
func (a *chatApp) loadHistory(ctx context.Context) error {
	var resp struct {
		Messages []proto.MessageData `json:"messages"`
	}
	if err := a.doJSON(ctx, http.MethodGet, "/api/messages/"+a.partner.ID, nil, &resp); err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	msgs := make([]*store.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		stored := toStoreMessage(m)
		msgs = append(msgs, &stored)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.rec.ApplyHistory(a.epoch, msgs) {
		return errors.New("history applied to a stale conversation")
	}
	return nil
}

func toStoreMessage(m proto.MessageData) store.Message {
	return store.Message{
		ID:        m.ID,
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Content:   m.Content,
		Type:      store.MessageType(m.Type),
		Timestamp: m.Timestamp,
		IsRead:    m.IsRead,
		ReadAt:    m.ReadAt,
		ReadBy:    m.ReadBy,
	}
}

func (a *chatApp) doJSON(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, a.server+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *chatApp) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame struct {
			Type  string          `json:"type"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch frame.Type {
		case proto.OutboundTypeNewMessage:
			var msg proto.MessageData
			if err := json.Unmarshal(frame.Data, &msg); err != nil {
				log.Printf("unmarshal newMessage: %v", err)
				continue
			}
			a.mu.Lock()
			applied := a.rec.ApplyPush(a.epoch, toStoreMessage(msg))
			a.mu.Unlock()
			if applied {
				fmt.Printf("%s: %s\n", a.partner.Name, msg.Content)
			}
		case proto.OutboundTypeUserTyping:
			var typing proto.UserTypingData
			if err := json.Unmarshal(frame.Data, &typing); err != nil {
				log.Printf("unmarshal userTyping: %v", err)
				continue
			}
			a.mu.Lock()
			applied := a.rec.ApplyTyping(typing.UserID, typing.IsTyping)
			a.mu.Unlock()
			if applied && typing.IsTyping {
				fmt.Printf("%s is typing...\n", a.partner.Name)
			}
		case proto.OutboundTypeMessageRead:
			var read proto.MessageReadData
			if err := json.Unmarshal(frame.Data, &read); err != nil {
				log.Printf("unmarshal messageRead: %v", err)
				continue
			}
			a.mu.Lock()
			applied := a.rec.ApplyRead(a.epoch, read.MessageID, read.ReadBy, time.Now())
			a.mu.Unlock()
			if applied {
				fmt.Println("(read)")
			}
		case proto.OutboundTypeUserOnline:
			var presence proto.PresenceData
			if err := json.Unmarshal(frame.Data, &presence); err == nil && presence.UserID == a.partner.ID {
				fmt.Printf("%s is online\n", a.partner.Name)
			}
		case proto.OutboundTypeUserOffline:
			var presence proto.PresenceData
			if err := json.Unmarshal(frame.Data, &presence); err == nil && presence.UserID == a.partner.ID {
				fmt.Printf("%s went offline\n", a.partner.Name)
			}
		case proto.OutboundTypeError:
			if frame.Error != nil {
				log.Printf("server error: %s: %s", frame.Error.Code, frame.Error.Msg)
			}
		}
	}
}

func (a *chatApp) writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.mu.Lock()
			expired := a.notifier.Expire(now)
			a.mu.Unlock()
			if expired {
				a.sendTyping(ctx, conn, proto.InboundTypeStopTyping)
			}
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			a.mu.Lock()
			startedTyping := a.notifier.Keystroke(time.Now())
			a.mu.Unlock()
			if startedTyping {
				a.sendTyping(ctx, conn, proto.InboundTypeTyping)
			}

			if err := a.sendMessage(ctx, conn, text); err != nil {
				log.Printf("send error: %v", err)
				return
			}

			a.mu.Lock()
			stopped := a.notifier.MessageSent()
			a.mu.Unlock()
			if stopped {
				a.sendTyping(ctx, conn, proto.InboundTypeStopTyping)
			}
		}
	}
}

// sendMessage persists over REST, confirms the optimistic record, then echoes
// the stored message over the socket for relay. On a failed POST the pending
// record is rolled back and the draft handed back to the user.
func (a *chatApp) sendMessage(ctx context.Context, conn *websocket.Conn, text string) error {
	a.mu.Lock()
	localID := a.rec.AppendLocal(text, store.MessageTypeText)
	a.mu.Unlock()

	body := map[string]string{
		"sender":   a.self.ID,
		"receiver": a.partner.ID,
		"content":  text,
	}
	var resp struct {
		Message proto.MessageData `json:"message"`
	}
	if err := a.doJSON(ctx, http.MethodPost, "/api/messages", body, &resp); err != nil {
		a.mu.Lock()
		draft, _ := a.rec.FailSend(localID)
		a.mu.Unlock()
		fmt.Printf("send failed, draft restored: %s\n", draft)
		return nil
	}

	a.mu.Lock()
	a.rec.ConfirmSend(localID, toStoreMessage(resp.Message))
	a.mu.Unlock()

	payload, err := json.Marshal(resp.Message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSendMessage, Data: payload})
}

func (a *chatApp) sendTyping(ctx context.Context, conn *websocket.Conn, frameType string) {
	payload, err := json.Marshal(proto.TypingData{
		SenderID:   a.self.ID,
		ReceiverID: a.partner.ID,
	})
	if err != nil {
		log.Printf("marshal typing: %v", err)
		return
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: frameType, Data: payload}); err != nil {
		log.Printf("send typing: %v", err)
	}
}

func printMessage(a *chatApp, m store.Message) {
	name := a.partner.Name
	if m.Sender == a.self.ID {
		name = "you"
	}
	fmt.Printf("%s: %s\n", name, m.Content)
}
