package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/chatconnect/chatconnect-server/internal/core"
	"github.com/chatconnect/chatconnect-server/internal/proto"
)

func TestWSRejectsMissingToken(t *testing.T) {
	env := startTestServer(t)

	resp, err := stdhttp.Get(env.ts.URL + "/ws")
	if err != nil {
		t.Fatalf("get /ws: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWSRejectsInvalidToken(t *testing.T) {
	env := startTestServer(t)
	ctx := context.Background()

	if _, _, err := websocket.Dial(ctx, env.wsURL("garbage"), nil); err == nil {
		t.Fatal("dial with invalid token succeeded")
	}
}

func TestWSJoinDeliversSnapshotAndPresence(t *testing.T) {
	env := startTestServer(t)
	ctx := context.Background()

	alice := env.signup(t, "Alice", "alice@example.com")
	bob := env.signup(t, "Bob", "bob@example.com")

	aliceConn := env.dialWS(t, ctx, alice.Token, alice.User.ID)

	snapshot := mustFrame(t, ctx, aliceConn, proto.OutboundTypeOnlineUsers)
	users := decodeFrame[[]string](t, snapshot)
	if len(users) != 1 || users[0] != alice.User.ID {
		t.Fatalf("expected snapshot [%s], got %v", alice.User.ID, users)
	}

	confirmed := decodeFrame[proto.JoinConfirmedData](t, mustFrame(t, ctx, aliceConn, proto.OutboundTypeJoinConfirmed))
	if confirmed.UserID != alice.User.ID || confirmed.SessionID == "" {
		t.Fatalf("unexpected join confirmation: %+v", confirmed)
	}

	bobConn := env.dialWS(t, ctx, bob.Token, bob.User.ID)

	online := decodeFrame[proto.PresenceData](t, mustFrame(t, ctx, aliceConn, proto.OutboundTypeUserOnline))
	if online.UserID != bob.User.ID {
		t.Fatalf("expected %s online, got %s", bob.User.ID, online.UserID)
	}

	bobSnapshot := decodeFrame[[]string](t, mustFrame(t, ctx, bobConn, proto.OutboundTypeOnlineUsers))
	if len(bobSnapshot) != 2 {
		t.Fatalf("expected snapshot of 2 identities, got %v", bobSnapshot)
	}
}

func TestWSJoinIdentityMismatch(t *testing.T) {
	env := startTestServer(t)
	ctx := context.Background()

	alice := env.signup(t, "Alice", "alice@example.com")
	bob := env.signup(t, "Bob", "bob@example.com")

	conn, _, err := websocket.Dial(ctx, env.wsURL(alice.Token), nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })

	// Join as bob over alice's token.
	sendFrame(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{UserID: bob.User.ID})

	frame := mustFrame(t, ctx, conn, proto.OutboundTypeError)
	if frame.Error == nil || frame.Error.Code != core.ErrCodeIdentityMismatch {
		t.Fatalf("expected identity_mismatch error, got %+v", frame.Error)
	}
}

func TestWSMessageRelayAndReadReceipt(t *testing.T) {
	env := startTestServer(t)
	ctx := context.Background()

	alice := env.signup(t, "Alice", "alice@example.com")
	bob := env.signup(t, "Bob", "bob@example.com")

	aliceConn := env.dialWS(t, ctx, alice.Token, alice.User.ID)
	mustFrame(t, ctx, aliceConn, proto.OutboundTypeJoinConfirmed)
	bobConn := env.dialWS(t, ctx, bob.Token, bob.User.ID)
	mustFrame(t, ctx, bobConn, proto.OutboundTypeJoinConfirmed)

	// Persist over REST first, then echo over the socket for relay.
	resp, body := env.postJSON(t, "/api/messages", alice.Token, CreateMessageRequest{
		Sender:   alice.User.ID,
		Receiver: bob.User.ID,
		Content:  "hello bob",
	})
	if resp.StatusCode != stdhttp.StatusCreated {
		t.Fatalf("create message: status %d, body %s", resp.StatusCode, body)
	}
	var created MessageResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode created message: %v", err)
	}

	sendFrame(t, ctx, aliceConn, proto.InboundTypeSendMessage, proto.MessageData{
		ID:        created.Message.ID,
		Sender:    alice.User.ID,
		Receiver:  bob.User.ID,
		Content:   created.Message.Content,
		Type:      created.Message.Type,
		Timestamp: created.Message.Timestamp,
	})

	pushed := decodeFrame[proto.MessageData](t, mustFrame(t, ctx, bobConn, proto.OutboundTypeNewMessage))
	if pushed.ID != created.Message.ID || pushed.Content != "hello bob" {
		t.Fatalf("unexpected relayed message: %+v", pushed)
	}

	// Bob reads it; alice gets the receipt pushed back.
	sendFrame(t, ctx, bobConn, proto.InboundTypeMessageRead, proto.ReadData{
		MessageID: created.Message.ID,
		SenderID:  alice.User.ID,
	})

	receipt := decodeFrame[proto.MessageReadData](t, mustFrame(t, ctx, aliceConn, proto.OutboundTypeMessageRead))
	if receipt.MessageID != created.Message.ID || receipt.ReadBy != bob.User.ID {
		t.Fatalf("unexpected read receipt: %+v", receipt)
	}

	// The receipt also lands in the store.
	deadline := time.Now().Add(2 * time.Second)
	for {
		m, err := env.st.GetMessageByID(ctx, created.Message.ID)
		if err != nil {
			t.Fatalf("get message: %v", err)
		}
		if m.IsRead {
			if m.ReadBy != bob.User.ID {
				t.Fatalf("read by %q, want %q", m.ReadBy, bob.User.ID)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("read receipt never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSSendToOfflineReceiverPersistsOnly(t *testing.T) {
	env := startTestServer(t)
	ctx := context.Background()

	alice := env.signup(t, "Alice", "alice@example.com")
	bob := env.signup(t, "Bob", "bob@example.com")

	aliceConn := env.dialWS(t, ctx, alice.Token, alice.User.ID)
	mustFrame(t, ctx, aliceConn, proto.OutboundTypeJoinConfirmed)

	resp, body := env.postJSON(t, "/api/messages", alice.Token, CreateMessageRequest{
		Sender:   alice.User.ID,
		Receiver: bob.User.ID,
		Content:  "while you were away",
	})
	if resp.StatusCode != stdhttp.StatusCreated {
		t.Fatalf("create message: status %d, body %s", resp.StatusCode, body)
	}
	var created MessageResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode created message: %v", err)
	}

	// Bob is offline: the relay attempt is a silent no-op.
	sendFrame(t, ctx, aliceConn, proto.InboundTypeSendMessage, proto.MessageData{
		ID:       created.Message.ID,
		Sender:   alice.User.ID,
		Receiver: bob.User.ID,
		Content:  created.Message.Content,
	})

	// The store holds it unread until bob fetches the conversation.
	m, err := env.st.GetMessageByID(ctx, created.Message.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if m.IsRead {
		t.Fatalf("offline message already read: %+v", m)
	}

	resp, body = env.doJSON(t, stdhttp.MethodGet, "/api/messages/"+alice.User.ID, bob.Token, nil)
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("get conversation: status %d, body %s", resp.StatusCode, body)
	}
	var conv MessagesResponse
	if err := json.Unmarshal(body, &conv); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Content != "while you were away" {
		t.Fatalf("fetch did not deliver the offline message: %+v", conv.Messages)
	}
}

func TestWSTypingIndicator(t *testing.T) {
	env := startTestServer(t)
	ctx := context.Background()

	alice := env.signup(t, "Alice", "alice@example.com")
	bob := env.signup(t, "Bob", "bob@example.com")

	aliceConn := env.dialWS(t, ctx, alice.Token, alice.User.ID)
	mustFrame(t, ctx, aliceConn, proto.OutboundTypeJoinConfirmed)
	bobConn := env.dialWS(t, ctx, bob.Token, bob.User.ID)
	mustFrame(t, ctx, bobConn, proto.OutboundTypeJoinConfirmed)

	sendFrame(t, ctx, aliceConn, proto.InboundTypeTyping, proto.TypingData{
		SenderID:   alice.User.ID,
		ReceiverID: bob.User.ID,
	})
	typing := decodeFrame[proto.UserTypingData](t, mustFrame(t, ctx, bobConn, proto.OutboundTypeUserTyping))
	if typing.UserID != alice.User.ID || !typing.IsTyping {
		t.Fatalf("unexpected typing event: %+v", typing)
	}

	sendFrame(t, ctx, aliceConn, proto.InboundTypeStopTyping, proto.TypingData{
		SenderID:   alice.User.ID,
		ReceiverID: bob.User.ID,
	})
	stopped := decodeFrame[proto.UserTypingData](t, mustFrame(t, ctx, bobConn, proto.OutboundTypeUserTyping))
	if stopped.IsTyping {
		t.Fatal("expected stop-typing event")
	}
}

func TestWSRejoinEvictsPriorConnection(t *testing.T) {
	env := startTestServer(t)
	ctx := context.Background()

	alice := env.signup(t, "Alice", "alice@example.com")

	first := env.dialWS(t, ctx, alice.Token, alice.User.ID)
	mustFrame(t, ctx, first, proto.OutboundTypeJoinConfirmed)

	second := env.dialWS(t, ctx, alice.Token, alice.User.ID)
	mustFrame(t, ctx, second, proto.OutboundTypeJoinConfirmed)

	frame := mustFrame(t, ctx, first, proto.OutboundTypeError)
	if frame.Error == nil || frame.Error.Code != core.ErrCodeSessionReplaced {
		t.Fatalf("expected session_replaced error, got %+v", frame.Error)
	}

	// The server closes the displaced connection shortly after the notice.
	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var discard wsFrame
	if err := wsjson.Read(readCtx, first, &discard); err == nil {
		t.Fatalf("displaced connection still delivering frames: %+v", discard)
	}
}

func TestWSUnknownFrameType(t *testing.T) {
	env := startTestServer(t)
	ctx := context.Background()

	alice := env.signup(t, "Alice", "alice@example.com")
	conn := env.dialWS(t, ctx, alice.Token, alice.User.ID)
	mustFrame(t, ctx, conn, proto.OutboundTypeJoinConfirmed)

	sendFrame(t, ctx, conn, "teleport", struct{}{})
	frame := mustFrame(t, ctx, conn, proto.OutboundTypeError)
	if frame.Error == nil || frame.Error.Code != core.ErrCodeInvalidMessage {
		t.Fatalf("expected invalid_message error, got %+v", frame.Error)
	}
}

func TestWSDisconnectAnnouncesOffline(t *testing.T) {
	env := startTestServer(t)
	ctx := context.Background()

	alice := env.signup(t, "Alice", "alice@example.com")
	bob := env.signup(t, "Bob", "bob@example.com")

	aliceConn := env.dialWS(t, ctx, alice.Token, alice.User.ID)
	mustFrame(t, ctx, aliceConn, proto.OutboundTypeJoinConfirmed)
	bobConn := env.dialWS(t, ctx, bob.Token, bob.User.ID)
	mustFrame(t, ctx, bobConn, proto.OutboundTypeJoinConfirmed)
	mustFrame(t, ctx, aliceConn, proto.OutboundTypeUserOnline)

	bobConn.Close(websocket.StatusNormalClosure, "bye")

	offline := decodeFrame[proto.PresenceData](t, mustFrame(t, ctx, aliceConn, proto.OutboundTypeUserOffline))
	if offline.UserID != bob.User.ID {
		t.Fatalf("expected %s offline, got %s", bob.User.ID, offline.UserID)
	}
}
