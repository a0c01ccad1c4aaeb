package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/chatconnect/chatconnect-server/internal/log"
	"github.com/chatconnect/chatconnect-server/internal/store"
)

func benchmarkRelay(b *testing.B, online int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, nil, log.Discard(), Options{PresenceTTL: time.Minute})
	go hub.Run(ctx)

	// Populate the registry so receiver resolution pays a realistic cost.
	// Everyone except the target is drained immediately so presence fanout
	// never backs up.
	for i := 0; i < online; i++ {
		s := NewSession(fmt.Sprintf("s%d", i), 64)
		go func(sess *Session) {
			for range sess.Events {
			}
		}(s)
		hub.Dispatch(&Command{Kind: CommandJoin, Session: s, Identity: fmt.Sprintf("u%d", i)})
	}

	target := NewSession("target", 64)
	hub.Dispatch(&Command{Kind: CommandJoin, Session: target, Identity: "receiver"})

	msg := &store.Message{
		ID:       "bench",
		Sender:   "u0",
		Receiver: "receiver",
		Content:  "payload",
		Type:     store.MessageTypeText,
	}

	// Wait for the target's join to settle.
	for ev := range target.Events {
		if ev.Kind == EventJoinConfirmed {
			break
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		hub.Dispatch(&Command{Kind: CommandSendMessage, Message: msg})
		for ev := range target.Events {
			if ev.Kind == EventNewMessage {
				break
			}
		}
	}
}

func BenchmarkRelay_10(b *testing.B)  { benchmarkRelay(b, 10) }
func BenchmarkRelay_100(b *testing.B) { benchmarkRelay(b, 100) }
func BenchmarkRelay_500(b *testing.B) { benchmarkRelay(b, 500) }
