package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatconnect/chatconnect-server/internal/presence"
	"github.com/chatconnect/chatconnect-server/internal/store"
)

// ReceiptStore is the slice of the message store the hub needs to persist
// read receipts.
type ReceiptStore interface {
	MarkMessageRead(ctx context.Context, messageID, readBy string) error
}

// Options tunes hub behavior. Zero values fall back to defaults.
type Options struct {
	// ReceiptRetryAttempts bounds read-receipt persistence retries.
	ReceiptRetryAttempts int
	// ReceiptRetryBackoff is the fixed delay between retries.
	ReceiptRetryBackoff time.Duration
	// PresenceTTL drives the refresh interval of the presence mirror.
	PresenceTTL time.Duration
}

func (o *Options) norm() {
	if o.ReceiptRetryAttempts <= 0 {
		o.ReceiptRetryAttempts = 3
	}
	if o.ReceiptRetryBackoff <= 0 {
		o.ReceiptRetryBackoff = 500 * time.Millisecond
	}
	if o.PresenceTTL <= 0 {
		o.PresenceTTL = presence.DefaultTTL
	}
}

// Hub serializes all registry mutation and presence/delivery decisions.
// Sessions talk to it exclusively through Dispatch and Unregister; the Run
// loop is the single goroutine touching session membership, which gives
// join/leave/broadcast a total order per identity.
type Hub struct {
	registry *Registry
	receipts ReceiptStore
	mirror   presence.Mirror
	log      *zerolog.Logger
	opts     Options

	commands   chan *Command
	unregister chan *Session

	// runCtx outlives individual commands; receipt persistence goroutines
	// inherit it so shutdown cancels their retries.
	runCtx context.Context
}

// NewHub builds a hub. mirror may be nil when no presence mirror is configured.
func NewHub(receipts ReceiptStore, mirror presence.Mirror, logger *zerolog.Logger, opts Options) *Hub {
	opts.norm()
	if mirror == nil {
		mirror = presence.Noop{}
	}
	return &Hub{
		registry:   NewRegistry(),
		receipts:   receipts,
		mirror:     mirror,
		log:        logger,
		opts:       opts,
		commands:   make(chan *Command, 64),
		unregister: make(chan *Session, 16),
	}
}

// Dispatch hands a command to the hub loop.
func (h *Hub) Dispatch(cmd *Command) {
	h.commands <- cmd
}

// Unregister removes a session after its transport closed. Safe to call for
// sessions that never joined or were already evicted.
func (h *Hub) Unregister(s *Session) {
	h.unregister <- s
}

// Online returns the number of live sessions, for health reporting.
func (h *Hub) Online() int {
	return h.registry.Len()
}

// Run processes commands until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.runCtx = ctx

	refresh := time.NewTicker(h.opts.PresenceTTL / 2)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, s := range h.registry.Sessions() {
				h.registry.Leave(s.ID)
				s.Close()
			}
			return
		case cmd := <-h.commands:
			h.handle(cmd)
		case s := <-h.unregister:
			h.handleLeave(s)
		case <-refresh.C:
			h.refreshMirror()
		}
	}
}

func (h *Hub) handle(cmd *Command) {
	switch cmd.Kind {
	case CommandJoin:
		h.handleJoin(cmd.Session, cmd.Identity)
	case CommandSendMessage:
		h.handleRelay(cmd.Message)
	case CommandTyping:
		h.handleTyping(cmd.Typing, true)
	case CommandStopTyping:
		h.handleTyping(cmd.Typing, false)
	case CommandMessageRead:
		h.handleRead(cmd.Receipt)
	}
}

// handleJoin installs the identity mapping, evicting any prior session for
// the same identity, then announces presence. Registry mutation happens
// before any broadcast so a session's own online/offline events are never
// reordered relative to its join/leave.
func (h *Hub) handleJoin(s *Session, identity string) {
	// A session the hub already closed (evicted or overflowed) may still
	// deliver commands until its read loop notices. Re-installing it would
	// displace the live session and send into a closed channel.
	if s.Closed() {
		return
	}

	evicted := h.registry.Join(identity, s)
	if evicted != nil {
		// Best effort notice, then cut the displaced session loose.
		h.trySend(evicted, &Event{
			Kind:  EventError,
			Error: coreError(ErrCodeSessionReplaced, "signed in from another connection"),
		})
		evicted.Close()
		h.log.Info().
			Str("user_id", identity).
			Str("session_id", evicted.ID).
			Msg("evicted prior session on re-join")
	}

	for _, peer := range h.registry.Sessions() {
		if peer.ID == s.ID {
			continue
		}
		h.trySend(peer, &Event{Kind: EventUserOnline, User: identity})
	}

	h.trySend(s, &Event{Kind: EventOnlineUsers, Users: h.registry.Snapshot()})
	h.trySend(s, &Event{Kind: EventJoinConfirmed, User: identity, SessionID: s.ID})

	h.mirrorOnline(identity)
	h.log.Debug().Str("user_id", identity).Str("session_id", s.ID).Msg("session joined")
}

func (h *Hub) handleLeave(s *Session) {
	if left, ok := h.registry.Leave(s.ID); ok {
		h.announceOffline(left)
	}
	s.Close()
}

// handleRelay forwards an already-persisted message to the receiver's live
// session. Offline receiver is a silent no-op: the store stays the source of
// truth and the next history fetch delivers it.
func (h *Hub) handleRelay(msg *store.Message) {
	target, ok := h.registry.Resolve(msg.Receiver)
	if !ok {
		return
	}
	h.trySend(target, &Event{Kind: EventNewMessage, Message: msg})
}

func (h *Hub) handleTyping(sig *TypingSignal, isTyping bool) {
	target, ok := h.registry.Resolve(sig.ReceiverID)
	if !ok {
		return
	}
	h.trySend(target, &Event{
		Kind:   EventUserTyping,
		Typing: &TypingEvent{UserID: sig.SenderID, IsTyping: isTyping},
	})
}

// handleRead pushes the receipt to the original sender right away and
// persists it in the background. The two effects are deliberately decoupled:
// a store failure never retracts the push, and the retried write converges
// the store even when the sender is offline.
func (h *Hub) handleRead(receipt *ReadReceipt) {
	if sender, ok := h.registry.Resolve(receipt.SenderID); ok {
		h.trySend(sender, &Event{
			Kind: EventMessageRead,
			Read: &ReadEvent{MessageID: receipt.MessageID, ReadBy: receipt.ReadBy},
		})
	}

	if h.receipts != nil {
		go h.persistReceipt(receipt.MessageID, receipt.ReadBy)
	}
}

func (h *Hub) persistReceipt(messageID, readBy string) {
	ctx := h.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	for attempt := 1; attempt <= h.opts.ReceiptRetryAttempts; attempt++ {
		if err = h.receipts.MarkMessageRead(ctx, messageID, readBy); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(h.opts.ReceiptRetryBackoff):
		}
	}

	// Exhausted. The socket push already gave the sender feedback and the
	// next conversation fetch reconciles, so log and move on.
	h.log.Error().
		Err(err).
		Str("message_id", messageID).
		Str("read_by", readBy).
		Int("attempts", h.opts.ReceiptRetryAttempts).
		Msg("read receipt persistence failed")
}

// trySend enqueues without blocking. A session that can't keep up is dropped
// entirely rather than stalling the hub.
func (h *Hub) trySend(s *Session, ev *Event) {
	if s.Closed() {
		return
	}
	select {
	case s.Events <- ev:
	default:
		h.log.Warn().
			Str("session_id", s.ID).
			Str("user_id", s.Identity).
			Msg("session queue overflow, disconnecting")
		if left, ok := h.registry.Leave(s.ID); ok {
			h.announceOffline(left)
		}
		s.Close()
	}
}

func (h *Hub) announceOffline(s *Session) {
	for _, peer := range h.registry.Sessions() {
		h.trySend(peer, &Event{Kind: EventUserOffline, User: s.Identity})
	}
	h.mirrorOffline(s.Identity)
	h.log.Debug().Str("user_id", s.Identity).Str("session_id", s.ID).Msg("session left")
}

func (h *Hub) mirrorOnline(identity string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.mirror.Online(ctx, identity); err != nil {
			h.log.Warn().Err(err).Str("user_id", identity).Msg("presence mirror online failed")
		}
	}()
}

func (h *Hub) mirrorOffline(identity string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.mirror.Offline(ctx, identity); err != nil {
			h.log.Warn().Err(err).Str("user_id", identity).Msg("presence mirror offline failed")
		}
	}()
}

func (h *Hub) refreshMirror() {
	identities := h.registry.Snapshot()
	if len(identities) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, identity := range identities {
			if err := h.mirror.Online(ctx, identity); err != nil {
				h.log.Warn().Err(err).Str("user_id", identity).Msg("presence mirror refresh failed")
				return
			}
		}
	}()
}
