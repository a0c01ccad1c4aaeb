// Package client implements the per-conversation reconciliation state
// machine used by chat clients: it merges fetched history, optimistic local
// sends, relay pushes and read receipts into one consistent view, and guards
// every applied result with a conversation epoch so responses belonging to an
// abandoned conversation switch are dropped.
//
// A Reconciler is driven by a single goroutine (one control flow per tab);
// it is not safe for concurrent use.
package client

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chatconnect/chatconnect-server/internal/store"
)

// State tracks the lifecycle of the open conversation.
type State int

const (
	// StateIdle means no conversation is open.
	StateIdle State = iota
	// StateLoading means a history fetch is in flight.
	StateLoading
	// StateReady means history is applied and the view is live.
	StateReady
)

// MessageView layers reconciliation metadata over a message. A view is
// either Pending (optimistic local send awaiting confirmation, identified by
// LocalID) or Confirmed (server-assigned Message.ID is authoritative).
type MessageView struct {
	Pending bool
	LocalID string
	Message store.Message
}

var localSeq atomic.Uint64

// nextLocalID returns a locally unique id for an optimistic message.
func nextLocalID() string {
	return fmt.Sprintf("local-%d", localSeq.Add(1))
}

// Reconciler merges server-confirmed and socket-pushed state with optimistic
// local state for one conversation at a time.
type Reconciler struct {
	self    string
	partner string
	epoch   uint64
	state   State
	views   []MessageView

	partnerTyping bool
}

// NewReconciler constructs a reconciler for the given local identity.
func NewReconciler(self string) *Reconciler {
	return &Reconciler{self: self}
}

// Open switches to a conversation with the given partner: all in-memory
// message state is discarded and a new epoch token is issued. Any in-flight
// response captured under an earlier epoch becomes a no-op.
func (r *Reconciler) Open(partner string) uint64 {
	r.partner = partner
	r.epoch++
	r.state = StateLoading
	r.views = nil
	r.partnerTyping = false
	return r.epoch
}

// Epoch returns the current conversation token.
func (r *Reconciler) Epoch() uint64 { return r.epoch }

// State returns the current conversation state.
func (r *Reconciler) State() State { return r.state }

// Partner returns the identity of the open conversation partner.
func (r *Reconciler) Partner() string { return r.partner }

// Messages returns the current merged view, oldest first.
func (r *Reconciler) Messages() []MessageView { return r.views }

// PartnerTyping reports whether the open partner is currently typing.
func (r *Reconciler) PartnerTyping() bool { return r.partnerTyping }

// ApplyHistory installs a fetched conversation history. Returns false and
// changes nothing when the epoch is stale (the user switched conversations
// while the fetch was in flight).
func (r *Reconciler) ApplyHistory(epoch uint64, msgs []*store.Message) bool {
	if epoch != r.epoch {
		return false
	}
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, MessageView{Message: *m})
	}
	r.views = views
	r.state = StateReady
	return true
}

// AppendLocal appends an optimistic pending message for the open conversation
// and returns its local id, used later to confirm or roll back the send.
func (r *Reconciler) AppendLocal(content string, msgType store.MessageType) string {
	if msgType == "" {
		msgType = store.MessageTypeText
	}
	localID := nextLocalID()
	r.views = append(r.views, MessageView{
		Pending: true,
		LocalID: localID,
		Message: store.Message{
			Sender:    r.self,
			Receiver:  r.partner,
			Content:   content,
			Type:      msgType,
			Timestamp: time.Now(),
		},
	})
	return localID
}

// ConfirmSend replaces the pending record carrying localID, in place, with
// the server-confirmed message. Matching is by local id, never by content.
// Returns false when no such pending record exists (e.g. the conversation
// was switched and the view discarded).
func (r *Reconciler) ConfirmSend(localID string, confirmed store.Message) bool {
	for i := range r.views {
		if r.views[i].Pending && r.views[i].LocalID == localID {
			r.views[i] = MessageView{Message: confirmed}
			return true
		}
	}
	return false
}

// FailSend removes the pending record and hands its content back so the UI
// can restore the composer. The message must never linger in a phantom
// "sent" state.
func (r *Reconciler) FailSend(localID string) (content string, ok bool) {
	for i := range r.views {
		if r.views[i].Pending && r.views[i].LocalID == localID {
			content = r.views[i].Message.Content
			r.views = append(r.views[:i], r.views[i+1:]...)
			return content, true
		}
	}
	return "", false
}

// ApplyPush merges a relay-pushed message into the view. It is dropped when
// the epoch is stale, when it belongs to a different conversation, or when
// its server id is already present (the send's own confirmation races the
// relay push; dedup is keyed on the server-assigned id).
func (r *Reconciler) ApplyPush(epoch uint64, msg store.Message) bool {
	if epoch != r.epoch || r.state != StateReady {
		return false
	}
	if !r.inConversation(msg.Sender, msg.Receiver) {
		return false
	}
	for i := range r.views {
		if !r.views[i].Pending && r.views[i].Message.ID == msg.ID {
			return false
		}
	}
	r.views = append(r.views, MessageView{Message: msg})
	return true
}

// ApplyRead marks a confirmed message as read. The transition is monotonic:
// a read message never reverts to unread, and duplicate receipts are no-ops.
func (r *Reconciler) ApplyRead(epoch uint64, messageID, readBy string, at time.Time) bool {
	if epoch != r.epoch {
		return false
	}
	for i := range r.views {
		if r.views[i].Pending || r.views[i].Message.ID != messageID {
			continue
		}
		if r.views[i].Message.IsRead {
			return false
		}
		r.views[i].Message.IsRead = true
		r.views[i].Message.ReadBy = readBy
		t := at
		r.views[i].Message.ReadAt = &t
		return true
	}
	return false
}

// ApplyTyping records a typing transition. Events from any identity other
// than the open conversation partner are discarded even if delivered.
func (r *Reconciler) ApplyTyping(from string, isTyping bool) bool {
	if from != r.partner {
		return false
	}
	r.partnerTyping = isTyping
	return true
}

func (r *Reconciler) inConversation(sender, receiver string) bool {
	return (sender == r.partner && receiver == r.self) ||
		(sender == r.self && receiver == r.partner)
}
