package http

import (
	"encoding/json"

	"github.com/chatconnect/chatconnect-server/internal/core"
	"github.com/chatconnect/chatconnect-server/internal/proto"
	"github.com/chatconnect/chatconnect-server/internal/store"
)

// inboundToCommand validates an inbound frame against the authenticated
// identity and maps it to a hub command. A proto.Error return means the frame
// is rejected but the connection stays up.
func inboundToCommand(session *core.Session, authedUserID string, inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var join proto.JoinData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, nil, err
		}
		if join.UserID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "userId is required"}, nil
		}
		if join.UserID != authedUserID {
			return nil, &proto.Error{Code: core.ErrCodeIdentityMismatch, Msg: "join userId does not match token"}, nil
		}
		return &core.Command{
			Kind:     core.CommandJoin,
			Session:  session,
			Identity: join.UserID,
		}, nil, nil

	case proto.InboundTypeSendMessage:
		var msg proto.MessageData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, nil, err
		}
		if msg.Sender == "" || msg.Receiver == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "sender and receiver are required"}, nil
		}
		if msg.Sender != authedUserID {
			return nil, &proto.Error{Code: core.ErrCodeIdentityMismatch, Msg: "sender does not match token"}, nil
		}
		return &core.Command{
			Kind:    core.CommandSendMessage,
			Session: session,
			Message: &store.Message{
				ID:        msg.ID,
				Sender:    msg.Sender,
				Receiver:  msg.Receiver,
				Content:   msg.Content,
				Type:      store.MessageType(msg.Type),
				Timestamp: msg.Timestamp,
				IsRead:    msg.IsRead,
				ReadAt:    msg.ReadAt,
				ReadBy:    msg.ReadBy,
			},
		}, nil, nil

	case proto.InboundTypeTyping, proto.InboundTypeStopTyping:
		var typing proto.TypingData
		if err := json.Unmarshal(inbound.Data, &typing); err != nil {
			return nil, nil, err
		}
		if typing.ReceiverID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "receiverId is required"}, nil
		}
		if typing.SenderID != authedUserID {
			return nil, &proto.Error{Code: core.ErrCodeIdentityMismatch, Msg: "senderId does not match token"}, nil
		}
		kind := core.CommandTyping
		if inbound.Type == proto.InboundTypeStopTyping {
			kind = core.CommandStopTyping
		}
		return &core.Command{
			Kind:    kind,
			Session: session,
			Typing: &core.TypingSignal{
				SenderID:   typing.SenderID,
				ReceiverID: typing.ReceiverID,
			},
		}, nil, nil

	case proto.InboundTypeMessageRead:
		var read proto.ReadData
		if err := json.Unmarshal(inbound.Data, &read); err != nil {
			return nil, nil, err
		}
		if read.MessageID == "" || read.SenderID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "messageId and senderId are required"}, nil
		}
		readBy := read.ReadBy
		if readBy == "" {
			readBy = authedUserID
		}
		return &core.Command{
			Kind:    core.CommandMessageRead,
			Session: session,
			Receipt: &core.ReadReceipt{
				MessageID: read.MessageID,
				SenderID:  read.SenderID,
				ReadBy:    readBy,
			},
		}, nil, nil

	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "unknown message type"}, nil
	}
}

func messageData(m *store.Message) proto.MessageData {
	return proto.MessageData{
		ID:        m.ID,
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Content:   m.Content,
		Type:      string(m.Type),
		Timestamp: m.Timestamp,
		IsRead:    m.IsRead,
		ReadAt:    m.ReadAt,
		ReadBy:    m.ReadBy,
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventOnlineUsers:
		return proto.Outbound{
			Type: proto.OutboundTypeOnlineUsers,
			Data: event.Users,
		}
	case core.EventUserOnline:
		return proto.Outbound{
			Type: proto.OutboundTypeUserOnline,
			Data: proto.PresenceData{UserID: event.User},
		}
	case core.EventUserOffline:
		return proto.Outbound{
			Type: proto.OutboundTypeUserOffline,
			Data: proto.PresenceData{UserID: event.User},
		}
	case core.EventJoinConfirmed:
		return proto.Outbound{
			Type: proto.OutboundTypeJoinConfirmed,
			Data: proto.JoinConfirmedData{UserID: event.User, SessionID: event.SessionID},
		}
	case core.EventNewMessage:
		return proto.Outbound{
			Type: proto.OutboundTypeNewMessage,
			Data: messageData(event.Message),
		}
	case core.EventUserTyping:
		return proto.Outbound{
			Type: proto.OutboundTypeUserTyping,
			Data: proto.UserTypingData{UserID: event.Typing.UserID, IsTyping: event.Typing.IsTyping},
		}
	case core.EventMessageRead:
		return proto.Outbound{
			Type: proto.OutboundTypeMessageRead,
			Data: proto.MessageReadData{MessageID: event.Read.MessageID, ReadBy: event.Read.ReadBy},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown event"}}
	}
}
