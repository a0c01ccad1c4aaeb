package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chatconnect/chatconnect-server/internal/auth"
	"github.com/chatconnect/chatconnect-server/internal/config"
	"github.com/chatconnect/chatconnect-server/internal/core"
	"github.com/chatconnect/chatconnect-server/internal/proto"
)

// wsHandler upgrades HTTP connections and bridges them to core sessions.
// Authentication happens before the upgrade: a connection without a valid
// token is refused before the registry is ever involved.
type wsHandler struct {
	hub         *core.Hub
	authService *auth.Service
	queueSize   int
	log         *zerolog.Logger
}

// NewWSHandler builds the WebSocket endpoint handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) gin.HandlerFunc {
	h := &wsHandler{
		hub:         hub,
		authService: authService,
		queueSize:   cfg.SessionQueueSize,
		log:         logger,
	}
	return h.serve
}

func (h *wsHandler) serve(c *gin.Context) {
	claims, err := h.authenticate(c)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws auth rejected")
		c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "invalid or missing token"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	session := core.NewSession(uuid.NewString(), h.queueSize)
	defer h.hub.Unregister(session)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session, claims)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("session_id", session.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// authenticate resolves the token from the query string (browser WebSocket
// clients can't set headers) or the Authorization header.
func (h *wsHandler) authenticate(c *gin.Context) (*auth.Claims, error) {
	token := c.Query("token")
	if token == "" {
		header := c.GetHeader("Authorization")
		if after, ok := strings.CutPrefix(header, "Bearer "); ok {
			token = after
		}
	}
	if token == "" {
		return nil, errors.New("missing token")
	}
	return h.authService.ValidateToken(token)
}

func (h *wsHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, claims *auth.Claims) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		cmd, protoErr, err := inboundToCommand(session, claims.UserID, inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to map inbound")
			return err
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
			continue
		}
		if cmd != nil {
			h.hub.Dispatch(cmd)
		}
	}
}

func (h *wsHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	for {
		select {
		case event, ok := <-session.Events:
			if !ok {
				// Hub closed the session (eviction or overflow).
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("session_id", session.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
