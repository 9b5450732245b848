package controller

import (
	"context"
	"net/http"
	"strings"
	"time"

	"promptjudge/internal/common/http/middleware"
	"promptjudge/internal/evaluation/model"
	"promptjudge/pkg/utils/logger"
	"promptjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultPollInterval   = 500 * time.Millisecond
	defaultStreamDuration = 15 * time.Minute

	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

// StreamConfig tunes the websocket progress stream.
type StreamConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	MaxDuration  time.Duration `yaml:"maxDuration"`
	// AllowedOrigins extends the same-origin handshake check; filled from the CORS settings.
	AllowedOrigins []string `yaml:"-"`
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = defaultStreamDuration
	}
	return c
}

func newUpgrader(allowed []string) *websocket.Upgrader {
	u := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	// nil CheckOrigin keeps gorilla's same-origin check.
	if len(allowed) > 0 {
		u.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || middleware.OriginAllowed(origin, allowed)
		}
	}
	return u
}

// StreamProgress pushes progress changes over a websocket until the run is done or failed.
// The server closes with a normal closure once a terminal state has been sent.
func (h *EvaluationController) StreamProgress(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("submissionId"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "upgrade progress stream failed", zap.Error(err))
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.stream.MaxDuration)
	defer cancel()
	gone := readUntilClosed(conn)

	ticker := time.NewTicker(h.stream.PollInterval)
	defer ticker.Stop()

	var last *model.ProgressState
	for {
		state, err := h.evaluator.GetProgress(ctx, submissionID)
		if err != nil {
			logger.Warn(ctx, "read progress for stream failed", zap.String("submission_id", submissionID), zap.Error(err))
			closeStream(conn, websocket.CloseInternalServerErr, "progress unavailable")
			return
		}
		if changed(last, state) {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(state); err != nil {
				logger.Warn(ctx, "write progress failed", zap.String("submission_id", submissionID), zap.Error(err))
				return
			}
			last = state
		}
		if state.Terminal() {
			closeStream(conn, websocket.CloseNormalClosure, string(state.Stage))
			return
		}

		select {
		case <-ctx.Done():
			closeStream(conn, websocket.CloseGoingAway, "stream expired")
			return
		case <-gone:
			return
		case <-ticker.C:
		}
	}
}

// readUntilClosed drains client frames so control messages are handled; the channel closes when the peer goes away.
func readUntilClosed(conn *websocket.Conn) <-chan struct{} {
	gone := make(chan struct{})
	conn.SetReadLimit(maxMessageSize)
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return gone
}

func closeStream(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func changed(last, current *model.ProgressState) bool {
	if current == nil {
		return false
	}
	if last == nil {
		return true
	}
	if last.Stage != current.Stage || !last.UpdatedAt.Equal(current.UpdatedAt) {
		return true
	}
	return (last.ErrorMessage == nil) != (current.ErrorMessage == nil)
}
