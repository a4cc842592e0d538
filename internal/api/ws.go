package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"liquiditySim/internal/broadcast"
)

const writeWait = 10 * time.Second

type lagFrame struct {
	Type    string `json:"type"`
	Skipped uint64 `json:"skipped"`
}

// handleWS streams the full snapshot followed by every client update. The
// subscription is taken before the snapshot, so an update racing the
// snapshot can arrive twice but is never missed.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := s.logger.With(zap.String("conn", uuid.NewString()))

	sub := s.cache.Subscribe()
	defer sub.Close()

	if s.metrics != nil {
		s.metrics.Subscribers.Inc()
		defer s.metrics.Subscribers.Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Client frames are ignored; a read error means the peer is gone.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Info("ws connected", zap.String("remote", r.RemoteAddr))
	defer logger.Info("ws disconnected")

	if err := writeFrame(conn, s.cache.FullSnapshot()); err != nil {
		logger.Debug("ws snapshot write failed", zap.Error(err))
		return
	}

	for {
		update, err := sub.Recv(ctx)
		if err != nil {
			var lagged *broadcast.LaggedError
			if errors.As(err, &lagged) {
				logger.Warn("ws subscriber lagged", zap.Uint64("skipped", lagged.Skipped))
				if s.metrics != nil {
					s.metrics.LaggedMessages.Add(float64(lagged.Skipped))
				}
				if err := writeFrame(conn, lagFrame{Type: "lagged", Skipped: lagged.Skipped}); err != nil {
					return
				}
				continue
			}
			if !errors.Is(err, context.Canceled) && !errors.Is(err, broadcast.ErrClosed) {
				logger.Warn("ws receive failed", zap.Error(err))
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}

		if err := writeFrame(conn, update); err != nil {
			logger.Debug("ws write failed", zap.Uint64("block", update.BlockNumber), zap.Error(err))
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
