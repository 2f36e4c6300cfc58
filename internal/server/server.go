// Package server exposes the processed spectrum to render clients over
// a WebSocket endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// pushInterval is the frame rate of spectrum updates, roughly 30 fps.
const pushInterval = 33 * time.Millisecond

// SpectrumSource provides the last complete processed spectrum.
type SpectrumSource interface {
	Current() ([]float64, bool)
}

// RecordingStatus reports whether capture is active.
type RecordingStatus interface {
	IsRecording() bool
}

// update is one frame pushed to connected clients. Spectrum is null
// until the first magnitudes arrive; clients render a placeholder.
type update struct {
	Spectrum  []float64 `json:"spectrum"`
	Recording bool      `json:"recording"`
}

// Server pushes spectrum frames to WebSocket clients.
type Server struct {
	src    SpectrumSource
	status RecordingStatus
	log    zerolog.Logger

	httpSrv  *http.Server
	upgrader websocket.Upgrader
}

func New(addr string, src SpectrumSource, status RecordingStatus, log zerolog.Logger) *Server {
	s := &Server{
		src:    src,
		status: status,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: checkOrigin(log),
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.httpSrv.Addr).Msg("spectrum server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("spectrum server failed")
		}
	}()
}

// Shutdown stops the server, closing client connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown spectrum server: %w", err)
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("spectrum client connected")

	// Drain incoming frames so close handshakes and pings are seen.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			s.log.Debug().Str("remote", r.RemoteAddr).Msg("spectrum client disconnected")
			return
		case <-ticker.C:
			frame := update{Recording: s.status.IsRecording()}
			if cur, ok := s.src.Current(); ok {
				frame.Spectrum = cur
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}
