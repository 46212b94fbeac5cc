// File: server/handlers.go
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

// HandleSubscribe streams the feed to one websocket client. It returns
// when the client disconnects or the server is closed.
func (s *Server) HandleSubscribe() func(ws *websocket.Conn) {
	return func(ws *websocket.Conn) {
		addr := ws.Request().RemoteAddr
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in feed subscriber", zap.String("remote", addr),
					zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			}
			_ = ws.Close()
		}()

		sub, ok := s.subscribe(ws.Request().Context(), ws)
		if !ok {
			return
		}
		defer s.unsubscribe(sub)
		s.log.Info("feed subscriber connected", zap.String("remote", addr))

		s.readLoop(ws)
		s.log.Info("feed subscriber disconnected", zap.String("remote", addr))
	}
}

// readLoop discards whatever the client sends until the connection ends.
func (s *Server) readLoop(ws *websocket.Conn) {
	var ignored json.RawMessage
	for {
		if err := websocket.JSON.Receive(ws, &ignored); err != nil {
			if err != io.EOF {
				s.log.Debug("feed read ended", zap.Error(err))
			}
			return
		}
	}
}

// HandleEvents serves the history of the feed as a JSON array.
func (s *Server) HandleEvents() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic in events handler", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := json.Marshal(s.History())
		if err != nil {
			http.Error(w, "Error encoding events", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(body); err != nil {
			s.log.Debug("writing events failed", zap.Error(err))
		}
	}
}

// Handler routes /subscribe to the websocket feed and /events to the
// history.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/subscribe", websocket.Handler(s.HandleSubscribe()))
	mux.HandleFunc("/events", s.HandleEvents())
	return mux
}
