package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/vango-go/voicebridge/pkg/bridge/call"
	"github.com/vango-go/voicebridge/pkg/bridge/config"
	"github.com/vango-go/voicebridge/pkg/bridge/metrics"
	"github.com/vango-go/voicebridge/pkg/bridge/mw"
	"github.com/vango-go/voicebridge/pkg/bridge/session"
	"github.com/vango-go/voicebridge/pkg/bridge/upstream"
)

// MediaHandler upgrades /media connections and runs one bridge per
// call. The telephony system opens exactly one connection per call leg.
type MediaHandler struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *call.Registry
	Metrics  *metrics.Metrics

	// Dial overrides the upstream connector in tests.
	Dial session.DialFunc
}

func (h MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		NotFoundHandler{}.ServeHTTP(w, r)
		return
	}

	// Telephony callbacks carry no browser origin.
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	reqID, _ := mw.RequestIDFrom(r.Context())
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("request_id", reqID)

	b, err := session.New(session.Dependencies{
		Conn:     conn,
		Logger:   logger,
		Registry: h.Registry,
		Metrics:  h.Metrics,
		Dial:     h.Dial,
		Config: session.Config{
			Upstream: upstream.Config{
				APIKey:           h.Config.OpenAIAPIKey,
				URL:              h.Config.RealtimeURL,
				Voice:            h.Config.Voice,
				Temperature:      h.Config.Temperature,
				HandshakeTimeout: h.Config.HandshakeTimeout,
			},
			MaxMessageBytes: h.Config.MediaMaxMessageBytes,
			WriteTimeout:    h.Config.MediaWriteTimeout,
		},
	})
	if err != nil {
		logger.Error("failed to initialize media bridge", "error", err)
		_ = conn.Close()
		return
	}

	if err := b.Run(); err != nil {
		logger.Warn("media bridge ended with error", "error", err)
	}
}
