package core

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// maxAlertBodySize caps the accepted alert text
const maxAlertBodySize = 64 << 10

// HealthStatus is the /healthz response
type HealthStatus struct {
	Status    string   `json:"status"`
	Platforms []string `json:"platforms"`
	Realms    int      `json:"realms"`
}

// HookHandler returns the HTTP handler of the hook server
func (e *Engine) HookHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/alert", e.handleAlert)
	mux.HandleFunc("/healthz", e.handleHealth)
	mux.Handle("/metrics", e.metrics.Handler())
	return mux
}

// hookAddr is the listen address, loopback unless hook_server.host says otherwise
func (e *Engine) hookAddr() string {
	return net.JoinHostPort(e.config.HookServer.Host, strconv.Itoa(e.config.HookServer.Port))
}

// startHookServer starts the HTTP hook server in a separate goroutine
func (e *Engine) startHookServer() {
	addr := e.hookAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           e.HookHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	e.hookMu.Lock()
	e.hookServer = srv
	e.hookMu.Unlock()

	logger.WithField("address", addr).Info("hook-server-listening")

	go func() {
		// When Shutdown() is called, ListenAndServe will return ErrServerClosed
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("hook-server-error")
		}
		logger.Info("hook-server-stopped")
	}()
}

// handleAlert relays the request body to a room
//
//	POST /alert?room=<room id>&platform=<platform>
//
// room defaults to the configured Matrix room, platform to matrix.
func (e *Engine) handleAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if token := e.config.HookServer.Token; token != "" {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			logger.WithField("remote", r.RemoteAddr).Warn("alert-rejected-bad-token")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxAlertBodySize))
	if err != nil {
		logger.WithError(err).Error("failed-to-read-request-body")
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	text := strings.TrimSpace(string(data))
	if text == "" {
		logger.Warn("empty-request-body-in-alert-request")
		http.Error(w, "Empty request body", http.StatusBadRequest)
		return
	}

	room := r.URL.Query().Get("room")
	if room == "" {
		room = e.config.Matrix.Room
	}
	if room == "" {
		http.Error(w, "Missing room parameter", http.StatusBadRequest)
		return
	}
	platform := r.URL.Query().Get("platform")

	logger.WithFields(logrus.Fields{
		"room":     room,
		"platform": platform,
		"length":   len(text),
	}).Debug("alert-received")

	if err := e.Alert(r.Context(), platform, room, text); err != nil {
		http.Error(w, "Failed to relay alert", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(constants.HTTPSuccessStatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
}

// handleHealth reports the registered transports
func (e *Engine) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthStatus{
		Status:    "ok",
		Platforms: e.Platforms(),
		Realms:    len(e.config.Monitoring),
	})
}
