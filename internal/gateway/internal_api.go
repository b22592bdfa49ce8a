package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/a783925458/phantom-acceptor/internal/dispatcher"
	"github.com/a783925458/phantom-acceptor/internal/session"
)

type statusResponse struct {
	Status      string `json:"status"`
	Draining    bool   `json:"draining,omitempty"`
	Dispatchers int    `json:"readyDispatchers"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`
}

type sessionsResponse struct {
	Count    int            `json:"count"`
	Sessions []session.Info `json:"sessions"`
}

type dispatchersResponse struct {
	Ready       int                 `json:"ready"`
	Dispatchers []dispatcher.Status `json:"dispatchers"`
}

// InternalHandler returns an http.Handler for the gateway's internal API.
func (gw *Gateway) InternalHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(gw.logRequests)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", gw.handleHealth)
	r.Get("/readyz", gw.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/internal", func(r chi.Router) {
		r.Get("/sessions", gw.handleListSessions)
		r.Route("/sessions/{uid}", func(r chi.Router) {
			r.Get("/", gw.handleGetSession)
			r.Delete("/", gw.handleKickSession)
		})
		r.Get("/dispatchers", gw.handleListDispatchers)
	})
	return r
}

func (gw *Gateway) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		gw.logger.Debug("internal api request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("requestId", chimw.GetReqID(r.Context())),
		)
	})
}

func (gw *Gateway) status() statusResponse {
	return statusResponse{
		Status:      "ok",
		Draining:    gw.draining.Load(),
		Dispatchers: gw.dispatchers.ReadyCount(),
		Sessions:    gw.sessions.Count(),
		Connections: gw.ConnectionCount(),
	}
}

func (gw *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, gw.status())
}

// handleReady reports ready while not draining and at least one dispatcher
// stream is open.
func (gw *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	st := gw.status()
	code := http.StatusOK
	switch {
	case st.Draining:
		st.Status = "draining"
		code = http.StatusServiceUnavailable
	case st.Dispatchers == 0:
		st.Status = "no dispatchers"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (gw *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list := gw.sessions.List()
	writeJSON(w, http.StatusOK, sessionsResponse{Count: len(list), Sessions: list})
}

func (gw *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, ok := gw.sessions.Get(chi.URLParam(r, "uid"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (gw *Gateway) handleKickSession(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if !gw.sessions.Kick(uid) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	gw.logger.Info("session kicked via internal api", zap.String("uid", uid))
	w.WriteHeader(http.StatusNoContent)
}

func (gw *Gateway) handleListDispatchers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dispatchersResponse{
		Ready:       gw.dispatchers.ReadyCount(),
		Dispatchers: gw.dispatchers.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
