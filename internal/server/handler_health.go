package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Clock     string `json:"clock"`
	Assistant string `json:"assistant"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	assistantStatus := "available"
	if s.assistant == nil {
		assistantStatus = "unavailable"
	}
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Clock:     s.clockMode,
		Assistant: assistantStatus,
	})
}
