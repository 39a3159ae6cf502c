package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "corun API",
		Version:     "v1",
		Description: "corun cooperative task orchestrator. Each question runs as a primary task.",
		Endpoints: []endpointInfo{
			{"/api/v1/ask", []string{"POST"}, "Ask the assistant a question"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
