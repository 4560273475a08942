package http

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
)

type AIChatRequest struct {
	Message string `json:"message"`
}

// aiChat proxies a single prompt to the external AI service. The endpoint is
// rate limited per client address since every call costs upstream quota.
func (srv *Server) aiChat(w http.ResponseWriter, r *http.Request) {
	allowed, err := srv.limiter.Allow(r.Context(), "ai:"+clientAddr(r))
	if err != nil {
		srv.logger.Error().Err(err).Msg("rate limiter failure")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !allowed {
		writeJSON(w, http.StatusTooManyRequests, &GenericResponse{Error: "rate limit exceeded"})
		return
	}

	var req AIChatRequest
	if err = decodeJSON(r, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "no message provided"})
		return
	}
	if srv.aiURL == "" {
		writeJSON(w, http.StatusServiceUnavailable, &GenericResponse{Error: "ai service is not configured"})
		return
	}

	body, err := json.Marshal(&req)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	upReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, srv.aiURL, bytes.NewReader(body))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	upReq.Header.Set("Content-Type", "application/json")

	resp, err := srv.aiClient.Do(upReq)
	if err != nil {
		srv.logger.Error().Err(err).Msg("ai service request failed")
		writeJSON(w, http.StatusBadGateway, &GenericResponse{Error: "ai service unavailable"})
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Pass the upstream reply through untouched.
	var result json.RawMessage
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		srv.logger.Error().Err(err).Msg("ai service returned malformed response")
		writeJSON(w, http.StatusBadGateway, &GenericResponse{Error: "ai service unavailable"})
		return
	}
	writeBytes(w, resp.StatusCode, result)
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
