// Package control exposes the command surface to UI collaborators over a
// local HTTP endpoint: one POST route carrying a typed command, one GET route
// for the suppression tally.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/axssbug/twitter-plugin/internal/filter/common/log"
	"github.com/axssbug/twitter-plugin/internal/filter/domain"
	"github.com/axssbug/twitter-plugin/internal/filter/services/command"
)

// Server translates HTTP requests into dispatcher commands.
type Server struct {
	dispatcher *command.Dispatcher
	logger     log.Logger
	httpServer *http.Server
}

// NewServer creates a control server listening on addr.
func NewServer(addr string, dispatcher *command.Dispatcher, logger log.Logger) *Server {
	s := &Server{dispatcher: dispatcher, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/command", s.handleCommand)
	mux.HandleFunc("GET /v1/suppressions", s.handleSuppressions)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. It blocks until the server is shut down or fails.
func (s *Server) Start() error {
	s.logger.Info(map[string]any{"addr": s.httpServer.Addr}, "control server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// commandRequest is the wire shape of one command.
type commandRequest struct {
	Kind          string `json:"kind"`
	Category      string `json:"category,omitempty"`
	Value         string `json:"value,omitempty"`
	Enabled       bool   `json:"enabled,omitempty"`
	SourceURL     string `json:"sourceUrl,omitempty"`
	ReportingUser string `json:"reportingUser,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decoding command: %v", err))
		return
	}

	cmd, err := toCommand(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.dispatcher.Dispatch(r.Context(), cmd)
	if err != nil {
		s.logger.Warn(map[string]any{"kind": req.Kind, "error": err}, "command failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"revealed":     res.Revealed,
		"suppressions": tally(res.Suppressions),
	})
}

func (s *Server) handleSuppressions(w http.ResponseWriter, r *http.Request) {
	res, err := s.dispatcher.Dispatch(r.Context(), command.Command{Kind: command.KindQuerySuppressions})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suppressions": tally(res.Suppressions)})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// toCommand maps the wire request onto the typed command.
func toCommand(req commandRequest) (command.Command, error) {
	cmd := command.Command{
		Value:         req.Value,
		Enabled:       req.Enabled,
		SourceURL:     req.SourceURL,
		ReportingUser: req.ReportingUser,
	}

	switch req.Kind {
	case "toggle_global":
		cmd.Kind = command.KindToggleGlobal
	case "toggle_category":
		cmd.Kind = command.KindToggleCategory
	case "add_allow":
		cmd.Kind = command.KindAddAllow
	case "add_block":
		cmd.Kind = command.KindAddBlock
	case "feedback":
		cmd.Kind = command.KindFeedback
	case "manual_report":
		cmd.Kind = command.KindManualReport
	case "force_refresh":
		cmd.Kind = command.KindForceRefresh
	case "query_suppressions":
		cmd.Kind = command.KindQuerySuppressions
	default:
		return command.Command{}, fmt.Errorf("unknown command kind %q", req.Kind)
	}

	if req.Category != "" {
		cat, err := domain.ParseCategory(req.Category)
		if err != nil {
			return command.Command{}, err
		}
		cmd.Category = cat
	}
	return cmd, nil
}

// suppressionEntry is one row of the tally response.
type suppressionEntry struct {
	Category string `json:"category"`
	Value    string `json:"value"`
	Count    int    `json:"count"`
}

func tally(m map[domain.SuppressionTag]int) []suppressionEntry {
	out := make([]suppressionEntry, 0, len(m))
	for tag, n := range m {
		out = append(out, suppressionEntry{
			Category: tag.Category.String(),
			Value:    tag.Value,
			Count:    n,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}
