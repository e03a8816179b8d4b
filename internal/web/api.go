package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", s.handleChat)

	mux.HandleFunc("GET /api/accounts", s.listAccounts)
	mux.HandleFunc("GET /api/journals/{id}", s.getJournal)
	mux.HandleFunc("GET /api/audit", s.listAuditEvents)

	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Utterance       string `json:"utterance"`
		UserID          string `json:"user_id"`
		ConversationKey string `json:"conversation_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Utterance) == "" {
		jsonError(w, "utterance is required", http.StatusBadRequest)
		return
	}
	if body.UserID == "" {
		jsonError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if body.ConversationKey == "" {
		body.ConversationKey = body.UserID
	}

	reply := s.router.Route(r.Context(), body.UserID, body.ConversationKey, body.Utterance)

	s.hub.Broadcast(Event{Type: "chat.reply", Payload: map[string]any{
		"user_id":          body.UserID,
		"conversation_key": body.ConversationKey,
		"success":          reply.Success,
		"message":          reply.Message,
	}})

	jsonResponse(w, reply)
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, accounts)
}

func (s *Server) getJournal(w http.ResponseWriter, r *http.Request) {
	j, err := s.store.GetJournal(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if j == nil {
		jsonError(w, "journal not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, j)
}

func (s *Server) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.store.RecentAuditEvents(limit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, events)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{
		"version": s.version,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
