package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Developer-Emre/dropspotapp-sub000/internal/model"
)

type Server struct {
	svc *model.Service
	mux *http.ServeMux
}

type contextKey string

const requestIDKey contextKey = "req_id"

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func NewServer(svc *model.Service) *Server {
	s := &Server{svc: svc, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return withRequestID(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Drop endpoints (simple path parsing to avoid extra router deps)
	s.mux.HandleFunc("/v1/drops", s.handleDropsRoot)
	s.mux.HandleFunc("/v1/drops/", s.handleDrops)
	s.mux.HandleFunc("/v1/claims/", s.handleClaims)
}

func (s *Server) handleDropsRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListDrops(w, r)
	case http.MethodPost:
		s.handleCreateDrop(w, r)
	default:
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleDrops(w http.ResponseWriter, r *http.Request) {
	// Expected:
	// /v1/drops/{id}
	// /v1/drops/{id}/join
	// /v1/drops/{id}/leave
	// /v1/drops/{id}/waitlist
	// /v1/drops/{id}/claim
	// /v1/drops/{id}/claim-status
	path := strings.TrimPrefix(r.URL.Path, "/v1/drops/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeErr(w, http.StatusBadRequest, "drop_id required")
		return
	}

	parts := strings.Split(path, "/")
	dropID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	if len(parts) > 2 {
		writeErr(w, http.StatusNotFound, "invalid path")
		return
	}

	switch r.Method {
	case http.MethodGet:
		switch action {
		case "":
			s.handleGetDrop(w, r, dropID)
		case "waitlist":
			s.handleWaitlistStatus(w, r, dropID)
		case "claim-status":
			s.handleClaimStatus(w, r, dropID)
		default:
			writeErr(w, http.StatusNotFound, "unknown action")
		}

	case http.MethodPost:
		switch action {
		case "join":
			s.handleJoin(w, r, dropID)
		case "leave":
			s.handleLeave(w, r, dropID)
		case "claim":
			s.handleClaim(w, r, dropID)
		default:
			writeErr(w, http.StatusNotFound, "unknown action")
		}

	default:
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleClaims(w http.ResponseWriter, r *http.Request) {
	// Expected: /v1/claims/{id}/complete
	path := strings.TrimPrefix(r.URL.Path, "/v1/claims/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "complete" {
		writeErr(w, http.StatusNotFound, "invalid path")
		return
	}
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.handleComplete(w, r, parts[0])
}

// --- Wire shapes ---

type dropResp struct {
	DropID         string `json:"drop_id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	TotalStock     int64  `json:"total_stock"`
	ClaimedStock   int64  `json:"claimed_stock"`
	AvailableStock int64  `json:"available_stock"`
	StartMS        int64  `json:"start_ms"`
	ClaimStartMS   int64  `json:"claim_start_ms"`
	ClaimEndMS     int64  `json:"claim_end_ms"`
	EndMS          int64  `json:"end_ms"`
}

func toDropResp(d model.Drop) dropResp {
	return dropResp{
		DropID:         d.DropID,
		Title:          d.Title,
		Description:    d.Description,
		TotalStock:     d.TotalStock,
		ClaimedStock:   d.ClaimedStock,
		AvailableStock: d.AvailableStock(),
		StartMS:        d.Start.UnixMilli(),
		ClaimStartMS:   d.ClaimStart.UnixMilli(),
		ClaimEndMS:     d.ClaimEnd.UnixMilli(),
		EndMS:          d.End.UnixMilli(),
	}
}

type entryResp struct {
	EntryID       string  `json:"entry_id"`
	DropID        string  `json:"drop_id"`
	UserID        string  `json:"user_id"`
	Position      int     `json:"position"`
	PriorityScore float64 `json:"priority_score"`
	JoinedAtMS    int64   `json:"joined_at_ms"`
}

func toEntryResp(e model.WaitlistEntry) entryResp {
	return entryResp{
		EntryID:       e.EntryID,
		DropID:        e.DropID,
		UserID:        e.UserID,
		Position:      e.Position,
		PriorityScore: e.PriorityScore,
		JoinedAtMS:    e.JoinedAt.UnixMilli(),
	}
}

type claimResp struct {
	ClaimID       string `json:"claim_id"`
	DropID        string `json:"drop_id"`
	UserID        string `json:"user_id"`
	ClaimCode     string `json:"claim_code"`
	Status        string `json:"status"`
	CreatedAtMS   int64  `json:"created_at_ms"`
	ExpiresAtMS   int64  `json:"expires_at_ms"`
	CompletedAtMS int64  `json:"completed_at_ms,omitempty"`
}

func toClaimResp(c model.Claim) claimResp {
	out := claimResp{
		ClaimID:     c.ClaimID,
		DropID:      c.DropID,
		UserID:      c.UserID,
		ClaimCode:   c.ClaimCode,
		Status:      string(c.Status),
		CreatedAtMS: c.CreatedAt.UnixMilli(),
		ExpiresAtMS: c.ExpiresAt.UnixMilli(),
	}
	if !c.CompletedAt.IsZero() {
		out.CompletedAtMS = c.CompletedAt.UnixMilli()
	}
	return out
}

// --- Handlers ---

type createDropReq struct {
	DropID       string `json:"drop_id,omitempty"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	TotalStock   int64  `json:"total_stock"`
	StartMS      int64  `json:"start_ms"`
	ClaimStartMS int64  `json:"claim_start_ms"`
	ClaimEndMS   int64  `json:"claim_end_ms"`
	EndMS        int64  `json:"end_ms,omitempty"`
}

func (s *Server) handleCreateDrop(w http.ResponseWriter, r *http.Request) {
	var req createDropReq
	if err := readJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title == "" || req.TotalStock <= 0 {
		writeErr(w, http.StatusBadRequest, "title and positive total_stock required")
		return
	}
	if req.StartMS <= 0 || req.ClaimStartMS <= 0 || req.ClaimEndMS <= 0 {
		writeErr(w, http.StatusBadRequest, "start_ms, claim_start_ms, claim_end_ms required")
		return
	}

	mreq := model.CreateDropRequest{
		DropID:      req.DropID,
		Title:       req.Title,
		Description: req.Description,
		TotalStock:  req.TotalStock,
		Start:       time.UnixMilli(req.StartMS),
		ClaimStart:  time.UnixMilli(req.ClaimStartMS),
		ClaimEnd:    time.UnixMilli(req.ClaimEndMS),
	}
	if req.EndMS > 0 {
		mreq.End = time.UnixMilli(req.EndMS)
	}

	res, err := s.svc.CreateDrop(r.Context(), mreq)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !res.Created {
		writeErr(w, http.StatusConflict, res.Reason)
		return
	}
	writeJSON(w, http.StatusOK, toDropResp(res.Drop))
}

func (s *Server) handleListDrops(w http.ResponseWriter, r *http.Request) {
	drops, err := s.svc.ListDrops(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]dropResp, 0, len(drops))
	for _, d := range drops {
		out = append(out, toDropResp(d))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"drops": out})
}

func (s *Server) handleGetDrop(w http.ResponseWriter, r *http.Request, dropID string) {
	d, found, err := s.svc.GetDrop(r.Context(), dropID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeErr(w, http.StatusNotFound, "drop not found")
		return
	}
	writeJSON(w, http.StatusOK, toDropResp(d))
}

type userReq struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request, dropID string) {
	var req userReq
	if err := readJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeErr(w, http.StatusBadRequest, "user_id required")
		return
	}

	res, err := s.svc.JoinWaitlist(r.Context(), model.JoinRequest{DropID: dropID, UserID: req.UserID})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !res.Joined {
		writeErr(w, http.StatusConflict, res.Reason)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResp(res.Entry))
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request, dropID string) {
	var req userReq
	if err := readJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeErr(w, http.StatusBadRequest, "user_id required")
		return
	}

	res, err := s.svc.LeaveWaitlist(r.Context(), model.LeaveRequest{DropID: dropID, UserID: req.UserID})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !res.Left {
		writeErr(w, http.StatusConflict, res.Reason)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"left": true})
}

func (s *Server) handleWaitlistStatus(w http.ResponseWriter, r *http.Request, dropID string) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeErr(w, http.StatusBadRequest, "user_id required")
		return
	}

	res, err := s.svc.WaitlistStatus(r.Context(), dropID, userID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := map[string]interface{}{"in_waitlist": res.InWaitlist}
	if res.InWaitlist {
		out["position"] = res.Entry.Position
		out["entry"] = toEntryResp(res.Entry)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request, dropID string) {
	var req userReq
	if err := readJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeErr(w, http.StatusBadRequest, "user_id required")
		return
	}

	res, err := s.svc.ClaimDrop(r.Context(), model.ClaimRequest{DropID: dropID, UserID: req.UserID})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !res.Claimed {
		writeErr(w, http.StatusConflict, res.Reason)
		return
	}
	writeJSON(w, http.StatusOK, toClaimResp(res.Claim))
}

func (s *Server) handleClaimStatus(w http.ResponseWriter, r *http.Request, dropID string) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeErr(w, http.StatusBadRequest, "user_id required")
		return
	}

	res, err := s.svc.ClaimStatus(r.Context(), dropID, userID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !res.Found {
		writeErr(w, http.StatusNotFound, "claim not found")
		return
	}
	writeJSON(w, http.StatusOK, toClaimResp(res.Claim))
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, claimID string) {
	var req userReq
	if err := readJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeErr(w, http.StatusBadRequest, "user_id required")
		return
	}

	res, err := s.svc.CompleteClaim(r.Context(), model.CompleteRequest{ClaimID: claimID, UserID: req.UserID})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !res.Completed {
		writeErr(w, http.StatusConflict, res.Reason)
		return
	}
	writeJSON(w, http.StatusOK, toClaimResp(res.Claim))
}

// --- helpers ---

func readJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("missing body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
