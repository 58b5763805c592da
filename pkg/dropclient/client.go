// Package dropclient is the client core for the drop platform: a typed HTTP
// client for the backend API, optimistic waitlist/claim stores, and the
// per-claim countdown engine. It is a library for UI callers; it renders
// nothing itself.
package dropclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"context"

	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, hc *http.Client) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		http:    hc,
	}
}

// ---- Wire format (matches the dropspot HTTP API) ----

type dropWire struct {
	DropID       string `json:"drop_id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	TotalStock   int64  `json:"total_stock"`
	ClaimedStock int64  `json:"claimed_stock"`
	StartMS      int64  `json:"start_ms"`
	ClaimStartMS int64  `json:"claim_start_ms"`
	ClaimEndMS   int64  `json:"claim_end_ms"`
	EndMS        int64  `json:"end_ms"`
}

func (w dropWire) toDrop() Drop {
	return Drop{
		DropID:       w.DropID,
		Title:        w.Title,
		Description:  w.Description,
		TotalStock:   w.TotalStock,
		ClaimedStock: w.ClaimedStock,
		Start:        time.UnixMilli(w.StartMS),
		ClaimStart:   time.UnixMilli(w.ClaimStartMS),
		ClaimEnd:     time.UnixMilli(w.ClaimEndMS),
		End:          time.UnixMilli(w.EndMS),
	}
}

type entryWire struct {
	EntryID       string  `json:"entry_id"`
	DropID        string  `json:"drop_id"`
	UserID        string  `json:"user_id"`
	Position      int     `json:"position"`
	PriorityScore float64 `json:"priority_score"`
	JoinedAtMS    int64   `json:"joined_at_ms"`
}

func (w entryWire) toEntry() WaitlistEntry {
	return WaitlistEntry{
		EntryID:       w.EntryID,
		DropID:        w.DropID,
		UserID:        w.UserID,
		Position:      w.Position,
		PriorityScore: w.PriorityScore,
		JoinedAt:      time.UnixMilli(w.JoinedAtMS),
	}
}

type claimWire struct {
	ClaimID       string `json:"claim_id"`
	DropID        string `json:"drop_id"`
	UserID        string `json:"user_id"`
	ClaimCode     string `json:"claim_code"`
	Status        string `json:"status"`
	CreatedAtMS   int64  `json:"created_at_ms"`
	ExpiresAtMS   int64  `json:"expires_at_ms"`
	CompletedAtMS int64  `json:"completed_at_ms,omitempty"`
}

func (w claimWire) toClaim() Claim {
	c := Claim{
		ClaimID:   w.ClaimID,
		DropID:    w.DropID,
		UserID:    w.UserID,
		ClaimCode: w.ClaimCode,
		Status:    ClaimState(w.Status),
		CreatedAt: time.UnixMilli(w.CreatedAtMS),
		ExpiresAt: time.UnixMilli(w.ExpiresAtMS),
	}
	if w.CompletedAtMS > 0 {
		c.CompletedAt = time.UnixMilli(w.CompletedAtMS)
	}
	return c
}

type userWire struct {
	UserID string `json:"user_id"`
}

type errWire struct {
	Error string `json:"error"`
}

// ---- Operations ----

func (c *Client) GetDrop(ctx context.Context, dropID string) (Drop, bool, error) {
	if dropID == "" {
		return Drop{}, false, fmt.Errorf("dropID required")
	}
	path := fmt.Sprintf("%s/v1/drops/%s", c.baseURL, dropID)

	var out dropWire
	code, raw, err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		return Drop{}, false, err
	}
	switch code {
	case http.StatusOK:
		return out.toDrop(), true, nil
	case http.StatusNotFound:
		return Drop{}, false, nil
	}
	return Drop{}, false, &UnexpectedStatusError{Method: http.MethodGet, Path: path, Code: code, Body: raw}
}

func (c *Client) ListDrops(ctx context.Context) ([]Drop, error) {
	path := c.baseURL + "/v1/drops"

	var out struct {
		Drops []dropWire `json:"drops"`
	}
	code, raw, err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, &UnexpectedStatusError{Method: http.MethodGet, Path: path, Code: code, Body: raw}
	}
	drops := make([]Drop, 0, len(out.Drops))
	for _, w := range out.Drops {
		drops = append(drops, w.toDrop())
	}
	return drops, nil
}

func (c *Client) CreateDrop(ctx context.Context, p CreateDropParams) (Drop, *DomainError, error) {
	if p.Title == "" || p.TotalStock <= 0 {
		return Drop{}, nil, fmt.Errorf("title and positive TotalStock required")
	}
	path := c.baseURL + "/v1/drops"

	req := map[string]interface{}{
		"title":          p.Title,
		"total_stock":    p.TotalStock,
		"start_ms":       p.Start.UnixMilli(),
		"claim_start_ms": p.ClaimStart.UnixMilli(),
		"claim_end_ms":   p.ClaimEnd.UnixMilli(),
	}
	if p.DropID != "" {
		req["drop_id"] = p.DropID
	}
	if p.Description != "" {
		req["description"] = p.Description
	}
	if !p.End.IsZero() {
		req["end_ms"] = p.End.UnixMilli()
	}

	var out dropWire
	code, raw, err := c.doJSON(ctx, http.MethodPost, path, req, &out)
	if err != nil {
		return Drop{}, nil, err
	}
	if code == http.StatusOK {
		return out.toDrop(), nil, nil
	}
	if de := domainErr("create", p.DropID, code, raw); de != nil {
		return Drop{}, de, nil
	}
	return Drop{}, nil, &UnexpectedStatusError{Method: http.MethodPost, Path: path, Code: code, Body: raw}
}

// JoinWaitlist registers the user for a drop. Domain rejections (not in
// waitlist phase, sold out, already joined) come back as *DomainError with
// the error return nil, mirroring how the server reports them.
func (c *Client) JoinWaitlist(ctx context.Context, dropID, userID string) (WaitlistEntry, *DomainError, error) {
	if dropID == "" || userID == "" {
		return WaitlistEntry{}, nil, fmt.Errorf("dropID and userID required")
	}
	path := fmt.Sprintf("%s/v1/drops/%s/join", c.baseURL, dropID)

	var out entryWire
	code, raw, err := c.doJSON(ctx, http.MethodPost, path, userWire{UserID: userID}, &out)
	if err != nil {
		return WaitlistEntry{}, nil, err
	}
	if code == http.StatusOK {
		return out.toEntry(), nil, nil
	}
	if de := domainErr("join", dropID, code, raw); de != nil {
		return WaitlistEntry{}, de, nil
	}
	return WaitlistEntry{}, nil, &UnexpectedStatusError{Method: http.MethodPost, Path: path, Code: code, Body: raw}
}

func (c *Client) LeaveWaitlist(ctx context.Context, dropID, userID string) (*DomainError, error) {
	if dropID == "" || userID == "" {
		return nil, fmt.Errorf("dropID and userID required")
	}
	path := fmt.Sprintf("%s/v1/drops/%s/leave", c.baseURL, dropID)

	code, raw, err := c.doJSON(ctx, http.MethodPost, path, userWire{UserID: userID}, nil)
	if err != nil {
		return nil, err
	}
	if code == http.StatusOK {
		return nil, nil
	}
	if de := domainErr("leave", dropID, code, raw); de != nil {
		return de, nil
	}
	return nil, &UnexpectedStatusError{Method: http.MethodPost, Path: path, Code: code, Body: raw}
}

func (c *Client) WaitlistStatus(ctx context.Context, dropID, userID string) (WaitlistStatus, error) {
	if dropID == "" || userID == "" {
		return WaitlistStatus{}, fmt.Errorf("dropID and userID required")
	}
	path := fmt.Sprintf("%s/v1/drops/%s/waitlist?user_id=%s", c.baseURL, dropID, userID)

	var out struct {
		InWaitlist bool       `json:"in_waitlist"`
		Position   int        `json:"position"`
		Entry      *entryWire `json:"entry"`
	}
	code, raw, err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		return WaitlistStatus{}, err
	}
	if code != http.StatusOK {
		return WaitlistStatus{}, &UnexpectedStatusError{Method: http.MethodGet, Path: path, Code: code, Body: raw}
	}

	st := WaitlistStatus{InWaitlist: out.InWaitlist, Position: out.Position}
	if out.Entry != nil {
		st.Entry = out.Entry.toEntry()
	}
	return st, nil
}

func (c *Client) ClaimDrop(ctx context.Context, dropID, userID string) (Claim, *DomainError, error) {
	if dropID == "" || userID == "" {
		return Claim{}, nil, fmt.Errorf("dropID and userID required")
	}
	path := fmt.Sprintf("%s/v1/drops/%s/claim", c.baseURL, dropID)

	var out claimWire
	code, raw, err := c.doJSON(ctx, http.MethodPost, path, userWire{UserID: userID}, &out)
	if err != nil {
		return Claim{}, nil, err
	}
	if code == http.StatusOK {
		return out.toClaim(), nil, nil
	}
	if de := domainErr("claim", dropID, code, raw); de != nil {
		return Claim{}, de, nil
	}
	return Claim{}, nil, &UnexpectedStatusError{Method: http.MethodPost, Path: path, Code: code, Body: raw}
}

func (c *Client) CompleteClaim(ctx context.Context, claimID, userID string) (Claim, *DomainError, error) {
	if claimID == "" || userID == "" {
		return Claim{}, nil, fmt.Errorf("claimID and userID required")
	}
	path := fmt.Sprintf("%s/v1/claims/%s/complete", c.baseURL, claimID)

	var out claimWire
	code, raw, err := c.doJSON(ctx, http.MethodPost, path, userWire{UserID: userID}, &out)
	if err != nil {
		return Claim{}, nil, err
	}
	if code == http.StatusOK {
		return out.toClaim(), nil, nil
	}
	if de := domainErr("complete", claimID, code, raw); de != nil {
		return Claim{}, de, nil
	}
	return Claim{}, nil, &UnexpectedStatusError{Method: http.MethodPost, Path: path, Code: code, Body: raw}
}

// ClaimStatus returns the user's claim for a drop, reporting found=false for
// "no claim yet" rather than an error.
func (c *Client) ClaimStatus(ctx context.Context, dropID, userID string) (Claim, bool, error) {
	if dropID == "" || userID == "" {
		return Claim{}, false, fmt.Errorf("dropID and userID required")
	}
	path := fmt.Sprintf("%s/v1/drops/%s/claim-status?user_id=%s", c.baseURL, dropID, userID)

	var out claimWire
	code, raw, err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		return Claim{}, false, err
	}
	switch code {
	case http.StatusOK:
		return out.toClaim(), true, nil
	case http.StatusNotFound:
		return Claim{}, false, nil
	}
	return Claim{}, false, &UnexpectedStatusError{Method: http.MethodGet, Path: path, Code: code, Body: raw}
}

// domainErr maps a 404/409 with a server error body to a DomainError; other
// codes fall through to UnexpectedStatusError at the call site.
func domainErr(op, key string, code int, raw string) *DomainError {
	if code != http.StatusConflict && code != http.StatusNotFound {
		return nil
	}
	var ew errWire
	_ = json.Unmarshal([]byte(raw), &ew)
	reason := ew.Error
	if reason == "" {
		reason = raw
	}
	return &DomainError{Op: op, Key: key, Reason: reason}
}

// doJSON sends JSON and optionally decodes JSON response.
// Returns status code and raw body (trimmed) for debugging. Transport-level
// failures come back wrapped so callers can tell them from domain rejections.
func (c *Client) doJSON(ctx context.Context, method, url string, req any, resp any) (int, string, error) {
	var body io.Reader
	if req != nil {
		b, err := json.Marshal(req)
		if err != nil {
			return 0, "", err
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, "", err
	}
	if req != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	rsp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, "", errors.Wrapf(err, "%s %s", method, url)
	}
	defer rsp.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(rsp.Body, 1<<20))
	raw := strings.TrimSpace(string(b))

	if resp != nil && len(b) > 0 {
		_ = json.Unmarshal(b, resp) // tolerate non-JSON error bodies
	}
	return rsp.StatusCode, raw, nil
}
