package dropclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestJoinWaitlist_DomainRejectionThenSuccess(t *testing.T) {
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/drops/d1/join" {
			http.NotFound(w, r)
			return
		}
		calls++

		// First call: sold out
		if calls == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error": "drop is sold out"}`))
			return
		}

		// Second call: success
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"entry_id": "e1",
			"drop_id": "d1",
			"user_id": "u1",
			"position": 3,
			"priority_score": 1013.3,
			"joined_at_ms": 1735689600000
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, &http.Client{Timeout: 2 * time.Second})

	_, de, err := c.JoinWaitlist(context.Background(), "d1", "u1")
	if err != nil {
		t.Fatalf("domain rejection must not surface as error: %v", err)
	}
	if de == nil || de.Reason != "drop is sold out" || de.Op != "join" {
		t.Fatalf("unexpected domain error: %+v", de)
	}

	entry, de, err := c.JoinWaitlist(context.Background(), "d1", "u1")
	if err != nil || de != nil {
		t.Fatalf("expected success, got de=%+v err=%v", de, err)
	}
	if entry.EntryID != "e1" || entry.Position != 3 || entry.PriorityScore != 1013.3 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if !entry.Confirmed() {
		t.Fatalf("server entry must be confirmed: %+v", entry)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestGetDrop_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "not found"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, found, err := c.GetDrop(context.Background(), "nope")
	if err != nil {
		t.Fatalf("404 must map to found=false, not error: %v", err)
	}
	if found {
		t.Fatal("expected found=false")
	}
}

func TestClaimStatus_ParsesClaim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") != "u1" {
			t.Errorf("missing user_id query param: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"claim_id": "c1",
			"drop_id": "d1",
			"user_id": "u1",
			"claim_code": "AB12CD34",
			"status": "pending",
			"created_at_ms": 1735689600000,
			"expires_at_ms": 1735776000000
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	claim, found, err := c.ClaimStatus(context.Background(), "d1", "u1")
	if err != nil || !found {
		t.Fatalf("expected found claim, got found=%v err=%v", found, err)
	}
	if claim.ClaimID != "c1" || claim.Status != ClaimPending || claim.ClaimCode != "AB12CD34" {
		t.Fatalf("unexpected claim: %+v", claim)
	}
	if !claim.ExpiresAt.Equal(time.UnixMilli(1735776000000)) {
		t.Fatalf("unexpected ExpiresAt: %v", claim.ExpiresAt)
	}
	if !claim.CompletedAt.IsZero() {
		t.Fatalf("pending claim must have zero CompletedAt: %v", claim.CompletedAt)
	}
}

func TestTransportErrorIsPlainError(t *testing.T) {
	// Closed server: the request fails at the transport layer.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL, &http.Client{Timeout: time.Second})
	_, de, err := c.JoinWaitlist(context.Background(), "d1", "u1")
	if de != nil {
		t.Fatalf("transport failure must not be a domain error: %+v", de)
	}
	if err == nil {
		t.Fatal("expected a transport error")
	}
}

func TestUnexpectedStatusSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, de, err := c.JoinWaitlist(context.Background(), "d1", "u1")
	if de != nil {
		t.Fatalf("418 is not a domain rejection: %+v", de)
	}
	use, ok := err.(*UnexpectedStatusError)
	if !ok {
		t.Fatalf("expected UnexpectedStatusError, got %T: %v", err, err)
	}
	if use.Code != http.StatusTeapot || use.Body != "nope" {
		t.Fatalf("unexpected error contents: %+v", use)
	}
}
