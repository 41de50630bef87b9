package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chatterbox-im/chatterbox/internal/config"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	token := signedToken(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()})
	c, err := NewClient(config.Backend{URL: srv.URL, APIKey: "anon", AccessToken: token}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestClientUserIDFromToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := testClient(t, srv)
	if c.UserID() != "user-1" {
		t.Errorf("UserID() = %q, want user-1", c.UserID())
	}
}

func TestInsertMessageReturnsRepresentation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v1/messages" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("apikey") != "anon" {
			t.Error("apikey header missing")
		}
		if r.Header.Get("Prefer") != "return=representation" {
			t.Error("Prefer header missing")
		}
		var rows []MessageRow
		_ = json.NewDecoder(r.Body).Decode(&rows)
		rows[0].ID = "msg-42"
		rows[0].CreatedAt = time.Now().UTC()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	row, err := c.InsertMessage(context.Background(), MessageRow{ChatID: "c1", SenderID: "user-1", Content: "hello", MessageType: "text"})
	if err != nil {
		t.Fatalf("InsertMessage() error = %v", err)
	}
	if row.ID != "msg-42" {
		t.Errorf("id = %q, want msg-42", row.ID)
	}
}

func TestInsertMessageValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("empty message must be rejected before any network call")
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.InsertMessage(context.Background(), MessageRow{ChatID: "c1", SenderID: "user-1"})
	if !IsValidation(err) {
		t.Errorf("error = %v, want validation", err)
	}
}

func TestSelectRetriesOnceOnTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"m1","chat_id":"c1","sender_id":"u2","content":"hi","message_type":"text","created_at":"2026-08-27T10:00:00Z"}]`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	rows, err := c.FetchMessages(context.Background(), "c1", time.Time{}, 50)
	if err != nil {
		t.Fatalf("FetchMessages() error = %v (should succeed on retry)", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls.Load())
	}
	if len(rows) != 1 || rows[0].ID != "m1" {
		t.Errorf("rows = %+v, want one m1", rows)
	}
}

func TestSelectDoesNotRetryTwice(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	var out []MessageRow
	err := c.Select(context.Background(), "messages", Query{}, &out)
	if !IsTransient(err) {
		t.Errorf("error = %v, want transient", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want exactly 2 (single bounded retry)", calls.Load())
	}
}

func TestAuthorizationDeniedDistinctFromNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"row-level policy violation"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	var out []MessageRow
	err := c.Select(context.Background(), "messages", Query{}, &out)
	if !IsAuthorizationDenied(err) {
		t.Errorf("error = %v, want authorization denied", err)
	}
	if IsNotFound(err) {
		t.Error("authorization denial must not classify as not-found")
	}
}

func TestMarkMessagesReadSendsGuard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		q := r.URL.Query()
		if q.Get("is_read") != "eq.false" {
			t.Errorf("is_read filter = %q, want eq.false guard", q.Get("is_read"))
		}
		if q.Get("id") != "in.(m1,m2)" {
			t.Errorf("id filter = %q, want in.(m1,m2)", q.Get("id"))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	if err := c.MarkMessagesRead(context.Background(), []string{"m1", "m2"}); err != nil {
		t.Fatalf("MarkMessagesRead() error = %v", err)
	}
}

func TestMarkMessagesReadEmptyIsLocalNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("empty id set must not reach the network")
	}))
	defer srv.Close()

	c := testClient(t, srv)
	if err := c.MarkMessagesRead(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
}

func TestRecordStoryViewSwallowsConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	if err := c.RecordStoryView(context.Background(), "s1"); err != nil {
		t.Errorf("repeat view error = %v, want nil (idempotent)", err)
	}
}

func TestSendFriendRequestConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.SendFriendRequest(context.Background(), "user-2")
	if !IsConflict(err) {
		t.Errorf("error = %v, want conflict (duplicate request)", err)
	}
}

func TestSendFriendRequestToSelf(t *testing.T) {
	c := testClient(t, httptest.NewServer(http.NotFoundHandler()))
	_, err := c.SendFriendRequest(context.Background(), "user-1")
	if !IsValidation(err) {
		t.Errorf("error = %v, want validation", err)
	}
}
