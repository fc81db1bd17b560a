package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/pewpew-tabletop/range-backend/internal/hub"
	"github.com/pewpew-tabletop/range-backend/internal/persist"
	"github.com/pewpew-tabletop/range-backend/internal/scenario"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.New(ctx, hub.Config{Logger: zap.NewNop()})
	srv := httptest.NewServer(SetupRoutes(Deps{
		Hub:           h,
		Store:         persist.NopStore{},
		Catalog:       scenario.Default(),
		PublicBaseURL: "http://range.local",
		Logger:        zap.NewNop(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

type createResponse struct {
	SessionID string    `json:"session_id"`
	Mode      string    `json:"mode"`
	Codes     hub.Codes `json:"codes"`
}

func createSession(t *testing.T, srv *httptest.Server, body string) createResponse {
	t.Helper()
	resp, err := http.Post(srv.URL+"/sessions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestCreateSessionAndResolveCode(t *testing.T) {
	srv := newTestServer(t)

	created := createSession(t, srv, `{"mode":"training"}`)
	if created.SessionID == "" || created.Mode != "training" {
		t.Fatalf("create response = %+v", created)
	}
	if created.Codes.Red == "" || created.Codes.Blue == "" || created.Codes.Audience == "" {
		t.Fatalf("missing codes: %+v", created.Codes)
	}

	resp, err := http.Get(srv.URL + "/join/" + created.Codes.Blue)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d", resp.StatusCode)
	}
	var res struct {
		SessionID string `json:"session_id"`
		Role      string `json:"role"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.SessionID != created.SessionID || res.Role != "blue" {
		t.Fatalf("resolved %+v", res)
	}
}

func TestResolveUnknownCode(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/join/RNOPE99")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRotateCodesEndpoint(t *testing.T) {
	srv := newTestServer(t)
	created := createSession(t, srv, `{}`)

	resp, err := http.Post(srv.URL+"/sessions/"+created.SessionID+"/codes", "application/json", nil)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotate status = %d", resp.StatusCode)
	}

	old, err := http.Get(srv.URL + "/join/" + created.Codes.Red)
	if err != nil {
		t.Fatalf("resolve old: %v", err)
	}
	defer old.Body.Close()
	if old.StatusCode != http.StatusNotFound {
		t.Fatalf("old code still resolves: %d", old.StatusCode)
	}
}

func TestSessionStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)
	created := createSession(t, srv, `{}`)

	resp, err := http.Get(srv.URL + "/sessions/" + created.SessionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != "lobby" {
		t.Fatalf("fresh session status = %q", out.Status)
	}
}

func TestJoinQRServesPNG(t *testing.T) {
	srv := newTestServer(t)
	created := createSession(t, srv, `{}`)

	resp, err := http.Get(srv.URL + "/join/" + created.Codes.Audience + "/qr")
	if err != nil {
		t.Fatalf("qr: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("qr status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("qr content type = %q", ct)
	}
}

func TestListScenariosHidesAnswers(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/scenarios")
	if err != nil {
		t.Fatalf("scenarios: %v", err)
	}
	defer resp.Body.Close()

	var items []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) < 2 {
		t.Fatalf("catalog should seed at least two scenarios, got %d", len(items))
	}
	for _, it := range items {
		if _, leaked := it["is_correct_choice"]; leaked {
			t.Fatalf("scenario listing leaks answer keys: %v", it)
		}
		if _, leaked := it["hint_deck"]; leaked {
			t.Fatalf("scenario listing leaks hints: %v", it)
		}
	}
}

func TestHistoryEmptyWithoutStore(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	var snaps []persist.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snaps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snaps) != 0 {
		t.Fatalf("nop store should yield an empty list")
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}
}
