package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bountyboard/internal/db"
	"bountyboard/internal/discover"
	"bountyboard/internal/engine"
	"bountyboard/internal/github"
	"bountyboard/internal/migrate"
	"bountyboard/internal/orchestrator"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	Engine *engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

type upstreamStubs struct {
	github       http.HandlerFunc
	orchestrator http.HandlerFunc
}

func newTestServer(t *testing.T, stubs upstreamStubs) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn)

	if stubs.github == nil {
		stubs.github = func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"no stub"}`, http.StatusBadGateway)
		}
	}
	if stubs.orchestrator == nil {
		stubs.orchestrator = func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"detail":"no stub"}`, http.StatusBadGateway)
		}
	}
	ghSrv := httptest.NewServer(stubs.github)
	orchSrv := httptest.NewServer(stubs.orchestrator)

	gh := github.New(ghSrv.URL, "")
	orch := orchestrator.New(orchSrv.URL, 0)
	disc := discover.New(gh, "label:bounty state:open", "")

	handler, err := New(Config{
		Engine:       e,
		BasePath:     "/v0",
		Auth:         AuthConfig{JWTSecret: testJWTSecret, EnableDevLogin: true},
		GitHub:       gh,
		Orchestrator: orch,
		Discovery:    disc,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
			ghSrv.Close()
			orchSrv.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func authHeaders(t *testing.T, userID string) map[string]string {
	t.Helper()
	token, err := signDevToken(testJWTSecret, userID, nil)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createTenant(t *testing.T, srv *testServer, headers map[string]string) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tenants", map[string]any{
		"host": "bounties.acme.dev",
		"name": "Acme Bounties",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create tenant status %d: %s", res.StatusCode, string(data))
	}
	var tenant TenantResponse
	if err := json.Unmarshal(data, &tenant); err != nil {
		t.Fatalf("unmarshal tenant: %v", err)
	}
	return tenant.ID
}

func createBounty(t *testing.T, srv *testServer, headers map[string]string, tenantID string, extra map[string]any) BountyResponse {
	t.Helper()
	body := map[string]any{"tenant_id": tenantID, "title": "Fix the flaky test"}
	for k, v := range extra {
		body[k] = v
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/bounties", body, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create bounty status %d: %s", res.StatusCode, string(data))
	}
	var b BountyResponse
	if err := json.Unmarshal(data, &b); err != nil {
		t.Fatalf("unmarshal bounty: %v", err)
	}
	return b
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestHealthNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t, upstreamStubs{})
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, cleanup := newTestServer(t, upstreamStubs{})
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/bounties", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("expected code unauthorized, got %s", code)
	}
}

func TestDevLoginAndMe(t *testing.T) {
	srv, cleanup := newTestServer(t, upstreamStubs{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"user_id": "maria",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatalf("unmarshal whoami: %v", err)
	}
	if who.UserID != "maria" || who.Source != "jwt" {
		t.Fatalf("unexpected principal: %+v", who)
	}
}

func TestBountyLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, upstreamStubs{})
	defer cleanup()
	client := srv.Client()
	headers := authHeaders(t, "admin")
	tenantID := createTenant(t, srv, headers)
	b := createBounty(t, srv, headers, tenantID, map[string]any{"value": 100.0, "labels": []string{"bug"}})

	if b.Status != "open" {
		t.Fatalf("expected open, got %s", b.Status)
	}

	// Skipping claimed is rejected with invalid_transition.
	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/bounties/"+b.ID, map[string]any{
		"status": "in_progress",
	}, headers)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %s", code)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/bounties/"+b.ID, map[string]any{
		"status": "claimed", "assignee_id": "maria",
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("claim status %d: %s", res.StatusCode, string(data))
	}
	var claimed BountyResponse
	if err := json.Unmarshal(data, &claimed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if claimed.Status != "claimed" || claimed.AssigneeID == nil || *claimed.AssigneeID != "maria" {
		t.Fatalf("unexpected bounty after claim: %+v", claimed)
	}

	// Force repairs out-of-band state.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/bounties/"+b.ID, map[string]any{
		"status": "completed", "force": true,
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("force status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/bounties?tenant_id="+tenantID+"&status=completed", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list BountyListResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 completed bounty, got %d", len(list.Items))
	}
}

func TestBountyListPagination(t *testing.T) {
	srv, cleanup := newTestServer(t, upstreamStubs{})
	defer cleanup()
	client := srv.Client()
	headers := authHeaders(t, "admin")
	tenantID := createTenant(t, srv, headers)
	for i := 0; i < 5; i++ {
		createBounty(t, srv, headers, tenantID, nil)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/bounties?limit=2", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var page BountyListResponse
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected 2 items with cursor, got %d (%q)", len(page.Items), page.NextCursor)
	}

	seen := map[string]bool{}
	for _, it := range page.Items {
		seen[it.ID] = true
	}
	cursor := page.NextCursor
	total := len(page.Items)
	for cursor != "" {
		res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/bounties?limit=2&cursor="+cursor, nil, headers)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("page status %d: %s", res.StatusCode, string(data))
		}
		if err := json.Unmarshal(data, &page); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		for _, it := range page.Items {
			if seen[it.ID] {
				t.Fatalf("duplicate item across pages: %s", it.ID)
			}
			seen[it.ID] = true
		}
		total += len(page.Items)
		cursor = page.NextCursor
	}
	if total != 5 {
		t.Fatalf("expected 5 items across pages, got %d", total)
	}
}

func TestImportAndTemplate(t *testing.T) {
	srv, cleanup := newTestServer(t, upstreamStubs{})
	defer cleanup()
	client := srv.Client()
	headers := authHeaders(t, "admin")
	tenantID := createTenant(t, srv, headers)

	csv := "title,reward,tags\nFix crash,$250,bug\n,$10,\n"
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/import", map[string]any{
		"tenant_id": tenantID,
		"filename":  "upload.csv",
		"content":   csv,
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("import status %d: %s", res.StatusCode, string(data))
	}
	var result engine.ImportResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Imported != 1 || result.Skipped != 1 {
		t.Fatalf("unexpected import result: %+v", result)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "line 3") {
		t.Fatalf("expected line 3 error, got %v", result.Errors)
	}

	// Wrong extension rejected before parsing.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/import", map[string]any{
		"tenant_id": tenantID,
		"filename":  "upload.xlsx",
		"content":   csv,
	}, headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "bad_request" {
		t.Fatalf("expected bad_request, got %s", code)
	}

	// A header-only upload is an empty file.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/import", map[string]any{
		"tenant_id": tenantID,
		"filename":  "upload.csv",
		"content":   "title,reward,tags\n",
	}, headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "bad_request" {
		t.Fatalf("expected bad_request, got %s", code)
	}
	if !strings.Contains(string(data), "file is empty") {
		t.Fatalf("expected empty-file message, got %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/import/template", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("template status %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected text/csv, got %s", ct)
	}
	if !strings.HasPrefix(string(data), "title,") {
		t.Fatalf("unexpected template body: %s", string(data)[:40])
	}
}

func TestProofsOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, upstreamStubs{})
	defer cleanup()
	client := srv.Client()
	headers := authHeaders(t, "maria")
	tenantID := createTenant(t, srv, headers)
	b := createBounty(t, srv, headers, tenantID, nil)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/bounties/"+b.ID+"/proofs", map[string]any{
		"screenshots": []string{"https://cdn.example/s1.png"},
		"diff":        map[string]int{"additions": 12, "deletions": 4, "files_changed": 2},
		"vetting": []map[string]any{
			{"stage": "build", "status": "pass", "duration_ms": 9000},
		},
		"summary": "first pass",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create proof status %d: %s", res.StatusCode, string(data))
	}
	var proof ProofResponse
	if err := json.Unmarshal(data, &proof); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if proof.Diff == nil || proof.Diff.Additions != 12 {
		t.Fatalf("diff not round-tripped: %+v", proof.Diff)
	}
	if len(proof.Vetting) != 1 || proof.Vetting[0].Stage != "build" {
		t.Fatalf("vetting not round-tripped: %+v", proof.Vetting)
	}

	// Unknown stage rejected.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/bounties/"+b.ID+"/proofs", map[string]any{
		"vetting": []map[string]any{{"stage": "deploy", "status": "pass"}},
	}, headers)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/bounties/"+b.ID+"/proofs", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list proofs status %d: %s", res.StatusCode, string(data))
	}
	var proofs []ProofResponse
	if err := json.Unmarshal(data, &proofs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(proofs) != 1 || proofs[0].CreatedBy != "maria" {
		t.Fatalf("unexpected proofs: %+v", proofs)
	}
}

func TestLedgerSettleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, upstreamStubs{})
	defer cleanup()
	client := srv.Client()
	headers := authHeaders(t, "admin")
	tenantID := createTenant(t, srv, headers)
	b := createBounty(t, srv, headers, tenantID, nil)

	// Walk the bounty to completed so the payout can mark it paid.
	for _, s := range []string{"claimed", "in_progress", "submitted", "vetting", "completed"} {
		res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/bounties/"+b.ID, map[string]any{"status": s}, headers)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("transition to %s: %d %s", s, res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/ledger", map[string]any{
		"bounty_id":      b.ID,
		"type":           "payout",
		"amount":         100.0,
		"payment_method": "wise",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create entry status %d: %s", res.StatusCode, string(data))
	}
	var entry struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Status != "pending" {
		t.Fatalf("expected pending, got %s", entry.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/ledger/"+entry.ID+"/settle", map[string]any{
		"reference": "wise-789",
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("settle status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/bounties/"+b.ID, nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get bounty status %d", res.StatusCode)
	}
	var paid BountyResponse
	if err := json.Unmarshal(data, &paid); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if paid.Status != "paid" {
		t.Fatalf("expected paid, got %s", paid.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tenants/"+tenantID+"/stats", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stats status %d: %s", res.StatusCode, string(data))
	}
	var stats TenantStatsResponse
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.TotalPaid != 100.0 {
		t.Fatalf("expected total_paid 100, got %v", stats.TotalPaid)
	}
	if stats.StatusCounts["paid"] != 1 {
		t.Fatalf("expected one paid bounty in counts: %v", stats.StatusCounts)
	}
}

func TestNotificationPrefsOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, upstreamStubs{})
	defer cleanup()
	client := srv.Client()
	headers := authHeaders(t, "maria")

	// Defaults before any save.
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/notifications/prefs", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get prefs status %d: %s", res.StatusCode, string(data))
	}
	var prefs struct {
		BountyUpdates   bool `json:"bounty_updates"`
		PayoutAlerts    bool `json:"payout_alerts"`
		DiscoveryDigest bool `json:"discovery_digest"`
	}
	if err := json.Unmarshal(data, &prefs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !prefs.BountyUpdates || !prefs.PayoutAlerts || prefs.DiscoveryDigest {
		t.Fatalf("unexpected defaults: %+v", prefs)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/notifications/prefs", map[string]any{
		"bounty_updates":   false,
		"payout_alerts":    true,
		"discovery_digest": true,
		"slack_dms":        false,
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put prefs status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/notifications/prefs", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get prefs status %d", res.StatusCode)
	}
	if err := json.Unmarshal(data, &prefs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if prefs.BountyUpdates || !prefs.DiscoveryDigest {
		t.Fatalf("prefs not persisted: %+v", prefs)
	}
}

func TestPostNotificationOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, upstreamStubs{})
	defer cleanup()
	client := srv.Client()
	adminHeaders := authHeaders(t, "admin")
	hunterHeaders := authHeaders(t, "hunter")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/notifications", map[string]any{
		"user_id": "hunter",
		"title":   "Manual heads up",
		"body":    "Check the new listing",
	}, adminHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("post notification status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/notifications?unread=true", nil, hunterHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list notifications status %d", res.StatusCode)
	}
	var items []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Manual heads up" || items[0].Kind != "note" {
		t.Fatalf("unexpected notifications: %+v", items)
	}

	// Recipients only see their own feed.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/notifications?unread=true", nil, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list notifications status %d", res.StatusCode)
	}
	var mine []any
	if err := json.Unmarshal(data, &mine); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(mine) != 0 {
		t.Fatalf("expected empty feed for sender, got %d", len(mine))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/notifications/"+items[0].ID+"/read", nil, hunterHeaders)
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusNoContent {
		t.Fatalf("mark read status %d: %s", res.StatusCode, string(data))
	}
}

func TestLedgerFailOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, upstreamStubs{})
	defer cleanup()
	client := srv.Client()
	headers := authHeaders(t, "admin")
	tenantID := createTenant(t, srv, headers)
	bounty := createBounty(t, srv, headers, tenantID, nil)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/ledger", map[string]any{
		"bounty_id":      bounty.ID,
		"type":           "payout",
		"amount":         75.0,
		"payment_method": "wise",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create entry status %d: %s", res.StatusCode, string(data))
	}
	var entry struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/ledger/"+entry.ID+"/fail", map[string]any{
		"reason": "account closed",
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("fail entry status %d: %s", res.StatusCode, string(data))
	}
	var failed struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(data, &failed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if failed.Status != "failed" || failed.Reference != "account closed" {
		t.Fatalf("unexpected entry: %+v", failed)
	}

	// A failed entry cannot be settled afterwards.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/ledger/"+entry.ID+"/settle", map[string]any{}, headers)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
}

func TestEventsFeedOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, upstreamStubs{})
	defer cleanup()
	client := srv.Client()
	headers := authHeaders(t, "admin")
	tenantID := createTenant(t, srv, headers)
	b := createBounty(t, srv, headers, tenantID, nil)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?entity_kind=bounty&entity_id="+b.ID, nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var feed EventListResponse
	if err := json.Unmarshal(data, &feed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(feed.Items) != 1 || feed.Items[0].Type != "bounty.created" {
		t.Fatalf("unexpected events: %+v", feed.Items)
	}
	if feed.Items[0].UserID != "admin" {
		t.Fatalf("expected actor admin, got %s", feed.Items[0].UserID)
	}
}

func TestGitHubProxy(t *testing.T) {
	srv, cleanup := newTestServer(t, upstreamStubs{
		github: func(w http.ResponseWriter, r *http.Request) {
			switch {
			case strings.HasSuffix(r.URL.Path, "/repos/acme/api"):
				w.Write([]byte(`{"full_name":"acme/api","stargazers_count":42,"language":"Go"}`))
			case strings.Contains(r.URL.Path, "/search/issues"):
				w.Write([]byte(`{"total_count":0,"items":[]}`))
			default:
				http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			}
		},
	})
	defer cleanup()
	client := srv.Client()
	headers := authHeaders(t, "maria")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/github/repos/acme/api", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("proxy status %d: %s", res.StatusCode, string(data))
	}
	var repoMeta github.Repository
	if err := json.Unmarshal(data, &repoMeta); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if repoMeta.FullName != "acme/api" || repoMeta.Stars != 42 {
		t.Fatalf("unexpected repo: %+v", repoMeta)
	}

	// Upstream failure maps to 502 upstream_error.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/github/repos/acme/missing", nil, headers)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "upstream_error" {
		t.Fatalf("expected upstream_error, got %s", code)
	}
}

func TestOrchestratorWorkflow(t *testing.T) {
	srv, cleanup := newTestServer(t, upstreamStubs{
		orchestrator: func(w http.ResponseWriter, r *http.Request) {
			switch {
			case strings.HasSuffix(r.URL.Path, "/start"):
				w.Write([]byte(`{"run_id":"run-1","status":"running","stage":"clone"}`))
			case strings.HasSuffix(r.URL.Path, "/status"):
				w.Write([]byte(`{"run_id":"run-1","status":"awaiting_approval","pr_url":"https://github.com/acme/api/pull/9"}`))
			case strings.HasSuffix(r.URL.Path, "/approve"):
				w.Write([]byte(`{"run_id":"run-1","status":"approved"}`))
			default:
				http.Error(w, `{"detail":"unknown"}`, http.StatusNotFound)
			}
		},
	})
	defer cleanup()
	client := srv.Client()
	headers := authHeaders(t, "admin")
	tenantID := createTenant(t, srv, headers)
	b := createBounty(t, srv, headers, tenantID, nil)

	// start requires a claimable state.
	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/bounties/"+b.ID, map[string]any{"status": "claimed"}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("claim: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/bounties/"+b.ID+"/start", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status %d: %s", res.StatusCode, string(data))
	}
	var run orchestrator.RunStatus
	if err := json.Unmarshal(data, &run); err != nil {
		t.Fatalf("unmarshal run: %v", err)
	}
	if run.RunID != "run-1" || run.Status != "running" {
		t.Fatalf("unexpected run: %+v", run)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/bounties/"+b.ID, nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get bounty: %d", res.StatusCode)
	}
	var started BountyResponse
	if err := json.Unmarshal(data, &started); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if started.Status != "in_progress" {
		t.Fatalf("expected in_progress after start, got %s", started.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/bounties/"+b.ID+"/run", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("run status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &run); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if run.PRURL == "" {
		t.Fatalf("expected pr_url from orchestrator, got %+v", run)
	}

	// Approve only allowed once the bounty is vetting.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/bounties/"+b.ID+"/approve", nil, headers)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 before vetting, got %d: %s", res.StatusCode, string(data))
	}
	for _, s := range []string{"submitted", "vetting"} {
		res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/bounties/"+b.ID, map[string]any{"status": s}, headers)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("transition to %s: %d %s", s, res.StatusCode, string(data))
		}
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/bounties/"+b.ID+"/approve", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/bounties/"+b.ID, nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get bounty: %d", res.StatusCode)
	}
	var done BountyResponse
	if err := json.Unmarshal(data, &done); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if done.Status != "completed" || done.CompletedAt == nil {
		t.Fatalf("expected completed with timestamp, got %+v", done)
	}
}

func TestDiscoverOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, upstreamStubs{
		github: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"total_count":1,"items":[
				{"number":3,"title":"Fix leak $300","html_url":"https://github.com/acme/api/issues/3",
				 "labels":[{"name":"bounty"}],"created_at":"2026-02-01T00:00:00Z"}
			]}`))
		},
	})
	defer cleanup()
	client := srv.Client()
	headers := authHeaders(t, "maria")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/discover?limit=5", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("discover status %d: %s", res.StatusCode, string(data))
	}
	var result discover.Result
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(result.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d (errors: %v)", len(result.Candidates), result.Errors)
	}
	if result.Candidates[0].Score <= 0 {
		t.Fatalf("expected positive score, got %v", result.Candidates[0].Score)
	}
}
