package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/davidgodzsak/timelimitd/internal/classifier"
	"github.com/davidgodzsak/timelimitd/internal/policy"
	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/davidgodzsak/timelimitd/internal/storage/bolt"
	"github.com/davidgodzsak/timelimitd/internal/tracking"
)

const (
	testUsername    = "admin"
	testPassword    = "opensesame11"
	testBlockedBase = "http://127.0.0.1:8177/blocked"
)

type testServer struct {
	srv    *Server
	store  *bolt.Store
	engine *tracking.Engine
	queue  *CommandQueue
	clock  *tracking.TestClock
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ctx := context.Background()
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	store, err := bolt.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})

	if err := EnsureInitialAdminUser(ctx, store.AdminUsers(), testUsername, testPassword, logger); err != nil {
		t.Fatalf("failed to create initial user: %v", err)
	}

	clock := &tracking.TestClock{CurrentTime: time.Date(2026, 8, 21, 15, 0, 0, 0, time.Local)}

	sites, err := classifier.New(store.Rules(), 128, logger)
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}
	if err := sites.ReloadRules(ctx); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	engine := tracking.NewEngine(store.Usage(), sites, clock, tracking.Config{CheckpointInterval: time.Minute}, logger)
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Run(runCtx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	queue := NewCommandQueue(0, logger)
	evaluator := policy.NewEvaluator(store.Rules(), store.Usage(), clock, logger)
	gate := policy.NewGate(sites, evaluator, queue, store.Blocks(), testBlockedBase, logger)

	srv := NewServer(Config{
		ListenAddr:      "127.0.0.1:0",
		JWTSecret:       "test-secret",
		TokenExpiration: time.Hour,
	}, store, engine, evaluator, gate, queue, sites, clock, logger)

	ts := &testServer{
		srv:    srv,
		store:  store,
		engine: engine,
		queue:  queue,
		clock:  clock,
	}
	ts.token = ts.login(t, testUsername, testPassword)
	return ts
}

// do runs one request through the full router, middleware included.
func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T, username, password string) string {
	t.Helper()

	rec := ts.do(t, "POST", "/api/v1/auth/login", "", LoginRequest{Username: username, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login returned an empty token")
	}
	return resp.Token
}

func (ts *testServer) createRule(t *testing.T, rule storage.SiteRule) storage.SiteRule {
	t.Helper()

	rec := ts.do(t, "POST", "/api/v1/rules", ts.token, rule)
	if rec.Code != http.StatusCreated {
		t.Fatalf("rule create returned %d: %s", rec.Code, rec.Body.String())
	}

	var created storage.SiteRule
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode created rule: %v", err)
	}
	return created
}

// waitForLiveSession polls until the engine has consumed enough signals to
// hold (or drop) a live session.
func (ts *testServer) waitForLiveSession(t *testing.T, want bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, _, ok := ts.engine.LiveSession(); ok == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("engine live session never became %v", want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAuthRequiredOnAPIRoutes(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, "GET", "/api/v1/rules", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}
	if rec := ts.do(t, "GET", "/api/v1/rules", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", rec.Code)
	}
	if rec := ts.do(t, "GET", "/api/v1/rules", ts.token, nil); rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rec.Code)
	}

	rec := ts.do(t, "POST", "/api/v1/auth/login", "", LoginRequest{Username: testUsername, Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login: status = %d, want 401", rec.Code)
	}
}

func TestMeReturnsClaims(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "GET", "/api/v1/auth/me", ts.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me returned %d", rec.Code)
	}

	var user UserInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
		t.Fatalf("failed to decode user: %v", err)
	}
	if user.Username != testUsername {
		t.Errorf("username = %q, want %q", user.Username, testUsername)
	}
}

func TestRuleLifecycleDrivesEnforcement(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	created := ts.createRule(t, storage.SiteRule{
		Pattern:               "reddit.com",
		DailyTimeLimitSeconds: 3600,
		DailyOpenLimit:        5,
		Enabled:               true,
	})
	if !strings.HasPrefix(created.ID, "rule-") {
		t.Errorf("generated ID = %q, want rule- prefix", created.ID)
	}
	if created.CreatedAt.IsZero() {
		t.Error("created rule has no creation time")
	}

	// The create reloaded the classifier, so the gate sees the site at
	// once. Under the ceilings the navigation passes.
	nav := NavigationRequest{TabID: 3, URL: "https://www.reddit.com/r/golang"}
	rec := ts.do(t, "POST", "/api/v1/navigations", ts.token, nav)
	if rec.Code != http.StatusOK {
		t.Fatalf("navigations returned %d", rec.Code)
	}
	var resp NavigationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode navigation response: %v", err)
	}
	if resp.Blocked {
		t.Fatalf("navigation blocked with no usage: %+v", resp)
	}

	// Cross the time ceiling and the same navigation gets redirected.
	today := storage.DateKey(ts.clock.CurrentTime)
	if err := ts.store.Usage().IncrementDailyUsage(ctx, today, created.ID, 4000, 2); err != nil {
		t.Fatalf("failed to seed usage: %v", err)
	}

	rec = ts.do(t, "POST", "/api/v1/navigations", ts.token, nav)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode navigation response: %v", err)
	}
	if !resp.Blocked {
		t.Fatal("navigation not blocked over the ceiling")
	}
	if !strings.HasPrefix(resp.RedirectURL, testBlockedBase+"?") {
		t.Errorf("redirect URL = %q, want %s prefix", resp.RedirectURL, testBlockedBase)
	}
	if !strings.Contains(resp.RedirectURL, "siteId="+created.ID) {
		t.Errorf("redirect URL %q does not carry the site ID", resp.RedirectURL)
	}
	// The redirect was handed back inline, not left for the poll.
	if ts.queue.Len() != 0 {
		t.Errorf("command queue still holds %d commands", ts.queue.Len())
	}

	// Deleting the rule reloads the classifier too; the site is no longer
	// monitored.
	rec = ts.do(t, "DELETE", "/api/v1/rules/"+created.ID, ts.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rule delete returned %d", rec.Code)
	}
	rec = ts.do(t, "POST", "/api/v1/navigations", ts.token, nav)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode navigation response: %v", err)
	}
	if resp.Blocked {
		t.Error("navigation still blocked after rule deletion")
	}
}

func TestRuleValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "POST", "/api/v1/rules", ts.token, storage.SiteRule{Enabled: true})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty pattern: status = %d, want 400", rec.Code)
	}

	rec = ts.do(t, "POST", "/api/v1/rules", ts.token, storage.SiteRule{Pattern: "x.com", DailyOpenLimit: -1})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit: status = %d, want 400", rec.Code)
	}

	rec = ts.do(t, "GET", "/api/v1/rules/rule-missing", ts.token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown rule: status = %d, want 404", rec.Code)
	}
}

func TestSignalsStartSessions(t *testing.T) {
	ts := newTestServer(t)

	created := ts.createRule(t, storage.SiteRule{
		Pattern:               "youtube.com",
		DailyTimeLimitSeconds: 3600,
		Enabled:               true,
	})

	tabID := int64(1)
	url := "https://youtube.com/watch?v=abc"
	rec := ts.do(t, "POST", "/api/v1/signals", ts.token, SignalRequest{TabID: &tabID, URL: &url, Focused: true})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("signals returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp SignalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode signal response: %v", err)
	}
	if !resp.Queued {
		t.Error("signal not acknowledged as queued")
	}

	ts.waitForLiveSession(t, true)

	// The session open lands in today's ledger right after the session is
	// set; poll past that small window.
	var usage struct {
		Date        string               `json:"date"`
		Entries     []storage.UsageEntry `json:"entries"`
		LiveSession *LiveSessionInfo     `json:"live_session"`
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = ts.do(t, "GET", "/api/v1/usage/today", ts.token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("usage/today returned %d", rec.Code)
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &usage); err != nil {
			t.Fatalf("failed to decode usage response: %v", err)
		}
		if len(usage.Entries) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session open never reached the ledger")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if usage.Date != storage.DateKey(ts.clock.CurrentTime) {
		t.Errorf("date = %q, want %q", usage.Date, storage.DateKey(ts.clock.CurrentTime))
	}
	if len(usage.Entries) != 1 || usage.Entries[0].SiteID != created.ID || usage.Entries[0].Opens != 1 {
		t.Errorf("unexpected ledger entries: %+v", usage.Entries)
	}
	if usage.LiveSession == nil || usage.LiveSession.SiteID != created.ID || usage.LiveSession.TabID != tabID {
		t.Errorf("unexpected live session: %+v", usage.LiveSession)
	}

	// An unfocused signal ends the session.
	rec = ts.do(t, "POST", "/api/v1/signals", ts.token, SignalRequest{Focused: false})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("unfocus signal returned %d", rec.Code)
	}
	ts.waitForLiveSession(t, false)
}

func TestSignalsCarryPendingCommands(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	target := testBlockedBase + "?siteId=rule-x"
	if err := ts.queue.Redirect(ctx, 7, target); err != nil {
		t.Fatalf("failed to queue redirect: %v", err)
	}

	tabID := int64(7)
	rec := ts.do(t, "POST", "/api/v1/signals", ts.token, SignalRequest{TabID: &tabID, Focused: true})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("signals returned %d", rec.Code)
	}
	var resp SignalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode signal response: %v", err)
	}
	if len(resp.Commands) != 1 || resp.Commands[0].URL != target {
		t.Fatalf("unexpected commands: %+v", resp.Commands)
	}

	// Delivered once.
	rec = ts.do(t, "POST", "/api/v1/signals", ts.token, SignalRequest{TabID: &tabID, Focused: true})
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode signal response: %v", err)
	}
	if len(resp.Commands) != 0 {
		t.Errorf("commands delivered twice: %+v", resp.Commands)
	}
}

func TestCommandsEndpointDrainsQueue(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	_ = ts.queue.Redirect(ctx, 1, testBlockedBase+"?siteId=a")
	_ = ts.queue.Redirect(ctx, 2, testBlockedBase+"?siteId=b")

	rec := ts.do(t, "GET", "/api/v1/commands", ts.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("commands returned %d", rec.Code)
	}
	var resp struct {
		Commands []Command `json:"commands"`
		Count    int       `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode commands response: %v", err)
	}
	if resp.Count != 2 || len(resp.Commands) != 2 {
		t.Fatalf("first drain = %+v, want 2 commands", resp)
	}

	rec = ts.do(t, "GET", "/api/v1/commands", ts.token, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode commands response: %v", err)
	}
	if resp.Count != 0 || len(resp.Commands) != 0 {
		t.Errorf("second drain = %+v, want empty", resp)
	}
}

func TestDecisionEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	created := ts.createRule(t, storage.SiteRule{
		Pattern:               "reddit.com",
		DailyTimeLimitSeconds: 3600,
		Enabled:               true,
	})
	today := storage.DateKey(ts.clock.CurrentTime)
	if err := ts.store.Usage().IncrementDailyUsage(ctx, today, created.ID, 4000, 0); err != nil {
		t.Fatalf("failed to seed usage: %v", err)
	}

	rec := ts.do(t, "GET", "/api/v1/decision/"+created.ID, ts.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("decision returned %d", rec.Code)
	}
	var decision policy.Decision
	if err := json.Unmarshal(rec.Body.Bytes(), &decision); err != nil {
		t.Fatalf("failed to decode decision: %v", err)
	}
	if !decision.Blocked || decision.LimitType != storage.LimitTime {
		t.Errorf("decision = %+v, want time-blocked", decision)
	}
	if !strings.Contains(decision.Reason, "67 minutes") {
		t.Errorf("reason %q does not name the spent minutes", decision.Reason)
	}

	// Unknown sites are never blocked.
	rec = ts.do(t, "GET", "/api/v1/decision/rule-unknown", ts.token, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &decision); err != nil {
		t.Fatalf("failed to decode decision: %v", err)
	}
	if decision.Blocked {
		t.Errorf("unknown site blocked: %+v", decision)
	}
}

func TestUsageByDate(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	if err := ts.store.Usage().IncrementDailyUsage(ctx, "2026-08-20", "rule-a", 120, 1); err != nil {
		t.Fatalf("failed to seed usage: %v", err)
	}
	if err := ts.store.Usage().IncrementDailyUsage(ctx, "2026-08-21", "rule-a", 60, 1); err != nil {
		t.Fatalf("failed to seed usage: %v", err)
	}

	rec := ts.do(t, "GET", "/api/v1/usage/2026-08-20", ts.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("usage by date returned %d", rec.Code)
	}
	var resp struct {
		Date    string               `json:"date"`
		Entries []storage.UsageEntry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode usage response: %v", err)
	}
	if resp.Date != "2026-08-20" || len(resp.Entries) != 1 || resp.Entries[0].TimeSpentSeconds != 120 {
		t.Errorf("unexpected usage for 2026-08-20: %+v", resp)
	}
}

func TestBlockLogEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	created := ts.createRule(t, storage.SiteRule{
		Pattern:               "reddit.com",
		DailyTimeLimitSeconds: 3600,
		Enabled:               true,
	})
	today := storage.DateKey(ts.clock.CurrentTime)
	if err := ts.store.Usage().IncrementDailyUsage(ctx, today, created.ID, 4000, 0); err != nil {
		t.Fatalf("failed to seed usage: %v", err)
	}

	// A blocked navigation appends to the log through the gate.
	nav := NavigationRequest{TabID: 3, URL: "https://reddit.com/r/all"}
	rec := ts.do(t, "POST", "/api/v1/navigations", ts.token, nav)
	if rec.Code != http.StatusOK {
		t.Fatalf("navigations returned %d", rec.Code)
	}
	var navResp NavigationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &navResp); err != nil {
		t.Fatalf("failed to decode navigation response: %v", err)
	}
	if !navResp.Blocked {
		t.Fatal("navigation not blocked over the ceiling")
	}

	var resp struct {
		Events []storage.BlockEvent `json:"events"`
		Count  int                  `json:"count"`
	}
	rec = ts.do(t, "GET", "/api/v1/blocks", ts.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("blocks returned %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode blocks response: %v", err)
	}
	if resp.Count != 1 || len(resp.Events) != 1 {
		t.Fatalf("blocks = %+v, want the one gate event", resp)
	}
	got := resp.Events[0]
	if got.SiteID != created.ID || got.LimitType != storage.LimitTime || got.URL != nav.URL {
		t.Errorf("unexpected block event: %+v", got)
	}
	if got.ID == "" || got.Timestamp.IsZero() || got.Reason == "" {
		t.Errorf("block event missing fields: %+v", got)
	}

	// Seeded history for the filters. Fixed timestamps keep the ordering
	// assertions independent of the wall clock.
	older := storage.BlockEvent{
		Timestamp: time.Date(2026, 8, 20, 10, 0, 0, 0, time.Local),
		SiteID:    "rule-other",
		URL:       "https://other.example/feed",
		LimitType: storage.LimitOpens,
		Reason:    "You have opened this site 5 times today (limit: 5).",
	}
	oldest := storage.BlockEvent{
		Timestamp: time.Date(2026, 8, 19, 10, 0, 0, 0, time.Local),
		SiteID:    "rule-other",
		URL:       "https://other.example/watch",
		LimitType: storage.LimitTime,
		Reason:    "You have spent 61 minutes on this site today (limit: 60 minutes).",
	}
	for _, event := range []storage.BlockEvent{older, oldest} {
		if err := ts.store.Blocks().Add(ctx, event); err != nil {
			t.Fatalf("failed to seed block event: %v", err)
		}
	}

	rec = ts.do(t, "GET", "/api/v1/blocks?siteId=rule-other", ts.token, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode blocks response: %v", err)
	}
	if resp.Count != 2 || resp.Events[0].URL != older.URL || resp.Events[1].URL != oldest.URL {
		t.Fatalf("siteId filter = %+v, want the two seeded events newest first", resp)
	}

	rec = ts.do(t, "GET", "/api/v1/blocks?limitType=opens", ts.token, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode blocks response: %v", err)
	}
	if resp.Count != 1 || resp.Events[0].URL != older.URL {
		t.Fatalf("limitType filter = %+v, want the opens event", resp)
	}

	// RFC 3339 values carry zone offsets, so clients must escape them.
	since := url.QueryEscape(oldest.Timestamp.Add(-time.Hour).Format(time.RFC3339))
	until := url.QueryEscape(oldest.Timestamp.Add(time.Hour).Format(time.RFC3339))
	rec = ts.do(t, "GET", "/api/v1/blocks?since="+since+"&until="+until, ts.token, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode blocks response: %v", err)
	}
	if resp.Count != 1 || resp.Events[0].URL != oldest.URL {
		t.Fatalf("time window = %+v, want only the oldest event", resp)
	}

	rec = ts.do(t, "GET", "/api/v1/blocks?siteId=rule-other&limit=1&offset=1", ts.token, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode blocks response: %v", err)
	}
	if resp.Count != 1 || resp.Events[0].URL != oldest.URL {
		t.Fatalf("pagination = %+v, want the second page", resp)
	}
}

func TestBlockLogQueryValidation(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{
		"/api/v1/blocks?limitType=bogus",
		"/api/v1/blocks?since=yesterday",
		"/api/v1/blocks?until=tomorrow",
		"/api/v1/blocks?limit=0",
		"/api/v1/blocks?limit=ten",
		"/api/v1/blocks?offset=-1",
	} {
		if rec := ts.do(t, "GET", path, ts.token, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestNoteLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "POST", "/api/v1/notes", ts.token, storage.Note{Text: "Go read a book instead."})
	if rec.Code != http.StatusCreated {
		t.Fatalf("note create returned %d: %s", rec.Code, rec.Body.String())
	}
	var note storage.Note
	if err := json.Unmarshal(rec.Body.Bytes(), &note); err != nil {
		t.Fatalf("failed to decode note: %v", err)
	}
	if !strings.HasPrefix(note.ID, "note-") {
		t.Errorf("generated ID = %q, want note- prefix", note.ID)
	}

	rec = ts.do(t, "POST", "/api/v1/notes", ts.token, storage.Note{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty note: status = %d, want 400", rec.Code)
	}

	rec = ts.do(t, "PUT", "/api/v1/notes/"+note.ID, ts.token, storage.Note{Text: "Stretch for five minutes."})
	if rec.Code != http.StatusOK {
		t.Fatalf("note update returned %d", rec.Code)
	}

	rec = ts.do(t, "GET", "/api/v1/notes/"+note.ID, ts.token, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &note); err != nil {
		t.Fatalf("failed to decode note: %v", err)
	}
	if note.Text != "Stretch for five minutes." {
		t.Errorf("note text = %q after update", note.Text)
	}

	rec = ts.do(t, "DELETE", "/api/v1/notes/"+note.ID, ts.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("note delete returned %d", rec.Code)
	}
	rec = ts.do(t, "GET", "/api/v1/notes/"+note.ID, ts.token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("deleted note still readable: %d", rec.Code)
	}
}

func TestBlockedPageRendersReasonAndNote(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "POST", "/api/v1/notes", ts.token, storage.Note{Text: "Go read a book instead."})
	if rec.Code != http.StatusCreated {
		t.Fatalf("note create returned %d", rec.Code)
	}

	rec = ts.do(t, "GET", "/blocked?reason=You+have+spent+67+minutes+on+this+site+today&blockedUrl=https://reddit.com/r/golang&siteId=rule-reddit&limitType=time", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("blocked page returned %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q, want text/html", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "You have spent 67 minutes on this site today") {
		t.Error("blocked page does not show the reason")
	}
	if !strings.Contains(body, "Go read a book instead.") {
		t.Error("blocked page does not show the motivational note")
	}
	if !strings.Contains(body, "https://reddit.com/r/golang") {
		t.Error("blocked page does not show the blocked URL")
	}
}

func TestBlockedPageEscapesInput(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "GET", "/blocked?reason=%3Cscript%3Ealert(1)%3C/script%3E", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("blocked page returned %d", rec.Code)
	}

	body := rec.Body.String()
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("blocked page renders raw HTML from query parameters")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Error("blocked page did not escape the injected markup")
	}
}

func TestBlockedPageWithoutParams(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "GET", "/blocked", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("blocked page returned %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "You have reached your daily limit") {
		t.Error("blocked page has no fallback reason")
	}
}

func TestChangePasswordEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "POST", "/api/v1/auth/change-password", ts.token, ChangePasswordRequest{
		OldPassword: testPassword,
		NewPassword: "short",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("short password: status = %d, want 400", rec.Code)
	}

	rec = ts.do(t, "POST", "/api/v1/auth/change-password", ts.token, ChangePasswordRequest{
		OldPassword: testPassword,
		NewPassword: "brandnewpass1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("change password returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, "POST", "/api/v1/auth/login", "", LoginRequest{Username: testUsername, Password: testPassword})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("old password still works: %d", rec.Code)
	}
	ts.login(t, testUsername, "brandnewpass1")
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "GET", "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("health status = %v", resp["status"])
	}
}
