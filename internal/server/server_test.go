package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"permitflow/internal/config"
	"permitflow/internal/db"
	"permitflow/internal/domain"
	"permitflow/internal/engine"
	"permitflow/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowLegacyActorHeader: true},
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
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func asRole(role domain.Role) map[string]string {
	return map[string]string{
		"X-Actor-Email": string(role) + "@site.example",
		"X-Actor-Role":  string(role),
	}
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

func TestPermitLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/permits", map[string]any{
		"work_type":  "Hot Work",
		"valid_from": "2026-03-01T09:00:00Z",
		"valid_to":   "2026-03-01T17:00:00Z",
	}, asRole(domain.RoleRequester))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create permit status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Permit
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal permit: %v", err)
	}
	if p.Status != domain.PermitPendingReview {
		t.Fatalf("expected pending_review, got %s", p.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/permits/"+p.ID+"/actions", map[string]any{
		"action": "review",
	}, asRole(domain.RoleReviewer))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("review status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/permits/"+p.ID+"/actions", map[string]any{
		"action": "approve",
	}, asRole(domain.RoleApprover))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &p)
	if p.Status != domain.PermitActive {
		t.Fatalf("expected active, got %s", p.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/permits/"+p.ID+"/renewals", map[string]any{
		"valid_from": "2026-03-01T17:00:00Z",
		"valid_to":   "2026-03-02T01:00:00Z",
		"gas":        map[string]string{"hc": "0%"},
	}, asRole(domain.RoleRequester))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("renewal status %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &p)
	if p.Status != domain.PermitRenewalPendingReview || len(p.Renewals) != 1 {
		t.Fatalf("after renewal: status=%s entries=%d", p.Status, len(p.Renewals))
	}

	for _, role := range []domain.Role{domain.RoleReviewer, domain.RoleApprover} {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/permits/"+p.ID+"/renewals/actions", map[string]any{
			"action": "approve",
		}, asRole(role))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("renewal %s status %d: %s", role, res.StatusCode, string(data))
		}
	}
	_ = json.Unmarshal(data, &p)
	if p.Status != domain.PermitActive || p.ValidTo != "2026-03-02T01:00:00Z" {
		t.Fatalf("after renewal approval: status=%s valid_to=%s", p.Status, p.ValidTo)
	}

	// close it out
	steps := []struct {
		role   domain.Role
		action string
	}{
		{domain.RoleRequester, "initiate_closure"},
		{domain.RoleReviewer, "approve_closure"},
		{domain.RoleApprover, "approve"},
	}
	for _, s := range steps {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/permits/"+p.ID+"/actions", map[string]any{
			"action": s.action,
		}, asRole(s.role))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s status %d: %s", s.action, res.StatusCode, string(data))
		}
	}
	_ = json.Unmarshal(data, &p)
	if p.Status != domain.PermitClosed {
		t.Fatalf("expected closed, got %s", p.Status)
	}
}

func TestErrorStatusCodes(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	// 404 unknown permit
	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/permits/WP-9999", nil, asRole(domain.RoleRequester))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got %d", res.StatusCode)
	}

	// 400 unknown work type
	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v1/permits", map[string]any{
		"work_type": "Underwater Basket Weaving",
	}, asRole(domain.RoleRequester))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", res.StatusCode)
	}

	// 400 underage worker
	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v1/workers", map[string]any{
		"name": "Kid", "age": 17,
	}, asRole(domain.RoleRequester))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 for underage worker, got %d", res.StatusCode)
	}

	// 422 illegal transition
	resCreate, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/permits", map[string]any{
		"work_type": "Cold Work",
	}, asRole(domain.RoleRequester))
	if resCreate.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", resCreate.StatusCode, string(data))
	}
	var p domain.Permit
	_ = json.Unmarshal(data, &p)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/permits/"+p.ID+"/actions", map[string]any{
		"action": "approve",
	}, asRole(domain.RoleApprover))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("want 422, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "invalid_transition" {
		t.Fatalf("want invalid_transition envelope, got %s", string(data))
	}

	// 409 stale observed status
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/permits/"+p.ID+"/actions", map[string]any{
		"action": "review",
	}, asRole(domain.RoleReviewer))
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/permits/"+p.ID+"/actions", map[string]any{
		"action": "approve",
	}, asRole(domain.RoleApprover))
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/permits/"+p.ID+"/actions", map[string]any{
		"action":    "reject",
		"if_status": "pending_review",
	}, asRole(domain.RoleReviewer))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("want 409, got %d: %s", res.StatusCode, string(data))
	}
}

func TestLoginIssuesUsableToken(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	if _, err := srv.Engine.CreateUser(context.Background(), "rita@site.example", "Rita", domain.RoleRequester, "hunter2hunter2"); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"email": "rita@site.example", "password": "wrong-password",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password: want 401, got %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"email": "rita@site.example", "password": "hunter2hunter2",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var login LoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("no token in response: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me map[string]any
	_ = json.Unmarshal(data, &me)
	if me["email"] != "rita@site.example" || me["role"] != "Requester" {
		t.Fatalf("unexpected principal: %v", me)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/permits", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", res.StatusCode)
	}
}

func TestDashboardQueuesByRole(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/permits", map[string]any{
		"work_type": "Cold Work",
	}, asRole(domain.RoleRequester))
	var p domain.Permit
	_ = json.Unmarshal(data, &p)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/dashboard", nil, asRole(domain.RoleReviewer))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status %d: %s", res.StatusCode, string(data))
	}
	var d engine.Dashboard
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("unmarshal dashboard: %v", err)
	}
	if len(d.Permits) != 1 || d.Permits[0].ID != p.ID {
		t.Fatalf("reviewer queue should hold the new permit: %+v", d.Permits)
	}

	// approver has nothing to decide yet
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/dashboard", nil, asRole(domain.RoleApprover))
	var ad engine.Dashboard
	_ = json.Unmarshal(data, &ad)
	if len(ad.Permits) != 0 {
		t.Fatalf("approver queue should be empty: %+v", ad.Permits)
	}
}
