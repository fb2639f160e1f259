package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/migrate"
	"fieldline/internal/providers"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
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
		Engine:    e,
		Providers: &providers.Service{},
		BasePath:  "/v1",
		Auth:      AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
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
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
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

// registerAndLogin provisions an account and returns bearer headers for it.
func registerAndLogin(t *testing.T, srv *testServer, username, role string) map[string]string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/register", map[string]any{
		"username": username,
		"password": "pw-" + username,
		"role":     role,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: %d %s", username, res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"username": username,
		"password": "pw-" + username,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s: %d %s", username, res.StatusCode, string(data))
	}
	var tok TokenResponse
	if err := json.Unmarshal(data, &tok); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + tok.Token}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestRegisterLoginCreateTaskScenario(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	adminHeaders := registerAndLogin(t, srv, "alice", "Office Admin")

	// Status in the payload must be ignored: new tasks start as Not Started.
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"description":    "replace water heater",
		"location":       "12 Elm St",
		"estimated_cost": 450,
		"priority":       "High",
		"status":         "Completed",
	}, adminHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var created domain.Task
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.Status != domain.TaskStatusNotStarted {
		t.Fatalf("status = %q, want Not Started", created.Status)
	}

	// Dispatcher can re-prioritize but not create.
	dispatchHeaders := registerAndLogin(t, srv, "dana", "Dispatcher")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"description": "x", "location": "y", "priority": "Low",
	}, dispatchHeaders)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("dispatcher create: %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "access_denied" {
		t.Fatalf("error code = %q", code)
	}

	res, data = doJSON(t, client, http.MethodPut, fmt.Sprintf("%s/v1/tasks/%d/priority", srv.URL, created.ID), map[string]any{
		"priority": "Urgent",
	}, dispatchHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set priority: %d %s", res.StatusCode, string(data))
	}
	var bumped domain.Task
	_ = json.Unmarshal(data, &bumped)
	if bumped.Priority != domain.PriorityUrgent {
		t.Fatalf("priority = %q", bumped.Priority)
	}
	if bumped.Description != created.Description || bumped.EstimatedCost != created.EstimatedCost {
		t.Fatalf("set-priority changed other fields: %+v", bumped)
	}
}

func TestAuthFailures(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	// No credentials.
	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list: %d", res.StatusCode)
	}

	// Wrong password maps to invalid_credentials.
	registerAndLogin(t, srv, "alice", "Employee")
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"username": "alice", "password": "nope",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login: %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "invalid_credentials" {
		t.Fatalf("error code = %q", code)
	}

	// Taken username maps to duplicate_username.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/register", map[string]any{
		"username": "alice", "password": "pw", "role": "Employee",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register: %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "duplicate_username" {
		t.Fatalf("error code = %q", code)
	}
}

func TestNotFoundAndUpstreamMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := registerAndLogin(t, srv, "alice", "Office Admin")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/424242", nil, headers)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing task: %d %s", res.StatusCode, string(data))
	}

	// No providers configured: cascade exhaustion maps to 502.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/address/validate", map[string]any{
		"address": "12 elm street",
	}, headers)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("address validate: %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "upstream_failed" {
		t.Fatalf("error code = %q", code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := registerAndLogin(t, srv, "alice", "Office Admin")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/api-keys", map[string]any{
		"name": "laptop",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("mint key: %d %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatal("raw key not returned")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/auth/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key: %d %s", res.StatusCode, string(data))
	}
	var me domain.User
	_ = json.Unmarshal(data, &me)
	if me.Username != "alice" {
		t.Fatalf("api key resolved to %q", me.Username)
	}
}

func TestScanReceiptRequiresOfficeAdmin(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	image := base64.StdEncoding.EncodeToString([]byte("receipt bytes"))

	// Employees and dispatchers are turned away before any provider runs.
	for _, role := range []string{"Employee", "Dispatcher"} {
		headers := registerAndLogin(t, srv, "scan-"+role, role)
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/receipts/scan", map[string]any{
			"image": image,
		}, headers)
		if res.StatusCode != http.StatusForbidden {
			t.Fatalf("scan as %s: %d %s", role, res.StatusCode, string(data))
		}
		if code := errorCode(t, data); code != "access_denied" {
			t.Fatalf("error code = %q", code)
		}
	}

	// Office Admin clears the rank check; with no OCR providers configured
	// the cascade exhausts and maps to 502.
	headers := registerAndLogin(t, srv, "scan-admin", "Office Admin")
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/receipts/scan", map[string]any{
		"image": image,
	}, headers)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("scan as admin: %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "upstream_failed" {
		t.Fatalf("error code = %q", code)
	}
}

func TestNotifyIsFireAndForget(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := registerAndLogin(t, srv, "dispatch", "Dispatcher")

	// No senders configured: the drop is logged server-side, the caller
	// still gets 202.
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/notifications", map[string]any{
		"device_token": "tok-1", "title": "New job", "body": "12 Elm St",
	}, headers)
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("notify: %d %s", res.StatusCode, string(data))
	}

	employee := registerAndLogin(t, srv, "crew", "Employee")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/notifications", map[string]any{
		"device_token": "tok-1", "title": "New job", "body": "12 Elm St",
	}, employee)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("notify as employee: %d %s", res.StatusCode, string(data))
	}
}

func TestOpenAPISchemaIsPublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi.json: %d %s", res.StatusCode, string(data))
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if _, ok := doc["paths"]; !ok {
		t.Fatalf("schema missing paths: %s", string(data))
	}
}
