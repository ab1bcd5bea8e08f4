package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/nb2py/internal/convertservice"
	"github.com/starford/nb2py/internal/testutil"
	"github.com/starford/nb2py/internal/transcoder"
)

// testEnv sets up a temp workspace, SQLite ledger, service, and router for testing.
// An empty authToken means disabled mode; a non-empty one enables token mode.
func testEnv(t *testing.T, authToken string) (http.Handler, string) {
	t.Helper()
	auth := Auth{Mode: AuthModeDisabled}
	if authToken != "" {
		auth = Auth{Mode: AuthModeToken, Token: authToken}
	}
	return testEnvFull(t, auth, nil)
}

func testService(t *testing.T) (*convertservice.Service, string) {
	t.Helper()
	dir, store := testutil.TestWorkspace(t)
	db := testutil.TestDB(t)
	logger := testutil.DiscardLogger()
	return convertservice.NewService(store, db, transcoder.New(transcoder.WithLogger(logger)), logger), dir
}

func testEnvFull(t *testing.T, auth Auth, sseHandler http.Handler) (http.Handler, string) {
	t.Helper()
	svc, dir := testService(t)
	return NewRouter(svc, auth, sseHandler), dir
}

func do(router http.Handler, method, target string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestConvert_JSON(t *testing.T) {
	router, _ := testEnv(t, "")
	nb := testutil.Notebook(t,
		testutil.Code("import os\n", "os.environ[\"X\"] = \"1\"\n", "print(1)"),
	)

	w := do(router, http.MethodPost, "/convert", nb, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ConvertResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"import os", `os.environ["X"] = "1"`}, resp.Header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if resp.CodeCells != 1 || resp.Policy != "drop" || len(resp.Warnings) != 0 {
		t.Errorf("resp = %+v", resp)
	}
	if got := w.Header().Get("X-Nb2py-Warnings"); got != "0" {
		t.Errorf("X-Nb2py-Warnings = %q", got)
	}
}

func TestConvert_ScriptAccept(t *testing.T) {
	router, _ := testEnv(t, "")
	nb := testutil.Notebook(t, testutil.Code("%%time\n", "x = 1"))

	w := do(router, http.MethodPost, "/convert", nb, map[string]string{"Accept": "text/x-python"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, ScriptMediaType) {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "    ##%%time\n    x = 1") {
		t.Errorf("script = %q", body)
	}
	if !strings.HasSuffix(body, transcoder.Footer) {
		t.Error("script missing footer")
	}
}

func TestConvert_Errors(t *testing.T) {
	router, _ := testEnv(t, "")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"not json", "not json", http.StatusUnprocessableEntity},
		{"no cells", `{"metadata":{}}`, http.StatusUnprocessableEntity},
		{"malformed cell", `{"cells":[{"cell_type":"code","source":7}]}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/convert", []byte(tc.body), nil)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestConvert_BodyTooLarge(t *testing.T) {
	svc, _ := testService(t)
	h := NewHandler(svc)
	nb := testutil.Notebook(t, testutil.Code("print(1)"))
	h.maxBody = int64(len(nb) - 1)

	w := do(http.HandlerFunc(h.Convert), http.MethodPost, "/convert", nb, nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413 (body %s)", w.Code, w.Body.String())
	}

	h.maxBody = int64(len(nb))
	if w := do(http.HandlerFunc(h.Convert), http.MethodPost, "/convert", nb, nil); w.Code != http.StatusOK {
		t.Errorf("at limit: status = %d, want 200", w.Code)
	}
}

func TestConvertNotebookAndGetConversion(t *testing.T) {
	router, dir := testEnv(t, "")
	testutil.WriteNotebook(t, dir, "runs/train.ipynb", testutil.Notebook(t,
		testutil.Markdown("# Train"),
		testutil.Code("print('train')"),
	))

	w := do(router, http.MethodPost, "/notebooks/runs/train.ipynb", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("convert status = %d, body = %s", w.Code, w.Body.String())
	}
	var c Conversion
	_ = json.Unmarshal(w.Body.Bytes(), &c)
	if c.ScriptPath != "runs/train.py" {
		t.Errorf("script_path = %q", c.ScriptPath)
	}

	// Encoded slash.
	w = do(router, http.MethodGet, "/conversions/runs%2Ftrain.ipynb", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = do(router, http.MethodGet, "/conversions/runs/train.ipynb", nil, map[string]string{"Accept": "text/x-python"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "print('train')") {
		t.Errorf("script = %d %q", w.Code, w.Body.String())
	}
}

func TestConvertNotebook_Errors(t *testing.T) {
	router, _ := testEnv(t, "")

	if w := do(router, http.MethodPost, "/notebooks/ghost.ipynb", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("missing notebook = %d, want 404", w.Code)
	}
	if w := do(router, http.MethodPost, "/notebooks/readme.md", nil, nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("non-notebook = %d, want 422", w.Code)
	}
	if w := do(router, http.MethodGet, "/conversions/ghost.ipynb", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("missing conversion = %d, want 404", w.Code)
	}
}

func TestListConversions(t *testing.T) {
	router, dir := testEnv(t, "")
	for _, p := range []string{"b.ipynb", "a.ipynb"} {
		testutil.WriteNotebook(t, dir, p, testutil.Notebook(t, testutil.Code("x = 1")))
		if w := do(router, http.MethodPost, "/notebooks/"+p, nil, nil); w.Code != http.StatusOK {
			t.Fatalf("convert %s = %d", p, w.Code)
		}
	}

	w := do(router, http.MethodGet, "/conversions?sort=path&limit=1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var resp ConversionListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || len(resp.Conversions) != 1 || resp.Conversions[0].NotebookPath != "a.ipynb" {
		t.Errorf("resp = %+v", resp)
	}

	if w := do(router, http.MethodGet, "/conversions?sort=nope", nil, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad sort = %d, want 400", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	router, dir := testEnv(t, "")
	testutil.WriteNotebook(t, dir, "s.ipynb", testutil.Notebook(t, testutil.Code("zebra_count = 3")))
	do(router, http.MethodPost, "/notebooks/s.ipynb", nil, nil)

	w := do(router, http.MethodGet, "/search?q=zebra", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].NotebookPath != "s.ipynb" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	router, _ := testEnv(t, "")
	if w := do(router, http.MethodGet, "/search", nil, nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	router, _ := testEnv(t, "secret123")

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing token", nil, http.StatusUnauthorized},
		{"wrong token", map[string]string{"Authorization": "Bearer wrong"}, http.StatusUnauthorized},
		{"token prefix", map[string]string{"Authorization": "Bearer secret"}, http.StatusUnauthorized},
		{"other scheme", map[string]string{"Authorization": "Basic secret123"}, http.StatusUnauthorized},
		{"empty bearer", map[string]string{"Authorization": "Bearer "}, http.StatusUnauthorized},
		{"valid token", map[string]string{"Authorization": "Bearer secret123"}, http.StatusOK},
		{"lowercase scheme", map[string]string{"Authorization": "bearer secret123"}, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := do(router, http.MethodGet, "/conversions", nil, tc.header)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
			if w.Code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate challenge")
			}
		})
	}
}

func TestAuthMiddleware_Modes(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	bearer := map[string]string{"Authorization": "Bearer tok"}

	tests := []struct {
		name   string
		auth   Auth
		header map[string]string
		want   int
	}{
		{"disabled ignores header", Auth{Mode: AuthModeDisabled, Token: "tok"}, nil, http.StatusOK},
		{"empty mode is disabled", Auth{}, nil, http.StatusOK},
		{"token mode", Auth{Mode: AuthModeToken, Token: "tok"}, bearer, http.StatusOK},
		{"token mode without token", Auth{Mode: AuthModeToken}, map[string]string{"Authorization": "Bearer x"}, http.StatusUnauthorized},
		{"unknown mode", Auth{Mode: "oidc", Token: "tok"}, bearer, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if w := do(AuthMiddleware(tc.auth)(ok), http.MethodGet, "/", nil, tc.header); w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	router, _ := testEnv(t, "")
	if w := do(router, http.MethodGet, "/conversions", nil, nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	router, _ := testEnvFull(t, Auth{Mode: AuthModeToken, Token: "secret"}, blockingSSE)

	if w := do(router, http.MethodGet, "/events", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router, _ := testEnvFull(t, Auth{Mode: AuthModeToken, Token: "tok"}, blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}
