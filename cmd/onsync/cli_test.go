package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onsync/onsync/internal/app"
	"github.com/onsync/onsync/internal/rbac"
	"github.com/onsync/onsync/internal/shared"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type backend struct {
	*httptest.Server
	meCalls atomic.Int32
}

func newBackend(t *testing.T, role string) *backend {
	t.Helper()
	b := &backend{}
	user := map[string]any{
		"id": 9, "email": "coach@example.com", "name": "Robin", "role": role,
		"account_id": 3, "account_name": "Peak",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login/", func(w http.ResponseWriter, r *http.Request) {
		var creds struct {
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&creds)
		w.Header().Set("Content-Type", "application/json")
		if creds.Password != "pw-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Invalid credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "cli-token", "user": user})
	})
	mux.HandleFunc("POST /auth/signup/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "created",
			"token":   "cli-token",
			"account": map[string]any{"id": 3, "name": "Peak"},
			"user": map[string]any{
				"id": 9, "email": "coach@example.com", "name": "Robin", "role": "super_admin",
				"account_id": 3, "account_name": "Peak",
			},
		})
	})
	mux.HandleFunc("POST /auth/logout/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /auth/me/", func(w http.ResponseWriter, r *http.Request) {
		b.meCalls.Add(1)
		if r.Header.Get("Authorization") != "Token cli-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": 9, "account": 3, "account_name": "Peak", "email": "coach@example.com",
			"name": "Robin", "role": user["role"], "can_view_all_clients": true,
		})
	})
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

type harness struct {
	fs     afero.Fs
	apiURL string
}

func newHarness(t *testing.T, role string) (*harness, *backend) {
	t.Helper()
	b := newBackend(t, role)
	return &harness{fs: afero.NewMemMapFs(), apiURL: b.URL}, b
}

func (h *harness) config() (*app.Config, error) {
	return &app.Config{
		AppEnv:             "test",
		AppAddr:            "127.0.0.1:0",
		APIBaseURL:         h.apiURL,
		APITimeout:         2 * time.Second,
		SessionBackend:     app.SessionBackendFile,
		SessionDir:         "/home/test/.onsync",
		SessionNamespace:   "default",
		FallbackPath:       "/dashboard",
		RateLimitPerMinute: 1000,
	}, nil
}

func (h *harness) run(ctx context.Context, stdin string, args ...string) (string, string, error) {
	out := &lockedBuffer{}
	errOut := &lockedBuffer{}
	c := &cli{
		fs:         h.fs,
		in:         strings.NewReader(stdin),
		out:        out,
		errOut:     errOut,
		loadConfig: h.config,
	}
	cmd := newRootCmd(c)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestVersionFlag(t *testing.T) {
	h, _ := newHarness(t, "coach")
	out, _, err := h.run(context.Background(), "", "--version")
	require.NoError(t, err)
	assert.Equal(t, "onsync dev\n", out)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	h, _ := newHarness(t, "coach")

	out, _, err := h.run(ctx, "", "login", "--email", "coach@example.com", "--password", "pw-secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Robin <coach@example.com>")
	assert.Contains(t, out, "Role:    Coach")
	assert.Contains(t, out, "Capabilities: view_all_clients")

	exists, err := afero.Exists(h.fs, "/home/test/.onsync/session-default.json")
	require.NoError(t, err)
	assert.True(t, exists)

	out, _, err = h.run(ctx, "", "whoami", "--json")
	require.NoError(t, err)
	var who whoamiOutput
	require.NoError(t, json.Unmarshal([]byte(out), &who))
	assert.True(t, who.Authenticated)
	assert.Equal(t, rbac.RoleCoach, who.User.Role)
	assert.Equal(t, []rbac.Capability{rbac.CapViewAllClients}, who.Capabilities)

	out, _, err = h.run(ctx, "", "logout")
	require.NoError(t, err)
	assert.Equal(t, "Signed out\n", out)

	out, _, err = h.run(ctx, "", "whoami")
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
	assert.Equal(t, "Not signed in\n", out)
}

func TestLoginReadsPasswordFromStdin(t *testing.T) {
	h, _ := newHarness(t, "coach")
	out, errOut, err := h.run(context.Background(), "pw-secret\n", "login", "-e", "coach@example.com")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Password: ")
	assert.Contains(t, out, "Robin")
}

func TestLoginRejected(t *testing.T) {
	h, _ := newHarness(t, "coach")
	_, _, err := h.run(context.Background(), "", "login", "-e", "coach@example.com", "-p", "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, _, err = h.run(context.Background(), "", "whoami")
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestLoginRequiresEmail(t *testing.T) {
	h, _ := newHarness(t, "coach")
	_, _, err := h.run(context.Background(), "", "login", "-p", "pw-secret")
	assert.ErrorContains(t, err, "email")
}

func TestSignupSignsIn(t *testing.T) {
	h, _ := newHarness(t, "coach")
	out, _, err := h.run(context.Background(), "",
		"signup", "--account", "Peak", "--name", "Robin", "-e", "coach@example.com", "-p", "longenough", "--json")
	require.NoError(t, err)
	var who whoamiOutput
	require.NoError(t, json.Unmarshal([]byte(out), &who))
	assert.Equal(t, "Super Admin", who.RoleLabel)
	assert.Equal(t, "Peak", who.User.AccountName)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	h, b := newHarness(t, "admin")

	_, _, err := h.run(ctx, "", "refresh")
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, _, err = h.run(ctx, "", "login", "-e", "coach@example.com", "-p", "pw-secret")
	require.NoError(t, err)
	before := b.meCalls.Load()

	out, _, err := h.run(ctx, "", "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Role:    Admin")
	assert.Equal(t, before+1, b.meCalls.Load())
}

func TestNavListsViewablePages(t *testing.T) {
	ctx := context.Background()
	h, _ := newHarness(t, "coach")

	out, _, err := h.run(ctx, "", "nav")
	require.NoError(t, err)
	assert.Equal(t, "ID  LABEL  PATH  EDIT\n", out, "signed out sees nothing")

	_, _, err = h.run(ctx, "", "login", "-e", "coach@example.com", "-p", "pw-secret")
	require.NoError(t, err)

	out, _, err = h.run(ctx, "", "nav", "--menu", "--json")
	require.NoError(t, err)
	var body struct {
		Pages []navEntry `json:"pages"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	ids := make([]string, 0, len(body.Pages))
	for _, page := range body.Pages {
		ids = append(ids, page.ID)
	}
	assert.Contains(t, ids, "dashboard")
	assert.Contains(t, ids, "clients")
	assert.NotContains(t, ids, "staff")
	assert.NotContains(t, ids, "profile", "profile is hidden from the menu")

	out, _, err = h.run(ctx, "", "nav")
	require.NoError(t, err)
	assert.Contains(t, out, "profile")
}

func TestCanPageAndLegacy(t *testing.T) {
	ctx := context.Background()
	h, _ := newHarness(t, "coach")

	out, _, err := h.run(ctx, "", "can", "dashboard")
	assert.ErrorIs(t, err, errDenied)
	assert.Equal(t, "deny (unauthenticated)\n", out)

	_, _, err = h.run(ctx, "", "login", "-e", "coach@example.com", "-p", "pw-secret")
	require.NoError(t, err)

	out, _, err = h.run(ctx, "", "can", "dashboard")
	require.NoError(t, err)
	assert.Equal(t, "allow (granted)\n", out)

	out, _, err = h.run(ctx, "", "can", "staff")
	assert.ErrorIs(t, err, errDenied)
	assert.Equal(t, "deny (role)\n", out)

	out, _, err = h.run(ctx, "", "can", "/staff")
	assert.ErrorIs(t, err, errDenied)
	assert.Equal(t, "deny (role)\n", out, "paths resolve through the catalog")

	out, _, err = h.run(ctx, "", "can", "no-such-page")
	assert.ErrorIs(t, err, errDenied)
	assert.Equal(t, "deny (unknown_page)\n", out)

	_, _, err = h.run(ctx, "", "can", "--role", "coach,closer", "--permission", "can_view_all_clients")
	require.NoError(t, err)

	out, _, err = h.run(ctx, "", "can", "--any", "manage_all_clients", "--any", "view_integrations", "--json")
	assert.ErrorIs(t, err, errDenied)
	var decision rbac.Decision
	require.NoError(t, json.Unmarshal([]byte(out), &decision))
	assert.Equal(t, rbac.ReasonPermission, decision.Reason)

	_, _, err = h.run(ctx, "", "can", "--any=")
	assert.ErrorIs(t, err, errDenied, "an empty any-of list is unsatisfiable")

	_, _, err = h.run(ctx, "", "can")
	require.NoError(t, err, "no constraints admits any signed-in identity")

	_, _, err = h.run(ctx, "", "can", "--role", "owner")
	assert.ErrorIs(t, err, rbac.ErrInvalidRequest)
}

func TestNamespaceFlagIsolatesSessions(t *testing.T) {
	ctx := context.Background()
	h, _ := newHarness(t, "coach")

	_, _, err := h.run(ctx, "", "login", "-n", "work", "-e", "coach@example.com", "-p", "pw-secret")
	require.NoError(t, err)

	_, _, err = h.run(ctx, "", "whoami", "-n", "work")
	require.NoError(t, err)
	_, _, err = h.run(ctx, "", "whoami")
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	h, _ := newHarness(t, "coach")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &lockedBuffer{}
	c := &cli{fs: h.fs, in: strings.NewReader(""), out: out, errOut: &lockedBuffer{}, loadConfig: h.config}
	cmd := newRootCmd(c)
	cmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	var addr string
	require.Eventually(t, func() bool {
		line := out.String()
		if !strings.HasPrefix(line, "listening on ") {
			return false
		}
		addr = strings.TrimSpace(strings.TrimPrefix(line, "listening on "))
		return true
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
