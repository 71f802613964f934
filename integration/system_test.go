//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"KBPortal/internal/auth"
	"KBPortal/internal/catalog"
	"KBPortal/internal/migrations"
	"KBPortal/internal/portal"
	"KBPortal/internal/storage"
	"KBPortal/pkg/client"
)

const (
	jwtSecret = "integration-secret-0123456789abcdef"
	frame     = `<iframe src="https://chat.example.com/embed/42" width="100%"></iframe>`
)

var (
	once      sync.Once
	sharedDSN string
	initErr   error
)

// startPostgres runs one container for the whole package and applies every
// migration to it.
func startPostgres(t *testing.T) string {
	t.Helper()

	once.Do(func() {
		sharedDSN, initErr = startContainerAndMigrate()
	})
	if initErr != nil {
		t.Fatalf("setup postgres: %v", initErr)
	}
	return sharedDSN
}

func startContainerAndMigrate() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "kbportal",
				"POSTGRES_PASSWORD": "kbportal",
				"POSTGRES_DB":       "kbportal",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("mapped port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://kbportal:kbportal@%s:%s/kbportal?sslmode=disable", host, port.Port())

	pool, err := storage.NewPool(ctx, storage.PoolOptions{DSN: dsn, MaxConns: 2})
	if err != nil {
		return "", err
	}
	defer pool.Close()

	db := storage.OpenSQL(pool)
	defer db.Close()

	if _, err := migrations.Up(ctx, db); err != nil {
		return "", fmt.Errorf("migrate: %w", err)
	}
	return dsn, nil
}

func newPortal(t *testing.T) *httptest.Server {
	t.Helper()

	ctx := context.Background()
	pool, err := storage.NewPool(ctx, storage.PoolOptions{DSN: startPostgres(t), MaxConns: 4})
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, `TRUNCATE knowledge_base_publish, "user"`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	seedUser(t, pool, "u-op", "operator", "operator@example.com", "op-pass", false)
	seedUser(t, pool, "u-admin", "admin", "admin@example.com", "admin-pass", true)

	identities := auth.NewPostgresStore(pool)
	tokens := auth.NewTokenIssuer(jwtSecret, "kbportal", time.Hour)
	catalogSvc := catalog.NewService(catalog.NewPostgresStore(pool), zap.NewNop(), nil)

	h := portal.NewHandler(portal.Deps{
		Auth:        auth.NewService(zap.NewNop(), identities, tokens, auth.ServiceOptions{}),
		Tokens:      tokens,
		Catalog:     catalogSvc,
		WritePolicy: auth.PolicyMandatory,
		BatchPolicy: auth.PolicyAdmin,
		Ready: map[string]portal.Pinger{
			"identity": identities,
			"catalog":  catalogSvc,
		},
	}, portal.HTTPDeps{
		Log:      zap.NewNop(),
		Service:  "kbportal",
		Registry: prometheus.NewRegistry(),
		Debug:    true,
	})

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func seedUser(t *testing.T, db storage.DB, id, nick, email, password string, admin bool) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	_, err = db.Exec(context.Background(),
		`INSERT INTO "user" (id, nickname, email, password, is_active, is_authenticated, is_superuser)
		 VALUES ($1, $2, $3, $4, '1', '1', $5)`,
		id, nick, email, string(hash), admin)
	if err != nil {
		t.Fatalf("seed user %s: %v", nick, err)
	}
}

func TestSystem_E2E_WithDB(t *testing.T) {
	ts := newPortal(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	waitReady(t, ctx, ts.URL+"/readyz")

	anon := client.New(ts.URL)
	op, err := anon.Login(ctx, "operator", "op-pass")
	if err != nil {
		t.Fatalf("login operator: %v", err)
	}
	adm, err := anon.Login(ctx, "ADMIN@example.com", "admin-pass")
	if err != nil {
		t.Fatalf("login admin: %v", err)
	}
	if !adm.User.IsAdmin {
		t.Fatalf("admin flag lost: %+v", adm.User)
	}
	operator := anon.WithToken(op.Token)
	admin := anon.WithToken(adm.Token)

	kb, err := operator.Create(ctx, client.Input{Title: "Support bot", EmbedCode: frame})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if kb.CreatedBy != "u-op" || !kb.IsActive || kb.ExternalKbRef != catalog.DefaultKbRef {
		t.Fatalf("unexpected entry: %+v", kb)
	}

	if _, err := admin.Create(ctx, client.Input{Title: "Support bot", EmbedCode: frame}); client.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("duplicate title: want 400, got %v", err)
	}

	doJSONAuth(t, http.MethodPost, ts.URL+"/api/knowledge-bases/create", op.Token, map[string]any{
		"title":     "Second 100%_bot",
		"embedCode": frame,
	}, nil, http.StatusOK)

	// LIKE wildcards in the search term must match literally.
	var found client.ListResult
	doJSONAuth(t, http.MethodGet, ts.URL+"/knowledge-bases?search=100%25_", "", nil, &found, http.StatusOK)
	if found.Pagination.Total != 1 || found.Entries[0].Title != "Second 100%_bot" {
		t.Fatalf("search: %+v", found)
	}

	var far client.ListResult
	doJSONAuth(t, http.MethodGet, ts.URL+"/knowledge-bases?page=922337203685477581", "", nil, &far, http.StatusOK)
	if len(far.Entries) != 0 || far.Pagination.Page != catalog.MaxPage {
		t.Fatalf("far page: %+v", far.Pagination)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := anon.RecordView(ctx, kb.ID); err != nil {
				t.Errorf("record view: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := anon.Get(ctx, kb.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ViewCount != 20 {
		t.Fatalf("view count: want 20, got %d", got.ViewCount)
	}

	if _, err := operator.Patch(ctx, kb.ID, map[string]any{"isActive": false, "iconUrl": "https://cdn.example.com/i.png"}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	pub, err := anon.List(ctx, client.ListParams{})
	if err != nil {
		t.Fatalf("public list: %v", err)
	}
	if pub.Pagination.Total != 1 {
		t.Fatalf("inactive entry leaked into public list: %+v", pub.Pagination)
	}

	if _, err := operator.Batch(ctx, "delete", []string{kb.ID}); client.StatusOf(err) != http.StatusForbidden {
		t.Fatalf("operator batch: want 403, got %v", err)
	}
	n, err := admin.Batch(ctx, "activate", []string{kb.ID, "missing"})
	if err != nil || n != 1 {
		t.Fatalf("batch activate: n=%d err=%v", n, err)
	}

	all, err := admin.List(ctx, client.ListParams{IncludeInactive: true})
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	ids := make([]string, 0, len(all.Entries))
	for _, e := range all.Entries {
		ids = append(ids, e.ID)
	}
	n, err = admin.Batch(ctx, "delete", ids)
	if err != nil || n != 2 {
		t.Fatalf("batch delete: n=%d err=%v", n, err)
	}

	if _, err := anon.Get(ctx, kb.ID); client.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("deleted entry still served: %v", err)
	}
}

func waitReady(t *testing.T, ctx context.Context, url string) {
	t.Helper()
	c := &http.Client{Timeout: 2 * time.Second}

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := c.Do(req)
		if err == nil && resp != nil && resp.StatusCode == http.StatusOK {
			_ = resp.Body.Close()
			return
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("service not ready: %s", url)
}

func doJSONAuth(t *testing.T, method, url, token string, body any, out any, want int) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c := &http.Client{Timeout: 5 * time.Second}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status=%d want=%d error=%q", method, url, resp.StatusCode, want, env.Error)
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
}
