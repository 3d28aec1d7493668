package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/suivivente/apps/api/internal/auth"
	"github.com/suivivente/apps/api/internal/config"
	"github.com/suivivente/apps/api/internal/store"
	"github.com/suivivente/apps/api/migrations"
)

const salesFile = "CAISSE;PRODUIT;TYPES;QUANTITE;MONTANT;VENDEUR;DATE\n" +
	"Caisse 1;Coca-Cola;Boissons;5;14,00;Jean;15/01/2024\n" +
	"Caisse 1;Coca-Cola;Boissons;5;14,00;Jean;15/01/2024\n" +
	"Caisse 2;Sandwich Jambon;Alimentation;2;9,00;Sophie;2024-01-15\n"

func TestImportApplyIsIdempotent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	seedUser(t, ctx, env.store, "admin@example.com", "Password123!", "admin")
	seedProduct(t, ctx, env.store, "Coca-Cola", "Boissons", 100)
	seedProduct(t, ctx, env.store, "Sandwich Jambon", "Alimentation", 50)

	cookie := login(t, env.router, "admin@example.com", "Password123!")
	csrf := csrfToken(t, env.router, cookie)

	status, body := upload(t, env.router, "/api/imports/dry-run", "ventes.csv", salesFile, "sales", cookie, csrf)
	if status != http.StatusOK {
		t.Fatalf("dry run expected 200, got %d (%s)", status, string(body))
	}
	dry := parseRun(t, body)
	if dry.Summary.Success != 2 || dry.Summary.Duplicates != 1 {
		t.Fatalf("unexpected dry run summary %+v", dry.Summary)
	}
	assertStock(t, ctx, env.pool, "Coca-Cola", 100)

	status, body = upload(t, env.router, "/api/imports/apply", "ventes.csv", salesFile, "sales", cookie, csrf)
	if status != http.StatusOK {
		t.Fatalf("apply expected 200, got %d (%s)", status, string(body))
	}
	first := parseRun(t, body)
	if first.Summary.Success != 2 || first.Summary.Duplicates != 1 || first.Summary.Errors != 0 {
		t.Fatalf("unexpected first apply summary %+v", first.Summary)
	}
	assertStock(t, ctx, env.pool, "Coca-Cola", 95)
	assertStock(t, ctx, env.pool, "Sandwich Jambon", 48)

	status, body = upload(t, env.router, "/api/imports/apply", "ventes.csv", salesFile, "sales", cookie, csrf)
	if status != http.StatusOK {
		t.Fatalf("second apply expected 200, got %d (%s)", status, string(body))
	}
	second := parseRun(t, body)
	if second.Summary.Success != 0 || second.Summary.Duplicates != 3 || second.Summary.Existing != 2 {
		t.Fatalf("unexpected second apply summary %+v", second.Summary)
	}
	assertStock(t, ctx, env.pool, "Coca-Cola", 95)

	var sales int
	if err := env.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales`).Scan(&sales); err != nil {
		t.Fatalf("count sales: %v", err)
	}
	if sales != 2 {
		t.Fatalf("expected 2 sales, got %d", sales)
	}

	var price string
	if err := env.pool.QueryRow(ctx, `SELECT price::text FROM sales WHERE product = 'Coca-Cola'`).Scan(&price); err != nil {
		t.Fatalf("read price: %v", err)
	}
	if !decimal.RequireFromString(price).Equal(decimal.RequireFromString("2.8")) {
		t.Fatalf("expected unit price 2.8, got %s", price)
	}

	status, body = request(t, env.router, http.MethodGet, "/api/imports/"+second.ImportRunID, nil, cookie, "")
	if status != http.StatusOK {
		t.Fatalf("get import run expected 200, got %d (%s)", status, string(body))
	}
	if got := parseRun(t, body); got.Summary.Existing != 2 {
		t.Fatalf("stored summary mismatch %+v", got.Summary)
	}

	status, body = request(t, env.router, http.MethodGet, "/api/exports/sales.csv?from=2024-01-01&to=2024-01-31", nil, cookie, "")
	if status != http.StatusOK {
		t.Fatalf("sales export expected 200, got %d (%s)", status, string(body))
	}
	if lines := strings.Count(strings.TrimSpace(string(body)), "\n") + 1; lines != 3 {
		t.Fatalf("expected header and 2 sales, got %d lines:\n%s", lines, body)
	}
}

func TestImportErrorsCSVListsRejectedRows(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	seedUser(t, ctx, env.store, "admin@example.com", "Password123!", "admin")
	cookie := login(t, env.router, "admin@example.com", "Password123!")
	csrf := csrfToken(t, env.router, cookie)

	file := "CAISSE;PRODUIT;TYPES;QUANTITE;MONTANT;VENDEUR;DATE\n" +
		"Caisse 1;Eau;Boissons;deux;2,00;Ana;2024-01-15\n"
	status, body := upload(t, env.router, "/api/imports/apply", "ventes.csv", file, "sales", cookie, csrf)
	if status != http.StatusOK {
		t.Fatalf("apply expected 200, got %d (%s)", status, string(body))
	}
	run := parseRun(t, body)
	if run.Summary.Errors != 1 || run.Summary.Warnings != 1 {
		t.Fatalf("unexpected summary %+v", run.Summary)
	}

	status, body = request(t, env.router, http.MethodGet, "/api/imports/"+run.ImportRunID+"/errors.csv", nil, cookie, "")
	if status != http.StatusOK {
		t.Fatalf("errors.csv expected 200, got %d (%s)", status, string(body))
	}
	out := string(body)
	if !strings.HasPrefix(out, "row_number,severity,result,field,message,raw_value\n") {
		t.Fatalf("unexpected header: %s", out)
	}
	if !strings.Contains(out, "2,warn,coerced,QUANTITE") || !strings.Contains(out, "missing required fields: quantity") {
		t.Fatalf("missing expected rows:\n%s", out)
	}
}

func TestImportRejectsMissingColumns(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	seedUser(t, ctx, env.store, "admin@example.com", "Password123!", "admin")
	cookie := login(t, env.router, "admin@example.com", "Password123!")
	csrf := csrfToken(t, env.router, cookie)

	status, body := upload(t, env.router, "/api/imports/dry-run", "ventes.csv", "PRODUIT;MONTANT\nEau;2\n", "sales", cookie, csrf)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", status, string(body))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Missing []string `json:"missing"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("parse error body: %v", err)
	}
	if envelope.Error.Code != "missing_columns" {
		t.Fatalf("expected missing_columns, got %s", envelope.Error.Code)
	}
	if got := strings.Join(envelope.Error.Details.Missing, ","); got != "CAISSE,TYPES,QUANTITE,VENDEUR,DATE" {
		t.Fatalf("unexpected missing columns %s", got)
	}
}

func TestApplyRequiresAdmin(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	seedUser(t, ctx, env.store, "clerk@example.com", "Password123!", "user")
	cookie := login(t, env.router, "clerk@example.com", "Password123!")
	csrf := csrfToken(t, env.router, cookie)

	status, _ := upload(t, env.router, "/api/imports/apply", "ventes.csv", salesFile, "sales", cookie, csrf)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin apply, got %d", status)
	}
	status, _ = upload(t, env.router, "/api/imports/dry-run", "ventes.csv", salesFile, "sales", cookie, csrf)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for non-admin dry run, got %d", status)
	}
}

func TestStockImportSetsLevels(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	seedUser(t, ctx, env.store, "admin@example.com", "Password123!", "admin")
	seedProduct(t, ctx, env.store, "Coca-Cola", "Boissons", 10)
	cookie := login(t, env.router, "admin@example.com", "Password123!")
	csrf := csrfToken(t, env.router, cookie)

	file := "Produit,Types,Quantité\nCoca-Cola,Boissons,120\nCafé,Boissons,30\n"
	status, body := upload(t, env.router, "/api/imports/apply", "stock.csv", file, "stock", cookie, csrf)
	if status != http.StatusOK {
		t.Fatalf("apply expected 200, got %d (%s)", status, string(body))
	}
	if run := parseRun(t, body); run.Summary.Success != 2 {
		t.Fatalf("unexpected summary %+v", run.Summary)
	}
	assertStock(t, ctx, env.pool, "Coca-Cola", 120)
	assertStock(t, ctx, env.pool, "Café", 30)

	status, body = request(t, env.router, http.MethodGet, "/api/exports/products.csv", nil, cookie, "")
	if status != http.StatusOK || !strings.Contains(string(body), "Café") {
		t.Fatalf("products export expected 200 with Café, got %d (%s)", status, string(body))
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	seedUser(t, ctx, env.store, "session@example.com", "Password123!", "user")

	cookie := login(t, env.router, "session@example.com", "Password123!")
	status, _ := request(t, env.router, http.MethodGet, "/api/auth/me", nil, cookie, "")
	if status != http.StatusOK {
		t.Fatalf("expected 200 before logout, got %d", status)
	}

	csrf := csrfToken(t, env.router, cookie)
	status, _ = request(t, env.router, http.MethodPost, "/api/auth/logout", nil, cookie, csrf)
	if status != http.StatusNoContent {
		t.Fatalf("expected 204 logout response, got %d", status)
	}

	status, _ = request(t, env.router, http.MethodGet, "/api/auth/me", nil, cookie, "")
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", status)
	}
}

type testEnv struct {
	pool   *pgxpool.Pool
	store  *store.Store
	router http.Handler
}

func setupTestEnv(t *testing.T) testEnv {
	t.Helper()
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("connect test db: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, `DROP SCHEMA public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
	if err := migrations.UpPool(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		Addr:               ":0",
		DatabaseURL:        databaseURL,
		SessionCookieName:  "sv_sess",
		SessionTTL:         12 * time.Hour,
		SecureCookies:      false,
		CSRFEnforce:        true,
		Env:                "test",
		APIMaxBodyBytes:    2 << 20,
		ImportMaxFileBytes: 5 << 20,
		ImportMaxRows:      1000,
		ImportBatchSize:    50,
		RateLimitMaxIPs:    100,
	}

	st := store.New(pool)
	router, err := NewRouter(cfg, st, logger)
	if err != nil {
		t.Fatalf("create router: %v", err)
	}

	return testEnv{pool: pool, store: st, router: router}
}

func seedUser(t *testing.T, ctx context.Context, st *store.Store, email, password, role string) {
	t.Helper()
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := st.UpsertUser(ctx, email, email, passwordHash, role); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func seedProduct(t *testing.T, ctx context.Context, st *store.Store, name, category string, stock int) {
	t.Helper()
	if err := st.EnsureProduct(ctx, store.NewProduct{Name: name, Category: category, Stock: stock, Price: decimal.Zero, Threshold: 5}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func assertStock(t *testing.T, ctx context.Context, pool *pgxpool.Pool, product string, want int) {
	t.Helper()
	var got int
	if err := pool.QueryRow(ctx, `SELECT current_stock FROM products WHERE lower(name) = lower($1)`, product).Scan(&got); err != nil {
		t.Fatalf("read stock of %s: %v", product, err)
	}
	if got != want {
		t.Fatalf("expected %s stock %d, got %d", product, want, got)
	}
}

type runBody struct {
	ImportRunID string `json:"importRunId"`
	Status      string `json:"status"`
	Summary     struct {
		Success    int `json:"success"`
		Duplicates int `json:"duplicates"`
		Existing   int `json:"existing"`
		Errors     int `json:"errors"`
		Warnings   int `json:"warnings"`
	} `json:"summary"`
}

func parseRun(t *testing.T, body []byte) runBody {
	t.Helper()
	var run runBody
	if err := json.Unmarshal(body, &run); err != nil {
		t.Fatalf("parse import run body: %v", err)
	}
	if run.ImportRunID == "" {
		t.Fatalf("import run id missing: %s", string(body))
	}
	return run
}

func login(t *testing.T, router http.Handler, email, password string) *http.Cookie {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "127.0.0.1:12345"
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		body, _ := io.ReadAll(rec.Result().Body)
		t.Fatalf("login expected 200, got %d with body: %s", rec.Code, string(body))
	}

	for _, c := range rec.Result().Cookies() {
		if c.Name == "sv_sess" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func csrfToken(t *testing.T, router http.Handler, session *http.Cookie) string {
	t.Helper()
	status, body := request(t, router, http.MethodGet, "/api/auth/csrf", nil, session, "")
	if status != http.StatusOK {
		t.Fatalf("csrf expected 200, got %d (%s)", status, string(body))
	}
	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("parse csrf body: %v", err)
	}
	return payload["csrfToken"]
}

func upload(t *testing.T, router http.Handler, path, filename, content, kind string, session *http.Cookie, csrf string) (int, []byte) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("kind", kind); err != nil {
		t.Fatalf("write kind: %v", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.RemoteAddr = "127.0.0.1:12345"
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(session)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	resBody, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, resBody
}

func request(t *testing.T, router http.Handler, method, path string, body []byte, session *http.Cookie, csrf string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.1:12345"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != nil {
		req.AddCookie(session)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	resBody, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, resBody
}
