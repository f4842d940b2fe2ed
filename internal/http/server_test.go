package http

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"payrecord/internal/auth"
	"payrecord/internal/cache"
	"payrecord/internal/core"
	"payrecord/internal/log"
	"payrecord/internal/metrics"
	"payrecord/internal/resilience"
	"payrecord/internal/services"
	"payrecord/internal/storage"
	"payrecord/internal/telegram"
)

type testEnv struct {
	srv           *Server
	repo          *storage.SQLiteRepository
	authenticator *auth.PasswordAuthenticator
	tokens        *auth.JWTManager
	logs          *bytes.Buffer
}

type envOption func(*Options)

func withLoginLimit(n int) envOption {
	return func(o *Options) { o.LoginRateLimitPerMinute = n }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "payrecord.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	tg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ChatID string `json:"chat_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ChatID == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(tg.Close)

	logs := &bytes.Buffer{}
	logger := log.New(log.Config{Format: "json", Component: "test", Output: logs})
	m := metrics.New()
	activity := services.NewActivityLog(repo)
	merchants := services.NewMerchantService(repo, activity, m)
	icons, err := services.NewIconService(t.TempDir(), 32, 64<<10, m)
	if err != nil {
		t.Fatal(err)
	}
	authenticator := auth.NewPasswordAuthenticator(repo).WithCost(bcrypt.MinCost)
	tokens := auth.NewJWTManager("test-secret-0123456789", time.Hour)
	sender := telegram.NewClient(tg.Client(), tg.URL, nil,
		resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})

	caches := cache.NewManager(nil)
	caches.Register(services.IconCacheName, merchants.IconCache())

	options := Options{
		RateLimitPerMinute:      1000,
		LoginRateLimitPerMinute: 1000,
		CalendarName:            "PayRecord Bills",
		CalendarTimezone:        "UTC",
	}
	for _, opt := range opts {
		opt(&options)
	}

	srv, err := NewServer(":0", Deps{
		Bills:      services.NewBillService(repo, merchants, activity),
		Reconciler: services.NewReconciler(repo, activity, m),
		Merchants:  merchants,
		Icons:      icons,
		Users:      services.NewUserService(repo, authenticator, tokens, activity),
		Activity:   activity,
		Reminders:  services.NewReminderService(repo, sender, services.ReminderConfig{}, m),
		Calendar:   repo,
		Tokens:     tokens,
		DB:         repo,
		Caches:     caches,
		Metrics:    m,
		Logger:     logger,
	}, options)
	if err != nil {
		t.Fatal(err)
	}
	srv.now = func() time.Time { return time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	return &testEnv{srv: srv, repo: repo, authenticator: authenticator, tokens: tokens, logs: logs}
}

func (e *testEnv) user(t *testing.T, username string) (core.User, string) {
	t.Helper()
	u, err := e.authenticator.Register(context.Background(), username, "secret1")
	if err != nil {
		t.Fatal(err)
	}
	token, err := e.tokens.Generate(u)
	if err != nil {
		t.Fatal(err)
	}
	return u, token
}

func (e *testEnv) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d, body %s", rr.Code, want, rr.Body.String())
	}
}

func TestHealthReadyMetrics(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, "", nil)
		expectStatus(t, rr, http.StatusOK)
	}
	ready := decode[map[string]any](t, env.do(t, http.MethodGet, "/readyz", "", nil))
	checks := ready["checks"].(map[string]any)
	if checks["database"] != "ok" || checks["caches"] == nil || checks["rate_limiter"] == nil {
		t.Fatalf("checks = %v", checks)
	}

	rr := env.do(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "payrecord_http_requests_total") {
		t.Fatal("metrics missing http counter")
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "client-id-1")
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)

	if rr.Header().Get("X-Request-ID") != "client-id-1" {
		t.Fatalf("request id = %q", rr.Header().Get("X-Request-ID"))
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("Content-Security-Policy") == "" {
		t.Fatalf("security headers missing: %v", rr.Header())
	}

	rr = env.do(t, http.MethodGet, "/nope", "", nil)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/api/bills", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		env.srv.Handler.ServeHTTP(rr, req)
		expectStatus(t, rr, http.StatusUnauthorized)
		if rr.Body.String() != "{\"error\":\"Unauthorized\"}\n" {
			t.Fatalf("body = %q", rr.Body.String())
		}
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.user(t, "alice")

	rr := env.do(t, http.MethodPost, "/api/auth/login", "", credentials{"alice", "secret1"})
	expectStatus(t, rr, http.StatusOK)
	resp := decode[struct {
		Token string  `json:"token"`
		User  userRef `json:"user"`
	}](t, rr)
	if resp.User.ID != alice.ID || resp.User.Username != "alice" || resp.Token == "" {
		t.Fatalf("resp = %+v", resp)
	}

	rr = env.do(t, http.MethodGet, "/api/users/profile", resp.Token, nil)
	expectStatus(t, rr, http.StatusOK)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"wrong password", credentials{"alice", "wrong-pass"}, http.StatusUnauthorized},
		{"unknown user", credentials{"bob", "secret1"}, http.StatusUnauthorized},
		{"missing fields", credentials{}, http.StatusBadRequest},
		{"malformed", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, env.do(t, http.MethodPost, "/api/auth/login", "", tt.body), tt.want)
		})
	}

	logs := decode[[]core.ActivityEntry](t, env.do(t, http.MethodGet, "/api/logs", resp.Token, nil))
	if len(logs) != 1 || logs[0].Action != core.ActionLogin || logs[0].IP != "192.0.2.1" {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t, withLoginLimit(2))
	env.user(t, "alice")

	for i := 0; i < 2; i++ {
		expectStatus(t, env.do(t, http.MethodPost, "/api/auth/login", "", credentials{"alice", "wrong-pass"}), http.StatusUnauthorized)
	}
	rr := env.do(t, http.MethodPost, "/api/auth/login", "", credentials{"alice", "secret1"})
	expectStatus(t, rr, http.StatusTooManyRequests)
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After missing")
	}

	// other routes use the general limiter
	expectStatus(t, env.do(t, http.MethodGet, "/api/calendar/missing", "", nil), http.StatusNotFound)
}

func TestUsers(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "alice")

	rr := env.do(t, http.MethodPost, "/api/users", token, credentials{"bob", "secret2"})
	expectStatus(t, rr, http.StatusCreated)

	rr = env.do(t, http.MethodPost, "/api/users", token, credentials{"bob", "secret2"})
	expectStatus(t, rr, http.StatusConflict)
	if decode[errorBody](t, rr).Error != "User already exists" {
		t.Fatalf("body = %s", rr.Body.String())
	}
	expectStatus(t, env.do(t, http.MethodPost, "/api/users", token, credentials{"carol", ""}), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/users", token, credentials{"carol", "123"}), http.StatusBadRequest)

	rr = env.do(t, http.MethodGet, "/api/users", token, nil)
	expectStatus(t, rr, http.StatusOK)
	if strings.Contains(rr.Body.String(), "telegram") || strings.Contains(rr.Body.String(), "password") {
		t.Fatalf("user list leaks private fields: %s", rr.Body.String())
	}
	if users := decode[[]userSummary](t, rr); len(users) != 2 {
		t.Fatalf("users = %+v", users)
	}
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	alice, token := env.user(t, "alice")

	rr := env.do(t, http.MethodPut, "/api/users/profile", token,
		`{"nickname":"Al","telegramToken":"123:abc","telegramChatId":"42","password":"newsecret"}`)
	expectStatus(t, rr, http.StatusOK)
	profile := decode[profileView](t, rr)
	if profile.ID != alice.ID || core.StringValue(profile.Nickname) != "Al" || core.StringValue(profile.TelegramChatID) != "42" {
		t.Fatalf("profile = %+v", profile)
	}

	// absent fields are untouched, empty strings clear
	rr = env.do(t, http.MethodPut, "/api/users/profile", token, `{"telegramToken":""}`)
	expectStatus(t, rr, http.StatusOK)
	profile = decode[profileView](t, rr)
	if profile.TelegramToken != nil || core.StringValue(profile.Nickname) != "Al" {
		t.Fatalf("profile = %+v", profile)
	}

	expectStatus(t, env.do(t, http.MethodPut, "/api/users/profile", token, `{"password":"123"}`), http.StatusBadRequest)

	logs := decode[[]core.ActivityEntry](t, env.do(t, http.MethodGet, "/api/logs", token, nil))
	if len(logs) != 2 || logs[1].Details != "Updated: UPDATE_NICKNAME, UPDATE_PASSWORD, UPDATE_TELEGRAM" {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestBillsCRUD(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "alice")
	_, other := env.user(t, "bob")

	rr := env.do(t, http.MethodPost, "/api/bills", token,
		`{"date":"2025-03-05","payee":"Landlord","payAmount":2000,"isRecurring":true,"notes":""}`)
	expectStatus(t, rr, http.StatusCreated)
	created := decode[map[string]any](t, rr)
	id := created["id"].(string)
	if created["payAmount"] != 2000.0 || created["notes"] != nil || created["isPaid"] != false {
		t.Fatalf("created = %v", created)
	}

	tests := []struct {
		name string
		body string
	}{
		{"missing date", `{"payee":"x"}`},
		{"bad date", `{"date":"03/05/2025"}`},
		{"negative amount", `{"date":"2025-03-05","payAmount":-1}`},
		{"negative interval", `{"date":"2025-03-05","recurringInterval":-2}`},
		{"malformed", `{"date":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, env.do(t, http.MethodPost, "/api/bills", token, tt.body), http.StatusBadRequest)
		})
	}

	// defaults to the current month
	bills := decode[[]map[string]any](t, env.do(t, http.MethodGet, "/api/bills", token, nil))
	if len(bills) != 1 {
		t.Fatalf("bills = %v", bills)
	}
	expectStatus(t, env.do(t, http.MethodGet, "/api/bills?year=abc&month=3", token, nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodGet, "/api/bills?year=2025&month=13", token, nil), http.StatusBadRequest)
	if others := decode[[]map[string]any](t, env.do(t, http.MethodGet, "/api/bills?year=2025&month=3", other, nil)); len(others) != 0 {
		t.Fatalf("bob sees %v", others)
	}

	rr = env.do(t, http.MethodPut, "/api/bills/"+id, token, `{"isPaid":true,"paidDate":"2025-03-06","payAmount":null}`)
	expectStatus(t, rr, http.StatusOK)
	updated := decode[map[string]any](t, rr)
	if updated["isPaid"] != true || updated["paidDate"] != "2025-03-06" || updated["payAmount"] != nil || updated["payee"] != "Landlord" {
		t.Fatalf("updated = %v", updated)
	}

	expectStatus(t, env.do(t, http.MethodPut, "/api/bills/"+id, other, `{"isPaid":false}`), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/bills/"+id, other, nil), http.StatusNotFound)

	rr = env.do(t, http.MethodDelete, "/api/bills/"+id, token, nil)
	expectStatus(t, rr, http.StatusOK)
	if decode[map[string]bool](t, rr)["success"] != true {
		t.Fatalf("body = %s", rr.Body.String())
	}
	expectStatus(t, env.do(t, http.MethodDelete, "/api/bills/"+id, token, nil), http.StatusNotFound)
}

func TestBulkDelete(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "alice")

	for _, d := range []string{"2025-04-01", "2025-04-30", "2025-05-01"} {
		expectStatus(t, env.do(t, http.MethodPost, "/api/bills", token, `{"date":"`+d+`"}`), http.StatusCreated)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/bills?year=2025", token, nil), http.StatusBadRequest)
	rr := env.do(t, http.MethodDelete, "/api/bills?year=2025&month=4", token, nil)
	expectStatus(t, rr, http.StatusOK)
	if n := decode[map[string]int](t, rr)["deletedCount"]; n != 2 {
		t.Fatalf("deletedCount = %d", n)
	}

	logs := decode[[]core.ActivityEntry](t, env.do(t, http.MethodGet, "/api/logs", token, nil))
	if logs[0].Action != core.ActionBulkDeleteBills || logs[0].Details != "Deleted 2 bills for 2025-4" {
		t.Fatalf("latest log = %+v", logs[0])
	}
}

func TestCloneBills(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "alice")

	expectStatus(t, env.do(t, http.MethodPost, "/api/bills", token,
		`{"date":"2025-01-31","payee":"Landlord","payAmount":2000,"isRecurring":true}`), http.StatusCreated)

	rr := env.do(t, http.MethodPost, "/api/bills/clone", token, `{"sourceYear":2025,"sourceMonth":1}`)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[services.ReconcileResult](t, rr); got != (services.ReconcileResult{ClonedCount: 1}) {
		t.Fatalf("first run = %+v", got)
	}

	rr = env.do(t, http.MethodPost, "/api/bills/clone", token, `{"year":2025,"month":1}`)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[services.ReconcileResult](t, rr); got != (services.ReconcileResult{ClonedCount: 1, DeletedCount: 1}) {
		t.Fatalf("second run = %+v", got)
	}

	feb := decode[[]map[string]any](t, env.do(t, http.MethodGet, "/api/bills?year=2025&month=2", token, nil))
	if len(feb) != 1 || feb[0]["date"] != "2025-02-28" || feb[0]["isPaid"] != false {
		t.Fatalf("february = %v", feb)
	}

	for _, body := range []string{`{}`, `{"year":2025}`, `{"year":2025,"month":13}`, `{"year":"x","month":1}`} {
		expectStatus(t, env.do(t, http.MethodPost, "/api/bills/clone", token, body), http.StatusBadRequest)
	}
	expectStatus(t, env.do(t, http.MethodPost, "/api/bills/clone", "", `{"year":2025,"month":1}`), http.StatusUnauthorized)
}

func pngUpload(t *testing.T, field, filename string, size int) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < size; i++ {
		img.Set(i, i, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(fw, img); err != nil {
		t.Fatal(err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func upload(env *testEnv, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestMerchantsAndIcons(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "alice")

	body, ct := pngUpload(t, "file", "power.png", 48)
	rr := upload(env, token, body, ct)
	expectStatus(t, rr, http.StatusOK)
	url := decode[map[string]string](t, rr)["url"]
	if !strings.HasPrefix(url, "/uploads/icons/") {
		t.Fatalf("url = %s", url)
	}

	rr = env.do(t, http.MethodGet, url, "", nil)
	expectStatus(t, rr, http.StatusOK)
	if rr.Header().Get("Content-Type") != "image/png" || !strings.Contains(rr.Header().Get("Cache-Control"), "immutable") {
		t.Fatalf("headers = %v", rr.Header())
	}
	expectStatus(t, env.do(t, http.MethodGet, "/uploads/icons/..secret", "", nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodGet, "/uploads/icons/1-abc-missing.png", "", nil), http.StatusNotFound)

	expectStatus(t, env.do(t, http.MethodPost, "/api/merchants", token, map[string]any{"name": "Power", "icon": url}), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPost, "/api/merchants", token, `{"icon":"x"}`), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/bills", token, `{"date":"2025-03-02","payee":"Power","payer":"Water"}`), http.StatusCreated)

	merchants := decode[[]core.Merchant](t, env.do(t, http.MethodGet, "/api/merchants", token, nil))
	if len(merchants) != 2 || merchants[0].Name != "Power" || core.StringValue(merchants[0].Icon) != url || merchants[1].Icon != nil {
		t.Fatalf("merchants = %+v", merchants)
	}

	bills := decode[[]map[string]any](t, env.do(t, http.MethodGet, "/api/bills?year=2025&month=3", token, nil))
	if bills[0]["payeeIcon"] != url || bills[0]["payerIcon"] != nil {
		t.Fatalf("bill icons = %v / %v", bills[0]["payeeIcon"], bills[0]["payerIcon"])
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/merchants", token, nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/merchants?name=Power", token, nil), http.StatusOK)
	bills = decode[[]map[string]any](t, env.do(t, http.MethodGet, "/api/bills?year=2025&month=3", token, nil))
	if bills[0]["payeeIcon"] != nil {
		t.Fatalf("icon survived merchant delete: %v", bills[0]["payeeIcon"])
	}
}

func TestUploadRejects(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "alice")

	body, ct := pngUpload(t, "other", "a.png", 8)
	expectStatus(t, upload(env, token, body, ct), http.StatusBadRequest)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "notes.txt")
	fw.Write([]byte("plain text"))
	mw.Close()
	expectStatus(t, upload(env, token, &buf, mw.FormDataContentType()), http.StatusBadRequest)

	buf.Reset()
	mw = multipart.NewWriter(&buf)
	fw, _ = mw.CreateFormFile("file", "big.png")
	fw.Write(bytes.Repeat([]byte{0x89}, 200<<10))
	mw.Close()
	expectStatus(t, upload(env, token, &buf, mw.FormDataContentType()), http.StatusRequestEntityTooLarge)
}

func TestCalendarFeed(t *testing.T) {
	env := newTestEnv(t)
	alice, token := env.user(t, "alice")

	for _, body := range []string{
		`{"date":"2025-02-20","payee":"Old"}`,
		`{"date":"2025-03-01","payee":"Rent, flat","payAmount":2000}`,
		`{"date":"2025-04-10","payer":"Tenant","isPaid":true,"paidDate":"2025-04-10"}`,
	} {
		expectStatus(t, env.do(t, http.MethodPost, "/api/bills", token, body), http.StatusCreated)
	}

	rr := env.do(t, http.MethodGet, "/api/calendar/"+alice.ID, "", nil)
	expectStatus(t, rr, http.StatusOK)
	if rr.Header().Get("Content-Type") != "text/calendar; charset=utf-8" ||
		rr.Header().Get("Content-Disposition") != `attachment; filename="bills.ics"` {
		t.Fatalf("headers = %v", rr.Header())
	}
	doc := rr.Body.String()
	if strings.Count(doc, "BEGIN:VEVENT") != 2 {
		t.Fatalf("events:\n%s", doc)
	}
	for _, want := range []string{"SUMMARY:⭕ Pay: Rent\\, flat - 2000", "SUMMARY:✅ Pay: Unknown - 0", "DTSTART;VALUE=DATE:20250301"} {
		if !strings.Contains(doc, want) {
			t.Errorf("missing %q in\n%s", want, doc)
		}
	}
	if strings.Contains(doc, "Old") {
		t.Error("feed includes bills before the current month")
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/calendar/unknown", "", nil), http.StatusNotFound)
}

func TestTelegramTest(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "alice")

	expectStatus(t, env.do(t, http.MethodPost, "/api/telegram/test", token, `{"token":"123:abc"}`), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/telegram/test", token, `{"token":"123:abc","chatId":"42"}`), http.StatusOK)

	rr := env.do(t, http.MethodPost, "/api/telegram/test", token, `{"token":"123:abc","chatId":"bad"}`)
	expectStatus(t, rr, http.StatusInternalServerError)
	if msg := decode[errorBody](t, rr).Error; msg != "Telegram API Error: Bad Request: chat not found" {
		t.Fatalf("error = %q", msg)
	}
}
