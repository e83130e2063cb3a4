package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"logbook/internal/events"
	"logbook/internal/idalloc"
	"logbook/internal/metrics"
	"logbook/internal/reports"
	"logbook/internal/storage"
	"logbook/internal/testutil"
	"logbook/internal/tools"
	"logbook/pkg/types"

	"github.com/alexedwards/flow"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ctypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/gorilla/securecookie"
)

type fakeCognito struct {
	password   string
	signedOut  []string
	initiateFn func() error
}

func (f *fakeCognito) InitiateAuth(_ context.Context, params *cognitoidentityprovider.InitiateAuthInput, _ ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error) {
	if params.AuthParameters["PASSWORD"] != f.password {
		return nil, &ctypes.NotAuthorizedException{Message: aws.String("Incorrect username or password.")}
	}
	return &cognitoidentityprovider.InitiateAuthOutput{
		AuthenticationResult: &ctypes.AuthenticationResultType{
			AccessToken: aws.String("token-for-" + params.AuthParameters["USERNAME"]),
			ExpiresIn:   3600,
		},
	}, nil
}

func (f *fakeCognito) GlobalSignOut(_ context.Context, params *cognitoidentityprovider.GlobalSignOutInput, _ ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GlobalSignOutOutput, error) {
	f.signedOut = append(f.signedOut, aws.ToString(params.AccessToken))
	return &cognitoidentityprovider.GlobalSignOutOutput{}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type harness struct {
	store   *testutil.MemStore
	objects *testutil.MemObjects
	cognito *fakeCognito
	service *Service
	handler http.Handler
}

// newHarness wires the real managers over in-memory storage. Requests
// carrying an X-Test-User header are treated as signed in.
func newHarness(t *testing.T) *harness {
	t.Helper()

	store := testutil.NewMemStore()
	objects := testutil.NewMemObjects()
	logger := testutil.QuietLogger()
	recorder := metrics.New()

	config := &types.Config{
		CookieName:           "logbook_session",
		SessionMaxAgeSec:     600,
		MaxUploadBytes:       1 << 20,
		EventDocumentsBucket: "event-documents",
		ToolImagesBucket:     "tool-images",
	}

	images := storage.NewBatchUploader(logger, objects, config.ToolImagesBucket, 2)

	manager := events.New(logger, store, store, objects, images, idalloc.New(store, idalloc.DefaultMaxAttempts), recorder, events.Options{
		DocumentsBucket: config.EventDocumentsBucket,
		MaxUploadBytes:  config.MaxUploadBytes,
	})
	registry := tools.New(logger, store, store, store, objects, images, recorder, tools.Options{
		MaxUploadBytes: config.MaxUploadBytes,
	})

	cognito := &fakeCognito{password: "rahasia"}

	s := &Service{
		logger:        logger,
		config:        config,
		events:        manager,
		tools:         registry,
		reports:       reports.NewGenerator(logger, store, recorder),
		recorder:      recorder,
		db:            fakePinger{},
		cognitoClient: cognito,
		cookie:        securecookie.New(securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32)),
	}
	s.authn = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := r.Header.Get("X-Test-User")
			if user == "" {
				s.writeError(w, r, errUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyUserID, user)))
		})
	}

	mux := flow.New()
	s.buildRouter(mux)

	return &harness{store: store, objects: objects, cognito: cognito, service: s, handler: mux}
}

type part struct {
	field       string
	fileName    string
	contentType string
	body        string
}

func multipartBody(t *testing.T, values map[string]string, files ...part) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range values {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}

	for _, f := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.fileName))
		header.Set("Content-Type", f.contentType)

		w, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		if _, err := w.Write([]byte(f.body)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}

	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	return &buf, mw.FormDataContentType()
}

func (h *harness) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	if body == nil {
		body = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("X-Test-User", "user-1")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) createEvent(t *testing.T, name string) *types.Event {
	t.Helper()

	body, ct := multipartBody(t, map[string]string{"name": name},
		part{field: "document", fileName: "surat.pdf", contentType: "application/pdf", body: "%PDF-1.4 surat"})

	rec := h.do(t, http.MethodPost, "/api/events", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create event status = %d, body %s", rec.Code, rec.Body)
	}

	var event types.Event
	decode(t, rec, &event)
	return &event
}

func (h *harness) addTool(t *testing.T, publicID int64, name string) *types.Tool {
	t.Helper()

	body, ct := multipartBody(t, map[string]string{
		"name":             name,
		"category":         "audio",
		"total":            "2",
		"initialCondition": types.ConditionGood,
	}, part{field: "images", fileName: "mic.jpg", contentType: "image/jpeg", body: "photo"})

	rec := h.do(t, http.MethodPost, fmt.Sprintf("/api/events/%d/tools", publicID), body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add tool status = %d, body %s", rec.Code, rec.Body)
	}

	var tool types.Tool
	decode(t, rec, &tool)
	return &tool
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get(headerRequestID) == "" {
		t.Error("response is missing a request id")
	}

	h.service.db = fakePinger{err: errors.New("connection refused")}
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status with db down = %d", rec.Code)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "abc-123")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(headerRequestID); got != "abc-123" {
		t.Errorf("request id = %q", got)
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLoginAndLogout(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"email":"ops@example.com","password":"salah"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader("email=ops%40example.com&password=rahasia"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body)
	}

	var login loginResponse
	decode(t, rec, &login)
	if login.AccessToken != "token-for-ops@example.com" || login.TokenType != "Bearer" {
		t.Errorf("login response = %+v", login)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "logbook_session" {
		t.Fatalf("cookies = %+v", cookies)
	}
	if cookies[0].MaxAge != 600 {
		t.Errorf("cookie max age = %d, want session cap 600", cookies[0].MaxAge)
	}
	if !cookies[0].Secure {
		t.Error("session cookie must be secure outside development")
	}

	logout := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	logout.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, logout)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", rec.Code)
	}
	if len(h.cognito.signedOut) != 1 || h.cognito.signedOut[0] != login.AccessToken {
		t.Errorf("signed out tokens = %v", h.cognito.signedOut)
	}
}

func TestLoginCookieInDevelopment(t *testing.T) {
	h := newHarness(t)
	h.service.config.Environment = "development"

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"email":"ops@example.com","password":"rahasia"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Secure {
		t.Fatalf("expected one non-secure cookie in development, got %+v", cookies)
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"email":" "}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestEventLifecycle(t *testing.T) {
	h := newHarness(t)

	event := h.createEvent(t, "Konser Amal")
	if event.Status != types.EventStatusNotStarted || event.UserID != "user-1" {
		t.Fatalf("created event = %+v", event)
	}
	if event.Document == nil || !h.objects.Has("event-documents", event.Document.FilePath) {
		t.Fatalf("assignment letter was not stored: %+v", event.Document)
	}

	tool := h.addTool(t, event.PublicID, "Mic Wireless")
	base := fmt.Sprintf("/api/events/%d", event.PublicID)

	rec := h.do(t, http.MethodPost, base+"/start", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body)
	}

	rec = h.do(t, http.MethodPost, base+"/start", nil, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second start status = %d", rec.Code)
	}

	body, ct := multipartBody(t, map[string]string{
		"toolConditions[0].toolId":         fmt.Sprint(tool.ID),
		"toolConditions[0].finalCondition": types.ConditionDamaged,
		"toolConditions[0].notes":          "kabel putus",
	}, part{field: "toolConditions[0].finalImages", fileName: "after.jpg", contentType: "image/jpeg", body: "after"})

	rec = h.do(t, http.MethodPost, base+"/end", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("end status = %d, body %s", rec.Code, rec.Body)
	}

	var ended types.Event
	decode(t, rec, &ended)
	if ended.Status != types.EventStatusCompleted || ended.EndDate == nil {
		t.Fatalf("ended event = %+v", ended)
	}
	if len(ended.Tools) != 1 || ended.Tools[0].FinalCondition == nil || *ended.Tools[0].FinalCondition != types.ConditionDamaged {
		t.Fatalf("ended tools = %+v", ended.Tools)
	}

	rec = h.do(t, http.MethodGet, "/api/tools/"+fmt.Sprint(tool.ID), nil, "")
	var reloaded types.Tool
	decode(t, rec, &reloaded)
	var finals int
	for _, img := range reloaded.Images {
		if img.ImageType == types.ImageTypeFinal {
			finals++
		}
	}
	if finals != 1 {
		t.Errorf("final images = %d, want 1", finals)
	}

	rec = h.do(t, http.MethodDelete, base, nil, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = h.do(t, http.MethodGet, base, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}

func TestEndRequiresEveryTool(t *testing.T) {
	h := newHarness(t)

	event := h.createEvent(t, "Seminar")
	h.addTool(t, event.PublicID, "Proyektor")
	base := fmt.Sprintf("/api/events/%d", event.PublicID)

	if rec := h.do(t, http.MethodPost, base+"/start", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}

	body, ct := multipartBody(t, map[string]string{"note": "lupa"})
	rec := h.do(t, http.MethodPost, base+"/end", body, ct)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp errorResponse
	decode(t, rec, &resp)
	if len(resp.Fields) == 0 {
		t.Error("validation response has no field errors")
	}
}

func TestCreateEventValidation(t *testing.T) {
	h := newHarness(t)

	body, ct := multipartBody(t, map[string]string{"name": "ab"})
	rec := h.do(t, http.MethodPost, "/api/events", body, ct)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp errorResponse
	decode(t, rec, &resp)
	if resp.Fields["name"] == "" || resp.Fields["document"] == "" {
		t.Errorf("fields = %v", resp.Fields)
	}

	events, _, _, _ := h.store.Counts()
	if events != 0 {
		t.Errorf("events stored = %d", events)
	}
}

func TestUnknownIDsAreNotFound(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/api/events/abc", "/api/events/99999999", "/api/tools/0", "/api/tools/42"} {
		if rec := h.do(t, http.MethodGet, path, nil, ""); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d", path, rec.Code)
		}
	}
}

func TestPatchTool(t *testing.T) {
	h := newHarness(t)

	event := h.createEvent(t, "Workshop")
	tool := h.addTool(t, event.PublicID, "Kamera")

	rec := h.do(t, http.MethodPatch, fmt.Sprintf("/api/tools/%d", tool.ID), bytes.NewBufferString(`{"total":3,"category":"video"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var updated types.Tool
	decode(t, rec, &updated)
	if updated.Total != 3 || updated.Category != "video" {
		t.Errorf("updated = %+v", updated)
	}

	rec = h.do(t, http.MethodPatch, fmt.Sprintf("/api/tools/%d", tool.ID), bytes.NewBufferString(`{"category":"drone"}`), "application/json")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown category status = %d", rec.Code)
	}

	rec = h.do(t, http.MethodPatch, fmt.Sprintf("/api/tools/%d", tool.ID), bytes.NewBufferString(`{"total":`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", rec.Code)
	}
}

func TestPatchToolRejectsOversizedBody(t *testing.T) {
	h := newHarness(t)

	event := h.createEvent(t, "Workshop")
	tool := h.addTool(t, event.PublicID, "Kamera")

	body := `{"notes":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	rec := h.do(t, http.MethodPatch, fmt.Sprintf("/api/tools/%d", tool.ID), bytes.NewBufferString(body), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized body status = %d", rec.Code)
	}
}

func TestPathInt(t *testing.T) {
	tests := []struct {
		value string
		want  int64
		ok    bool
	}{
		{"42", 42, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/tools/x", nil)
		r.SetPathValue("toolID", tt.value)

		got, ok := pathInt(r, "toolID")
		if got != tt.want || ok != tt.ok {
			t.Errorf("pathInt(%q) = %d, %v; want %d, %v", tt.value, got, ok, tt.want, tt.ok)
		}
	}
}

func TestReport(t *testing.T) {
	h := newHarness(t)

	end := time.Date(2024, 5, 10, 15, 0, 0, 0, time.Local)
	event := h.store.PutEvent(&types.Event{Name: "Konser", Status: types.EventStatusCompleted, EndDate: &end})
	damaged := types.ConditionDamaged
	h.store.PutTool(&types.Tool{EventID: event.ID, Name: "Mic", Category: "audio", Total: 2, InitialCondition: types.ConditionGood, FinalCondition: &damaged})

	rec := h.do(t, http.MethodGet, "/api/reports?from=2024-05-01&to=2024-05-10", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var report types.Report
	decode(t, rec, &report)
	if report.TotalEvents != 1 || report.TotalItemsDeployed != 2 || len(report.DamagedTools) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if report.StartDate != "2024-05-01" || report.EndDate != "2024-05-10" {
		t.Errorf("period = %s..%s", report.StartDate, report.EndDate)
	}

	rec = h.do(t, http.MethodGet, "/api/reports?from=2024-05-01&to=2024-05-10&format=pdf", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("pdf status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), reports.FileName(&report)) {
		t.Errorf("content disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("body is not a PDF")
	}

	rec = h.do(t, http.MethodGet, "/api/reports?from=10-05-2024&to=2024-05-01", nil, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad date status = %d", rec.Code)
	}
	var resp errorResponse
	decode(t, rec, &resp)
	if resp.Fields["from"] == "" {
		t.Errorf("fields = %v", resp.Fields)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fieldError("name", "required"), http.StatusUnprocessableEntity},
		{fmt.Errorf("loading: %w", types.ErrEventNotFound), http.StatusNotFound},
		{types.ErrInvalidTransition, http.StatusConflict},
		{types.ErrEventCompleted, http.StatusConflict},
		{fmt.Errorf("%w: put", types.ErrStorage), http.StatusBadGateway},
		{types.ErrCollisionExhausted, http.StatusServiceUnavailable},
		{types.WrapPersistence(errors.New("boom"), "insert"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got, _ := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestNewRejectsBadCookieKeys(t *testing.T) {
	_, err := New(&types.Config{CookieHashKey: "not base64!", CookieBlockKey: base64.StdEncoding.EncodeToString([]byte("k"))},
		testutil.QuietLogger(), nil, nil, nil, nil, nil, nil, nil, "")
	if err == nil {
		t.Fatal("expected an error for an undecodable hash key")
	}
}
