package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"loanportal/internal/servicetoken"
	"loanportal/pkg/domain"
	"loanportal/pkg/storage"
	"loanportal/pkg/store"
	"loanportal/services/portal/internal/app"
	"loanportal/services/portal/internal/metrics"
)

var identities = map[string]domain.Identity{
	"user-token":  {UserID: "user-1", Email: "ana@example.com", Role: domain.RoleUser},
	"other-token": {UserID: "user-2", Email: "bo@example.com", Role: domain.RoleUser},
	"admin-token": {UserID: "admin-1", Email: "ops@example.com", Role: domain.RoleAdmin, IsAdmin: true},
}

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, token string) (domain.Identity, error) {
	id, ok := identities[token]
	if !ok {
		return domain.Identity{}, errors.New("bad token")
	}
	return id, nil
}

// unavailableObjects stores blobs but never hands out a signed URL.
type unavailableObjects struct {
	*storage.MemoryStore
}

func (unavailableObjects) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("not visible")
}

type testServer struct {
	handler http.Handler
	metrics *metrics.Metrics
	signer  *servicetoken.Signer
}

func newTestServer(t *testing.T, objects storage.ObjectStore) *testServer {
	t.Helper()
	if objects == nil {
		objects = storage.NewMemoryStore("loan-documents")
	}
	m := metrics.New()
	a, err := app.New(app.Config{
		Store:   store.NewMemoryStore(),
		Objects: objects,
		Metrics: m,
		Sleep:   func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := servicetoken.NewSigner(key, "internal-test", "loanportal-auth", time.Minute)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	internal, err := servicetoken.NewVerifier(map[string]*rsa.PublicKey{"internal-test": &key.PublicKey}, "portal", []string{"loanportal-auth"}, 0)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	srv, err := New(Config{App: a, Tokens: stubVerifier{}, Internal: internal, Metrics: m})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testServer{handler: srv.Router(), metrics: m, signer: signer}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) doJSON(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	return ts.do(t, method, path, token, body, "application/json")
}

func multipartUpload(t *testing.T, category, name, contentType string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("category", category); err != nil {
		t.Fatalf("write field: %v", err)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/healthz", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id header missing")
	}
}

func TestUnauthenticatedRequests(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, token := range []string{"", "forged"} {
		rec := ts.do(t, http.MethodGet, "/api/dashboard", token, nil, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: status = %d", token, rec.Code)
		}
		resp := decodeError(t, rec)
		if resp.Code != "AUTH_INVALID_TOKEN" || resp.RequestID == "" {
			t.Fatalf("unexpected error body %+v", resp)
		}
	}
}

func TestUploadListAndDelete(t *testing.T) {
	ts := newTestServer(t, nil)

	body, ct := multipartUpload(t, "pay_stubs", "stub.pdf", "application/pdf", bytes.Repeat([]byte("a"), 4096))
	rec := ts.do(t, http.MethodPost, "/api/documents", "user-token", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d body=%s", rec.Code, rec.Body.String())
	}
	var doc domain.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.Status != domain.DocumentPending || doc.Category != domain.CategoryPayStubs {
		t.Fatalf("unexpected document %+v", doc)
	}

	rec = ts.do(t, http.MethodGet, "/api/documents", "user-token", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"label":"Proof of Income"`) {
		t.Fatalf("list status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodDelete, "/api/documents/"+doc.ID, "other-token", nil, "")
	if rec.Code != http.StatusForbidden || decodeError(t, rec).Code != "PORTAL_FORBIDDEN" {
		t.Fatalf("stranger delete status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodDelete, "/api/documents/"+doc.ID, "user-token", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/api/documents/"+doc.ID, "user-token", nil, "")
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Code != "DOCUMENT_NOT_FOUND" {
		t.Fatalf("get deleted status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestUploadValidationErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	body, ct := multipartUpload(t, "drivers_license", "car.jpg", "image/jpeg", bytes.Repeat([]byte("a"), 12*1024*1024))
	rec := ts.do(t, http.MethodPost, "/api/documents", "user-token", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized status = %d", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Error != "File is too large. Maximum size is 10MB." || resp.Code != "DOCUMENT_FILE_TOO_LARGE" {
		t.Fatalf("unexpected error %+v", resp)
	}

	body, ct = multipartUpload(t, "drivers_license", "car.gif", "image/gif", []byte("GIF89a"))
	rec = ts.do(t, http.MethodPost, "/api/documents", "user-token", body, ct)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != "DOCUMENT_UNSUPPORTED_FILE_TYPE" {
		t.Fatalf("gif status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/api/documents", "user-token", strings.NewReader("nope"), "text/plain")
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != "DOCUMENT_INVALID_UPLOAD_FORM" {
		t.Fatalf("bad form status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestUnverifiedUploadIsBadGateway(t *testing.T) {
	ts := newTestServer(t, unavailableObjects{storage.NewMemoryStore("loan-documents")})

	body, ct := multipartUpload(t, "insurance", "card.png", "image/png", []byte("png-bytes"))
	rec := ts.do(t, http.MethodPost, "/api/documents", "user-token", body, ct)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if resp := decodeError(t, rec); resp.Code != "FILE_UNAVAILABLE" {
		t.Fatalf("unexpected error %+v", resp)
	}
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/application", "user-token", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("application status = %d", rec.Code)
	}
	var view struct {
		Application domain.Application `json:"application"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = ts.do(t, http.MethodGet, "/api/admin/applications", "user-token", nil, "")
	if rec.Code != http.StatusForbidden || decodeError(t, rec).Code != "PORTAL_ADMIN_REQUIRED" {
		t.Fatalf("user on admin route: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.doJSON(t, http.MethodPost, "/api/admin/applications/"+view.Application.ID+"/status", "admin-token",
		map[string]string{"status": "pre_approved"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status change: %d %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodGet, "/api/dashboard", "user-token", nil, "")
	if !strings.Contains(rec.Body.String(), "You're pre-approved! Book a time to discuss vehicle options.") ||
		!strings.Contains(rec.Body.String(), "Schedule Consultation") {
		t.Fatalf("dashboard missing next step: %s", rec.Body.String())
	}

	rec = ts.doJSON(t, http.MethodPost, "/api/admin/applications/"+view.Application.ID+"/status", "admin-token",
		map[string]string{"status": "funded"})
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != "PORTAL_INVALID_STATUS" {
		t.Fatalf("bad status: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/api/admin/applications", "admin-token", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Fatalf("admin list: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRejectWithoutNotesOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	body, ct := multipartUpload(t, "bank_statements", "bank.pdf", "application/pdf", []byte("%PDF-1.4"))
	rec := ts.do(t, http.MethodPost, "/api/documents", "user-token", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	var doc domain.Document
	_ = json.Unmarshal(rec.Body.Bytes(), &doc)

	rec = ts.doJSON(t, http.MethodPatch, "/api/documents/"+doc.ID+"/status", "admin-token", map[string]string{"status": "rejected"})
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != "DOCUMENT_REVIEW_NOTES_REQUIRED" {
		t.Fatalf("reject without notes: %d %s", rec.Code, rec.Body.String())
	}
	rec = ts.doJSON(t, http.MethodPatch, "/api/documents/"+doc.ID+"/status", "admin-token",
		map[string]string{"status": "rejected", "notes": "Blurry image, please resubmit"})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Blurry image, please resubmit") {
		t.Fatalf("reject: %d %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodGet, "/api/notifications", "user-token", nil, "")
	if !strings.Contains(rec.Body.String(), "Blurry image, please resubmit") {
		t.Fatalf("notification missing notes: %s", rec.Body.String())
	}
}

func TestPrequalAndClaim(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.doJSON(t, http.MethodPost, "/api/prequal", "", map[string]any{
		"firstName": "Ana", "lastName": "Ruiz", "email": "ana@example.com", "phone": "5550102000",
		"zipCode": "73301", "employmentStatus": "employed", "creditScore": "good",
		"annualIncome": "72000", "loanAmountMin": "15000", "loanAmountMax": "25000",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("prequal: %d %s", rec.Code, rec.Body.String())
	}
	var pre struct {
		TempUserID string `json:"tempUserId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &pre); err != nil || pre.TempUserID == "" {
		t.Fatalf("missing temp id: %s", rec.Body.String())
	}

	rec = ts.doJSON(t, http.MethodPost, "/api/prequal", "", map[string]any{"firstName": "Ana"})
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Fields["email"] != "required" {
		t.Fatalf("invalid prequal: %d %s", rec.Code, rec.Body.String())
	}

	claim := map[string]string{"userId": "user-1", "email": "ana@example.com", "tempUserId": pre.TempUserID}
	rec = ts.doJSON(t, http.MethodPost, "/internal/applications/claim", "user-token", claim)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("claim with user token: %d", rec.Code)
	}
	token, err := ts.signer.Sign("portal")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rec = ts.doJSON(t, http.MethodPost, "/internal/applications/claim", token, claim)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"userId":"user-1"`) {
		t.Fatalf("claim: %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsUseRoutePatterns(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodGet, "/api/documents/doc-123", "user-token", nil, "")

	rec := ts.do(t, http.MethodGet, "/metrics", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="/api/documents/{documentID}"`) {
		t.Fatalf("route label missing from metrics output")
	}
	if strings.Contains(rec.Body.String(), "doc-123") {
		t.Fatalf("raw ids must not leak into labels")
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	ts := newTestServer(t, nil)
	if rec := ts.do(t, http.MethodGet, "/nope", "", nil, ""); rec.Code != http.StatusNotFound || decodeError(t, rec).Code != "SYSTEM_NOT_FOUND" {
		t.Fatalf("unknown route: %d %s", rec.Code, rec.Body.String())
	}
	if rec := ts.do(t, http.MethodPut, "/healthz", "", nil, ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong method: %d", rec.Code)
	}
}
