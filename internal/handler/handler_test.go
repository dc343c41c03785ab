package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mediabib-service/internal/middleware"
	"mediabib-service/internal/model"
	"mediabib-service/internal/notify"
	"mediabib-service/internal/service"
	"mediabib-service/pkg/config"
	"mediabib-service/pkg/database"
	"mediabib-service/pkg/jwtutil"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type testServer struct {
	e       *echo.Echo
	db      *gorm.DB
	svc     *service.Service
	central model.Library
	annex   model.Library
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := database.OpenTest(t)
	svc := service.New(db, service.Options{
		Notifier: &notify.Recorder{},
		JWT: jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
			SigningKey:      "handler-test-key",
			AccessLifetime:  time.Hour,
			RefreshLifetime: 24 * time.Hour,
		}),
		Accounts: config.AccountsConfig{BcryptCost: bcrypt.MinCost},
	})

	e := echo.New()
	e.Use(middleware.RequestID)
	New(svc, "mediabib-service").Routes(e, middleware.Auth(svc))

	s := &testServer{e: e, db: db, svc: svc}
	s.central = model.Library{Name: "Central", Code: "CENTRAL", City: "Lyon", IsActive: true}
	s.annex = model.Library{Name: "Annex", Code: "ANNEX", IsActive: true}
	for _, l := range []*model.Library{&s.central, &s.annex} {
		if err := db.Create(l).Error; err != nil {
			t.Fatalf("create library: %v", err)
		}
	}
	return s
}

func (s *testServer) user(t *testing.T, username string, role model.Role, libraryID *uint) {
	t.Helper()
	hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	u := model.User{Username: username, Password: string(hashed), Role: role, LibraryID: libraryID, IsActive: true}
	if err := s.db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func (s *testServer) reader(t *testing.T, username string, libraryID uint) *model.ReaderProfile {
	t.Helper()
	p, err := s.svc.RegisterReader(context.Background(), service.RegistrationInput{
		Username:    username,
		Email:       username + "@example.org",
		FirstName:   "Emile",
		LastName:    "Zola",
		Password1:   "password123",
		Password2:   "password123",
		LibraryID:   libraryID,
		Address:     "1 rue de la Paix",
		PostalCode:  "69001",
		City:        "Paris",
		GDPRConsent: true,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return p
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, username string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/token", "", map[string]string{"username": username, "password": "password123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", username, rec.Code, rec.Body)
	}
	var resp tokenObtainResponse
	decode(t, rec, &resp)
	return resp.Access
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestReadersMeAuthentication(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "clerk", model.RoleLibrary, &s.central.ID)

	if rec := s.do(t, http.MethodGet, "/readers/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: %d, want 401", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/readers/me", "not-a-jwt", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d, want 401", rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/readers/me", s.login(t, "clerk"), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("staff: %d, want 403", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["error"] != notAReaderMessage {
		t.Fatalf("staff message: %q", body["error"])
	}
}

func TestReadersMeReturnsProfile(t *testing.T) {
	s := newTestServer(t)
	p := s.reader(t, "emile", s.central.ID)

	rec := s.do(t, http.MethodGet, "/readers/me", s.login(t, "emile"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d %s", rec.Code, rec.Body)
	}
	var view profileView
	decode(t, rec, &view)
	if view.CardNumber != p.CardNumber || view.FullName != "Emile Zola" || view.Library == nil || view.Library.Code != "CENTRAL" {
		t.Fatalf("view: %+v", view)
	}
	if view.CardIssuedDate != time.Now().Format("2006-01-02") {
		t.Fatalf("card_issued_date = %q", view.CardIssuedDate)
	}
	if strings.Contains(rec.Body.String(), "internal_notes") {
		t.Fatalf("reader view exposes staff notes")
	}
}

func TestPatchReadersMeAppliesBoundedFields(t *testing.T) {
	s := newTestServer(t)
	p := s.reader(t, "patcher", s.central.ID)
	token := s.login(t, "patcher")

	var before map[string]interface{}
	decode(t, s.do(t, http.MethodGet, "/readers/me", token, nil), &before)

	rec := s.do(t, http.MethodPatch, "/readers/me", token, map[string]interface{}{
		"phone":       "0123456789",
		"city":        "Lyon",
		"card_number": "HACKED-1",
		"is_blocked":  true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", rec.Code, rec.Body)
	}
	var after map[string]interface{}
	decode(t, rec, &after)

	if after["phone"] != "0123456789" || after["city"] != "Lyon" {
		t.Fatalf("patched fields: phone=%v city=%v", after["phone"], after["city"])
	}
	for k, v := range before {
		if k == "phone" || k == "city" {
			continue
		}
		if fmt.Sprint(after[k]) != fmt.Sprint(v) {
			t.Fatalf("field %q changed from %v to %v", k, v, after[k])
		}
	}
	if after["card_number"] != p.CardNumber {
		t.Fatalf("card number changed through self-service")
	}
}

func TestPatchReadersMeValidation(t *testing.T) {
	s := newTestServer(t)
	s.reader(t, "sloppy", s.central.ID)
	token := s.login(t, "sloppy")

	rec := s.do(t, http.MethodPatch, "/readers/me", token, map[string]interface{}{"email": "nope", "city": "Nice"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid email: %d, want 400", rec.Code)
	}
	var body struct {
		Error  string              `json:"error"`
		Fields map[string][]string `json:"fields"`
	}
	decode(t, rec, &body)
	if len(body.Fields["email"]) == 0 {
		t.Fatalf("missing field error: %s", rec.Body)
	}

	var view profileView
	decode(t, s.do(t, http.MethodGet, "/readers/me", token, nil), &view)
	if view.City == "Nice" {
		t.Fatalf("rejected patch was partially applied")
	}
}

func TestReaderPlaceholderCollections(t *testing.T) {
	s := newTestServer(t)
	s.reader(t, "borrower", s.central.ID)
	s.user(t, "clerk", model.RoleLibrary, &s.central.ID)
	token := s.login(t, "borrower")
	staffToken := s.login(t, "clerk")

	for _, path := range []string{"/readers/me/loans", "/readers/me/reservations", "/readers/me/history"} {
		rec := s.do(t, http.MethodGet, path, token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: %d", path, rec.Code)
		}
		if got := strings.TrimSpace(rec.Body.String()); got != `{"count":0,"results":[]}` {
			t.Fatalf("%s: body %s", path, got)
		}
		if rec := s.do(t, http.MethodGet, path, staffToken, nil); rec.Code != http.StatusForbidden {
			t.Fatalf("%s for staff: %d, want 403", path, rec.Code)
		}
		if rec := s.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s anonymous: %d, want 401", path, rec.Code)
		}
	}
}

func TestTokenEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.reader(t, "tokens", s.central.ID)

	rec := s.do(t, http.MethodPost, "/auth/token", "", map[string]string{"username": "tokens", "password": "password123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("obtain: %d %s", rec.Code, rec.Body)
	}
	var obtained tokenObtainResponse
	decode(t, rec, &obtained)
	if obtained.Role != "reader" || obtained.Username != "tokens" || obtained.Library == nil || obtained.Library.Code != "CENTRAL" {
		t.Fatalf("obtain response: %+v", obtained)
	}

	if rec := s.do(t, http.MethodPost, "/auth/token", "", map[string]string{"username": "tokens", "password": "bad"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad credentials: %d, want 401", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/auth/token", "", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing credentials: %d, want 400", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/auth/token/verify", "", map[string]string{"token": obtained.Access})
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Fatalf("verify: %d %s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodPost, "/auth/token/refresh", "", map[string]string{"refresh": obtained.Refresh})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body)
	}
	var rotated tokenPairResponse
	decode(t, rec, &rotated)
	if rotated.Access == "" || rotated.Refresh == "" {
		t.Fatalf("refresh response: %+v", rotated)
	}
	if rec := s.do(t, http.MethodPost, "/auth/token/refresh", "", map[string]string{"refresh": obtained.Refresh}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: %d, want 401", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/auth/token/verify", "", map[string]string{"token": "x.y.z"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("verify garbage: %d, want 401", rec.Code)
	}
}

func TestRegisterEndpoint(t *testing.T) {
	s := newTestServer(t)
	body := map[string]interface{}{
		"username":     "newcomer",
		"email":        "newcomer@example.org",
		"first_name":   "Jeanne",
		"last_name":    "Baret",
		"password1":    "long-password",
		"password2":    "long-password",
		"library_id":   s.central.ID,
		"gdpr_consent": false,
	}

	rec := s.do(t, http.MethodPost, "/auth/register", "", body)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "gdpr_consent") {
		t.Fatalf("without consent: %d %s", rec.Code, rec.Body)
	}
	var n int64
	s.db.Model(&model.User{}).Where("username = ?", "newcomer").Count(&n)
	if n != 0 {
		t.Fatalf("identity created without consent")
	}

	body["gdpr_consent"] = true
	rec = s.do(t, http.MethodPost, "/auth/register", "", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body)
	}
	var view profileView
	decode(t, rec, &view)
	if !strings.HasPrefix(view.CardNumber, "CENTRAL-") || !view.GDPRConsent {
		t.Fatalf("registered view: %+v", view)
	}
}

func TestPublicLibraries(t *testing.T) {
	s := newTestServer(t)
	s.db.Model(&model.Library{}).Where("id = ?", s.annex.ID).Update("is_active", false)

	var libs []libraryView
	rec := s.do(t, http.MethodGet, "/libraries", "", nil)
	decode(t, rec, &libs)
	if rec.Code != http.StatusOK || len(libs) != 1 || libs[0].Code != "CENTRAL" {
		t.Fatalf("list: %d %+v", rec.Code, libs)
	}
	if rec := s.do(t, http.MethodGet, fmt.Sprintf("/libraries/%d", s.annex.ID), "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("inactive library: %d, want 404", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/libraries/abc", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("malformed id: %d, want 404", rec.Code)
	}
}

func TestAdminReaderTenancy(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "clerk", model.RoleLibrary, &s.central.ID)
	s.user(t, "root", model.RoleSuperadmin, nil)
	mine := s.reader(t, "mine", s.central.ID)
	theirs := s.reader(t, "theirs", s.annex.ID)
	staff := s.login(t, "clerk")
	root := s.login(t, "root")
	reader := s.login(t, "mine")

	var page readerPageResponse
	decode(t, s.do(t, http.MethodGet, "/admin/readers", staff, nil), &page)
	if page.Count != 1 || page.Results[0].ID != mine.ID {
		t.Fatalf("staff listing: %+v", page)
	}

	if rec := s.do(t, http.MethodGet, fmt.Sprintf("/admin/readers/%d", theirs.ID), staff, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("cross-library detail: %d, want 404", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, fmt.Sprintf("/admin/readers/%d", theirs.ID), root, nil); rec.Code != http.StatusOK {
		t.Fatalf("superadmin detail: %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/admin/readers", reader, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("reader on admin surface: %d, want 403", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/admin/libraries", staff, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("staff on library admin: %d, want 403", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/admin/readers", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous admin: %d, want 401", rec.Code)
	}

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/admin/readers/%d/password-reset", mine.ID), staff, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: %d %s", rec.Code, rec.Body)
	}
	var reset map[string]interface{}
	decode(t, rec, &reset)
	if pw, _ := reset["password"].(string); len(pw) != 12 {
		t.Fatalf("reset password not returned: %v", reset)
	}
}

func TestAdminCreateReaderAndSelection(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "root", model.RoleSuperadmin, nil)
	root := s.login(t, "root")

	rec := s.do(t, http.MethodPost, "/admin/context/library", root, map[string]interface{}{"library_id": s.annex.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("select: %d %s", rec.Code, rec.Body)
	}
	var selected map[string]interface{}
	decode(t, rec, &selected)
	narrowed, _ := selected["access"].(string)

	rec = s.do(t, http.MethodPost, "/admin/readers", narrowed, map[string]interface{}{
		"username":     "walkin",
		"email":        "walkin@example.org",
		"first_name":   "Walk",
		"last_name":    "In",
		"gdpr_consent": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	var created struct {
		Reader   adminReaderView `json:"reader"`
		Password string          `json:"password"`
	}
	decode(t, rec, &created)
	if created.Password == "" || !strings.HasPrefix(created.Reader.CardNumber, "ANNEX-") {
		t.Fatalf("created: %+v", created)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	var body map[string]string
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || body["status"] != "healthy" || body["service"] != "mediabib-service" {
		t.Fatalf("health: %d %v", rec.Code, body)
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatalf("request id not assigned")
	}
}
