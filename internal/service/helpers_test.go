package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"mediabib-service/internal/model"
	"mediabib-service/internal/notify"
	"mediabib-service/internal/policy"
	"mediabib-service/pkg/config"
	"mediabib-service/pkg/database"
	"mediabib-service/pkg/jwtutil"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type fixture struct {
	svc     *Service
	db      *gorm.DB
	mail    *notify.Recorder
	central model.Library
	annex   model.Library
	admin   policy.Superadmin
	staff   policy.LibraryStaff // bound to central
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := database.OpenTest(t)
	mail := &notify.Recorder{}
	svc := New(db, Options{
		Notifier: mail,
		JWT: jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
			SigningKey:      "test-signing-key",
			AccessLifetime:  time.Hour,
			RefreshLifetime: 7 * 24 * time.Hour,
		}),
		Accounts: config.AccountsConfig{BcryptCost: bcrypt.MinCost, CardIssueAttempts: 20, PasswordLength: 12},
	})

	f := &fixture{svc: svc, db: db, mail: mail}
	f.central = model.Library{Name: "Central", Code: "CENTRAL", City: "Lyon", IsActive: true}
	f.annex = model.Library{Name: "Annex", Code: "ANNEX", City: "Paris", IsActive: true}
	mustCreate(t, db, &f.central)
	mustCreate(t, db, &f.annex)

	admin := f.createUser(t, "root", model.RoleSuperadmin, nil)
	staff := f.createUser(t, "clerk", model.RoleLibrary, &f.central.ID)
	f.admin = policy.Superadmin{ID: admin.ID}
	f.staff = policy.LibraryStaff{ID: staff.ID, LibraryID: f.central.ID}
	return f
}

func mustCreate(t *testing.T, db *gorm.DB, v interface{}) {
	t.Helper()
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

func (f *fixture) createUser(t *testing.T, username string, role model.Role, libraryID *uint) *model.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &model.User{
		Username:  username,
		Email:     username + "@example.org",
		Password:  string(hashed),
		Role:      role,
		LibraryID: libraryID,
		IsStaff:   role == model.RoleLibrary,
		IsActive:  true,
	}
	mustCreate(t, f.db, u)
	return u
}

func registration(username string, libraryID uint) RegistrationInput {
	return RegistrationInput{
		Username:    username,
		Email:       username + "@readers.example.org",
		FirstName:   "Marie",
		LastName:    "Curie",
		Password1:   "s3cret-pass",
		Password2:   "s3cret-pass",
		LibraryID:   libraryID,
		City:        "Lyon",
		GDPRConsent: true,
	}
}

func (f *fixture) register(t *testing.T, username string, libraryID uint) *model.ReaderProfile {
	t.Helper()
	p, err := f.svc.RegisterReader(context.Background(), registration(username, libraryID))
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return p
}

func readerActor(p *model.ReaderProfile) policy.Reader {
	var lib uint
	if p.User.LibraryID != nil {
		lib = *p.User.LibraryID
	}
	return policy.Reader{ID: p.UserID, LibraryID: lib}
}

func count(t *testing.T, db *gorm.DB, m interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(m).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", m, err)
	}
	return n
}

func requireFieldError(t *testing.T, err error, field string) {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want ValidationError on %q, got %v", field, err)
	}
	if _, ok := ve.Fields[field]; !ok {
		t.Fatalf("want error on %q, got %v", field, fmt.Sprint(ve.Fields))
	}
}
