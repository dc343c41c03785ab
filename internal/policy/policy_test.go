package policy

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"mediabib-service/internal/model"
	"mediabib-service/pkg/database"

	"gorm.io/gorm"
)

func uintPtr(v uint) *uint { return &v }

func TestRolePredicates(t *testing.T) {
	cases := []struct {
		name                       string
		actor                      Actor
		superadmin, staff, reader  bool
		libraries, readers, selfSv Decision
	}{
		{"anonymous", nil, false, false, false, DenyUnauthenticated, DenyUnauthenticated, DenyUnauthenticated},
		{"superadmin", Superadmin{ID: 1}, true, false, false, Allow, Allow, DenyForbidden},
		{"staff", LibraryStaff{ID: 2, LibraryID: 1}, false, true, false, DenyForbidden, Allow, DenyForbidden},
		{"reader", Reader{ID: 3, LibraryID: 1}, false, false, true, DenyForbidden, DenyForbidden, Allow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSuperadmin(tc.actor); got != tc.superadmin {
				t.Fatalf("IsSuperadmin = %v, want %v", got, tc.superadmin)
			}
			if got := IsLibraryStaff(tc.actor); got != tc.staff {
				t.Fatalf("IsLibraryStaff = %v, want %v", got, tc.staff)
			}
			if got := IsReader(tc.actor); got != tc.reader {
				t.Fatalf("IsReader = %v, want %v", got, tc.reader)
			}
			if got := CanManageLibraries(tc.actor); got != tc.libraries {
				t.Fatalf("CanManageLibraries = %v, want %v", got, tc.libraries)
			}
			if got := CanManageReaders(tc.actor); got != tc.readers {
				t.Fatalf("CanManageReaders = %v, want %v", got, tc.readers)
			}
			if got := RequireReader(tc.actor); got != tc.selfSv {
				t.Fatalf("RequireReader = %v, want %v", got, tc.selfSv)
			}
		})
	}
}

func TestDecisionErr(t *testing.T) {
	if Allow.Err() != nil {
		t.Fatalf("allow should carry no error")
	}
	if !errors.Is(DenyUnauthenticated.Err(), ErrUnauthenticated) {
		t.Fatalf("want ErrUnauthenticated")
	}
	if !errors.Is(DenyForbidden.Err(), ErrForbidden) {
		t.Fatalf("want ErrForbidden")
	}
}

func TestCanAccessOwnResource(t *testing.T) {
	if got := CanAccessOwnResource(Reader{ID: 7}, 7); got != Allow {
		t.Fatalf("owner: got %v", got)
	}
	if got := CanAccessOwnResource(Reader{ID: 7}, 8); got != DenyForbidden {
		t.Fatalf("other reader: got %v", got)
	}
	if got := CanAccessOwnResource(LibraryStaff{ID: 1, LibraryID: 1}, 8); got != Allow {
		t.Fatalf("staff: got %v", got)
	}
	if got := CanAccessOwnResource(nil, 8); got != DenyUnauthenticated {
		t.Fatalf("anonymous: got %v", got)
	}
}

func TestEffectiveLibraryScope(t *testing.T) {
	scope, err := EffectiveLibraryScope(Superadmin{ID: 1})
	if err != nil || !scope.AllLibraries() {
		t.Fatalf("superadmin without selection: %+v %v", scope, err)
	}

	scope, err = EffectiveLibraryScope(Superadmin{ID: 1, SelectedLibraryID: uintPtr(4)})
	if err != nil {
		t.Fatalf("superadmin with selection: %v", err)
	}
	if id, ok := scope.LibraryID(); !ok || id != 4 {
		t.Fatalf("want library 4, got %d %v", id, ok)
	}

	scope, err = EffectiveLibraryScope(LibraryStaff{ID: 2, LibraryID: 9})
	if id, ok := scope.LibraryID(); err != nil || !ok || id != 9 {
		t.Fatalf("staff scope: %d %v %v", id, ok, err)
	}

	if _, err := EffectiveLibraryScope(Reader{ID: 3, LibraryID: 9}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("reader scope: want ErrForbidden, got %v", err)
	}
	if _, err := EffectiveLibraryScope(nil); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("anonymous scope: want ErrUnauthenticated, got %v", err)
	}
}

func TestFromUser(t *testing.T) {
	lib := uintPtr(5)
	a, err := FromUser(&model.User{ID: 1, Role: model.RoleLibrary, LibraryID: lib}, uintPtr(9))
	if err != nil {
		t.Fatalf("from user: %v", err)
	}
	if staff, ok := a.(LibraryStaff); !ok || staff.LibraryID != 5 {
		t.Fatalf("want staff of library 5, got %#v", a)
	}

	a, _ = FromUser(&model.User{ID: 2, Role: model.RoleSuperadmin}, uintPtr(9))
	if sa, ok := a.(Superadmin); !ok || sa.SelectedLibraryID == nil || *sa.SelectedLibraryID != 9 {
		t.Fatalf("want superadmin with selection, got %#v", a)
	}

	if _, err := FromUser(&model.User{ID: 3, Role: "janitor"}, nil); err == nil {
		t.Fatalf("unknown role should fail")
	}
}

func seedReader(t *testing.T, db *gorm.DB, libraryID uint, n int) model.ReaderProfile {
	t.Helper()
	u := model.User{
		Username:  fmt.Sprintf("reader-%d-%d", libraryID, n),
		Password:  "x",
		Role:      model.RoleReader,
		LibraryID: &libraryID,
		IsActive:  true,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	p := model.ReaderProfile{
		UserID:         u.ID,
		CardNumber:     fmt.Sprintf("L%d-%06d", libraryID, n),
		CardIssuedDate: time.Now(),
		Category:       model.CategoryAdult,
		GDPRConsent:    true,
		IsActive:       true,
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return p
}

func scopedIDs(t *testing.T, db *gorm.DB, a Actor) map[uint]bool {
	t.Helper()
	scope, err := ScopeReaderQuery(a)
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	var profiles []model.ReaderProfile
	if err := db.Scopes(scope).Find(&profiles).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	ids := make(map[uint]bool, len(profiles))
	for _, p := range profiles {
		ids[p.ID] = true
	}
	return ids
}

func TestScopeReaderQueryIsolatesTenants(t *testing.T) {
	db := database.OpenTest(t)
	libA := model.Library{Name: "A", Code: "LIBA", IsActive: true}
	libB := model.Library{Name: "B", Code: "LIBB", IsActive: true}
	db.Create(&libA)
	db.Create(&libB)

	var inA, inB []model.ReaderProfile
	for i := 0; i < 3; i++ {
		inA = append(inA, seedReader(t, db, libA.ID, i))
		inB = append(inB, seedReader(t, db, libB.ID, i))
	}

	staffA := scopedIDs(t, db, LibraryStaff{ID: 100, LibraryID: libA.ID})
	if len(staffA) != len(inA) {
		t.Fatalf("staff A sees %d readers, want %d", len(staffA), len(inA))
	}
	for _, p := range inB {
		if staffA[p.ID] {
			t.Fatalf("staff of A sees reader %d of B", p.ID)
		}
	}

	all := scopedIDs(t, db, Superadmin{ID: 1})
	if len(all) != len(inA)+len(inB) {
		t.Fatalf("superadmin sees %d readers, want %d", len(all), len(inA)+len(inB))
	}

	selected := scopedIDs(t, db, Superadmin{ID: 1, SelectedLibraryID: &libB.ID})
	for _, p := range inA {
		if selected[p.ID] {
			t.Fatalf("superadmin narrowed to B sees reader %d of A", p.ID)
		}
	}

	orphan := scopedIDs(t, db, LibraryStaff{ID: 101})
	if len(orphan) != 0 {
		t.Fatalf("staff without library sees %d readers", len(orphan))
	}

	if _, err := ScopeReaderQuery(Reader{ID: 5, LibraryID: libA.ID}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("reader must not obtain a scope, got %v", err)
	}
}
