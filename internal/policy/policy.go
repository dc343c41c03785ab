package policy

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrUnauthenticated means no valid credential accompanied the request.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden means the actor lacks the role or tenancy right.
	ErrForbidden = errors.New("permission denied")
)

// Decision is the outcome of a policy check.
type Decision int

const (
	Allow Decision = iota
	DenyUnauthenticated
	DenyForbidden
)

// Allowed reports whether the operation may proceed.
func (d Decision) Allowed() bool { return d == Allow }

// Err converts a denial into ErrUnauthenticated or ErrForbidden.
func (d Decision) Err() error {
	switch d {
	case Allow:
		return nil
	case DenyUnauthenticated:
		return ErrUnauthenticated
	default:
		return ErrForbidden
	}
}

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyUnauthenticated:
		return "unauthenticated"
	default:
		return "forbidden"
	}
}

func IsSuperadmin(a Actor) bool {
	_, ok := a.(Superadmin)
	return ok
}

func IsLibraryStaff(a Actor) bool {
	_, ok := a.(LibraryStaff)
	return ok
}

func IsReader(a Actor) bool {
	_, ok := a.(Reader)
	return ok
}

func decide(a Actor, ok bool) Decision {
	switch {
	case a == nil:
		return DenyUnauthenticated
	case ok:
		return Allow
	default:
		return DenyForbidden
	}
}

// CanManageLibraries gates every library create, update, delete, list and detail.
func CanManageLibraries(a Actor) Decision {
	return decide(a, IsSuperadmin(a))
}

// CanManageReaders gates every administrative reader operation.
func CanManageReaders(a Actor) Decision {
	return decide(a, IsSuperadmin(a) || IsLibraryStaff(a))
}

// RequireReader gates the self-service surface.
func RequireReader(a Actor) Decision {
	return decide(a, IsReader(a))
}

// RequireSuperadmin gates superadmin-only session operations such as library selection.
func RequireSuperadmin(a Actor) Decision {
	return decide(a, IsSuperadmin(a))
}

// CanAccessOwnResource allows staff and superadmins, or the resource owner.
func CanAccessOwnResource(a Actor, ownerID uint) Decision {
	if a == nil {
		return DenyUnauthenticated
	}
	return decide(a, IsSuperadmin(a) || IsLibraryStaff(a) || a.UserID() == ownerID)
}

// LibraryScope is the set of libraries an administrative actor observes.
type LibraryScope struct {
	all       bool
	libraryID uint
}

// AllLibraries reports whether the scope is unrestricted.
func (s LibraryScope) AllLibraries() bool { return s.all }

// LibraryID returns the single library in scope, if any.
func (s LibraryScope) LibraryID() (uint, bool) { return s.libraryID, !s.all }

// EffectiveLibraryScope returns every library for a superadmin without a
// selection, otherwise exactly one library. It is undefined for readers and
// anonymous actors, which get ErrForbidden and ErrUnauthenticated.
func EffectiveLibraryScope(a Actor) (LibraryScope, error) {
	switch actor := a.(type) {
	case nil:
		return LibraryScope{}, ErrUnauthenticated
	case Superadmin:
		if actor.SelectedLibraryID != nil {
			return LibraryScope{libraryID: *actor.SelectedLibraryID}, nil
		}
		return LibraryScope{all: true}, nil
	case LibraryStaff:
		return LibraryScope{libraryID: actor.LibraryID}, nil
	default:
		return LibraryScope{}, ErrForbidden
	}
}

// ScopeReaderQuery returns a gorm scope restricting reader_profiles to the
// actor's library. It must wrap every reader listing, detail, update, delete
// and credential reset lookup.
func ScopeReaderQuery(a Actor) (func(*gorm.DB) *gorm.DB, error) {
	scope, err := EffectiveLibraryScope(a)
	if err != nil {
		return nil, err
	}
	libraryID, scoped := scope.LibraryID()
	return func(db *gorm.DB) *gorm.DB {
		if !scoped {
			return db
		}
		return db.Where("reader_profiles.user_id IN (SELECT id FROM users WHERE library_id = ?)", libraryID)
	}, nil
}
