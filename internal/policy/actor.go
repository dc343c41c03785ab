// Package policy decides, per request, what an authenticated identity may see
// and change. Every administrative and self-service handler asks it first.
package policy

import (
	"fmt"

	"mediabib-service/internal/model"
)

// Actor is the identity a request acts as. The set of implementations is
// closed: Superadmin, LibraryStaff and Reader. A nil Actor is anonymous.
type Actor interface {
	UserID() uint
	Role() model.Role
	sealed()
}

// Superadmin acts across every library. SelectedLibraryID optionally narrows
// the administrative scope to one library for the current request.
type Superadmin struct {
	ID                uint
	SelectedLibraryID *uint
}

// LibraryStaff administers exactly one library.
type LibraryStaff struct {
	ID        uint
	LibraryID uint
}

// Reader is a library member using the self-service surface.
type Reader struct {
	ID        uint
	LibraryID uint
}

func (a Superadmin) UserID() uint   { return a.ID }
func (a LibraryStaff) UserID() uint { return a.ID }
func (a Reader) UserID() uint       { return a.ID }

func (Superadmin) Role() model.Role   { return model.RoleSuperadmin }
func (LibraryStaff) Role() model.Role { return model.RoleLibrary }
func (Reader) Role() model.Role       { return model.RoleReader }

func (Superadmin) sealed()   {}
func (LibraryStaff) sealed() {}
func (Reader) sealed()       {}

// FromUser builds the actor for a stored identity. A staff or reader identity
// whose library was deleted keeps LibraryID 0, which matches no rows.
// selected is only honoured for superadmins.
func FromUser(u *model.User, selected *uint) (Actor, error) {
	var libraryID uint
	if u.LibraryID != nil {
		libraryID = *u.LibraryID
	}

	switch u.Role {
	case model.RoleSuperadmin:
		return Superadmin{ID: u.ID, SelectedLibraryID: selected}, nil
	case model.RoleLibrary:
		return LibraryStaff{ID: u.ID, LibraryID: libraryID}, nil
	case model.RoleReader:
		return Reader{ID: u.ID, LibraryID: libraryID}, nil
	default:
		return nil, fmt.Errorf("unknown role %q for user %d", u.Role, u.ID)
	}
}
