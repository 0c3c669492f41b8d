package domain

// Identity is the current user as seen by the storefront. It is replaced wholesale, never mutated.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	IsAnonymous bool   `json:"isAnonymous"`
}

// IsLibrarian derives the librarian role from an identity and the shop's librarian email claim.
// An empty librarianEmail means any signed-in, non-anonymous user is a librarian.
func IsLibrarian(id *Identity, librarianEmail string) bool {
	if id == nil || id.IsAnonymous {
		return false
	}
	return librarianEmail == "" || id.Email == librarianEmail
}
