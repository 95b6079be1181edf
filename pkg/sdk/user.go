package sdk

// User is the display identity returned by login and carried in the
// persisted session snapshot. Role is informational only.
type User struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// AccessCategory grants visibility of a top-level category grouping.
type AccessCategory struct {
	CategoryID string `json:"category_id" validate:"required"`
	Enabled    bool   `json:"status"`
}

// AccessModule grants visibility of a module within a category.
type AccessModule struct {
	ModuleID string `json:"module_id" validate:"required"`
	Enabled  bool   `json:"status"`
}

// AccessMenu grants visibility of a leaf menu entry.
type AccessMenu struct {
	MenuID  string `json:"menu_id" validate:"required"`
	Enabled bool   `json:"status"`
}

// AuthenticatedUser is the identity materialized by a successful token
// verification. It is rebuilt on every verification and never mutated.
// The access lists are never nil once produced by a Verifier.
type AuthenticatedUser struct {
	User
	AccessCategories []AccessCategory `json:"access_categories"`
	AccessModules    []AccessModule   `json:"access_modules"`
	AccessMenus      []AccessMenu     `json:"access_menus"`
}

// UserPatch is a shallow update applied by Session.PatchUser. Nil fields
// are left untouched.
type UserPatch struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Role  *string `json:"role,omitempty"`
}

func (p UserPatch) apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
}
