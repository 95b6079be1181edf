package sdk

// ResourceKind names one of the three access lists.
type ResourceKind string

const (
	ResourceCategory ResourceKind = "category"
	ResourceModule   ResourceKind = "module"
	ResourceMenu     ResourceKind = "menu"
)

// ParseResourceKind maps a kind string to a ResourceKind.
func ParseResourceKind(s string) (ResourceKind, bool) {
	switch k := ResourceKind(s); k {
	case ResourceCategory, ResourceModule, ResourceMenu:
		return k, true
	}
	return "", false
}

// CanAccessCategory reports whether the user holds an enabled entry for
// categoryID. A nil user never has access.
func (u *AuthenticatedUser) CanAccessCategory(categoryID string) bool {
	if u == nil {
		return false
	}
	for _, c := range u.AccessCategories {
		if c.CategoryID == categoryID && c.Enabled {
			return true
		}
	}
	return false
}

// CanAccessModule reports whether the user holds an enabled entry for moduleID.
func (u *AuthenticatedUser) CanAccessModule(moduleID string) bool {
	if u == nil {
		return false
	}
	for _, m := range u.AccessModules {
		if m.ModuleID == moduleID && m.Enabled {
			return true
		}
	}
	return false
}

// CanAccessMenu reports whether the user holds an enabled entry for menuID.
func (u *AuthenticatedUser) CanAccessMenu(menuID string) bool {
	if u == nil {
		return false
	}
	for _, m := range u.AccessMenus {
		if m.MenuID == menuID && m.Enabled {
			return true
		}
	}
	return false
}

// CanAccess dispatches to the check for kind. Unknown kinds deny.
func (u *AuthenticatedUser) CanAccess(kind ResourceKind, id string) bool {
	switch kind {
	case ResourceCategory:
		return u.CanAccessCategory(id)
	case ResourceModule:
		return u.CanAccessModule(id)
	case ResourceMenu:
		return u.CanAccessMenu(id)
	default:
		return false
	}
}

// CanAccessDeepLink evaluates resource-level access for an /app deep link.
// ok is false when the path does not carry category and module segments,
// in which case only the route-level decision applies.
func (u *AuthenticatedUser) CanAccessDeepLink(path string) (allowed, ok bool) {
	params := ExtractRouteParams(path)
	if params == nil {
		return false, false
	}
	return u.CanAccessCategory(params.CategoryID) && u.CanAccessModule(params.ModuleID), true
}
