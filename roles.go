package accounts

// IsValid checks if the role is one of the predefined valid roles
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleStudent, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsAtLeast checks if role meets the minimum required level
func IsAtLeast(r, minRole UserRole) bool {
	roleHierarchy := map[UserRole]int{
		RoleStudent: 0,
		RoleAdmin:   1,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleStudent,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, IsValidRole(role)
}
