package config

import "strings"

// IsProtectedRole reports whether roleID is one of the configured protected roles.
func (c *Config) IsProtectedRole(roleID string) bool {
	if roleID == "" {
		return false
	}
	for _, r := range c.Discord.ProtectedRoles {
		if r.ID == roleID {
			return true
		}
	}
	return false
}

// ProtectedRoleList renders the protected role names for user-facing text,
// e.g. "SLT, or ALT" for two roles and "A, B, or C" for three.
func (c *Config) ProtectedRoleList() string {
	names := make([]string, 0, len(c.Discord.ProtectedRoles))
	for _, r := range c.Discord.ProtectedRoles {
		names = append(names, r.Name)
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", or " + names[len(names)-1]
	}
}

// ReasonOrDefault returns reason, or the configured default when reason is blank.
func (c *Config) ReasonOrDefault(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return c.Messages.DefaultReason
	}
	return reason
}
