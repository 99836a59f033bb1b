// Package nav holds the static role navigation map.
package nav

import "unitevol-service/internal/domain/auth"

// Capability names what a navigation entry lets the user do.
type Capability string

const (
	CapabilityDashboard  Capability = "dashboard"
	CapabilityProjects   Capability = "projects"
	CapabilityVolunteers Capability = "volunteers"
	CapabilityProfile    Capability = "profile"
	CapabilityAccount    Capability = "account"
	CapabilityPublic     Capability = "public"
)

// Item is one navigation entry.
type Item struct {
	Label      string     `json:"label"`
	Path       string     `json:"path"`
	Capability Capability `json:"capability"`
}

var roleItems = map[auth.Role][]Item{
	auth.RoleVolunteer: {
		{Label: "Dashboard", Path: "/volunteer/dashboard", Capability: CapabilityDashboard},
		{Label: "Projects", Path: "/volunteer/projects", Capability: CapabilityProjects},
	},
	auth.RoleNGO: {
		{Label: "Dashboard", Path: "/ngo/dashboard", Capability: CapabilityDashboard},
		{Label: "Projects", Path: "/ngo/projects", Capability: CapabilityProjects},
		{Label: "Volunteers", Path: "/ngo/volunteers", Capability: CapabilityVolunteers},
	},
	auth.RoleProjectLead: {
		{Label: "Dashboard", Path: "/project-lead/dashboard", Capability: CapabilityDashboard},
		{Label: "Projects", Path: "/project-lead/projects", Capability: CapabilityProjects},
	},
	auth.RoleSheLeads: {
		{Label: "Dashboard", Path: "/she-leads/dashboard", Capability: CapabilityDashboard},
		{Label: "Projects", Path: "/she-leads/projects", Capability: CapabilityProjects},
		{Label: "Volunteers", Path: "/she-leads/volunteers", Capability: CapabilityVolunteers},
	},
}

var profilePaths = map[auth.Role]string{
	auth.RoleVolunteer:   "/volunteer/profile",
	auth.RoleNGO:         "/ngo/profile",
	auth.RoleProjectLead: "/project-lead/profile",
	auth.RoleSheLeads:    "/she-leads/profile",
}

var publicItems = []Item{
	{Label: "About", Path: "/about", Capability: CapabilityPublic},
	{Label: "Volunteer", Path: "/volunteer", Capability: CapabilityPublic},
	{Label: "NGO", Path: "/ngo", Capability: CapabilityPublic},
	{Label: "Project Lead", Path: "/project-lead", Capability: CapabilityPublic},
	{Label: "She Leads", Path: "/she-leads", Capability: CapabilityPublic},
}

// ForRole returns the ordered navigation of a role. Unknown or empty roles
// get no entries. The returned slice is a copy.
func ForRole(role auth.Role) []Item {
	return append([]Item(nil), roleItems[role]...)
}

// Public returns the navigation shown to anonymous visitors.
func Public() []Item {
	return append([]Item(nil), publicItems...)
}

// ProfilePath returns the profile page of a role, "/profile" when unknown.
func ProfilePath(role auth.Role) string {
	if p, ok := profilePaths[role]; ok {
		return p
	}
	return "/profile"
}

// UserMenu returns the account menu of an authenticated user.
func UserMenu(role auth.Role) []Item {
	return []Item{
		{Label: "Profile", Path: ProfilePath(role), Capability: CapabilityProfile},
		{Label: "Settings", Path: "/settings", Capability: CapabilityAccount},
		{Label: "Messages", Path: "/messages", Capability: CapabilityAccount},
		{Label: "Notifications", Path: "/notifications", Capability: CapabilityAccount},
	}
}
