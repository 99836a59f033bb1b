package nav

import (
	"strings"

	"unitevol-service/internal/domain/auth"
)

// Route is one view of the portal. Public views skip the guard; protected
// views with no Roles admit any signed-in user.
type Route struct {
	Path   string      `json:"path"`
	Title  string      `json:"title"`
	Public bool        `json:"public"`
	Roles  []auth.Role `json:"roles,omitempty"`
}

func public(path, title string) Route {
	return Route{Path: path, Title: title, Public: true}
}

func protected(path, title string, roles ...auth.Role) Route {
	return Route{Path: path, Title: title, Roles: roles}
}

var routes = []Route{
	public("/", "About"),
	public("/about", "About"),
	public("/signup", "Sign Up"),
	public("/login", "Log In"),
	public("/unauthorized", "Unauthorized"),
	public("/volunteer", "Volunteer"),
	public("/volunteer/about", "Volunteer"),
	public("/ngo", "NGO"),
	public("/ngo/about", "NGO"),
	public("/project-lead", "Project Lead"),
	public("/project-lead/about", "Project Lead"),
	public("/she-leads", "She Leads"),
	public("/she-leads/about", "She Leads"),

	protected("/dashboard", "Dashboard"),
	protected("/settings", "Settings"),
	protected("/messages", "Messages"),
	protected("/notifications", "Notifications"),

	protected("/volunteer/dashboard", "Volunteer Dashboard", auth.RoleVolunteer),
	protected("/volunteer/profile", "Volunteer Profile", auth.RoleVolunteer),
	protected("/volunteer/projects", "Projects", auth.RoleVolunteer),

	protected("/ngo/dashboard", "NGO Dashboard", auth.RoleNGO),
	protected("/ngo/projects", "NGO Projects", auth.RoleNGO),
	protected("/ngo/profile", "NGO Profile", auth.RoleNGO),
	protected("/ngo/volunteers", "NGO Volunteers", auth.RoleNGO),

	protected("/project-lead/dashboard", "Project Lead Dashboard", auth.RoleProjectLead),
	protected("/project-lead/profile", "Project Lead Profile", auth.RoleProjectLead),
	protected("/project-lead/projects", "Project Lead Projects", auth.RoleProjectLead),
	protected("/project-lead/volunteers", "Project Lead Volunteers", auth.RoleProjectLead),

	protected("/she-leads/dashboard", "She Leads Dashboard", auth.RoleSheLeads),
	protected("/she-leads/profile", "She Leads Profile", auth.RoleSheLeads),
	protected("/she-leads/projects", "She Leads Projects", auth.RoleSheLeads),
	protected("/she-leads/volunteers", "She Leads Volunteers", auth.RoleSheLeads),
}

var routeIndex = func() map[string]Route {
	idx := make(map[string]Route, len(routes))
	for _, r := range routes {
		idx[r.Path] = r
	}
	return idx
}()

// LookupRoute finds the view for path. A trailing slash is ignored.
func LookupRoute(path string) (Route, bool) {
	if path != "/" {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		path = "/"
	}
	r, ok := routeIndex[path]
	return r, ok
}

// Routes returns the route table in declaration order.
func Routes() []Route {
	return append([]Route(nil), routes...)
}
