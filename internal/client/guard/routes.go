package guard

import "strings"

// Application routes.
const (
	RouteHome    = "/"
	RouteExplore = "/explore"
	RouteBlogs   = "/blogs"
	RouteSignIn  = "/signin"
	RouteSignUp  = "/signup"
	RouteProfile = "/profile"
	RouteCreate  = "/create"
)

// Class tells the guard who may see a route.
type Class int

const (
	// ClassPublic routes are visible regardless of the session.
	ClassPublic Class = iota
	// ClassAuthOnly routes make sense only without a session (sign-in, sign-up).
	ClassAuthOnly
	// ClassProtected routes require a session.
	ClassProtected
)

func (c Class) String() string {
	switch c {
	case ClassAuthOnly:
		return "auth-only"
	case ClassProtected:
		return "protected"
	default:
		return "public"
	}
}

var classes = map[string]Class{
	RouteSignIn:  ClassAuthOnly,
	RouteSignUp:  ClassAuthOnly,
	RouteProfile: ClassProtected,
	RouteCreate:  ClassProtected,
	RouteHome:    ClassPublic,
	RouteExplore: ClassPublic,
	RouteBlogs:   ClassPublic,
}

// ClassOf returns the class of route. Sub-paths inherit the class of their
// first segment (/profile/settings is protected); unknown routes are public.
func ClassOf(route string) Class {
	route = normalize(route)
	if c, ok := classes[route]; ok {
		return c
	}
	if i := strings.IndexByte(route[1:], '/'); i >= 0 {
		if c, ok := classes[route[:i+1]]; ok {
			return c
		}
	}
	return ClassPublic
}

func normalize(route string) string {
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	if len(route) > 1 {
		route = strings.TrimRight(route, "/")
		if route == "" {
			route = "/"
		}
	}
	return route
}
