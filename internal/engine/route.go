package engine

import "strings"

// Route is the three-way classification of a request.
type Route int

const (
	// RouteUnset means the routing node has not run yet.
	RouteUnset Route = iota

	// RouteClarify: the request is too vague and needs a dialogue.
	RouteClarify

	// RouteCode: the request is a development task for the code-generation
	// collaborator.
	RouteCode

	// RouteAnswer: the request wants a direct informational answer.
	RouteAnswer
)

func (r Route) String() string {
	switch r {
	case RouteClarify:
		return "clarify"
	case RouteCode:
		return "code"
	case RouteAnswer:
		return "answer"
	default:
		return "unset"
	}
}

// ParseRoute maps a free-text classification reply onto a Route by
// case-insensitive substring match. The second return reports whether the
// reply matched a known category; unmatched replies fall back to Clarify.
//
// The match order (clarify, code, answer) is part of the contract: model
// output is fuzzy and the first recognized keyword wins.
func ParseRoute(reply string) (Route, bool) {
	upper := strings.ToUpper(reply)
	switch {
	case strings.Contains(upper, "CLARIFY"):
		return RouteClarify, true
	case strings.Contains(upper, "CODE"):
		return RouteCode, true
	case strings.Contains(upper, "ANSWER"):
		return RouteAnswer, true
	default:
		return RouteClarify, false
	}
}
