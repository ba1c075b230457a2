package httpapi

import (
	"net/http"
	"strings"
)

// Route patterns used for dispatch and as the metrics route label.
const (
	RouteContexts       = "/contexts"
	RouteContextPush    = "/contexts/push"
	RouteContextByClaim = "/contexts/{claim_id}"
	RouteWorkflows      = "/workflows"
	RouteWorkflowPush   = "/workflows/push"
	RouteWorkflowClaim  = "/workflows/{claim_id}"
	RouteClaims         = "/claims"
	RouteClaimLatest    = "/claims/latest"
	RouteClaimRecent    = "/claims/recent/{count}"
	RouteClaimByID      = "/claims/{claim_id}"
	RouteDocuments      = "/documents"
	RouteDocumentByID   = "/documents/{id}"
	RouteHealth         = "/healthz"
	RouteMetrics        = "/metrics"
	RouteUnmatched      = "unmatched"
)

// match resolves a request onto a route pattern and its single path
// parameter, if any. Only POST reaches the push routes; a GET on
// /contexts/push is a lookup of claim "push".
func match(method, rawPath string) (route, param string) {
	path := strings.TrimSuffix(rawPath, "/")
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	switch len(segments) {
	case 1:
		switch segments[0] {
		case "contexts":
			return RouteContexts, ""
		case "workflows":
			return RouteWorkflows, ""
		case "claims":
			return RouteClaims, ""
		case "documents":
			return RouteDocuments, ""
		case "healthz":
			return RouteHealth, ""
		case "metrics":
			return RouteMetrics, ""
		}
	case 2:
		head, tail := segments[0], segments[1]
		if tail == "" {
			break
		}
		switch head {
		case "contexts":
			if tail == "push" && method == http.MethodPost {
				return RouteContextPush, ""
			}
			return RouteContextByClaim, tail
		case "workflows":
			if tail == "push" && method == http.MethodPost {
				return RouteWorkflowPush, ""
			}
			return RouteWorkflowClaim, tail
		case "claims":
			if tail == "latest" {
				return RouteClaimLatest, ""
			}
			return RouteClaimByID, tail
		case "documents":
			return RouteDocumentByID, tail
		}
	case 3:
		if segments[0] == "claims" && segments[1] == "recent" && segments[2] != "" {
			return RouteClaimRecent, segments[2]
		}
	}
	return RouteUnmatched, ""
}

// RouteOf returns the route pattern a request is served under.
func RouteOf(r *http.Request) string {
	route, _ := match(r.Method, r.URL.Path)
	return route
}
