// Package api implements the HTTP surface of the dispatch service.
package api

import (
	"net/http"
	"strings"

	"rasd/internal/auth"
)

// getPrincipal resolves the caller from the Authorization header. With
// AUTH_MODE=none every caller is an anonymous operator.
func (s *Server) getPrincipal(r *http.Request) (auth.Principal, error) {
	authz := r.Header.Get("Authorization")
	tok := ""
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		tok = strings.TrimSpace(authz[len("Bearer "):])
	}
	return s.Auth.Verify(tok)
}

// requireOperator gates mutating endpoints. It writes the problem response
// itself and reports whether the handler may proceed.
func (s *Server) requireOperator(w http.ResponseWriter, r *http.Request) bool {
	p, err := s.getPrincipal(r)
	if err != nil {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
		return false
	}
	if p.Role != "operator" && p.Role != "admin" {
		writeProblem(w, http.StatusForbidden, "Forbidden", "operator or admin required", r.URL.Path)
		return false
	}
	return true
}
