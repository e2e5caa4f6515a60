package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dejobratic/opsapi/internal/httpx"
)

// HeaderAuthenticator trusts identity headers set by the proxy in front of
// the service. Requests without a subject, or naming a role the service does
// not know, are rejected with 401.
type HeaderAuthenticator struct {
	SubjectHeader     string
	RolesHeader       string
	EngagementsHeader string
	Logger            *slog.Logger
}

func NewHeaderAuthenticator(subjectHeader, rolesHeader string, logger *slog.Logger) *HeaderAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &HeaderAuthenticator{
		SubjectHeader:     subjectHeader,
		RolesHeader:       rolesHeader,
		EngagementsHeader: "X-Auth-Engagements",
		Logger:            logger,
	}
}

func (a *HeaderAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := strings.TrimSpace(r.Header.Get(a.SubjectHeader))
		if subject == "" {
			httpx.WriteError(w, r, nil, httpx.Unauthorized("missing identity"))
			return
		}

		p := Principal{Subject: subject}
		for _, raw := range splitList(r.Header.Get(a.RolesHeader)) {
			role, err := ParseRole(raw)
			if err != nil {
				a.Logger.WarnContext(r.Context(), "rejecting unknown role", "subject", subject, "role", raw)
				httpx.WriteError(w, r, nil, httpx.Unauthorized("unknown role "+raw))
				return
			}
			p.Roles = append(p.Roles, role)
		}
		p.Engagements = splitList(r.Header.Get(a.EngagementsHeader))

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireRole rejects principals ranked below min with 403.
func RequireRole(min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				httpx.WriteError(w, r, nil, httpx.Unauthorized("missing identity"))
				return
			}
			if !p.Satisfies(min) {
				httpx.WriteError(w, r, nil, httpx.Forbidden("forbidden", "requires role "+string(min)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireEngagementAccess rejects callers not scoped to the engagement named
// by the route parameter.
func RequireEngagementAccess(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				httpx.WriteError(w, r, nil, httpx.Unauthorized("missing identity"))
				return
			}
			id := chi.URLParam(r, param)
			if id != "" && !p.CanAccessEngagement(id) {
				httpx.WriteError(w, r, nil, httpx.Forbidden("engagement_forbidden", "no access to engagement"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SubjectOf returns the authenticated subject of r, or "" before
// authentication.
func SubjectOf(r *http.Request) string {
	p, _ := FromContext(r.Context())
	return p.Subject
}
