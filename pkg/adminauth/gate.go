package adminauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/healo-ai/concierge/pkg/audit"
	"github.com/healo-ai/concierge/pkg/common/api"
	"github.com/healo-ai/concierge/pkg/common/logger"
	"github.com/healo-ai/concierge/pkg/ratelimit"
)

const (
	ReasonUserMetadataRole = "user_metadata_role"
	ReasonAppMetadataRole  = "app_metadata_role"
	ReasonEmailAllowlist   = "email_allowlist"

	ErrNoUser   = "no_user"
	ErrNotAdmin = "not_admin"

	MethodBearer = "bearer_token"
	MethodCookie = "cookie"
)

type Result struct {
	IsAdmin    bool   `json:"isAdmin"`
	Email      string `json:"email,omitempty"`
	UserID     string `json:"userId,omitempty"`
	Reason     string `json:"reason,omitempty"`
	AuthMethod string `json:"authMethod,omitempty"`
	Error      string `json:"error,omitempty"`
}

type GateOptions struct {
	Allowlist  []string
	CookieName string
	// Limiter is optional; nil disables the admin rate limit.
	Limiter *ratelimit.Limiter
	Auditor *audit.Auditor
}

type Gate struct {
	provider   IdentityProvider
	allowlist  map[string]struct{}
	cookieName string
	limiter    *ratelimit.Limiter
	auditor    *audit.Auditor
}

func NewGate(provider IdentityProvider, opts GateOptions) *Gate {
	allow := make(map[string]struct{}, len(opts.Allowlist))
	for _, email := range opts.Allowlist {
		if e := strings.ToLower(strings.TrimSpace(email)); e != "" {
			allow[e] = struct{}{}
		}
	}
	cookie := opts.CookieName
	if cookie == "" {
		cookie = "sb-access-token"
	}
	return &Gate{
		provider:   provider,
		allowlist:  allow,
		cookieName: cookie,
		limiter:    opts.Limiter,
		auditor:    opts.Auditor,
	}
}

// Check resolves the caller. The bearer token wins; the session cookie is
// tried when there is no bearer token or it does not resolve to a user.
func (g *Gate) Check(r *http.Request) Result {
	ctx := r.Context()
	var user *User
	method := ""

	if token := bearerToken(r); token != "" {
		method = MethodBearer
		u, err := g.provider.UserFromToken(ctx, token)
		if err != nil {
			logger.Log.WithError(err).Debug("bearer token rejected")
		}
		user = u
	}
	if user == nil {
		if c, err := r.Cookie(g.cookieName); err == nil && c.Value != "" {
			method = MethodCookie
			u, err := g.provider.UserFromToken(ctx, c.Value)
			if err != nil {
				logger.Log.WithError(err).Debug("session cookie rejected")
			}
			user = u
		}
	}

	if user == nil {
		return Result{AuthMethod: method, Error: ErrNoUser}
	}

	res := Result{
		Email:      strings.ToLower(strings.TrimSpace(user.Email)),
		UserID:     user.ID,
		AuthMethod: method,
	}
	switch {
	case role(user.UserMetadata) == "admin":
		res.IsAdmin, res.Reason = true, ReasonUserMetadataRole
	case role(user.AppMetadata) == "admin":
		res.IsAdmin, res.Reason = true, ReasonAppMetadataRole
	case res.Email != "" && g.allowed(res.Email):
		res.IsAdmin, res.Reason = true, ReasonEmailAllowlist
	default:
		res.Error = ErrNotAdmin
	}
	return res
}

func (g *Gate) allowed(email string) bool {
	_, ok := g.allowlist[email]
	return ok
}

// Require runs the admin rate limit and Check. On failure the response has
// been written and ok is false.
func (g *Gate) Require(w http.ResponseWriter, r *http.Request) (Result, bool) {
	if g.limiter != nil {
		rl := g.limiter.Check(r.Context(), ratelimit.ClientIP(r), ratelimit.Admin)
		if !rl.Allowed {
			retry := rl.RetryAfter(time.Now())
			logger.Log.WithFields(map[string]interface{}{
				"path":        r.URL.Path,
				"retry_after": retry,
			}).Warn("admin rate limit exceeded")
			ratelimit.SetHeaders(w, rl)
			api.WriteJSON(w, http.StatusTooManyRequests, api.Error{
				Error:      "rate_limited",
				Detail:     fmt.Sprintf("Too many requests. Please try again in %d seconds.", retry),
				RetryAfter: &retry,
			})
			return Result{}, false
		}
	}

	res := g.Check(r)
	if !res.IsAdmin {
		logger.Log.WithFields(map[string]interface{}{
			"path":   r.URL.Path,
			"error":  res.Error,
			"method": res.AuthMethod,
		}).Warn("unauthorized admin access denied")

		email := res.Email
		if email == "" {
			email = "unknown"
		}
		g.auditor.LogAsync(audit.Entry{
			AdminEmail:  email,
			AdminUserID: res.UserID,
			Action:      audit.ActionUnauthorizedAdminAccess,
			IPAddress:   ratelimit.ClientIP(r),
			UserAgent:   r.UserAgent(),
			Metadata: map[string]interface{}{
				"error":  res.Error,
				"reason": res.Reason,
				"path":   r.URL.Path,
				"method": r.Method,
			},
		})
		api.WriteErrorDetail(w, http.StatusForbidden, "unauthorized", "admin access required")
		return res, false
	}

	logger.Log.WithFields(map[string]interface{}{
		"reason": res.Reason,
		"method": res.AuthMethod,
	}).Debug("admin access granted")
	return res, true
}

// Middleware gates every route on the router it is attached to.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := g.Require(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(WithResult(r.Context(), res)))
	})
}

type contextKey string

const resultKey contextKey = "admin_auth"

func WithResult(ctx context.Context, res Result) context.Context {
	return context.WithValue(ctx, resultKey, res)
}

func ResultFromContext(ctx context.Context) (Result, bool) {
	res, ok := ctx.Value(resultKey).(Result)
	return res, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func role(meta map[string]interface{}) string {
	if meta == nil {
		return ""
	}
	s, _ := meta["role"].(string)
	return s
}
