package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/farmlink/farmlink/internal/platform/httpx"
	"github.com/farmlink/farmlink/internal/shared"
)

// ActorHeader carries the actor id set by the upstream gateway.
const ActorHeader = "X-Actor-ID"

// Middleware resolves the acting user once per request.
type Middleware struct {
	Logger *slog.Logger
}

// RequireActor parses the actor header into the request context.
func (m Middleware) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(ActorHeader))
		if raw == "" {
			httpx.RespondError(w, shared.ErrPermissionDenied)
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			if m.Logger != nil {
				m.Logger.Warn("rbac parse actor id", slog.String("value", raw))
			}
			httpx.RespondError(w, shared.ErrPermissionDenied)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), id)))
	})
}
