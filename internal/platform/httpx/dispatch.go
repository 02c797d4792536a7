package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/farmlink/farmlink/internal/shared"
)

// IdempotencyHeader carries the client supplied retry key.
const IdempotencyHeader = "Idempotency-Key"

// ActionRequest is the body of every action-dispatch call.
type ActionRequest struct {
	Action string          `json:"action" validate:"required"`
	Data   json.RawMessage `json:"data"`
}

// Call is what an action handler receives.
type Call struct {
	ActorID        int64
	IdempotencyKey string
	Data           json.RawMessage
}

// ActionFunc executes one action and returns the success payload.
type ActionFunc func(ctx context.Context, call Call) (any, error)

// Dispatcher routes {"action": ...} bodies to registered handlers.
type Dispatcher struct {
	Resource string
	Actions  map[string]ActionFunc
	Logger   *slog.Logger
}

var validate = validator.New()

// Bind decodes raw into dst and runs struct validation.
func Bind(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return shared.Errorf(shared.CodeInvalidInput, "malformed data: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			parts := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return shared.Errorf(shared.CodeInvalidInput, "%s", strings.Join(parts, "; "))
		}
		return shared.Errorf(shared.CodeInvalidInput, "%v", err)
	}
	return nil
}

// ServeHTTP implements http.Handler.
func (d Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		RespondError(w, shared.ErrPermissionDenied)
		return
	}
	var req ActionRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, shared.Errorf(shared.CodeInvalidInput, "malformed request body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		RespondError(w, shared.Errorf(shared.CodeInvalidInput, "action is required"))
		return
	}
	fn, found := d.Actions[req.Action]
	if !found {
		RespondError(w, shared.Errorf(shared.CodeInvalidInput, "unknown %s action %q", d.Resource, req.Action))
		return
	}
	data, err := fn(r.Context(), Call{
		ActorID:        actorID,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
		Data:           req.Data,
	})
	if err != nil {
		if _, isDomain := shared.AsDomainError(err); !isDomain && d.Logger != nil {
			d.Logger.Error("action failed", slog.String("resource", d.Resource), slog.String("action", req.Action), slog.Any("error", err))
		}
		RespondError(w, err)
		return
	}
	OK(w, data)
}
