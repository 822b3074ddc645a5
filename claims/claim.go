package claims

import (
	"context"
	"encoding/json"
	"maps"
	"time"
)

// Now is the clock used for claim timestamps and max-age checks.
var Now = time.Now

// Claim is a value carried in the access token payload under Key.
type Claim interface {
	Key() string
	// FetchValue computes the current value. A nil value means "leave the
	// payload untouched".
	FetchValue(ctx context.Context, userID, recipeUserID, tenantID string, payload map[string]any) (any, error)
	// AddToPayload returns a copy of payload carrying value.
	AddToPayload(payload map[string]any, value any) map[string]any
	// RemoveFromPayload returns a copy of payload without the claim.
	RemoveFromPayload(payload map[string]any) map[string]any
	// RemoveFromPayloadByMerge returns a copy of payload where the claim key
	// is set to nil, for use as a merge update.
	RemoveFromPayloadByMerge(payload map[string]any) map[string]any
	// GetValueFromPayload returns the stored value or nil.
	GetValueFromPayload(payload map[string]any) any
}

// Result is the outcome of one validator.
type Result struct {
	IsValid bool
	Reason  map[string]any
}

// Validator checks a payload. ClaimKey is empty for validators that are not
// bound to a claim.
type Validator interface {
	ID() string
	ClaimKey() string
	// Claim returns the claim to refetch, or nil.
	Claim() Claim
	ShouldRefetch(payload map[string]any) bool
	Validate(ctx context.Context, payload map[string]any) Result
}

// Build fetches claim's value and returns payload with it applied.
func Build(ctx context.Context, claim Claim, userID, recipeUserID, tenantID string, payload map[string]any) (map[string]any, error) {
	value, err := claim.FetchValue(ctx, userID, recipeUserID, tenantID, payload)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return maps.Clone(payload), nil
	}
	return claim.AddToPayload(payload, value), nil
}

// CustomValidator adapts plain functions into a [Validator].
type CustomValidator struct {
	IDValue   string
	Key       string
	Source    Claim
	Refetch   func(payload map[string]any) bool
	CheckFunc func(ctx context.Context, payload map[string]any) Result
}

func (v CustomValidator) ID() string       { return v.IDValue }
func (v CustomValidator) ClaimKey() string { return v.Key }
func (v CustomValidator) Claim() Claim     { return v.Source }

func (v CustomValidator) ShouldRefetch(payload map[string]any) bool {
	if v.Refetch == nil {
		return false
	}
	return v.Refetch(payload)
}

func (v CustomValidator) Validate(ctx context.Context, payload map[string]any) Result {
	if v.CheckFunc == nil {
		return Result{IsValid: true}
	}
	return v.CheckFunc(ctx, payload)
}

// normalize converts v into the shape it has after a JSON round trip, so
// values compare equal whether they came from Go code or a decoded token.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func copyPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	return maps.Clone(payload)
}
