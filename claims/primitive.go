package claims

import (
	"context"
	"reflect"
	"time"
)

// FetchFunc computes a claim value.
type FetchFunc func(ctx context.Context, userID, recipeUserID, tenantID string, payload map[string]any) (any, error)

// PrimitiveClaim stores payload[key] = {"v": value, "t": fetchedAtMillis}.
type PrimitiveClaim struct {
	key           string
	fetch         FetchFunc
	defaultMaxAge time.Duration
}

// NewPrimitiveClaim creates a claim. defaultMaxAge applies to validators
// built without an explicit max age; zero disables staleness checks.
func NewPrimitiveClaim(key string, fetch FetchFunc, defaultMaxAge time.Duration) *PrimitiveClaim {
	return &PrimitiveClaim{key: key, fetch: fetch, defaultMaxAge: defaultMaxAge}
}

func (c *PrimitiveClaim) Key() string { return c.key }

func (c *PrimitiveClaim) FetchValue(ctx context.Context, userID, recipeUserID, tenantID string, payload map[string]any) (any, error) {
	if c.fetch == nil {
		return nil, nil
	}
	return c.fetch(ctx, userID, recipeUserID, tenantID, payload)
}

func (c *PrimitiveClaim) AddToPayload(payload map[string]any, value any) map[string]any {
	out := copyPayload(payload)
	out[c.key] = map[string]any{
		"v": normalize(value),
		"t": toMillis(Now()),
	}
	return out
}

func (c *PrimitiveClaim) RemoveFromPayload(payload map[string]any) map[string]any {
	out := copyPayload(payload)
	delete(out, c.key)
	return out
}

func (c *PrimitiveClaim) RemoveFromPayloadByMerge(payload map[string]any) map[string]any {
	out := copyPayload(payload)
	out[c.key] = nil
	return out
}

func (c *PrimitiveClaim) GetValueFromPayload(payload map[string]any) any {
	entry, ok := payload[c.key].(map[string]any)
	if !ok {
		return nil
	}
	return entry["v"]
}

// LastRefetchTime returns when the value was fetched, or false if absent.
func (c *PrimitiveClaim) LastRefetchTime(payload map[string]any) (time.Time, bool) {
	entry, ok := payload[c.key].(map[string]any)
	if !ok {
		return time.Time{}, false
	}
	ms, ok := number(entry["t"])
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)), true
}

func (c *PrimitiveClaim) maxAge(override []time.Duration) time.Duration {
	if len(override) > 0 {
		return override[0]
	}
	return c.defaultMaxAge
}

// stale reports whether the stored value is missing or older than maxAge.
func (c *PrimitiveClaim) stale(payload map[string]any, maxAge time.Duration) bool {
	if c.GetValueFromPayload(payload) == nil {
		return true
	}
	if maxAge <= 0 {
		return false
	}
	fetched, ok := c.LastRefetchTime(payload)
	return !ok || Now().Sub(fetched) > maxAge
}

// checkPresentAndFresh returns a failing result when the value is missing or
// expired, and nil otherwise.
func (c *PrimitiveClaim) checkPresentAndFresh(payload map[string]any, maxAge time.Duration, expected any) *Result {
	if c.GetValueFromPayload(payload) == nil {
		return &Result{Reason: map[string]any{
			"message":       "value does not exist",
			"expectedValue": expected,
			"actualValue":   nil,
		}}
	}
	if maxAge > 0 {
		fetched, _ := c.LastRefetchTime(payload)
		age := Now().Sub(fetched)
		if age > maxAge {
			return &Result{Reason: map[string]any{
				"message":         "expired",
				"ageInSeconds":    int64(age / time.Second),
				"maxAgeInSeconds": int64(maxAge / time.Second),
			}}
		}
	}
	return nil
}

// HasValue validates that the claim equals val. An optional maxAge overrides
// the claim default.
func (c *PrimitiveClaim) HasValue(val any, maxAge ...time.Duration) Validator {
	age := c.maxAge(maxAge)
	expected := normalize(val)
	return CustomValidator{
		IDValue: c.key,
		Key:     c.key,
		Source:  c,
		Refetch: func(payload map[string]any) bool {
			return c.stale(payload, age)
		},
		CheckFunc: func(_ context.Context, payload map[string]any) Result {
			if failed := c.checkPresentAndFresh(payload, age, expected); failed != nil {
				return *failed
			}
			actual := c.GetValueFromPayload(payload)
			if !reflect.DeepEqual(normalize(actual), expected) {
				return Result{Reason: map[string]any{
					"message":       "wrong value",
					"expectedValue": expected,
					"actualValue":   actual,
				}}
			}
			return Result{IsValid: true}
		},
	}
}
