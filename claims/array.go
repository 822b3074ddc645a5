package claims

import (
	"context"
	"reflect"
	"time"
)

// PrimitiveArrayClaim stores a list value with the same {v, t} layout as
// [PrimitiveClaim].
type PrimitiveArrayClaim struct {
	*PrimitiveClaim
}

func NewPrimitiveArrayClaim(key string, fetch FetchFunc, defaultMaxAge time.Duration) *PrimitiveArrayClaim {
	return &PrimitiveArrayClaim{PrimitiveClaim: NewPrimitiveClaim(key, fetch, defaultMaxAge)}
}

// Values returns the stored list, or false when absent or not a list.
func (c *PrimitiveArrayClaim) Values(payload map[string]any) ([]any, bool) {
	raw := c.GetValueFromPayload(payload)
	if raw == nil {
		return nil, false
	}
	list, ok := normalize(raw).([]any)
	return list, ok
}

func contains(list []any, v any) bool {
	for _, item := range list {
		if reflect.DeepEqual(item, v) {
			return true
		}
	}
	return false
}

func (c *PrimitiveArrayClaim) validator(id string, expected any, maxAge []time.Duration, check func(list []any) bool, message string) Validator {
	age := c.maxAge(maxAge)
	return CustomValidator{
		IDValue: id,
		Key:     c.key,
		Source:  c,
		Refetch: func(payload map[string]any) bool {
			return c.stale(payload, age)
		},
		CheckFunc: func(_ context.Context, payload map[string]any) Result {
			if failed := c.checkPresentAndFresh(payload, age, expected); failed != nil {
				return *failed
			}
			list, ok := c.Values(payload)
			if !ok || !check(list) {
				return Result{Reason: map[string]any{
					"message":        message,
					"expectedToFind": expected,
					"actualValue":    c.GetValueFromPayload(payload),
				}}
			}
			return Result{IsValid: true}
		},
	}
}

// Includes validates that val is in the list.
func (c *PrimitiveArrayClaim) Includes(val any, maxAge ...time.Duration) Validator {
	want := normalize(val)
	return c.validator(c.key, want, maxAge, func(list []any) bool {
		return contains(list, want)
	}, "wrong value")
}

// Excludes validates that val is not in the list.
func (c *PrimitiveArrayClaim) Excludes(val any, maxAge ...time.Duration) Validator {
	unwanted := normalize(val)
	return c.validator(c.key, unwanted, maxAge, func(list []any) bool {
		return !contains(list, unwanted)
	}, "wrong value")
}

// IncludesAll validates that every element of vals is in the list.
func (c *PrimitiveArrayClaim) IncludesAll(vals []any, maxAge ...time.Duration) Validator {
	want := normalizeAll(vals)
	return c.validator(c.key, want, maxAge, func(list []any) bool {
		for _, v := range want {
			if !contains(list, v) {
				return false
			}
		}
		return true
	}, "wrong value")
}

// IncludesAny validates that at least one element of vals is in the list.
func (c *PrimitiveArrayClaim) IncludesAny(vals []any, maxAge ...time.Duration) Validator {
	want := normalizeAll(vals)
	return c.validator(c.key, want, maxAge, func(list []any) bool {
		for _, v := range want {
			if contains(list, v) {
				return true
			}
		}
		return false
	}, "wrong value")
}

// ExcludesAll validates that no element of vals is in the list.
func (c *PrimitiveArrayClaim) ExcludesAll(vals []any, maxAge ...time.Duration) Validator {
	unwanted := normalizeAll(vals)
	return c.validator(c.key, unwanted, maxAge, func(list []any) bool {
		for _, v := range unwanted {
			if contains(list, v) {
				return false
			}
		}
		return true
	}, "wrong value")
}

func normalizeAll(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = normalize(v)
	}
	return out
}

// Strings converts a list of strings to the []any the validators accept.
func Strings(vals ...string) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}
