package claims

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func freezeClock(t *testing.T, at time.Time) *time.Time {
	t.Helper()
	current := at
	prev := Now
	Now = func() time.Time { return current }
	t.Cleanup(func() { Now = prev })
	return &current
}

func constFetch(v any) FetchFunc {
	return func(context.Context, string, string, string, map[string]any) (any, error) {
		return v, nil
	}
}

func TestPrimitiveClaimBuildAndRemove(t *testing.T) {
	freezeClock(t, time.UnixMilli(1_700_000_000_000))
	c := NewPrimitiveClaim("plan", constFetch("pro"), 0)

	payload, err := Build(context.Background(), c, "u", "u", "public", map[string]any{"x": 1})
	require.NoError(t, err)
	require.Equal(t, "pro", c.GetValueFromPayload(payload))
	require.Equal(t, 1, payload["x"])

	fetched, ok := c.LastRefetchTime(payload)
	require.True(t, ok)
	require.Equal(t, int64(1_700_000_000_000), fetched.UnixMilli())

	removed := c.RemoveFromPayload(payload)
	require.Nil(t, c.GetValueFromPayload(removed))
	require.NotNil(t, c.GetValueFromPayload(payload), "original payload must not be mutated")

	merge := c.RemoveFromPayloadByMerge(nil)
	v, present := merge["plan"]
	require.True(t, present)
	require.Nil(t, v)
}

func TestBuildWithNilValueLeavesPayload(t *testing.T) {
	c := NewPrimitiveClaim("plan", constFetch(nil), 0)
	payload, err := Build(context.Background(), c, "u", "u", "public", map[string]any{"x": "y"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"x": "y"}, payload)
}

func TestBuildPropagatesFetchError(t *testing.T) {
	boom := errors.New("boom")
	c := NewPrimitiveClaim("plan", func(context.Context, string, string, string, map[string]any) (any, error) {
		return nil, boom
	}, 0)
	_, err := Build(context.Background(), c, "u", "u", "public", nil)
	require.ErrorIs(t, err, boom)
}

func TestHasValueMaxAge(t *testing.T) {
	clock := freezeClock(t, time.Unix(1_000, 0))
	c := NewPrimitiveClaim("plan", constFetch("pro"), 0)
	payload := c.AddToPayload(nil, "pro")

	v := c.HasValue("pro", time.Minute)
	require.False(t, v.ShouldRefetch(payload))
	require.True(t, v.Validate(context.Background(), payload).IsValid)

	*clock = clock.Add(2 * time.Minute)
	require.True(t, v.ShouldRefetch(payload))
	res := v.Validate(context.Background(), payload)
	require.False(t, res.IsValid)
	require.Equal(t, "expired", res.Reason["message"])

	wrong := c.HasValue("free")
	res = wrong.Validate(context.Background(), payload)
	require.False(t, res.IsValid)
	require.Equal(t, "wrong value", res.Reason["message"])

	res = c.HasValue("pro").Validate(context.Background(), map[string]any{})
	require.Equal(t, "value does not exist", res.Reason["message"])
	require.True(t, c.HasValue("pro").ShouldRefetch(map[string]any{}))
}

func TestArrayValidators(t *testing.T) {
	c := NewPrimitiveArrayClaim("tags", constFetch(Strings("a", "b")), 0)
	payload := c.AddToPayload(nil, []string{"a", "b"})
	ctx := context.Background()

	tests := []struct {
		name  string
		v     Validator
		valid bool
	}{
		{"includes hit", c.Includes("a"), true},
		{"includes miss", c.Includes("z"), false},
		{"excludes hit", c.Excludes("z"), true},
		{"excludes miss", c.Excludes("a"), false},
		{"includesAll hit", c.IncludesAll(Strings("a", "b")), true},
		{"includesAll miss", c.IncludesAll(Strings("a", "z")), false},
		{"includesAny hit", c.IncludesAny(Strings("z", "b")), true},
		{"includesAny miss", c.IncludesAny(Strings("y", "z")), false},
		{"excludesAll hit", c.ExcludesAll(Strings("y", "z")), true},
		{"excludesAll miss", c.ExcludesAll(Strings("z", "a")), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.valid, tc.v.Validate(ctx, payload).IsValid)
		})
	}
}

func TestBooleanClaim(t *testing.T) {
	c := NewBooleanClaim("flag", constFetch(true), 0)
	payload := c.AddToPayload(nil, true)
	require.True(t, c.IsTrue().Validate(context.Background(), payload).IsValid)
	require.False(t, c.IsFalse().Validate(context.Background(), payload).IsValid)
}

func TestEmailVerificationRefetchOnFalse(t *testing.T) {
	clock := freezeClock(t, time.Unix(5_000, 0))
	c := NewEmailVerificationClaim(func(context.Context, string, string) (bool, error) { return false, nil })
	payload := c.AddToPayload(nil, false)

	v := c.IsVerified(10*time.Second, 0)
	require.False(t, v.ShouldRefetch(payload))
	require.False(t, v.Validate(context.Background(), payload).IsValid)

	*clock = clock.Add(11 * time.Second)
	require.True(t, v.ShouldRefetch(payload))

	verified := c.AddToPayload(nil, true)
	require.False(t, v.ShouldRefetch(verified))
	require.True(t, v.Validate(context.Background(), verified).IsValid)
	require.True(t, v.ShouldRefetch(map[string]any{}))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := NewPrimitiveClaim("a", nil, 0)
	b := NewBooleanClaim("b", nil, 0)
	require.NoError(t, r.Register(a, b))
	require.ErrorIs(t, r.Register(NewPrimitiveClaim("a", nil, 0)), ErrDuplicateClaim)

	all := r.All()
	require.Len(t, all, 2)
	require.Equal(t, "a", all[0].Key())
	require.Equal(t, "b", all[1].Key())

	got, ok := r.Get("b")
	require.True(t, ok)
	require.Equal(t, b, got)

	r.AddGlobalValidators(b.IsTrue())
	globals := r.GlobalValidators()
	require.Len(t, globals, 1)
	globals[0] = nil
	require.NotNil(t, r.GlobalValidators()[0], "GlobalValidators must return a copy")
}
