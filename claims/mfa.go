package claims

import (
	"context"
	"maps"
	"time"
)

// MFAKey is the payload key of [MFAClaim].
const MFAKey = "st-mfa"

// FactorRequirement is one step of an MFA policy. It is satisfied when any
// factor of OneOf is completed, or when every factor of AllOfInAnyOrder is.
type FactorRequirement struct {
	OneOf           []string
	AllOfInAnyOrder []string
}

// Factor requires a single factor.
func Factor(id string) FactorRequirement {
	return FactorRequirement{OneOf: []string{id}}
}

func (r FactorRequirement) satisfied(completed map[string]int64) bool {
	if len(r.AllOfInAnyOrder) > 0 {
		for _, f := range r.AllOfInAnyOrder {
			if _, ok := completed[f]; !ok {
				return false
			}
		}
		return true
	}
	for _, f := range r.OneOf {
		if _, ok := completed[f]; ok {
			return true
		}
	}
	return len(r.OneOf) == 0
}

func (r FactorRequirement) pending(completed map[string]int64) []string {
	if len(r.AllOfInAnyOrder) > 0 {
		var out []string
		for _, f := range r.AllOfInAnyOrder {
			if _, ok := completed[f]; !ok {
				out = append(out, f)
			}
		}
		return out
	}
	return append([]string(nil), r.OneOf...)
}

// NextFactors returns the factors that would satisfy the first unmet
// requirement, in requirement order. It is empty when all are met.
func NextFactors(completed map[string]int64, requirements []FactorRequirement) []string {
	for _, r := range requirements {
		if !r.satisfied(completed) {
			return r.pending(completed)
		}
	}
	return nil
}

// RequirementsProvider returns the MFA requirements for completing sign in.
type RequirementsProvider func(ctx context.Context, userID, tenantID string, completed map[string]int64) ([]FactorRequirement, error)

// MFAValue is the decoded "st-mfa" claim: completed factors with their
// completion time in unix seconds, and whether sign-in requirements are met.
type MFAValue struct {
	Completed map[string]int64
	Verified  bool
}

// CompleteFactor returns a copy of v with factorID marked done at at.
func (v MFAValue) CompleteFactor(factorID string, at time.Time) MFAValue {
	out := MFAValue{Completed: maps.Clone(v.Completed), Verified: v.Verified}
	if out.Completed == nil {
		out.Completed = map[string]int64{}
	}
	out.Completed[factorID] = at.Unix()
	return out
}

// MFAClaim stores {"c": {factor: unixSeconds}, "v": bool}.
type MFAClaim struct {
	requirements RequirementsProvider
}

func NewMFAClaim(requirements RequirementsProvider) *MFAClaim {
	return &MFAClaim{requirements: requirements}
}

func (c *MFAClaim) Key() string { return MFAKey }

// FetchValue keeps the completed factors already in payload and recomputes v.
func (c *MFAClaim) FetchValue(ctx context.Context, userID, _, tenantID string, payload map[string]any) (any, error) {
	current, _ := c.Value(payload)
	completed := current.Completed
	if completed == nil {
		completed = map[string]int64{}
	}

	var reqs []FactorRequirement
	if c.requirements != nil {
		var err error
		reqs, err = c.requirements(ctx, userID, tenantID, completed)
		if err != nil {
			return nil, err
		}
	}

	return MFAValue{
		Completed: completed,
		Verified:  len(NextFactors(completed, reqs)) == 0,
	}, nil
}

func (c *MFAClaim) AddToPayload(payload map[string]any, value any) map[string]any {
	out := copyPayload(payload)
	var v MFAValue
	switch typed := value.(type) {
	case MFAValue:
		v = typed
	case *MFAValue:
		v = *typed
	case map[string]any:
		v, _ = decodeMFA(typed)
	}

	completed := make(map[string]any, len(v.Completed))
	for k, ts := range v.Completed {
		completed[k] = ts
	}
	out[MFAKey] = map[string]any{"c": completed, "v": v.Verified}
	return out
}

func (c *MFAClaim) RemoveFromPayload(payload map[string]any) map[string]any {
	out := copyPayload(payload)
	delete(out, MFAKey)
	return out
}

func (c *MFAClaim) RemoveFromPayloadByMerge(payload map[string]any) map[string]any {
	out := copyPayload(payload)
	out[MFAKey] = nil
	return out
}

func (c *MFAClaim) GetValueFromPayload(payload map[string]any) any {
	raw, ok := payload[MFAKey].(map[string]any)
	if !ok {
		return nil
	}
	return raw
}

// Value decodes the claim from payload.
func (c *MFAClaim) Value(payload map[string]any) (MFAValue, bool) {
	raw, ok := payload[MFAKey].(map[string]any)
	if !ok {
		return MFAValue{}, false
	}
	return decodeMFA(raw)
}

func decodeMFA(raw map[string]any) (MFAValue, bool) {
	v := MFAValue{Completed: map[string]int64{}}
	verified, ok := raw["v"].(bool)
	if !ok {
		return MFAValue{}, false
	}
	v.Verified = verified
	switch completed := raw["c"].(type) {
	case map[string]any:
		for k, ts := range completed {
			if n, ok := number(ts); ok {
				v.Completed[k] = int64(n)
			}
		}
	case map[string]int64:
		maps.Copy(v.Completed, completed)
	}
	return v, true
}

// HasCompletedRequirementsForAuth validates that sign-in requirements were met.
func (c *MFAClaim) HasCompletedRequirementsForAuth() Validator {
	return CustomValidator{
		IDValue: MFAKey,
		Key:     MFAKey,
		Source:  c,
		Refetch: func(payload map[string]any) bool {
			_, ok := c.Value(payload)
			return !ok
		},
		CheckFunc: func(_ context.Context, payload map[string]any) Result {
			v, ok := c.Value(payload)
			if !ok {
				return Result{Reason: map[string]any{"message": "value does not exist"}}
			}
			if !v.Verified {
				return Result{Reason: map[string]any{
					"message": "not all required factors have been completed",
				}}
			}
			return Result{IsValid: true}
		},
	}
}

// HasCompletedFactors validates the completed factors against requirements,
// reporting the factors of the first unmet requirement.
func (c *MFAClaim) HasCompletedFactors(requirements []FactorRequirement) Validator {
	return CustomValidator{
		IDValue: MFAKey,
		Key:     MFAKey,
		Source:  c,
		Refetch: func(payload map[string]any) bool {
			_, ok := c.Value(payload)
			return !ok
		},
		CheckFunc: func(_ context.Context, payload map[string]any) Result {
			v, ok := c.Value(payload)
			if !ok {
				return Result{Reason: map[string]any{"message": "value does not exist"}}
			}
			if next := NextFactors(v.Completed, requirements); len(next) > 0 {
				return Result{Reason: map[string]any{
					"message":     "not all required factors have been completed",
					"nextFactors": next,
				}}
			}
			return Result{IsValid: true}
		},
	}
}
