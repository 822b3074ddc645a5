package claims

import "time"

// BooleanClaim is a [PrimitiveClaim] holding true or false.
type BooleanClaim struct {
	*PrimitiveClaim
}

func NewBooleanClaim(key string, fetch FetchFunc, defaultMaxAge time.Duration) *BooleanClaim {
	return &BooleanClaim{PrimitiveClaim: NewPrimitiveClaim(key, fetch, defaultMaxAge)}
}

func (c *BooleanClaim) IsTrue(maxAge ...time.Duration) Validator {
	return c.HasValue(true, maxAge...)
}

func (c *BooleanClaim) IsFalse(maxAge ...time.Duration) Validator {
	return c.HasValue(false, maxAge...)
}
