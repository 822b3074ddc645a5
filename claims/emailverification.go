package claims

import (
	"context"
	"time"
)

// EmailVerificationKey is the payload key of [EmailVerificationClaim].
const EmailVerificationKey = "st-ev"

const defaultRefetchOnFalse = 10 * time.Second

// EmailVerifiedChecker reports whether the recipe user's email is verified.
type EmailVerifiedChecker func(ctx context.Context, recipeUserID, tenantID string) (bool, error)

// EmailVerificationClaim tracks whether the user verified their email.
type EmailVerificationClaim struct {
	*BooleanClaim
}

func NewEmailVerificationClaim(check EmailVerifiedChecker) *EmailVerificationClaim {
	fetch := func(ctx context.Context, _, recipeUserID, tenantID string, _ map[string]any) (any, error) {
		return check(ctx, recipeUserID, tenantID)
	}
	return &EmailVerificationClaim{BooleanClaim: NewBooleanClaim(EmailVerificationKey, fetch, 0)}
}

// IsVerified requires a true value. A false value older than refetchOnFalse
// (10s when zero) is refetched before failing, so a user who just verified is
// let through without a new login.
func (c *EmailVerificationClaim) IsVerified(refetchOnFalse, maxAge time.Duration) Validator {
	if refetchOnFalse <= 0 {
		refetchOnFalse = defaultRefetchOnFalse
	}
	base := c.IsTrue(maxAge)
	return CustomValidator{
		IDValue: c.key,
		Key:     c.key,
		Source:  c,
		Refetch: func(payload map[string]any) bool {
			value := c.GetValueFromPayload(payload)
			if value == nil {
				return true
			}
			fetched, _ := c.LastRefetchTime(payload)
			if maxAge > 0 && Now().Sub(fetched) > maxAge {
				return true
			}
			if verified, _ := value.(bool); !verified {
				return Now().Sub(fetched) > refetchOnFalse
			}
			return false
		},
		CheckFunc: base.Validate,
	}
}
