package jwt

import (
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// VersionLegacy is the pre-JWT-claims payload layout.
	VersionLegacy = 2
	// Version3 introduces sub/exp/iat.
	Version3 = 3
	// Version4 adds the tenant claim tId.
	Version4 = 4
	// Version5 adds the recipe user claim rsub.
	Version5 = 5
	// LatestVersion is the version minted by [Manager.Sign] when callers pass 0.
	LatestVersion = Version5
)

// DefaultTenantID is assumed for tokens minted before tenants existed.
const DefaultTenantID = "public"

var (
	// ErrMalformed is returned when a string cannot be decoded as a JWT at all.
	ErrMalformed = errors.New("malformed access token")
	// ErrInvalidStructure is returned when a decoded payload lacks the fields its version requires.
	ErrInvalidStructure = errors.New("invalid access token structure")
)

// ProtectedClaims are payload keys owned by the session layer. Callers can
// never set them through a custom payload.
var ProtectedClaims = []string{
	"sub",
	"iat",
	"exp",
	"sessionHandle",
	"parentRefreshTokenHash1",
	"refreshTokenHash1",
	"antiCsrfToken",
	"rsub",
	"tId",
}

// IsProtectedClaim reports whether key is in [ProtectedClaims].
func IsProtectedClaim(key string) bool {
	for _, p := range ProtectedClaims {
		if p == key {
			return true
		}
	}
	return false
}

// Token is a decoded but unverified access token.
type Token struct {
	Raw     string
	Version int
	Header  map[string]any
	Payload map[string]any
}

// Info is the version-independent view of an access token.
type Info struct {
	Version                 int
	SessionHandle           string
	UserID                  string
	RecipeUserID            string
	TenantID                string
	RefreshTokenHash1       string
	ParentRefreshTokenHash1 string
	AntiCSRFToken           string
	Expiry                  time.Time
	TimeCreated             time.Time
	// UserData is the payload visible to applications. For version 2 tokens it
	// is the userData object; for later versions it is the whole payload.
	UserData map[string]any
}

// ParseUnverified decodes raw without checking its signature.
func ParseUnverified(raw string) (*Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Count(raw, ".") != 2 {
		return nil, ErrMalformed
	}

	claims := jwt.MapClaims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	version, err := headerVersion(parsed.Header)
	if err != nil {
		return nil, err
	}

	return &Token{
		Raw:     raw,
		Version: version,
		Header:  parsed.Header,
		Payload: map[string]any(claims),
	}, nil
}

func headerVersion(header map[string]any) (int, error) {
	v, ok := header["version"]
	if !ok || v == nil {
		return VersionLegacy, nil
	}

	var version int
	switch typed := v.(type) {
	case string:
		n, err := strconv.Atoi(typed)
		if err != nil {
			return 0, fmt.Errorf("%w: non numeric version header", ErrMalformed)
		}
		version = n
	case float64:
		version = int(typed)
	default:
		return 0, fmt.Errorf("%w: unsupported version header type", ErrMalformed)
	}
	if version < VersionLegacy {
		return 0, fmt.Errorf("%w: version %d", ErrMalformed, version)
	}
	return version, nil
}

// ValidateStructure checks payload has every field required by version.
func ValidateStructure(payload map[string]any, version int) error {
	if payload == nil {
		return fmt.Errorf("%w: empty payload", ErrInvalidStructure)
	}
	if version < VersionLegacy || version > LatestVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidStructure, version)
	}

	if version == VersionLegacy {
		if err := requireStrings(payload, "sessionHandle", "userId", "refreshTokenHash1"); err != nil {
			return err
		}
		if err := requireNumbers(payload, "expiryTime", "timeCreated"); err != nil {
			return err
		}
		if _, ok := payload["userData"].(map[string]any); !ok {
			return fmt.Errorf("%w: userData must be an object", ErrInvalidStructure)
		}
	} else {
		if err := requireStrings(payload, "sub", "sessionHandle", "refreshTokenHash1"); err != nil {
			return err
		}
		if err := requireNumbers(payload, "exp", "iat"); err != nil {
			return err
		}
		if version >= Version4 {
			if err := requireStrings(payload, "tId"); err != nil {
				return err
			}
		}
		if version >= Version5 {
			if err := requireStrings(payload, "rsub"); err != nil {
				return err
			}
		}
	}

	for _, key := range []string{"parentRefreshTokenHash1", "antiCsrfToken"} {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		if _, isString := v.(string); !isString {
			return fmt.Errorf("%w: %s must be a string", ErrInvalidStructure, key)
		}
	}

	return nil
}

// Info validates the token structure and returns its normalized view.
func (t *Token) Info() (Info, error) {
	if t == nil {
		return Info{}, ErrMalformed
	}
	if err := ValidateStructure(t.Payload, t.Version); err != nil {
		return Info{}, err
	}

	p := t.Payload
	info := Info{
		Version:                 t.Version,
		SessionHandle:           stringClaim(p, "sessionHandle"),
		RefreshTokenHash1:       stringClaim(p, "refreshTokenHash1"),
		ParentRefreshTokenHash1: stringClaim(p, "parentRefreshTokenHash1"),
		AntiCSRFToken:           stringClaim(p, "antiCsrfToken"),
	}

	if t.Version == VersionLegacy {
		info.UserID = stringClaim(p, "userId")
		info.RecipeUserID = info.UserID
		info.TenantID = DefaultTenantID
		exp, _ := numberClaim(p, "expiryTime")
		created, _ := numberClaim(p, "timeCreated")
		info.Expiry = time.UnixMilli(int64(exp))
		info.TimeCreated = time.UnixMilli(int64(created))
		info.UserData = maps.Clone(p["userData"].(map[string]any))
		return info, nil
	}

	info.UserID = stringClaim(p, "sub")
	info.RecipeUserID = info.UserID
	info.TenantID = DefaultTenantID
	if t.Version >= Version4 {
		info.TenantID = stringClaim(p, "tId")
	}
	if t.Version >= Version5 {
		info.RecipeUserID = stringClaim(p, "rsub")
	}
	exp, _ := numberClaim(p, "exp")
	iat, _ := numberClaim(p, "iat")
	info.Expiry = time.Unix(int64(exp), 0)
	info.TimeCreated = time.Unix(int64(iat), 0)
	info.UserData = maps.Clone(p)

	return info, nil
}

func requireStrings(payload map[string]any, keys ...string) error {
	for _, key := range keys {
		if _, ok := payload[key].(string); !ok {
			return fmt.Errorf("%w: missing %s", ErrInvalidStructure, key)
		}
	}
	return nil
}

func requireNumbers(payload map[string]any, keys ...string) error {
	for _, key := range keys {
		if _, ok := numberClaim(payload, key); !ok {
			return fmt.Errorf("%w: missing %s", ErrInvalidStructure, key)
		}
	}
	return nil
}

func stringClaim(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

func numberClaim(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
