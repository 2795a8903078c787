package management

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fabric-actor/kernel/pkg/apierr"
)

// Claims is the JWT payload a management-plane caller presents,
// carrying the AuthToken{name, guid, role} identity §4.9 requires
// alongside every (action, resource-type, resource-id) tuple.
type Claims struct {
	jwt.RegisteredClaims
	GUID string `json:"guid"`
	Role string `json:"role"`
}

// PDP is the policy decision point hook: given an already-authenticated
// caller and the operation it's attempting, decide allow/deny. The
// actual PDP implementation is out of scope (§1 non-goals); AllowAll
// satisfies the interface for deployments with no PDP configured.
type PDP interface {
	Decide(ctx context.Context, caller Claims, action, resourceType, resourceID string) error
}

// AllowAll is the no-op PDP: every authenticated caller is authorized.
type AllowAll struct{}

func (AllowAll) Decide(ctx context.Context, caller Claims, action, resourceType, resourceID string) error {
	return nil
}

// AccessChecker validates a caller's token and forwards the
// (action, resource-type, resource-id, role) tuple to a PDP, per §4.9's
// "each management call is authorized" requirement. Unauthenticated
// (bad/missing token) and unauthorized (PDP denied) calls both return
// apierr.CodeInvalidArguments; they are told apart only by the "code"
// detail, "unauthenticated" or "unauthorized".
type AccessChecker interface {
	Check(ctx context.Context, token, action, resourceType, resourceID string) error
}

// JWTAccessChecker is the default AccessChecker: HMAC-signed bearer
// tokens validated against the actor's configured secret
// (pkg/config.OAuthConfig.JWTSecret), then handed to a PDP.
type JWTAccessChecker struct {
	secret []byte
	pdp    PDP
}

var _ AccessChecker = (*JWTAccessChecker)(nil)

// NewJWTAccessChecker builds a checker. pdp may be nil, in which case
// every structurally-valid token is authorized (AllowAll).
func NewJWTAccessChecker(secret string, pdp PDP) *JWTAccessChecker {
	if pdp == nil {
		pdp = AllowAll{}
	}
	return &JWTAccessChecker{secret: []byte(secret), pdp: pdp}
}

func (c *JWTAccessChecker) Check(ctx context.Context, token, action, resourceType, resourceID string) error {
	token = strings.TrimPrefix(strings.TrimSpace(token), "Bearer ")
	if token == "" {
		return apierr.InvalidArguments("missing bearer token").WithDetail("code", "unauthenticated")
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierr.InvalidArguments("unexpected signing method")
		}
		return c.secret, nil
	}, jwt.WithLeeway(5*time.Second))
	if err != nil || !parsed.Valid {
		return apierr.InvalidArguments("invalid or expired token").WithDetail("code", "unauthenticated")
	}
	if claims.GUID == "" {
		return apierr.InvalidArguments("token missing guid claim").WithDetail("code", "unauthenticated")
	}

	if err := c.pdp.Decide(ctx, claims, action, resourceType, resourceID); err != nil {
		return apierr.InvalidArguments("not authorized for " + action).
			WithDetail("code", "unauthorized").
			WithDetail("resource_type", resourceType).
			WithDetail("resource_id", resourceID)
	}
	return nil
}
