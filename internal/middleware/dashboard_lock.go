package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/volunteer-hub-web/internal/utils"
)

// DashboardCookieName is the cookie carrying the dashboard lock token.
const DashboardCookieName = "volunteer_dashboard"

const (
	dashboardScope      = "dashboard"
	dashboardSessionKey = "dashboard_session_id"
)

// ErrDashboardLocked indicates a missing or invalid lock token.
var ErrDashboardLocked = errors.New("dashboard locked")

type dashboardClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// DashboardLock issues and verifies the signed token that keeps the
// dashboard unlocked. It gates the UI only and carries no user identity.
type DashboardLock struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewDashboardLock constructs a lock signing tokens with secret.
func NewDashboardLock(secret string, ttl time.Duration, secure bool) *DashboardLock {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &DashboardLock{
		secret: []byte(secret),
		ttl:    ttl,
		secure: secure,
		now:    time.Now,
	}
}

// Issue signs a token bound to sessionID.
func (l *DashboardLock) Issue(sessionID string) (string, time.Time, error) {
	now := l.now()
	expires := now.Add(l.ttl)
	claims := dashboardClaims{
		Scope: dashboardScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Parse verifies token and returns the session id it carries.
func (l *DashboardLock) Parse(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrDashboardLocked
	}

	claims := &dashboardClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return l.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(l.now))
	if err != nil || !parsed.Valid {
		return "", ErrDashboardLocked
	}
	if claims.Scope != dashboardScope || claims.Subject == "" {
		return "", ErrDashboardLocked
	}
	return claims.Subject, nil
}

// SetCookie stores token on the response.
func (l *DashboardLock) SetCookie(c *fiber.Ctx, token string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     DashboardCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   l.secure,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

// ClearCookie removes the lock cookie.
func (l *DashboardLock) ClearCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     DashboardCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   l.secure,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

// Protected rejects requests without a valid lock token. The token is read
// from the cookie, or from a bearer Authorization header.
func (l *DashboardLock) Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies(DashboardCookieName)
		if token == "" {
			token = bearerToken(c.Get("Authorization"))
		}

		sessionID, err := l.Parse(token)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, ErrDashboardLocked.Error())
		}

		c.Locals(dashboardSessionKey, sessionID)
		return c.Next()
	}
}

// DashboardSessionID returns the session id bound by Protected.
func DashboardSessionID(c *fiber.Ctx) string {
	if value, ok := c.Locals(dashboardSessionKey).(string); ok {
		return value
	}
	return ""
}

func bearerToken(authorization string) string {
	const bearer = "bearer "
	if len(authorization) < len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
		return ""
	}
	return strings.TrimSpace(authorization[len(bearer):])
}
