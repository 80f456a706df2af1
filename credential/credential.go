package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go-scooterscan/geoquery"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
)

var ErrNoCredential = errors.New("no credential configured")

// Credential is what a provider client needs to authenticate.
type Credential struct {
	Provider string
	// Token is the bearer token (urent) or the X-Yandex-Jws value (yandex).
	Token   string
	Headers map[string]string
}

// Load finds the credential for provider. URENT_TOKEN wins for urent; the
// config file is consulted otherwise. The config file may hold
// "bearer_token" and a header map under "headers" or "yandex_headers".
func Load(provider, configPath string) (Credential, error) {
	c := Credential{Provider: provider}
	if provider == geoquery.UrentProvider {
		if tok := strings.TrimSpace(os.Getenv("URENT_TOKEN")); tok != "" {
			c.Token = tok
			return c, nil
		}
	}

	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return c, fmt.Errorf("%w for %s: %s not found", ErrNoCredential, provider, configPath)
	}
	if err != nil {
		return c, fmt.Errorf("read %s: %w", configPath, err)
	}
	if !gjson.ValidBytes(data) {
		return c, fmt.Errorf("%s is not valid JSON", configPath)
	}
	cfg := gjson.ParseBytes(data)

	switch provider {
	case geoquery.UrentProvider:
		c.Token = cfg.Get("bearer_token").String()
	case geoquery.YandexProvider:
		headers := cfg.Get("headers")
		if !headers.IsObject() {
			headers = cfg.Get("yandex_headers")
		}
		c.Headers = make(map[string]string)
		headers.ForEach(func(k, v gjson.Result) bool {
			c.Headers[k.String()] = v.String()
			return true
		})
		c.Token = c.Headers["X-Yandex-Jws"]
		if c.Token == "" {
			c.Token = strings.TrimPrefix(c.Headers["Authorization"], "Bearer ")
		}
		if len(c.Headers) == 0 {
			return c, fmt.Errorf("%w for yandex: %s has no headers", ErrNoCredential, configPath)
		}
		return c, nil
	default:
		return c, fmt.Errorf("unknown provider %q", provider)
	}

	if c.Token == "" {
		return c, fmt.Errorf("%w for %s: set URENT_TOKEN or bearer_token in %s", ErrNoCredential, provider, configPath)
	}
	return c, nil
}

// TokenInfo is what can be read from a token without verifying it.
type TokenInfo struct {
	IssuedAt        time.Time
	ExpiresAt       time.Time
	DeviceUUID      string
	IP              string
	DeviceIntegrity bool
}

func (i TokenInfo) Lifetime() time.Duration { return i.ExpiresAt.Sub(i.IssuedAt) }

func (i TokenInfo) Remaining(now time.Time) time.Duration { return i.ExpiresAt.Sub(now) }

func (i TokenInfo) Expired(now time.Time) bool { return !now.Before(i.ExpiresAt) }

// ExpiringSoon is true inside the last ten minutes of validity.
func (i TokenInfo) ExpiringSoon(now time.Time) bool {
	r := i.Remaining(now)
	return r > 0 && r < 10*time.Minute
}

// Inspect decodes the payload of a JWT without checking its signature. The
// Yandex millisecond claims (timestamp_ms, expires_at_ms) take precedence
// over the registered iat/exp claims.
func Inspect(token string) (TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("decode token: %w", err)
	}

	var info TokenInfo
	if ms, ok := claims["timestamp_ms"].(float64); ok {
		info.IssuedAt = time.UnixMilli(int64(ms))
	} else if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	if ms, ok := claims["expires_at_ms"].(float64); ok {
		info.ExpiresAt = time.UnixMilli(int64(ms))
	} else if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	if info.ExpiresAt.IsZero() {
		return info, errors.New("token carries no expiry")
	}
	info.DeviceUUID, _ = claims["uuid"].(string)
	info.IP, _ = claims["ip"].(string)
	info.DeviceIntegrity, _ = claims["device_integrity"].(bool)
	return info, nil
}

// FormatRemaining renders d as "1h 2m 3s", or "expired 5m ago" when negative.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		return "expired " + FormatRemaining(-d) + " ago"
	}
	total := int(d.Seconds())
	h, m, s := total/3600, total%3600/60, total%60
	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	if s > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", s))
	}
	return strings.Join(parts, " ")
}
