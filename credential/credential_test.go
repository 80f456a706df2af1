package credential

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadUrentPrefersEnv(t *testing.T) {
	path := writeConfig(t, `{"bearer_token": "from-file"}`)

	t.Setenv("URENT_TOKEN", "from-env")
	c, err := Load("urent", path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Token)

	t.Setenv("URENT_TOKEN", "")
	c, err = Load("urent", path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", c.Token)
}

func TestLoadYandexHeaders(t *testing.T) {
	path := writeConfig(t, `{"yandex_headers": {"X-Yandex-Jws": "jws", "User-Agent": "yandex-taxi/700"}}`)
	c, err := Load("yandex", path)
	require.NoError(t, err)
	assert.Equal(t, "jws", c.Token)
	assert.Equal(t, "yandex-taxi/700", c.Headers["User-Agent"])

	path = writeConfig(t, `{"headers": {"Authorization": "Bearer abc"}, "yandex_headers": {"X-Yandex-Jws": "old"}}`)
	c, err = Load("yandex", path)
	require.NoError(t, err)
	assert.Equal(t, "abc", c.Token)
}

func TestLoadMissing(t *testing.T) {
	t.Setenv("URENT_TOKEN", "")
	_, err := Load("urent", filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, ErrNoCredential)

	_, err = Load("yandex", writeConfig(t, `{}`))
	assert.ErrorIs(t, err, ErrNoCredential)

	_, err = Load("lime", writeConfig(t, `{}`))
	assert.Error(t, err)
}

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return tok
}

func TestInspectYandexClaims(t *testing.T) {
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tok := sign(t, jwt.MapClaims{
		"timestamp_ms":     issued.UnixMilli(),
		"expires_at_ms":    issued.Add(time.Hour).UnixMilli(),
		"uuid":             "dev-1",
		"ip":               "10.0.0.1",
		"device_integrity": true,
	})

	info, err := Inspect(tok)
	require.NoError(t, err)
	assert.True(t, info.IssuedAt.Equal(issued))
	assert.Equal(t, time.Hour, info.Lifetime())
	assert.Equal(t, "dev-1", info.DeviceUUID)
	assert.True(t, info.DeviceIntegrity)

	assert.False(t, info.Expired(issued.Add(55*time.Minute)))
	assert.True(t, info.ExpiringSoon(issued.Add(55*time.Minute)))
	assert.True(t, info.Expired(issued.Add(2*time.Hour)))
}

func TestInspectRegisteredClaims(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	info, err := Inspect(sign(t, jwt.MapClaims{"exp": exp.Unix(), "iat": exp.Add(-time.Hour).Unix()}))
	require.NoError(t, err)
	assert.True(t, info.ExpiresAt.Equal(exp))
	assert.Equal(t, time.Hour, info.Lifetime())
}

func TestInspectRejectsGarbage(t *testing.T) {
	_, err := Inspect("not-a-jwt")
	assert.Error(t, err)
	_, err = Inspect(sign(t, jwt.MapClaims{"uuid": "x"}))
	assert.Error(t, err)
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "1h 2m 3s", FormatRemaining(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "0s", FormatRemaining(0))
	assert.Equal(t, "expired 5m ago", FormatRemaining(-5*time.Minute))
}
