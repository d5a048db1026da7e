package token

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

func TestDecode(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	tok := signed(t, jwt.MapClaims{
		"user_id":    42,
		"iat":        issued.Unix(),
		"exp":        issued.Add(time.Hour).Unix(),
		"jti":        "abc",
		"token_type": "access",
	})

	p, ok := Decode(tok)
	require.True(t, ok)
	assert.Equal(t, int64(42), p.SubjectID)
	assert.Equal(t, issued.Unix(), p.IssuedAt.Unix())
	assert.Equal(t, issued.Add(time.Hour).Unix(), p.ExpiresAt.Unix())
	assert.Equal(t, "abc", p.ID)
	assert.Equal(t, "access", p.Type)
}

func TestDecodeStringSubject(t *testing.T) {
	tok := signed(t, jwt.MapClaims{"user_id": "7", "exp": time.Now().Add(time.Hour).Unix()})
	id, ok := SubjectID(tok)
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	tok = signed(t, jwt.MapClaims{"sub": "9", "exp": time.Now().Add(time.Hour).Unix()})
	id, ok = SubjectID(tok)
	require.True(t, ok)
	assert.Equal(t, int64(9), id)
}

func TestDecodeMalformed(t *testing.T) {
	garbage := base64.RawURLEncoding.EncodeToString([]byte("not json"))
	for _, raw := range []string{
		"",
		"no-separator-here",
		"a.b",
		"a.b.c",
		"eyJhbGciOiJIUzI1NiJ9." + garbage + ".sig",
	} {
		assert.NotPanics(t, func() {
			p, ok := Decode(raw)
			assert.False(t, ok, raw)
			assert.Nil(t, p)
		})
	}
}

func TestIsExpiredBuffer(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	freezeClock(t, base)
	tok := signed(t, jwt.MapClaims{"user_id": 1, "exp": base.Add(30 * time.Second).Unix()})

	assert.True(t, IsExpired(tok, 60*time.Second))
	assert.False(t, IsExpired(tok, 10*time.Second))
	assert.False(t, IsExpired(tok, 0))
}

func TestIsExpiredAtBoundary(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	tok := signed(t, jwt.MapClaims{"user_id": 1, "exp": base.Unix()})

	freezeClock(t, base)
	assert.True(t, IsExpired(tok, 0), "now == exp counts as expired")

	freezeClock(t, base.Add(-time.Second))
	assert.False(t, IsExpired(tok, 0))
}

func TestIsExpiredWithoutPayload(t *testing.T) {
	assert.True(t, IsExpired("garbage", 0))
	noExp := signed(t, jwt.MapClaims{"user_id": 1})
	assert.True(t, IsExpired(noExp, 0))
}

func TestSubjectIDMissing(t *testing.T) {
	tok := signed(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	_, ok := SubjectID(tok)
	assert.False(t, ok)

	_, ok = SubjectID("nope")
	assert.False(t, ok)
}

func TestTimeToExpire(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	freezeClock(t, base)

	tok := signed(t, jwt.MapClaims{"exp": base.Add(90 * time.Second).Unix()})
	assert.Equal(t, 90*time.Second, TimeToExpire(tok))

	past := signed(t, jwt.MapClaims{"exp": base.Add(-time.Minute).Unix()})
	assert.Equal(t, time.Duration(0), TimeToExpire(past))

	assert.Equal(t, time.Duration(0), TimeToExpire("bad"))
}
