package signing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignIsDeterministic(t *testing.T) {
	payload := []byte(`{"event":"order.created","data":{"id":1}}`)

	first := Sign("whsec_test", payload)
	second := Sign("whsec_test", payload)

	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "sha256="))
	assert.Len(t, strings.TrimPrefix(first, "sha256="), 64)
}

func TestSignChangesWithPayloadAndSecret(t *testing.T) {
	payload := []byte(`{"event":"order.created"}`)
	base := Sign("whsec_test", payload)

	flipped := append([]byte(nil), payload...)
	flipped[3] ^= 0x01
	assert.NotEqual(t, base, Sign("whsec_test", flipped))
	assert.NotEqual(t, base, Sign("whsec_other", payload))
}

func TestKnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := Sign("Jefe", []byte("what do ya want for nothing?"))
	assert.Equal(t, "sha256=5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"ok":true}`)
	sig := Sign("s3cret", payload)

	assert.True(t, Verify("s3cret", payload, sig))
	assert.False(t, Verify("s3cret", []byte(`{"ok":false}`), sig))
	assert.False(t, Verify("s3cret", payload, strings.TrimPrefix(sig, "sha256=")))
}

func TestHeaderName(t *testing.T) {
	assert.Equal(t, "X-HookRelay-Signature", HeaderName("HookRelay"))
}
