package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAESKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestAESEncryptionService_NewInvalidKey(t *testing.T) {
	_, err := NewAESEncryptionService("shortkey")
	assert.Error(t, err)

	_, err = NewAESEncryptionService("abcd")
	assert.ErrorContains(t, err, "32 bytes")
}

func TestAESEncryptionService_RoundTripPayoutAccount(t *testing.T) {
	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	sealed, err := svc.Encrypt("acct_1NfZ2x")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "acct_1NfZ2x")

	opened, err := svc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "acct_1NfZ2x", opened)
}

func TestAESEncryptionService_FreshNoncePerCall(t *testing.T) {
	svc, _ := NewAESEncryptionService(testAESKey)

	c1, err := svc.Encrypt("acct_same")
	require.NoError(t, err)
	c2, err := svc.Encrypt("acct_same")
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)
}

func TestAESEncryptionService_RejectsTamperingAndForeignKeys(t *testing.T) {
	svc, _ := NewAESEncryptionService(testAESKey)
	other, _ := NewAESEncryptionService("abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789")

	sealed, err := svc.Encrypt("acct_x")
	require.NoError(t, err)

	_, err = svc.Decrypt(sealed[:len(sealed)-2] + "ff")
	assert.Error(t, err)

	_, err = other.Decrypt(sealed)
	assert.Error(t, err)

	_, err = svc.Decrypt("not-hex!!")
	assert.Error(t, err)

	_, err = svc.Decrypt("abcdef")
	assert.Error(t, err)
}
