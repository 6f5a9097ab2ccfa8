package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

// Well-known throwaway key (hardhat account #0).
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
const testAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func TestSignerAddress(t *testing.T) {
	s, err := NewSigner("0x"+testKey, 137)
	require.NoError(t, err)
	assert.Equal(t, testAddr, s.Address().Hex())

	_, err = NewSigner("not-hex", 137)
	assert.Error(t, err)
}

func TestSignOrderRecoversSigner(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	require.NoError(t, err)

	order := domain.TradeOrder{TokenID: "71321045679252212594626385532706912750332728571942532289631379312455583992563", Price: 0.5, Size: 10}
	payload := s.PayloadFor(order, 42)
	assert.Equal(t, "10000000", payload.MakerAmount)
	assert.Equal(t, "20000000", payload.TakerAmount)
	assert.Equal(t, order.TokenID, payload.TokenID)

	sig, err := s.SignOrder(payload)
	require.NoError(t, err)
	assert.Len(t, sig, 2+130)

	addr, err := s.RecoverOrderSigner(payload, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)
}

func TestPayloadForHashesSymbolicTokenID(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	require.NoError(t, err)

	p := s.PayloadFor(domain.TradeOrder{TokenID: "market-abc", Price: 0.4, Size: 4}, 1)
	assert.NotEqual(t, "market-abc", p.TokenID)
	_, err = s.SignOrder(p)
	assert.NoError(t, err)
}

func TestSignOrderRejectsBadNumbers(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	require.NoError(t, err)
	_, err = s.SignOrder(OrderPayload{Salt: "x"})
	assert.Error(t, err)
}

func TestEncryptedKeyFile(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "wrong"})
	assert.Error(t, err)
}

func TestLoadKeySources(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKey, EncryptedKeyPath: "/nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = LoadKey(KeyConfig{})
	assert.ErrorIs(t, err, ErrNoKey)

	_, err = LoadKey(KeyConfig{RawPrivateKey: "abc"})
	assert.Error(t, err)
}
