package auth

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/uinb/galois-go/internal/core"
)

type ecdsaKey struct {
	priv   *ecdsa.PrivateKey
	userId core.UserId
}

func newTestKey(t *testing.T) *ecdsaKey {
	t.Helper()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(priv.PublicKey)
	return &ecdsaKey{priv: priv, userId: addressToUserId(addr)}
}
