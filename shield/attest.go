package shield

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flashbots/go-boost-utils/bls"
)

// ParseAttestationKey decodes a hex BLS secret key.
func ParseAttestationKey(hexKey string) (*bls.SecretKey, error) {
	raw := common.FromHex(strings.TrimSpace(hexKey))
	if len(raw) != 32 {
		return nil, fmt.Errorf("expected 32 byte BLS secret key, got %d bytes", len(raw))
	}
	key, err := bls.SecretKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse BLS secret key: %w", err)
	}
	return key, nil
}

// Attest signs a commitment root and returns the compressed signature.
func Attest(key *bls.SecretKey, root common.Hash) []byte {
	return bls.SignatureToBytes(bls.Sign(key, root.Bytes()))
}
