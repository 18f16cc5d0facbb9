package cmd

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/quorumcontrol/ownable/ownership"
)

func parseIdentity(s string) (ownership.Identity, error) {
	if !common.IsHexAddress(s) {
		return ownership.Zero, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// callerIdentity picks the identity a command acts as. A private key takes
// precedence over a bare address.
func callerIdentity(from string, keyHex string) (ownership.Identity, error) {
	if keyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			return ownership.Zero, fmt.Errorf("error decoding key: %v", err)
		}
		return crypto.PubkeyToAddress(key.PublicKey), nil
	}
	if from == "" {
		return ownership.Zero, fmt.Errorf("either --from or --key is required")
	}
	return parseIdentity(from)
}
