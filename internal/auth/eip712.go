// Package auth verifies the broker/trading-key signatures the RPC
// sidecar requires before a command is allowed to reach the sequencer,
// adapted from EIP-712 typed-data signing onto the command schema.
package auth

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/uinb/galois-go/internal/command"
	"github.com/uinb/galois-go/internal/core"
)

// Domain is the EIP-712 domain separator every signed command is
// verified against. ChainID pins signatures to one deployment so a
// signature captured on one engine instance can't be replayed on
// another sharing the same key.
type Domain struct {
	Name    string
	Version string
	ChainID *big.Int
}

// DefaultDomain is the domain used when no override is configured.
func DefaultDomain() Domain {
	return Domain{Name: "galois", Version: "1", ChainID: big.NewInt(1)}
}

var commandFields = []apitypes.Type{
	{Name: "cmd", Type: "uint32"},
	{Name: "base", Type: "uint32"},
	{Name: "quote", Type: "uint32"},
	{Name: "orderId", Type: "uint64"},
	{Name: "price", Type: "string"},
	{Name: "amount", Type: "string"},
	{Name: "nonce", Type: "uint32"},
}

// Hash computes the EIP-712 digest for a trading or assets command:
// the fields that must not be tampered with in flight between the
// signer and the sequencer.
func Hash(domain Domain, cmd command.Command) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Command": commandFields,
		},
		PrimaryType: "Command",
		Domain: apitypes.TypedDataDomain{
			Name:    domain.Name,
			Version: domain.Version,
			ChainId: (*math.HexOrDecimal256)(domain.ChainID),
		},
		Message: apitypes.TypedDataMessage{
			"cmd":     fmt.Sprintf("%d", cmd.Cmd),
			"base":    fmt.Sprintf("%d", cmd.Symbol.Base),
			"quote":   fmt.Sprintf("%d", cmd.Symbol.Quote),
			"orderId": fmt.Sprintf("%d", cmd.OrderId),
			"price":   cmd.Price.String(),
			"amount":  cmd.Amount.String(),
			"nonce":   fmt.Sprintf("%d", cmd.Nonce),
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("auth: hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("auth: hash message: %w", err)
	}
	rawData := append([]byte("\x19\x01"), append(domainSeparator, messageHash...)...)
	return crypto.Keccak256(rawData), nil
}

// Verify reports whether cmd.Signature recovers to cmd.UserId under
// domain. Inspections and non-signed commands (assets credited by the
// chain scanner, symbol admin updates) are not covered: callers decide
// which Cmd kinds require a signature before calling Verify.
func Verify(domain Domain, cmd command.Command) error {
	if len(cmd.Signature) != 65 {
		return fmt.Errorf("auth: signature must be 65 bytes, got %d", len(cmd.Signature))
	}
	hash, err := Hash(domain, cmd)
	if err != nil {
		return err
	}
	pubKeyBytes, err := crypto.Ecrecover(hash, cmd.Signature)
	if err != nil {
		return fmt.Errorf("auth: recover public key: %w", err)
	}
	pubKey, err := crypto.UnmarshalPubkey(pubKeyBytes)
	if err != nil {
		return fmt.Errorf("auth: unmarshal public key: %w", err)
	}
	recovered := addressToUserId(crypto.PubkeyToAddress(*pubKey))
	if recovered != cmd.UserId {
		return fmt.Errorf("auth: signature does not match user_id")
	}
	return nil
}

// RequiresSignature reports whether cmd's kind must carry a valid
// signature before it may reach the sequencer. Transfers arrive from
// the chain scanner, which the session has already authenticated by
// other means, and admin/inspection commands are server-originated or
// read-only.
func RequiresSignature(cmd command.Command) bool {
	return cmd.IsTradingCmd()
}

func addressToUserId(addr common.Address) core.UserId {
	var u core.UserId
	copy(u[12:], addr[:])
	return u
}
