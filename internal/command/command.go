// Package command defines the wire and durable-log representation of
// every command the engine accepts, and the inspection (read-only
// query) requests that share the same session protocol.
package command

import (
	"github.com/uinb/galois-go/internal/core"
	"github.com/uinb/galois-go/internal/decimal"
	"github.com/uinb/galois-go/internal/scale"
)

// Cmd ids, matching the RPC protocol's Command.cmd field.
const (
	CmdAskLimit             = 0
	CmdBidLimit             = 1
	CmdCancel               = 4
	CmdTransferOut          = 10
	CmdTransferIn           = 11
	CmdUpdateSymbol         = 13
	CmdQueryOrder           = 14
	CmdQueryBalance         = 15
	CmdQueryAccounts        = 16
	CmdDump                 = 17
	CmdQueryExchangeFee     = 21
	CmdQueryOpenMarkets     = 24
	CmdGetX25519Key         = 25
	CmdGetBrokerNonce       = 26
	CmdQueryFusotaoProgress = 27

	// FusoRejectTransferIn/Out are not wire command ids: they mark the
	// FusoCommand variant a rejected deposit/withdraw proof encodes
	// (same leaf, old_v == new_v), distinguishing it on-chain from a
	// command that actually mutated a balance.
	FusoRejectTransferIn  = 1011
	FusoRejectTransferOut = 1010
)

// Command is the JSON-wire and durable-log form of every accepted
// input: fields are populated per Cmd, following the original
// implementation's single-struct-many-commands layout.
type Command struct {
	Cmd    uint32       `json:"cmd"`
	Symbol core.Symbol  `json:"symbol,omitempty"`
	UserId core.UserId  `json:"user_id,omitempty"`

	OrderId core.OrderId    `json:"order_id,omitempty"`
	Price   decimal.Decimal `json:"price,omitempty"`
	Amount  decimal.Decimal `json:"amount,omitempty"`
	Nonce   uint32          `json:"nonce,omitempty"`

	Currency       core.Currency `json:"currency,omitempty"`
	InOrOut        InOrOut       `json:"in_or_out,omitempty"`
	BlockNumber    uint64        `json:"block_number,omitempty"`
	ExtrinsicHash  [32]byte      `json:"extrinsic_hash,omitempty"`

	Open              bool            `json:"open,omitempty"`
	BaseScale         uint32          `json:"base_scale,omitempty"`
	QuoteScale        uint32          `json:"quote_scale,omitempty"`
	TakerFee          decimal.Decimal `json:"taker_fee,omitempty"`
	MakerFee          decimal.Decimal `json:"maker_fee,omitempty"`
	BaseMakerFee      decimal.Decimal `json:"base_maker_fee,omitempty"`
	BaseTakerFee      decimal.Decimal `json:"base_taker_fee,omitempty"`
	FeeTimes          uint32          `json:"fee_times,omitempty"`
	MinAmount         decimal.Decimal `json:"min_amount,omitempty"`
	MinVol            decimal.Decimal `json:"min_vol,omitempty"`
	EnableMarketOrder bool            `json:"enable_market_order,omitempty"`

	Signature []byte `json:"signature,omitempty"`

	// Session and req_id are not part of the durable record; they're
	// attached by the RPC layer when a command arrives over a session
	// and stripped before logging.
	Session core.UserId `json:"-"`
	ReqId   uint64      `json:"-"`
}

// InOrOut distinguishes a deposit from a withdrawal.
type InOrOut uint8

const (
	TransferIn  InOrOut = 0
	TransferOut InOrOut = 1
)

// IsTradingCmd reports whether this command mutates an order book.
func (c Command) IsTradingCmd() bool {
	return c.Cmd == CmdAskLimit || c.Cmd == CmdBidLimit || c.Cmd == CmdCancel
}

// IsAssetsCmd reports whether this command mutates a balance directly.
func (c Command) IsAssetsCmd() bool {
	return c.Cmd == CmdTransferIn || c.Cmd == CmdTransferOut
}

// IsInspection reports whether this is a read-only query, never logged
// or proven.
func (c Command) IsInspection() bool {
	switch c.Cmd {
	case CmdQueryOrder, CmdQueryBalance, CmdQueryAccounts, CmdDump,
		CmdQueryExchangeFee, CmdQueryOpenMarkets, CmdGetX25519Key,
		CmdGetBrokerNonce, CmdQueryFusotaoProgress:
		return true
	default:
		return false
	}
}

// EncodeFuso SCALE-encodes the subset of fields relevant to chain
// verification for a trading or assets command, forming the
// FusoCommand element of the on-chain proof tuple.
func (c Command) EncodeFuso() []byte {
	e := scale.NewEncoder()
	e.U32(c.Cmd)
	e.U32(uint32(c.Symbol.Base))
	e.U32(uint32(c.Symbol.Quote))
	e.Bytes32(c.UserId)
	e.U64(uint64(c.OrderId))
	priceLeaf, _ := c.Price.ToMerkleUint128()
	amountLeaf, _ := c.Amount.ToMerkleUint128()
	if priceLeaf != nil {
		e.ByteVec(priceLeaf.Bytes())
	} else {
		e.ByteVec(nil)
	}
	if amountLeaf != nil {
		e.ByteVec(amountLeaf.Bytes())
	} else {
		e.ByteVec(nil)
	}
	e.U32(c.Nonce)
	return e.Bytes()
}
