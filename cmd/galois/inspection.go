package main

import (
	"encoding/json"

	"github.com/uinb/galois-go/internal/command"
	"github.com/uinb/galois-go/internal/engine"
)

// handleInspection answers a read-only query directly against engine
// state without going through the sequencer: nothing it returns is
// logged or proven, matching the original implementation's Inspection
// handling.
func handleInspection(eng *engine.Engine, cmd command.Command) ([]byte, bool) {
	switch cmd.Cmd {
	case command.CmdQueryOrder:
		book, ok := eng.Book(cmd.Symbol)
		if !ok {
			return errPayload("market not found"), true
		}
		order, ok := book.FindOrder(cmd.OrderId)
		if !ok {
			return errPayload("order not found"), true
		}
		return mustMarshal(order), false

	case command.CmdQueryBalance:
		return mustMarshal(eng.Ledger.Balance(cmd.UserId, cmd.Currency)), false

	case command.CmdQueryAccounts:
		return mustMarshal(eng.Ledger.Accounts()[cmd.UserId]), false

	case command.CmdQueryOpenMarkets:
		return mustMarshal(eng.Symbols.List()), false

	case command.CmdQueryExchangeFee:
		cfg, ok := eng.Symbols.Get(cmd.Symbol)
		if !ok {
			return errPayload("market not found"), true
		}
		return mustMarshal(cfg), false

	case command.CmdDump:
		return mustMarshal(eng.ExportState()), false

	case command.CmdGetX25519Key, command.CmdGetBrokerNonce, command.CmdQueryFusotaoProgress:
		// Served by the chain client / key-exchange layer in a full
		// deployment; this engine process has no chain-scanner state
		// to answer these from directly.
		return errPayload("not available on this node"), true

	default:
		return errPayload("unknown inspection command"), true
	}
}

func mustMarshal(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}

func errPayload(msg string) []byte {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}
