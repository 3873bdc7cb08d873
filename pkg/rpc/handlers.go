package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/fortiblox/x1-rewards/pkg/ledger"
	"github.com/fortiblox/x1-rewards/pkg/svm/programs/rewards"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

// Backend is the deployment state the handlers read from.
type Backend interface {
	Config() rewards.Config
	Account(key types.Pubkey) (*types.Account, error)
	Record(participant types.Pubkey) (*rewards.LedgerRecord, error)
	TokenBalance(account types.Pubkey) (uint64, error)
	AccountsCount() uint64
}

// Handler is the function signature for RPC method handlers.
type Handler func(params json.RawMessage) (interface{}, *RPCError)

// Handlers maps method names to handlers over one backend.
type Handlers struct {
	backend  Backend
	version  VersionResult
	handlers map[string]Handler
}

// NewHandlers creates the method table for backend.
func NewHandlers(backend Backend, version VersionResult) *Handlers {
	h := &Handlers{
		backend:  backend,
		version:  version,
		handlers: make(map[string]Handler),
	}
	h.handlers["getAccountInfo"] = h.handleGetAccountInfo
	h.handlers["getBalance"] = h.handleGetBalance
	h.handlers["getTokenAccountBalance"] = h.handleGetTokenAccountBalance
	h.handlers["getRewardsRecord"] = h.handleGetRewardsRecord
	h.handlers["getDeployment"] = h.handleGetDeployment
	h.handlers["getHealth"] = h.handleGetHealth
	h.handlers["getVersion"] = h.handleGetVersion
	return h
}

// GetHandler returns the handler for a method, or nil if not found.
func (h *Handlers) GetHandler(method string) Handler {
	return h.handlers[method]
}

// Methods returns the number of registered methods.
func (h *Handlers) Methods() int {
	return len(h.handlers)
}

// positional splits params into an array of at least n entries.
func positional(params json.RawMessage, n int) ([]json.RawMessage, *RPCError) {
	var raw []json.RawMessage
	if len(params) > 0 {
		if err := json.Unmarshal(params, &raw); err != nil {
			return nil, NewRPCError(InvalidParams, "invalid params: expected array")
		}
	}
	if len(raw) < n {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("expected at least %d params, got %d", n, len(raw)))
	}
	return raw, nil
}

func pubkeyParam(raw json.RawMessage) (types.Pubkey, *RPCError) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return types.Pubkey{}, NewRPCError(InvalidParams, "invalid pubkey parameter")
	}
	pk, err := types.PubkeyFromBase58(s)
	if err != nil {
		return types.Pubkey{}, NewRPCError(InvalidParams, fmt.Sprintf("invalid pubkey: %v", err))
	}
	return pk, nil
}

// backendError classifies a backend failure.
func backendError(err error) *RPCError {
	switch {
	case errors.Is(err, ledger.ErrRecordNotFound), errors.Is(err, ledger.ErrNotTokenAccount):
		return NewRPCError(KeyNotFound, err.Error())
	default:
		return NewRPCError(InternalError, err.Error())
	}
}

// handleGetAccountInfo returns a raw account, or null when it does not exist.
// Params: [pubkey, {encoding, dataSlice}]
func (h *Handlers) handleGetAccountInfo(params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := pubkeyParam(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}

	var options AccountInfoOptions
	if len(raw) > 1 {
		if err := json.Unmarshal(raw[1], &options); err != nil {
			return nil, NewRPCError(InvalidParams, "invalid options")
		}
		if err := ValidateEncoding(options.Encoding); err != nil {
			return nil, NewRPCError(UnsupportedEncoding, err.Error())
		}
	}

	account, err := h.backend.Account(pubkey)
	if err != nil {
		return nil, backendError(err)
	}
	if account == nil {
		return nil, nil
	}

	data, err := EncodeAccountData(SliceData(account.Data, options.DataSlice), options.Encoding)
	if err != nil {
		return nil, NewRPCError(UnsupportedEncoding, err.Error())
	}
	return AccountInfoResult{
		Lamports:   uint64(account.Lamports),
		Data:       data,
		Owner:      account.Owner.String(),
		Executable: account.Executable,
		RentEpoch:  account.RentEpoch,
		Space:      uint64(len(account.Data)),
	}, nil
}

// handleGetBalance returns an account's lamports, zero when it does not exist.
// Params: [pubkey]
func (h *Handlers) handleGetBalance(params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := pubkeyParam(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	account, err := h.backend.Account(pubkey)
	if err != nil {
		return nil, backendError(err)
	}
	if account == nil {
		return uint64(0), nil
	}
	return uint64(account.Lamports), nil
}

// Params: [tokenAccount]
func (h *Handlers) handleGetTokenAccountBalance(params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := pubkeyParam(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := h.backend.TokenBalance(pubkey)
	if err != nil {
		return nil, backendError(err)
	}
	return TokenBalanceResult{Account: pubkey.String(), Amount: amount}, nil
}

// Params: [participant]
func (h *Handlers) handleGetRewardsRecord(params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	participant, rpcErr := pubkeyParam(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	record, err := h.backend.Record(participant)
	if err != nil {
		return nil, backendError(err)
	}
	address, _, err := rewards.LedgerRecordAddress(h.backend.Config().ProgramID, participant)
	if err != nil {
		return nil, NewRPCError(InternalError, err.Error())
	}
	return RecordResult{
		Address:     address.String(),
		Participant: record.Owner.String(),
		Points:      record.Points,
		Bump:        record.Bump,
	}, nil
}

// handleGetDeployment describes the deployment the server reads from. The
// vault balance is zero before genesis.
func (h *Handlers) handleGetDeployment(json.RawMessage) (interface{}, *RPCError) {
	cfg := h.backend.Config()
	authority, _, err := rewards.VaultAuthority(cfg.ProgramID)
	if err != nil {
		return nil, NewRPCError(InternalError, err.Error())
	}
	var balance uint64
	if amount, err := h.backend.TokenBalance(cfg.Vault); err == nil {
		balance = amount
	} else if !errors.Is(err, ledger.ErrNotTokenAccount) {
		return nil, backendError(err)
	}
	return DeploymentResult{
		ProgramID:      cfg.ProgramID.String(),
		Mint:           cfg.Mint.String(),
		Vault:          cfg.Vault.String(),
		VaultAuthority: authority.String(),
		VaultBalance:   balance,
		AccountsCount:  h.backend.AccountsCount(),
	}, nil
}

func (h *Handlers) handleGetHealth(json.RawMessage) (interface{}, *RPCError) {
	return "ok", nil
}

func (h *Handlers) handleGetVersion(json.RawMessage) (interface{}, *RPCError) {
	return h.version, nil
}
