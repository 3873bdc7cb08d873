// Package rpc provides a read-only JSON-RPC 2.0 query server for a rewards
// deployment.
package rpc

import (
	"encoding/json"
)

// JSONRPCVersion is the only protocol version accepted.
const JSONRPCVersion = "2.0"

// Standard JSON-RPC 2.0 error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603

	// Server-defined codes
	KeyNotFound         = -32010
	UnsupportedEncoding = -32011
	RateLimited         = -32029
)

// RPCRequest represents a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// RPCResponse represents a JSON-RPC 2.0 response. Exactly one of Result and
// Error is encoded; a nil Result is encoded as null.
type RPCResponse struct {
	JSONRPC string
	Result  interface{}
	Error   *RPCError
	ID      interface{}
}

// MarshalJSON implements json.Marshaler.
func (r RPCResponse) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			JSONRPC string      `json:"jsonrpc"`
			Error   *RPCError   `json:"error"`
			ID      interface{} `json:"id"`
		}{r.JSONRPC, r.Error, r.ID})
	}
	return json.Marshal(struct {
		JSONRPC string      `json:"jsonrpc"`
		Result  interface{} `json:"result"`
		ID      interface{} `json:"id"`
	}{r.JSONRPC, r.Result, r.ID})
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return e.Message
}

// NewRPCError creates a new RPC error.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
	}
}

// AccountInfoResult is the result of getAccountInfo.
type AccountInfoResult struct {
	Lamports   uint64        `json:"lamports"`
	Data       []interface{} `json:"data"` // [data, encoding]
	Owner      string        `json:"owner"`
	Executable bool          `json:"executable"`
	RentEpoch  uint64        `json:"rentEpoch"`
	Space      uint64        `json:"space"`
}

// AccountInfoOptions are the optional parameters of getAccountInfo.
type AccountInfoOptions struct {
	Encoding  string     `json:"encoding,omitempty"`
	DataSlice *DataSlice `json:"dataSlice,omitempty"`
}

// DataSlice limits the returned account data.
type DataSlice struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// RecordResult is the result of getRewardsRecord.
type RecordResult struct {
	Address     string `json:"address"`
	Participant string `json:"participant"`
	Points      uint32 `json:"points"`
	Bump        uint8  `json:"bump"`
}

// TokenBalanceResult is the result of getTokenAccountBalance.
type TokenBalanceResult struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

// DeploymentResult is the result of getDeployment.
type DeploymentResult struct {
	ProgramID      string `json:"programId"`
	Mint           string `json:"mint"`
	Vault          string `json:"vault"`
	VaultAuthority string `json:"vaultAuthority"`
	VaultBalance   uint64 `json:"vaultBalance"`
	AccountsCount  uint64 `json:"accountsCount"`
}

// VersionResult is the result of getVersion.
type VersionResult struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}
