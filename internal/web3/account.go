package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CallParams describes a constant (read-only) contract call.
type CallParams struct {
	To     common.Address
	ABI    *abi.ABI
	Method string
	Args   []any
}

// TxParams describes a state-changing transaction submission. GasLimit may be
// zero, in which case the implementation estimates it.
type TxParams struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

// Account defines the wallet abstraction adapters depend on. Implementations
// own the signing key and the RPC connection; adapters only express intent.
type Account interface {
	// Address returns the signer address.
	Address() common.Address
	// ChainID returns the numeric id of the connected chain.
	ChainID() *big.Int
	// ReadContract executes a constant call and returns the unpacked outputs.
	ReadContract(ctx context.Context, call CallParams) ([]any, error)
	// SendTransaction signs and broadcasts a transaction.
	SendTransaction(ctx context.Context, tx TxParams) (common.Hash, error)
	// WaitMined blocks until the transaction is included in a block.
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	// SignMessage signs an EIP-191 personal message.
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}
