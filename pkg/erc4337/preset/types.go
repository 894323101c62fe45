package preset

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/userop-builder/pkg/erc4337/userop"
)

// Network is the blockchain data provider. *ethclient.Client satisfies it and
// is safe to share between builders.
type Network interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// FeeOracle suggests (maxFeePerGas, maxPriorityFeePerGas).
type FeeOracle interface {
	SuggestFee(ctx context.Context) (*big.Int, *big.Int, error)
}

// Paymaster returns the paymasterAndData sponsoring op. An empty result
// means the paymaster declines and the operation goes out unsponsored.
type Paymaster interface {
	Sponsor(ctx context.Context, op userop.UserOperation) ([]byte, error)
}

// Account is implemented once per smart account flavour. The builder never
// knows which concrete account it drives.
type Account interface {
	// InitCode is the factory address followed by the deployment call.
	InitCode(ctx context.Context) ([]byte, error)
	Nonce(ctx context.Context) (*big.Int, error)
	// EncodeExecute wraps a call so the account forwards it to target.
	EncodeExecute(ctx context.Context, target common.Address, value *big.Int, data []byte) ([]byte, error)
	SignUserOpHash(ctx context.Context, hash common.Hash) ([]byte, error)
	// CounterfactualAddress is valid before the account is deployed.
	CounterfactualAddress(ctx context.Context) (common.Address, error)
}

// AddressPinner is implemented by accounts whose address can be overridden.
// NewBuilder pins Config.AccountAddress on them.
type AddressPinner interface {
	PinAddress(addr common.Address)
}

// TransactionDetails is the caller intent. Nil optional fields are resolved
// from the chain. When a batch is built, Data carries the already encoded
// batch call of the account.
type TransactionDetails struct {
	Target common.Address
	Data   []byte
	Value  *big.Int

	GasLimit             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Nonce                *big.Int
}

// BatchData lists the legs of an atomic batch, index aligned.
type BatchData struct {
	Targets []common.Address
	Data    [][]byte
	Values  []*big.Int
}

// Validate rejects negative numbers. Nil fields are unset and resolved later.
func (t TransactionDetails) Validate() error {
	fields := []struct {
		name  string
		value *big.Int
	}{
		{"value", t.Value},
		{"gasLimit", t.GasLimit},
		{"maxFeePerGas", t.MaxFeePerGas},
		{"maxPriorityFeePerGas", t.MaxPriorityFeePerGas},
		{"nonce", t.Nonce},
	}
	for _, f := range fields {
		if f.value != nil && f.value.Sign() < 0 {
			return fmt.Errorf("%w: negative %s %s", ErrMalformedIntent, f.name, f.value.String())
		}
	}
	return nil
}

func (b *BatchData) Validate() error {
	if len(b.Targets) == 0 {
		return fmt.Errorf("%w: no calls", ErrMalformedBatch)
	}
	if len(b.Targets) != len(b.Data) || len(b.Targets) != len(b.Values) {
		return fmt.Errorf("%w: %d targets, %d data, %d values", ErrMalformedBatch, len(b.Targets), len(b.Data), len(b.Values))
	}
	for i, v := range b.Values {
		if v != nil && v.Sign() < 0 {
			return fmt.Errorf("%w: negative value %s in call %d", ErrMalformedBatch, v.String(), i)
		}
	}
	return nil
}

type CallDataAndGas struct {
	CallData     []byte
	CallGasLimit *big.Int
}
