package aa

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

var defaultSalt = big.NewInt(0)

// GetInitCodeForFactory returns the initCode deploying the account of owner
// through factory: the factory address followed by createAccount(owner, salt).
func GetInitCodeForFactory(owner common.Address, factory common.Address, salt *big.Int) ([]byte, error) {
	if salt == nil {
		salt = defaultSalt
	}

	calldata, err := SimpleFactoryABI.Pack("createAccount", owner, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to pack createAccount: %w", err)
	}

	data := make([]byte, 0, common.AddressLength+len(calldata))
	data = append(data, factory.Bytes()...)
	data = append(data, calldata...)
	return data, nil
}

// GetInitCode is GetInitCodeForFactory against the default factory.
func GetInitCode(owner common.Address, salt *big.Int) ([]byte, error) {
	return GetInitCodeForFactory(owner, DefaultFactoryAddress, salt)
}

// GetSenderAddress asks the factory for the counterfactual address of owner's account.
func GetSenderAddress(ctx context.Context, conn bind.ContractCaller, factory common.Address, owner common.Address, salt *big.Int) (common.Address, error) {
	if salt == nil {
		salt = defaultSalt
	}

	contract := bind.NewBoundContract(factory, SimpleFactoryABI, conn, nil, nil)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAddress", owner, salt); err != nil {
		return common.Address{}, fmt.Errorf("failed to get sender address from factory %s: %w", factory.Hex(), err)
	}

	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// GetNonce reads the sender nonce for the given key from the entry point.
func GetNonce(ctx context.Context, conn bind.ContractCaller, entrypoint common.Address, sender common.Address, key *big.Int) (*big.Int, error) {
	if key == nil {
		key = defaultSalt
	}

	contract := bind.NewBoundContract(entrypoint, EntryPointABI, conn, nil, nil)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "getNonce", sender, key); err != nil {
		return nil, fmt.Errorf("failed to get nonce for %s: %w", sender.Hex(), err)
	}

	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// PackExecute generates the callData of a single call forwarded by the account.
func PackExecute(targetAddress common.Address, ethValue *big.Int, calldata []byte) ([]byte, error) {
	if ethValue == nil {
		ethValue = big.NewInt(0)
	}
	return SimpleAccountABI.Pack("execute", targetAddress, ethValue, calldata)
}

// PackExecuteBatch generates the callData of several calls executed atomically.
// All three slices must have the same length.
func PackExecuteBatch(targets []common.Address, values []*big.Int, calldata [][]byte) ([]byte, error) {
	if len(targets) != len(values) || len(targets) != len(calldata) {
		return nil, fmt.Errorf("batch length mismatch: %d targets, %d values, %d calldata", len(targets), len(values), len(calldata))
	}

	normalized := make([]*big.Int, len(values))
	for i, v := range values {
		if v == nil {
			v = big.NewInt(0)
		}
		normalized[i] = v
	}

	return SimpleAccountABI.Pack("executeBatchWithValues", targets, normalized, calldata)
}
