// Provide primitive to work with a bundler RPC
// Bundler RPC is stateless
package bundler

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/AvaProtocol/userop-builder/pkg/erc4337/userop"
	"github.com/AvaProtocol/userop-builder/pkg/logger"
)

const (
	methodSendUserOperation        = "eth_sendUserOperation"
	methodEstimateUserOperationGas = "eth_estimateUserOperationGas"
	methodGetUserOperationReceipt  = "eth_getUserOperationReceipt"
	methodSupportedEntryPoints     = "eth_supportedEntryPoints"
)

type GasEstimation struct {
	PreVerificationGas   *big.Int
	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int
}

type gasEstimationJSON struct {
	PreVerificationGas   *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit         *hexutil.Big `json:"callGasLimit"`
}

// UserOperationReceipt is the subset of eth_getUserOperationReceipt the CLI reports.
type UserOperationReceipt struct {
	UserOpHash    common.Hash    `json:"userOpHash"`
	Sender        common.Address `json:"sender"`
	Paymaster     common.Address `json:"paymaster"`
	Success       bool           `json:"success"`
	Reason        string         `json:"reason"`
	ActualGasCost *hexutil.Big   `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big   `json:"actualGasUsed"`
	Receipt       struct {
		TransactionHash common.Hash  `json:"transactionHash"`
		BlockNumber     *hexutil.Big `json:"blockNumber"`
	} `json:"receipt"`
}

// BundlerClient defines a client for interacting with an EIP-4337 bundler RPC endpoint.
type BundlerClient struct {
	client *rpc.Client
	logger logger.Logger
}

// NewBundlerClient creates a new BundlerClient that connects to the given URL.
func NewBundlerClient(ctx context.Context, url string, lgr logger.Logger) (*BundlerClient, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error creating bundler client: %w", err)
	}
	return &BundlerClient{client: c, logger: logger.EnsureLogger(lgr)}, nil
}

// Close closes the underlying RPC client connection.
func (bc *BundlerClient) Close() {
	bc.client.Close()
}

// SendUserOperation sends a signed UserOperation to the bundler and returns its userOpHash.
func (bc *BundlerClient) SendUserOperation(ctx context.Context, op userop.UserOperation, entrypoint common.Address) (common.Hash, error) {
	var userOpHash common.Hash

	bc.logger.Debug("sending user operation to bundler",
		"sender", op.Sender.Hex(),
		"nonce", op.Copy().Nonce.String(),
		"entrypoint", entrypoint.Hex())

	// Some bundlers require EIP-55 checksummed addresses for EntryPoint
	if err := bc.client.CallContext(ctx, &userOpHash, methodSendUserOperation, op, entrypoint.Hex()); err != nil {
		return common.Hash{}, fmt.Errorf("%s failed: %w", methodSendUserOperation, err)
	}
	return userOpHash, nil
}

// EstimateUserOperationGas estimates the gas required for a UserOperation.
// https://eips.ethereum.org/EIPS/eip-4337#rpc-methods-eth-namespace
// The signature field is ignored by the wallet, but it may need a "semi-valid" signature of the right length.
func (bc *BundlerClient) EstimateUserOperationGas(ctx context.Context, op userop.UserOperation, entrypoint common.Address) (*GasEstimation, error) {
	var result gasEstimationJSON
	if err := bc.client.CallContext(ctx, &result, methodEstimateUserOperationGas, op, entrypoint.Hex()); err != nil {
		return nil, fmt.Errorf("%s failed: %w", methodEstimateUserOperationGas, err)
	}

	if result.CallGasLimit == nil || result.VerificationGasLimit == nil || result.PreVerificationGas == nil {
		return nil, fmt.Errorf("%s returned an incomplete estimation", methodEstimateUserOperationGas)
	}

	return &GasEstimation{
		PreVerificationGas:   result.PreVerificationGas.ToInt(),
		VerificationGasLimit: result.VerificationGasLimit.ToInt(),
		CallGasLimit:         result.CallGasLimit.ToInt(),
	}, nil
}

// GetUserOperationReceipt fetches the receipt of a UserOperation. It returns nil until the operation is mined.
func (bc *BundlerClient) GetUserOperationReceipt(ctx context.Context, userOpHash common.Hash) (*UserOperationReceipt, error) {
	var receipt *UserOperationReceipt
	if err := bc.client.CallContext(ctx, &receipt, methodGetUserOperationReceipt, userOpHash); err != nil {
		return nil, fmt.Errorf("%s failed: %w", methodGetUserOperationReceipt, err)
	}
	return receipt, nil
}

func (bc *BundlerClient) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var entrypoints []common.Address
	if err := bc.client.CallContext(ctx, &entrypoints, methodSupportedEntryPoints); err != nil {
		return nil, fmt.Errorf("%s failed: %w", methodSupportedEntryPoints, err)
	}
	return entrypoints, nil
}
