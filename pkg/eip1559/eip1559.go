package eip1559

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// Ensure minimum tip of 2 gwei for bundler profitability
	MinPriorityFeePerGas = big.NewInt(2_000_000_000)
	// Ensure minimum maxFeePerGas of 20 gwei for high-basefee chains like Base
	MinMaxFeePerGas = big.NewInt(20_000_000_000)

	tipBufferPercent = big.NewInt(13)
)

// Client is the part of ethclient.Client the oracle reads from.
type Client interface {
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Oracle suggests fee-market fields from the node's tip suggestion and the latest base fee.
type Oracle struct {
	client Client
}

func NewOracle(client Client) *Oracle {
	return &Oracle{client: client}
}

func (o *Oracle) SuggestFee(ctx context.Context) (*big.Int, *big.Int, error) {
	return SuggestFee(ctx, o.client)
}

// SuggestFee returns (maxFeePerGas, maxPriorityFeePerGas).
func SuggestFee(ctx context.Context, client Client) (*big.Int, *big.Int, error) {
	// Get suggested gas tip cap (maxPriorityFeePerGas)
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to suggest gas tip cap: %w", err)
	}

	// Estimate base fee for the next block
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get latest header: %w", err)
	}

	// Add 13% buffer to tip for safety
	buffer := new(big.Int).Div(tipCap, big.NewInt(100))
	buffer.Mul(buffer, tipBufferPercent)
	maxPriorityFeePerGas := new(big.Int).Add(tipCap, buffer)

	if maxPriorityFeePerGas.Cmp(MinPriorityFeePerGas) < 0 {
		maxPriorityFeePerGas = new(big.Int).Set(MinPriorityFeePerGas)
	}

	var maxFeePerGas *big.Int

	baseFee := header.BaseFee
	if baseFee != nil {
		// maxFeePerGas = (2 * baseFee) + maxPriorityFeePerGas, so the operation
		// stays includable even if baseFee doubles before it lands
		maxFeePerGas = new(big.Int).Add(
			new(big.Int).Mul(baseFee, big.NewInt(2)),
			maxPriorityFeePerGas,
		)

		if maxFeePerGas.Cmp(MinMaxFeePerGas) < 0 {
			maxFeePerGas = new(big.Int).Set(MinMaxFeePerGas)
		}
	} else {
		// Legacy (pre-EIP-1559) chain - use maxPriorityFeePerGas as maxFeePerGas
		maxFeePerGas = new(big.Int).Set(maxPriorityFeePerGas)
	}

	return maxFeePerGas, maxPriorityFeePerGas, nil
}
