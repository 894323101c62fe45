package preset

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/samber/lo"
)

var (
	DefaultReceiptTimeout  = 30 * time.Second
	DefaultReceiptInterval = 2 * time.Second

	userOpEventTopic0 = crypto.Keccak256Hash([]byte("UserOperationEvent(bytes32,address,address,uint256,bool,uint256,uint256)"))
)

// AwaitReceipt polls the entry point for the UserOperationEvent of
// userOpHash every interval until it shows up or timeout elapses. It returns
// the hash of the transaction that included the operation, or found=false
// once the deadline passes; running out of time is not an error.
//
// Query failures are returned as is and context cancellation stops the wait.
func (b *Builder) AwaitReceipt(ctx context.Context, userOpHash common.Hash, timeout, interval time.Duration) (common.Hash, bool, error) {
	if timeout <= 0 {
		timeout = DefaultReceiptTimeout
	}
	if interval <= 0 {
		interval = DefaultReceiptInterval
	}

	lgr := b.logger.With("userOpHash", userOpHash.Hex())
	deadline := time.Now().Add(timeout)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		txHash, found, err := b.pollUserOpReceipt(ctx, userOpHash)
		if err != nil {
			b.metrics.IncReceiptOutcome("error")
			return common.Hash{}, false, err
		}
		if found {
			b.metrics.IncReceiptOutcome("found")
			lgr.Info("user operation mined", "txHash", txHash.Hex(), "attempts", attempt)
			return txHash, true, nil
		}

		timer := time.NewTimer(min(interval, time.Until(deadline)))
		select {
		case <-ctx.Done():
			timer.Stop()
			b.metrics.IncReceiptOutcome("canceled")
			return common.Hash{}, false, ctx.Err()
		case <-timer.C:
		}
	}

	b.metrics.IncReceiptOutcome("timeout")
	lgr.Info("user operation not mined before deadline", "timeout", timeout, "attempts", attempt)
	return common.Hash{}, false, nil
}

// pollUserOpReceipt runs a single UserOperationEvent query.
func (b *Builder) pollUserOpReceipt(ctx context.Context, userOpHash common.Hash) (common.Hash, bool, error) {
	b.metrics.IncReceiptPoll()

	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(0),
		Addresses: []common.Address{b.entrypoint},
		Topics:    [][]common.Hash{{userOpEventTopic0}, {userOpHash}},
	}

	if b.receiptLookbackBlocks > 0 {
		currentBlock, err := b.network.BlockNumber(ctx)
		if err != nil {
			return common.Hash{}, false, fmt.Errorf("failed to get current block: %w", err)
		}

		fromBlock := uint64(0)
		if currentBlock > b.receiptLookbackBlocks {
			fromBlock = currentBlock - b.receiptLookbackBlocks
		}
		query.FromBlock = new(big.Int).SetUint64(fromBlock)
		query.ToBlock = new(big.Int).SetUint64(currentBlock)
	}

	logs, err := b.network.FilterLogs(ctx, query)
	if err != nil {
		return common.Hash{}, false, fmt.Errorf("failed to filter logs: %w", err)
	}

	// a log dropped by a reorg does not count
	event, found := lo.Find(logs, func(l types.Log) bool {
		return !l.Removed
	})
	if !found {
		return common.Hash{}, false, nil
	}
	return event.TxHash, true, nil
}
