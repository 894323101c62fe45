// Package preset builds, prices and signs ERC-4337 (EntryPoint v0.6)
// UserOperations for a smart account, and waits for them to be mined.
package preset

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/AvaProtocol/userop-builder/metrics"
	"github.com/AvaProtocol/userop-builder/pkg/eip1559"
	"github.com/AvaProtocol/userop-builder/pkg/erc4337/userop"
	"github.com/AvaProtocol/userop-builder/pkg/logger"
)

var (
	// Base verification budget; the creation cost of an undeployed account is added on top.
	DEFAULT_VERIFICATION_GAS_LIMIT = big.NewInt(100000)

	// An undeployed account cannot be simulated, so its targets are estimated
	// directly and the result inflated by this percentage for entry point overhead.
	PHANTOM_CALL_GAS_OVERHEAD_PERCENT = int64(20)
	// Inflated estimates below the floor are not trusted and replaced by the fallback.
	PHANTOM_CALL_GAS_FLOOR    = big.NewInt(30000)
	PHANTOM_CALL_GAS_FALLBACK = big.NewInt(500000)

	// Chains whose base fee is fixed so the priority fee has to equal the max fee:
	// Celo, Celo Alfajores, Celo Baklava.
	DefaultFixedPriorityFeeChains = []uint64{42220, 44787, 62320}
)

type Config struct {
	EntrypointAddress common.Address
	// AccountAddress overrides the counterfactual address of the account.
	AccountAddress *common.Address
	// Overheads used for preVerificationGas. Zero fields take the defaults.
	Overheads userop.GasOverheads
	// Nil means DefaultFixedPriorityFeeChains, an empty slice disables the rule.
	FixedPriorityFeeChains []uint64

	// FeeOracle defaults to an eip1559 oracle when the network can serve one.
	FeeOracle FeeOracle
	Paymaster Paymaster

	// ReceiptLookbackBlocks limits receipt queries to the most recent blocks. 0 scans from genesis.
	ReceiptLookbackBlocks uint64

	Logger logger.Logger
	// Registerer receives the builder counters. A registerer can back a single builder.
	Registerer prometheus.Registerer
}

// Builder turns transaction intents into UserOperations for one account.
// It caches the sender address, the chain id and the fact that the account
// is deployed for its whole lifetime.
type Builder struct {
	network    Network
	account    Account
	entrypoint common.Address

	accountAddress         *common.Address
	overheads              userop.GasOverheads
	fixedPriorityFeeChains map[uint64]struct{}
	feeOracle              FeeOracle
	paymaster              Paymaster
	receiptLookbackBlocks  uint64

	logger  logger.Logger
	metrics metrics.MetricsGenerator

	// only ever flips false -> true
	deployed atomic.Bool

	senderMu sync.Mutex
	sender   *common.Address

	chainMu sync.Mutex
	chainID *big.Int
}

func NewBuilder(network Network, account Account, cfg Config) (*Builder, error) {
	if network == nil {
		return nil, ErrMissingNetwork
	}
	if account == nil {
		return nil, ErrMissingAccount
	}
	if cfg.EntrypointAddress == (common.Address{}) {
		return nil, ErrMissingEntrypoint
	}

	chains := cfg.FixedPriorityFeeChains
	if chains == nil {
		chains = DefaultFixedPriorityFeeChains
	}

	feeOracle := cfg.FeeOracle
	if feeOracle == nil {
		if client, ok := network.(eip1559.Client); ok {
			feeOracle = eip1559.NewOracle(client)
		}
	}

	var m metrics.MetricsGenerator = metrics.NoopMetrics{}
	if cfg.Registerer != nil {
		m = metrics.NewBuilderMetrics(cfg.Registerer)
	}

	b := &Builder{
		network:    network,
		account:    account,
		entrypoint: cfg.EntrypointAddress,
		overheads:  cfg.Overheads.WithDefaults(),
		fixedPriorityFeeChains: lo.SliceToMap(chains, func(id uint64) (uint64, struct{}) {
			return id, struct{}{}
		}),
		feeOracle:             feeOracle,
		paymaster:             cfg.Paymaster,
		receiptLookbackBlocks: cfg.ReceiptLookbackBlocks,
		logger:                logger.EnsureLogger(cfg.Logger),
		metrics:               m,
	}
	if cfg.AccountAddress != nil {
		addr := *cfg.AccountAddress
		b.accountAddress = &addr
		// the account reads its nonce at the same address the operation is sent from
		if pinner, ok := account.(AddressPinner); ok {
			pinner.PinAddress(addr)
		}
	}

	return b, nil
}

func (b *Builder) EntrypointAddress() common.Address {
	return b.entrypoint
}

// Sender returns the account address, computing it on first use only.
func (b *Builder) Sender(ctx context.Context) (common.Address, error) {
	b.senderMu.Lock()
	defer b.senderMu.Unlock()

	if b.sender != nil {
		return *b.sender, nil
	}

	var sender common.Address
	if b.accountAddress != nil {
		sender = *b.accountAddress
	} else {
		addr, err := b.account.CounterfactualAddress(ctx)
		if err != nil {
			return common.Address{}, fmt.Errorf("failed to get counterfactual address: %w", err)
		}
		sender = addr
	}

	b.sender = &sender
	return sender, nil
}

// ChainID is read from the network once.
func (b *Builder) ChainID(ctx context.Context) (*big.Int, error) {
	b.chainMu.Lock()
	defer b.chainMu.Unlock()

	if b.chainID == nil {
		chainID, err := b.network.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get chain ID: %w", err)
		}
		b.chainID = new(big.Int).Set(chainID)
	}
	return new(big.Int).Set(b.chainID), nil
}

// ResolveDeploymentState reports whether the account is still phantom. Once
// code was seen at the sender address the answer is cached for good and the
// network is not asked again.
func (b *Builder) ResolveDeploymentState(ctx context.Context) (bool, error) {
	if b.deployed.Load() {
		return false, nil
	}

	sender, err := b.Sender(ctx)
	if err != nil {
		return false, err
	}

	code, err := b.network.CodeAt(ctx, sender, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get code at %s: %w", sender.Hex(), err)
	}

	if len(code) > 0 {
		b.deployed.Store(true)
		b.logger.Debug("smart wallet is deployed", "sender", sender.Hex())
		return false, nil
	}

	return true, nil
}

// ResolveInitCode is empty for a deployed account, the account's deployment code otherwise.
func (b *Builder) ResolveInitCode(ctx context.Context) ([]byte, error) {
	phantom, err := b.ResolveDeploymentState(ctx)
	if err != nil {
		return nil, err
	}
	return b.resolveInitCode(ctx, phantom)
}

func (b *Builder) resolveInitCode(ctx context.Context, phantom bool) ([]byte, error) {
	if !phantom {
		return []byte{}, nil
	}

	initCode, err := b.account.InitCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get init code: %w", err)
	}
	return initCode, nil
}

// ResolveCallDataAndGas encodes the call and picks its callGasLimit.
//
// A deployed account is simulated as called by the entry point unless the
// intent carries a gas limit. A phantom account does not exist yet, so the
// targets are estimated directly (batch legs concurrently) and the sum goes
// through the phantom gas policy.
func (b *Builder) ResolveCallDataAndGas(ctx context.Context, intent TransactionDetails, batch *BatchData) (*CallDataAndGas, error) {
	if err := validateIntent(intent, batch); err != nil {
		return nil, err
	}

	phantom, err := b.ResolveDeploymentState(ctx)
	if err != nil {
		return nil, err
	}
	return b.resolveCallDataAndGas(ctx, intent, batch, phantom)
}

func validateIntent(intent TransactionDetails, batch *BatchData) error {
	if err := intent.Validate(); err != nil {
		return err
	}
	if batch != nil {
		return batch.Validate()
	}
	return nil
}

func (b *Builder) resolveCallDataAndGas(ctx context.Context, intent TransactionDetails, batch *BatchData, phantom bool) (*CallDataAndGas, error) {
	var callData []byte
	if batch != nil {
		callData = append([]byte{}, intent.Data...)
	} else {
		encoded, err := b.account.EncodeExecute(ctx, intent.Target, orZero(intent.Value), intent.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode execute call: %w", err)
		}
		callData = encoded
	}

	sender, err := b.Sender(ctx)
	if err != nil {
		return nil, err
	}

	var callGasLimit *big.Int
	switch {
	case phantom:
		estimate, err := b.estimateTargets(ctx, sender, intent, batch)
		if err != nil {
			return nil, err
		}
		limit, fellBack := phantomCallGasLimit(estimate)
		if fellBack {
			b.metrics.IncPhantomCallGasFallback()
			b.logger.Debug("phantom call gas estimate below floor, using fallback",
				"estimate", estimate.String(), "fallback", limit.String())
		}
		callGasLimit = limit
	case intent.GasLimit != nil && intent.GasLimit.Sign() > 0:
		callGasLimit = new(big.Int).Set(intent.GasLimit)
	default:
		callGasLimit, err = b.estimateGas(ctx, ethereum.CallMsg{
			From:  b.entrypoint,
			To:    &sender,
			Data:  callData,
			Value: intent.Value,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to estimate call gas: %w", err)
		}
	}

	return &CallDataAndGas{CallData: callData, CallGasLimit: callGasLimit}, nil
}

func (b *Builder) estimateTargets(ctx context.Context, sender common.Address, intent TransactionDetails, batch *BatchData) (*big.Int, error) {
	if batch == nil {
		target := intent.Target
		gas, err := b.estimateGas(ctx, ethereum.CallMsg{
			From:  sender,
			To:    &target,
			Data:  intent.Data,
			Value: intent.Value,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to estimate call to %s: %w", target.Hex(), err)
		}
		return gas, nil
	}

	estimates := make([]*big.Int, len(batch.Targets))
	g, gctx := errgroup.WithContext(ctx)
	for i := range batch.Targets {
		i := i // per-iteration copy (go 1.22 loopvar semantics on a go 1.21 toolchain)
		g.Go(func() error {
			target := batch.Targets[i]
			gas, err := b.estimateGas(gctx, ethereum.CallMsg{
				From:  sender,
				To:    &target,
				Data:  batch.Data[i],
				Value: batch.Values[i],
			})
			if err != nil {
				return fmt.Errorf("failed to estimate batch call %d to %s: %w", i, target.Hex(), err)
			}
			estimates[i] = gas
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return lo.Reduce(estimates, func(sum *big.Int, gas *big.Int, _ int) *big.Int {
		return sum.Add(sum, gas)
	}, new(big.Int)), nil
}

// phantomCallGasLimit inflates estimate by the overhead percentage, rounding
// up, and swaps in the fallback when the result is below the floor.
func phantomCallGasLimit(estimate *big.Int) (*big.Int, bool) {
	limit := new(big.Int).Mul(estimate, big.NewInt(100+PHANTOM_CALL_GAS_OVERHEAD_PERCENT))
	limit.Add(limit, big.NewInt(99))
	limit.Div(limit, big.NewInt(100))

	if limit.Cmp(PHANTOM_CALL_GAS_FLOOR) < 0 {
		return new(big.Int).Set(PHANTOM_CALL_GAS_FALLBACK), true
	}
	return limit, false
}

// EstimateCreationGas simulates the deployer call held by initCode. Empty initCode costs nothing.
func (b *Builder) EstimateCreationGas(ctx context.Context, initCode []byte) (*big.Int, error) {
	if len(initCode) == 0 {
		return new(big.Int), nil
	}
	if len(initCode) < common.AddressLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedInitCode, len(initCode))
	}

	deployer := common.BytesToAddress(initCode[:common.AddressLength])
	gas, err := b.estimateGas(ctx, ethereum.CallMsg{
		To:   &deployer,
		Data: initCode[common.AddressLength:],
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate creation gas: %w", err)
	}
	return gas, nil
}

// ResolveFees returns (maxFeePerGas, maxPriorityFeePerGas). Fees given by the
// intent are used when both are present, otherwise both come from the oracle.
func (b *Builder) ResolveFees(ctx context.Context, intent TransactionDetails) (*big.Int, *big.Int, error) {
	if err := intent.Validate(); err != nil {
		return nil, nil, err
	}
	if intent.MaxFeePerGas != nil && intent.MaxPriorityFeePerGas != nil {
		return new(big.Int).Set(intent.MaxFeePerGas), new(big.Int).Set(intent.MaxPriorityFeePerGas), nil
	}

	if b.feeOracle == nil {
		return nil, nil, ErrMissingFeeOracle
	}

	maxFeePerGas, maxPriorityFeePerGas, err := b.feeOracle.SuggestFee(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to suggest fees: %w", err)
	}

	chainID, err := b.ChainID(ctx)
	if err != nil {
		return nil, nil, err
	}
	if b.hasFixedPriorityFee(chainID) {
		maxPriorityFeePerGas = new(big.Int).Set(maxFeePerGas)
	}

	return maxFeePerGas, maxPriorityFeePerGas, nil
}

func (b *Builder) hasFixedPriorityFee(chainID *big.Int) bool {
	if !chainID.IsUint64() {
		return false
	}
	_, ok := b.fixedPriorityFeeChains[chainID.Uint64()]
	return ok
}

// BuildUnsigned fills every field of the operation except the signature.
// Nothing is returned when any lookup fails.
func (b *Builder) BuildUnsigned(ctx context.Context, intent TransactionDetails, batch *BatchData) (userop.UserOperation, error) {
	op, err := b.buildUnsigned(ctx, intent, batch)
	if err != nil {
		b.metrics.IncBuild("error")
		return userop.UserOperation{}, err
	}
	b.metrics.IncBuild("ok")
	return op, nil
}

func (b *Builder) buildUnsigned(ctx context.Context, intent TransactionDetails, batch *BatchData) (userop.UserOperation, error) {
	if err := validateIntent(intent, batch); err != nil {
		return userop.UserOperation{}, err
	}

	// one lookup per build so call gas and initCode agree on the account state
	phantom, err := b.ResolveDeploymentState(ctx)
	if err != nil {
		return userop.UserOperation{}, err
	}

	call, err := b.resolveCallDataAndGas(ctx, intent, batch, phantom)
	if err != nil {
		return userop.UserOperation{}, err
	}

	initCode, err := b.resolveInitCode(ctx, phantom)
	if err != nil {
		return userop.UserOperation{}, err
	}

	creationGas, err := b.EstimateCreationGas(ctx, initCode)
	if err != nil {
		return userop.UserOperation{}, err
	}
	verificationGasLimit := new(big.Int).Add(DEFAULT_VERIFICATION_GAS_LIMIT, creationGas)

	maxFeePerGas, maxPriorityFeePerGas, err := b.ResolveFees(ctx, intent)
	if err != nil {
		return userop.UserOperation{}, err
	}

	sender, err := b.Sender(ctx)
	if err != nil {
		return userop.UserOperation{}, err
	}

	nonce := intent.Nonce
	if nonce == nil {
		nonce, err = b.account.Nonce(ctx)
		if err != nil {
			return userop.UserOperation{}, fmt.Errorf("failed to get nonce: %w", err)
		}
	}

	provisional := userop.UserOperation{
		Sender:               sender,
		Nonce:                nonce,
		InitCode:             initCode,
		CallData:             call.CallData,
		CallGasLimit:         call.CallGasLimit,
		VerificationGasLimit: verificationGasLimit,
		PreVerificationGas:   new(big.Int),
		MaxFeePerGas:         maxFeePerGas,
		MaxPriorityFeePerGas: maxPriorityFeePerGas,
		PaymasterAndData:     []byte{},
		Signature:            []byte{},
	}.Copy()

	b.logger.Debug("built provisional user operation",
		"sender", sender.Hex(),
		"nonce", provisional.Nonce.String(),
		"callGasLimit", provisional.CallGasLimit.String(),
		"verificationGasLimit", provisional.VerificationGasLimit.String(),
		"deploy", len(initCode) > 0)

	if b.paymaster != nil {
		sponsored, ok, err := b.negotiateSponsorship(ctx, provisional)
		if err != nil {
			return userop.UserOperation{}, err
		}
		if ok {
			return sponsored, nil
		}
	}

	return unsponsoredShape(provisional, b.overheads), nil
}

// UserOpHash is the hash the entry point recomputes for op on this chain.
func (b *Builder) UserOpHash(ctx context.Context, op userop.UserOperation) (common.Hash, error) {
	chainID, err := b.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	return op.Hash(b.entrypoint, chainID), nil
}

// Sign returns a copy of op carrying the account signature over its userOpHash.
// The hash binds the entry point and chain id; a mismatch is only caught on-chain.
func (b *Builder) Sign(ctx context.Context, op userop.UserOperation) (userop.UserOperation, error) {
	hash, err := b.UserOpHash(ctx, op)
	if err != nil {
		return userop.UserOperation{}, err
	}

	sig, err := b.account.SignUserOpHash(ctx, hash)
	if err != nil {
		return userop.UserOperation{}, fmt.Errorf("failed to sign user operation: %w", err)
	}
	if len(sig) == 0 {
		return userop.UserOperation{}, ErrEmptySignature
	}

	return op.WithSignature(sig), nil
}

func (b *Builder) BuildAndSign(ctx context.Context, intent TransactionDetails, batch *BatchData) (userop.UserOperation, error) {
	op, err := b.BuildUnsigned(ctx, intent, batch)
	if err != nil {
		return userop.UserOperation{}, err
	}
	return b.Sign(ctx, op)
}

func (b *Builder) estimateGas(ctx context.Context, msg ethereum.CallMsg) (*big.Int, error) {
	gas, err := b.network.EstimateGas(ctx, msg)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(gas), nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
