package preset

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/userop-builder/core/chainio/signer"
	"github.com/AvaProtocol/userop-builder/pkg/erc4337/userop"
)

var (
	testEntrypoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	testFactory    = common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454")
	testSender     = common.HexToAddress("0x7c3a76086588230c7B3f4839A4c1F5BBafcd57C6")
	testTarget     = common.HexToAddress("0x69256ca54e6296e460dec7b29b7dcd97b81a3d55")
)

type fakeNetwork struct {
	mu sync.Mutex

	code      []byte
	codeErr   error
	codeCalls int

	// estimates by call target, defaultEstimate otherwise
	estimates       map[common.Address]uint64
	defaultEstimate uint64
	estimateErrs    map[common.Address]error
	estimateCalls   []ethereum.CallMsg

	// logs are returned from the (foundAfter+1)th query on
	logs          []types.Log
	foundAfter    int
	filterErr     error
	filterQueries []ethereum.FilterQuery

	chainID      *big.Int
	chainIDCalls int
	blockNumber  uint64
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		estimates:       map[common.Address]uint64{},
		estimateErrs:    map[common.Address]error{},
		defaultEstimate: 50000,
		chainID:         big.NewInt(11155111),
	}
}

func (f *fakeNetwork) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codeCalls++
	if f.codeErr != nil {
		return nil, f.codeErr
	}
	return f.code, nil
}

func (f *fakeNetwork) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimateCalls = append(f.estimateCalls, msg)

	var to common.Address
	if msg.To != nil {
		to = *msg.To
	}
	if err, ok := f.estimateErrs[to]; ok {
		return 0, err
	}
	if gas, ok := f.estimates[to]; ok {
		return gas, nil
	}
	return f.defaultEstimate, nil
}

func (f *fakeNetwork) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterQueries = append(f.filterQueries, q)
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	if len(f.filterQueries) > f.foundAfter {
		return f.logs, nil
	}
	return nil, nil
}

func (f *fakeNetwork) ChainID(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chainIDCalls++
	return f.chainID, nil
}

func (f *fakeNetwork) BlockNumber(ctx context.Context) (uint64, error) {
	return f.blockNumber, nil
}

func (f *fakeNetwork) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.filterQueries)
}

type fakeAccount struct {
	key *ecdsa.PrivateKey

	nonce       *big.Int
	addrCalls   int
	nonceCalls  int
	emptySig    bool
	encodeCalls int
}

func newFakeAccount(t *testing.T) *fakeAccount {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &fakeAccount{key: key, nonce: big.NewInt(4)}
}

func (a *fakeAccount) InitCode(ctx context.Context) ([]byte, error) {
	return append(testFactory.Bytes(), 0x5f, 0xbf, 0xb9, 0xcf, 0x01), nil
}

func (a *fakeAccount) Nonce(ctx context.Context) (*big.Int, error) {
	a.nonceCalls++
	return a.nonce, nil
}

func (a *fakeAccount) EncodeExecute(ctx context.Context, target common.Address, value *big.Int, data []byte) ([]byte, error) {
	a.encodeCalls++
	out := append([]byte{0xb6, 0x1d, 0x27, 0xf6}, target.Bytes()...)
	out = append(out, common.LeftPadBytes(value.Bytes(), 32)...)
	return append(out, data...), nil
}

func (a *fakeAccount) SignUserOpHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	if a.emptySig {
		return nil, nil
	}
	return signer.SignMessage(a.key, hash.Bytes())
}

func (a *fakeAccount) CounterfactualAddress(ctx context.Context) (common.Address, error) {
	a.addrCalls++
	return testSender, nil
}

func (a *fakeAccount) owner() common.Address {
	return crypto.PubkeyToAddress(a.key.PublicKey)
}

type fakeFeeOracle struct {
	maxFee      *big.Int
	maxPriority *big.Int
	calls       int
}

func (o *fakeFeeOracle) SuggestFee(ctx context.Context) (*big.Int, *big.Int, error) {
	o.calls++
	return new(big.Int).Set(o.maxFee), new(big.Int).Set(o.maxPriority), nil
}

type fakePaymaster struct {
	data     []byte
	err      error
	received []userop.UserOperation
}

func (p *fakePaymaster) Sponsor(ctx context.Context, op userop.UserOperation) ([]byte, error) {
	p.received = append(p.received, op)
	return p.data, p.err
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func newTestBuilder(t *testing.T, network *fakeNetwork, account *fakeAccount, cfg Config) *Builder {
	cfg.EntrypointAddress = testEntrypoint
	if cfg.FeeOracle == nil {
		cfg.FeeOracle = &fakeFeeOracle{maxFee: gwei(30), maxPriority: gwei(2)}
	}
	b, err := NewBuilder(network, account, cfg)
	require.NoError(t, err)
	return b
}

// counterValue reads a counter from the registry, 0 when it was never incremented.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] == lp.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
