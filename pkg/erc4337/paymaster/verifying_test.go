package paymaster

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/userop-builder/core/chainio/signer"
)

type fakeCaller struct {
	hash  [32]byte
	calls []ethereum.CallMsg
}

func (f *fakeCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls = append(f.calls, call)
	method := VerifyingPaymasterABI.Methods["getHash"]
	if !bytes.HasPrefix(call.Data, method.ID) {
		return nil, errors.New("unexpected call")
	}
	return method.Outputs.Pack(f.hash)
}

func TestVerifyingPaymasterSponsor(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	address := common.HexToAddress("0xB985af5f96EF2722DC99aEBA573520903B86505e")
	conn := &fakeCaller{hash: crypto.Keccak256Hash([]byte("paymaster"))}
	pm := NewVerifyingPaymaster(conn, address, key, 15*time.Minute)
	now := time.Unix(1_700_000_000, 0)
	pm.now = func() time.Time { return now }

	data, err := pm.Sponsor(context.Background(), sampleOp())
	require.NoError(t, err)
	require.Len(t, data, 149)

	assert.Equal(t, address.Bytes(), data[:20])

	window, err := validityArgs.Unpack(data[20:84])
	require.NoError(t, err)
	assert.Equal(t, now.Unix()+900, window[0].(*big.Int).Int64())
	assert.Equal(t, now.Unix()-120, window[1].(*big.Int).Int64())

	recovered, err := signer.RecoverMessageSigner(conn.hash[:], data[84:])
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), recovered)

	require.Len(t, conn.calls, 1)
	assert.Equal(t, address, *conn.calls[0].To)
}

func TestVerifyingPaymasterPropagatesCallErrors(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	pm := NewVerifyingPaymaster(&failingCaller{}, common.HexToAddress("0x01"), key, time.Minute)
	_, err = pm.Sponsor(context.Background(), sampleOp())
	assert.Error(t, err)
}

type failingCaller struct{}

func (failingCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func (failingCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, errors.New("execution reverted")
}
