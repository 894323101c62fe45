package userop

import (
	"bytes"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEntrypoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")

func sampleOp() UserOperation {
	return UserOperation{
		Sender:               common.HexToAddress("0x7c3a76086588230c7B3f4839A4c1F5BBafcd57C6"),
		Nonce:                big.NewInt(3),
		InitCode:             []byte{},
		CallData:             common.FromHex("0xb61d27f6000000000000000000000000"),
		CallGasLimit:         big.NewInt(54000),
		VerificationGasLimit: big.NewInt(100000),
		PreVerificationGas:   big.NewInt(48000),
		MaxFeePerGas:         big.NewInt(20_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(2_000_000_000),
		PaymasterAndData:     []byte{},
		Signature:            []byte{},
	}
}

func TestHashMatchesEntrypointFormula(t *testing.T) {
	op := sampleOp()
	chainID := big.NewInt(11155111)

	expected := crypto.Keccak256Hash(
		crypto.Keccak256(op.PackForSignature()),
		common.LeftPadBytes(testEntrypoint.Bytes(), 32),
		common.LeftPadBytes(chainID.Bytes(), 32),
	)

	assert.Equal(t, expected, op.Hash(testEntrypoint, chainID))
}

func TestHashIgnoresSignatureButBindsChainAndEntrypoint(t *testing.T) {
	op := sampleOp()
	chainID := big.NewInt(8453)
	base := op.Hash(testEntrypoint, chainID)

	signed := op.WithSignature(bytes.Repeat([]byte{0xab}, 65))
	assert.Equal(t, base, signed.Hash(testEntrypoint, chainID), "signature is not part of the hash")

	assert.NotEqual(t, base, op.Hash(testEntrypoint, big.NewInt(84532)))
	assert.NotEqual(t, base, op.Hash(common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032"), chainID))

	sponsored := op.WithPaymasterAndData(DummyPaymasterAndData())
	assert.NotEqual(t, base, sponsored.Hash(testEntrypoint, chainID), "paymasterAndData is part of the hash")
}

func TestPackLayout(t *testing.T) {
	op := sampleOp()
	op.CallData = []byte{}

	// 10 static words, byte fields replaced by their hashes
	assert.Len(t, op.PackForSignature(), 10*32)

	// 11 head words + 4 empty dynamic fields (length word only)
	assert.Len(t, op.Pack(), 11*32+4*32)

	// a 65 byte signature takes a length word plus 3 data words
	signed := op.WithSignature(DummySignature())
	assert.Len(t, signed.Pack(), 11*32+3*32+32+3*32)
}

func TestTransformationsDoNotMutate(t *testing.T) {
	op := sampleOp()
	originalCallData := append([]byte(nil), op.CallData...)

	next := op.WithPreVerificationGas(big.NewInt(1))
	next.CallData[0] = 0xff
	next.Nonce.SetInt64(99)

	assert.Equal(t, originalCallData, op.CallData)
	assert.Equal(t, int64(3), op.Nonce.Int64())
	assert.Equal(t, int64(48000), op.PreVerificationGas.Int64())
	assert.Equal(t, int64(1), next.PreVerificationGas.Int64())
}

func TestCopyFillsNilNumbers(t *testing.T) {
	var op UserOperation
	c := op.Copy()

	require.NotNil(t, c.Nonce)
	require.NotNil(t, c.CallGasLimit)
	require.NotNil(t, c.VerificationGasLimit)
	require.NotNil(t, c.PreVerificationGas)
	require.NotNil(t, c.MaxFeePerGas)
	require.NotNil(t, c.MaxPriorityFeePerGas)
	assert.Equal(t, 0, c.Nonce.Sign())
	assert.NotNil(t, c.InitCode)
}

func TestJSONWireFormat(t *testing.T) {
	op := sampleOp()

	raw, err := json.Marshal(op)
	require.NoError(t, err)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "0x3", fields["nonce"])
	assert.Equal(t, "0x", fields["initCode"])
	assert.Equal(t, "0xd2f0", fields["callGasLimit"])
	assert.Equal(t, "0x", fields["signature"])

	var decoded UserOperation
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, op.Hash(testEntrypoint, big.NewInt(1)), decoded.Hash(testEntrypoint, big.NewInt(1)))
	assert.Equal(t, op.CallData, decoded.CallData)
}

func TestUnmarshalRejectsInvalidHex(t *testing.T) {
	var op UserOperation
	err := json.Unmarshal([]byte(`{"nonce":"12"}`), &op)
	assert.Error(t, err)
}
