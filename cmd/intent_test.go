package cmd

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/userop-builder/core/chainio/aa"
)

const (
	counter = "0x69256ca54e6296e460dec7b29b7dcd97b81a3d55"
	token   = "0x036cbd53842c5426634e7929541ec2318f3dcf7e"
)

func TestParseSingleCall(t *testing.T) {
	f := intentFlags{to: []string{counter}, value: []string{"0.01"}, data: []string{"0xd09de08a"}}

	intent, batch, err := f.parse()
	require.NoError(t, err)
	assert.Nil(t, batch)
	assert.Equal(t, common.HexToAddress(counter), intent.Target)
	assert.Equal(t, "10000000000000000", intent.Value.String())
	assert.Equal(t, []byte{0xd0, 0x9d, 0xe0, 0x8a}, intent.Data)
	assert.Nil(t, intent.GasLimit)
	assert.Nil(t, intent.Nonce)
	assert.Nil(t, intent.MaxFeePerGas)
}

func TestParseSingleCallDefaults(t *testing.T) {
	f := intentFlags{to: []string{counter}}

	intent, batch, err := f.parse()
	require.NoError(t, err)
	assert.Nil(t, batch)
	assert.Equal(t, int64(0), intent.Value.Int64())
	assert.Empty(t, intent.Data)
}

func TestParseOverrides(t *testing.T) {
	f := intentFlags{
		to:                 []string{counter},
		nonce:              "0x05",
		gasLimit:           80000,
		maxFeeGwei:         "30",
		maxPriorityFeeGwei: "1.5",
	}

	intent, _, err := f.parse()
	require.NoError(t, err)
	assert.Equal(t, int64(5), intent.Nonce.Int64())
	assert.Equal(t, int64(80000), intent.GasLimit.Int64())
	assert.Equal(t, int64(30_000_000_000), intent.MaxFeePerGas.Int64())
	assert.Equal(t, int64(1_500_000_000), intent.MaxPriorityFeePerGas.Int64())
}

func TestParseBatch(t *testing.T) {
	f := intentFlags{
		to:   []string{counter, token},
		data: []string{"0xd09de08a", "0x"},
	}

	intent, batch, err := f.parse()
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.NoError(t, batch.Validate())
	assert.Equal(t, []common.Address{common.HexToAddress(counter), common.HexToAddress(token)}, batch.Targets)
	assert.Equal(t, int64(0), batch.Values[1].Int64())

	expected, err := aa.PackExecuteBatch(batch.Targets, batch.Values, batch.Data)
	require.NoError(t, err)
	assert.Equal(t, expected, intent.Data)
	assert.Equal(t, common.Address{}, intent.Target)
}

func TestParseRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		flags intentFlags
	}{
		{"no target", intentFlags{}},
		{"bad target", intentFlags{to: []string{"0x1234"}}},
		{"bad value", intentFlags{to: []string{counter}, value: []string{"lots"}}},
		{"negative value", intentFlags{to: []string{counter}, value: []string{"-1"}}},
		{"sub wei value", intentFlags{to: []string{counter}, value: []string{"0.0000000000000000001"}}},
		{"bad data", intentFlags{to: []string{counter}, data: []string{"0xzz"}}},
		{"value count mismatch", intentFlags{to: []string{counter, token}, value: []string{"1"}}},
		{"bad nonce", intentFlags{to: []string{counter}, nonce: "next"}},
		{"max fee without priority fee", intentFlags{to: []string{counter}, maxFeeGwei: "30"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.flags.parse()
			assert.Error(t, err)
		})
	}
}

func TestFormatGwei(t *testing.T) {
	assert.Equal(t, "0", formatGwei(nil))
	assert.Equal(t, "1.5", formatGwei(big.NewInt(1_500_000_000)))
	assert.Equal(t, "20", formatGwei(big.NewInt(20_000_000_000)))
}

