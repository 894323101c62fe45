package userop

import (
	"bytes"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// GasOverheads models the bundler-side costs preVerificationGas has to cover.
// A zero field falls back to the matching DefaultGasOverheads value.
type GasOverheads struct {
	// Fixed is the per-bundle overhead, shared by all operations of a bundle.
	Fixed int64 `yaml:"fixed"`
	// PerUserOp is the per-operation overhead, beyond the calldata cost.
	PerUserOp int64 `yaml:"per_user_op"`
	// PerUserOpWord is charged for every 32-byte word of the packed operation.
	PerUserOpWord int64 `yaml:"per_user_op_word"`
	ZeroByte      int64 `yaml:"zero_byte"`
	NonZeroByte   int64 `yaml:"non_zero_byte"`
	// BundleSize is the expected number of operations per bundle.
	BundleSize int64 `yaml:"bundle_size"`
	// SigSize is the signature length assumed while the operation is unsigned.
	SigSize int64 `yaml:"sig_size"`
}

var DefaultGasOverheads = GasOverheads{
	Fixed:         21000,
	PerUserOp:     18300,
	PerUserOpWord: 4,
	ZeroByte:      4,
	NonZeroByte:   16,
	BundleSize:    1,
	SigSize:       65,
}

// placeholder used when sizing an operation whose preVerificationGas is not known yet
var preVerificationGasPlaceholder = big.NewInt(21000)

// WithDefaults fills every zero field from DefaultGasOverheads.
func (o GasOverheads) WithDefaults() GasOverheads {
	pick := func(v, d int64) int64 {
		if v == 0 {
			return d
		}
		return v
	}
	return GasOverheads{
		Fixed:         pick(o.Fixed, DefaultGasOverheads.Fixed),
		PerUserOp:     pick(o.PerUserOp, DefaultGasOverheads.PerUserOp),
		PerUserOpWord: pick(o.PerUserOpWord, DefaultGasOverheads.PerUserOpWord),
		ZeroByte:      pick(o.ZeroByte, DefaultGasOverheads.ZeroByte),
		NonZeroByte:   pick(o.NonZeroByte, DefaultGasOverheads.NonZeroByte),
		BundleSize:    pick(o.BundleSize, DefaultGasOverheads.BundleSize),
		SigSize:       pick(o.SigSize, DefaultGasOverheads.SigSize),
	}
}

// CalcPreVerificationGas returns the gas needed to cover the calldata of op
// plus the bundle overheads. An unset preVerificationGas and an empty
// signature are replaced by placeholders of realistic size before packing.
func CalcPreVerificationGas(op UserOperation, overheads GasOverheads) *big.Int {
	ov := overheads.WithDefaults()

	sized := op.Copy()
	if sized.PreVerificationGas.Sign() == 0 {
		sized.PreVerificationGas = new(big.Int).Set(preVerificationGasPlaceholder)
	}
	if len(sized.Signature) == 0 {
		sized.Signature = bytes.Repeat([]byte{0x01}, int(ov.SigSize))
	}

	packed := sized.Pack()
	words := (len(packed) + 31) / 32

	var callDataCost int64
	for _, b := range packed {
		if b == 0 {
			callDataCost += ov.ZeroByte
		} else {
			callDataCost += ov.NonZeroByte
		}
	}

	total := float64(callDataCost) +
		float64(ov.Fixed)/float64(ov.BundleSize) +
		float64(ov.PerUserOp) +
		float64(ov.PerUserOpWord)*float64(words)

	return big.NewInt(int64(math.Round(total)))
}

// DummySignature is a signature-sized stand-in used only for gas sizing.
func DummySignature() []byte {
	return bytes.Repeat([]byte{0x01}, int(DefaultGasOverheads.SigSize))
}

// DummyPaymasterAndData has the VerifyingPaymaster layout:
// address(20) + abi.encode(uint48 validUntil, uint48 validAfter)(64) + signature(65) = 149 bytes.
// Only its size and zero/non-zero mix matter; it is never sent.
func DummyPaymasterAndData() []byte {
	out := make([]byte, 0, 149)
	out = append(out, bytes.Repeat([]byte{0x01}, common.AddressLength)...)
	for i := 0; i < 2; i++ {
		out = append(out, make([]byte, 26)...)
		out = append(out, bytes.Repeat([]byte{0x01}, 6)...)
	}
	out = append(out, DummySignature()...)
	return out
}
