// Package userop holds the ERC-4337 (EntryPoint v0.6) UserOperation value
// type together with the ABI packing and hashing the entry point performs.
package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	bytesType, _   = abi.NewType("bytes", "", nil)
	bytes32Type, _ = abi.NewType("bytes32", "", nil)

	// packed with the raw byte fields and the signature, used for calldata cost
	fullArgs = abi.Arguments{
		{Name: "sender", Type: addressType},
		{Name: "nonce", Type: uint256Type},
		{Name: "initCode", Type: bytesType},
		{Name: "callData", Type: bytesType},
		{Name: "callGasLimit", Type: uint256Type},
		{Name: "verificationGasLimit", Type: uint256Type},
		{Name: "preVerificationGas", Type: uint256Type},
		{Name: "maxFeePerGas", Type: uint256Type},
		{Name: "maxPriorityFeePerGas", Type: uint256Type},
		{Name: "paymasterAndData", Type: bytesType},
		{Name: "signature", Type: bytesType},
	}

	// packed the way EntryPoint.getUserOpHash does: byte fields are hashed, no signature
	signatureArgs = abi.Arguments{
		{Name: "sender", Type: addressType},
		{Name: "nonce", Type: uint256Type},
		{Name: "initCode", Type: bytes32Type},
		{Name: "callData", Type: bytes32Type},
		{Name: "callGasLimit", Type: uint256Type},
		{Name: "verificationGasLimit", Type: uint256Type},
		{Name: "preVerificationGas", Type: uint256Type},
		{Name: "maxFeePerGas", Type: uint256Type},
		{Name: "maxPriorityFeePerGas", Type: uint256Type},
		{Name: "paymasterAndData", Type: bytes32Type},
	}

	hashArgs = abi.Arguments{
		{Name: "userOpHash", Type: bytes32Type},
		{Name: "entryPoint", Type: addressType},
		{Name: "chainId", Type: uint256Type},
	}
)

// UserOperation represents an EIP-4337 style transaction for a smart contract account.
//
// The field set and order follow the EntryPoint v0.6 struct and must not change:
// the struct is also passed as-is to contract bindings expecting the UserOperation tuple.
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *big.Int       `json:"nonce"`
	InitCode             []byte         `json:"initCode"`
	CallData             []byte         `json:"callData"`
	CallGasLimit         *big.Int       `json:"callGasLimit"`
	VerificationGasLimit *big.Int       `json:"verificationGasLimit"`
	PreVerificationGas   *big.Int       `json:"preVerificationGas"`
	MaxFeePerGas         *big.Int       `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int       `json:"maxPriorityFeePerGas"`
	PaymasterAndData     []byte         `json:"paymasterAndData"`
	Signature            []byte         `json:"signature"`
}

// Copy returns a deep copy of the operation. Nil numbers are copied as zero
// so the result never carries an undefined field.
func (op UserOperation) Copy() UserOperation {
	return UserOperation{
		Sender:               op.Sender,
		Nonce:                copyBig(op.Nonce),
		InitCode:             copyBytes(op.InitCode),
		CallData:             copyBytes(op.CallData),
		CallGasLimit:         copyBig(op.CallGasLimit),
		VerificationGasLimit: copyBig(op.VerificationGasLimit),
		PreVerificationGas:   copyBig(op.PreVerificationGas),
		MaxFeePerGas:         copyBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: copyBig(op.MaxPriorityFeePerGas),
		PaymasterAndData:     copyBytes(op.PaymasterAndData),
		Signature:            copyBytes(op.Signature),
	}
}

// WithSignature returns a copy of op carrying the given signature.
func (op UserOperation) WithSignature(sig []byte) UserOperation {
	out := op.Copy()
	out.Signature = copyBytes(sig)
	return out
}

// WithPaymasterAndData returns a copy of op carrying the given paymasterAndData.
func (op UserOperation) WithPaymasterAndData(data []byte) UserOperation {
	out := op.Copy()
	out.PaymasterAndData = copyBytes(data)
	return out
}

// WithPreVerificationGas returns a copy of op with preVerificationGas replaced.
func (op UserOperation) WithPreVerificationGas(gas *big.Int) UserOperation {
	out := op.Copy()
	out.PreVerificationGas = copyBig(gas)
	return out
}

// Pack ABI-encodes every field including the signature. The result is what
// a bundler puts on-chain for this operation and drives the calldata cost.
func (op UserOperation) Pack() []byte {
	o := op.Copy()
	packed, err := fullArgs.Pack(
		o.Sender,
		o.Nonce,
		o.InitCode,
		o.CallData,
		o.CallGasLimit,
		o.VerificationGasLimit,
		o.PreVerificationGas,
		o.MaxFeePerGas,
		o.MaxPriorityFeePerGas,
		o.PaymasterAndData,
		o.Signature,
	)
	if err != nil {
		// argument types are fixed, uint256 values are wrapped rather than rejected
		panic(err)
	}
	return packed
}

// PackForSignature encodes the operation the way EntryPoint v0.6 does before hashing.
func (op UserOperation) PackForSignature() []byte {
	o := op.Copy()
	packed, err := signatureArgs.Pack(
		o.Sender,
		o.Nonce,
		crypto.Keccak256Hash(o.InitCode),
		crypto.Keccak256Hash(o.CallData),
		o.CallGasLimit,
		o.VerificationGasLimit,
		o.PreVerificationGas,
		o.MaxFeePerGas,
		o.MaxPriorityFeePerGas,
		crypto.Keccak256Hash(o.PaymasterAndData),
	)
	if err != nil {
		panic(err)
	}
	return packed
}

// Hash returns the userOpHash bound to the entry point and chain. It matches
// EntryPoint.getUserOpHash; a different entry point or chain id yields a hash
// the account will refuse on-chain.
func (op UserOperation) Hash(entrypoint common.Address, chainID *big.Int) common.Hash {
	packed, err := hashArgs.Pack(
		crypto.Keccak256Hash(op.PackForSignature()),
		entrypoint,
		copyBig(chainID),
	)
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(packed)
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func copyBytes(b []byte) []byte {
	if len(b) == 0 {
		return []byte{}
	}
	return append([]byte(nil), b...)
}
