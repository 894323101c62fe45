package paymaster

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/userop-builder/core/chainio/signer"
	"github.com/AvaProtocol/userop-builder/pkg/erc4337/userop"
)

const verifyingPaymasterABIJSON = `[
	{"inputs":[{"components":[{"internalType":"address","name":"sender","type":"address"},{"internalType":"uint256","name":"nonce","type":"uint256"},{"internalType":"bytes","name":"initCode","type":"bytes"},{"internalType":"bytes","name":"callData","type":"bytes"},{"internalType":"uint256","name":"callGasLimit","type":"uint256"},{"internalType":"uint256","name":"verificationGasLimit","type":"uint256"},{"internalType":"uint256","name":"preVerificationGas","type":"uint256"},{"internalType":"uint256","name":"maxFeePerGas","type":"uint256"},{"internalType":"uint256","name":"maxPriorityFeePerGas","type":"uint256"},{"internalType":"bytes","name":"paymasterAndData","type":"bytes"},{"internalType":"bytes","name":"signature","type":"bytes"}],"internalType":"struct UserOperation","name":"userOp","type":"tuple"},{"internalType":"uint48","name":"validUntil","type":"uint48"},{"internalType":"uint48","name":"validAfter","type":"uint48"}],"name":"getHash","outputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],"stateMutability":"view","type":"function"}
]`

// Use a larger negative skew to tolerate clock drift between services and the bundler
const clockSkewSeconds int64 = 120

var (
	VerifyingPaymasterABI abi.ABI

	// matches the contract's abi.decode(paymasterAndData[20:84], (uint48, uint48))
	validityArgs = abi.Arguments{
		{Type: abi.Type{T: abi.UintTy, Size: 48}},
		{Type: abi.Type{T: abi.UintTy, Size: 48}},
	}
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(verifyingPaymasterABIJSON))
	if err != nil {
		panic(fmt.Errorf("invalid VerifyingPaymaster ABI: %w", err))
	}
	VerifyingPaymasterABI = parsed
}

// VerifyingPaymaster sponsors operations through an eth-infinitism
// VerifyingPaymaster whose verifying signer key we hold. The result is
// address(20) + abi.encode(uint48 validUntil, uint48 validAfter)(64) + signature(65).
type VerifyingPaymaster struct {
	conn     bind.ContractCaller
	address  common.Address
	signer   *ecdsa.PrivateKey
	validFor time.Duration

	now func() time.Time
}

func NewVerifyingPaymaster(conn bind.ContractCaller, address common.Address, signerKey *ecdsa.PrivateKey, validFor time.Duration) *VerifyingPaymaster {
	return &VerifyingPaymaster{
		conn:     conn,
		address:  address,
		signer:   signerKey,
		validFor: validFor,
		now:      time.Now,
	}
}

// ValidityWindow returns (validUntil, validAfter) for a sponsorship issued now.
func (p *VerifyingPaymaster) ValidityWindow() (*big.Int, *big.Int) {
	now := p.now().Unix()
	return big.NewInt(now + int64(p.validFor.Seconds())), big.NewInt(now - clockSkewSeconds)
}

func (p *VerifyingPaymaster) Sponsor(ctx context.Context, op userop.UserOperation) ([]byte, error) {
	validUntil, validAfter := p.ValidityWindow()

	hash, err := p.GetHash(ctx, op, validUntil, validAfter)
	if err != nil {
		return nil, err
	}

	// the contract checks ECDSA.recover(toEthSignedMessageHash(getHash(...)), signature)
	sig, err := signer.SignMessage(p.signer, hash[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign paymaster hash: %w", err)
	}

	timestamps, err := validityArgs.Pack(validUntil, validAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to ABI encode timestamps: %w", err)
	}

	out := make([]byte, 0, common.AddressLength+len(timestamps)+len(sig))
	out = append(out, p.address.Bytes()...)
	out = append(out, timestamps...)
	out = append(out, sig...)
	return out, nil
}

// GetHash reads the hash the paymaster signer has to sign. The contract
// includes its own per-sender nonce, so it has to be asked on-chain.
func (p *VerifyingPaymaster) GetHash(ctx context.Context, op userop.UserOperation, validUntil, validAfter *big.Int) ([32]byte, error) {
	contract := bind.NewBoundContract(p.address, VerifyingPaymasterABI, p.conn, nil, nil)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "getHash", op.Copy(), validUntil, validAfter); err != nil {
		return [32]byte{}, fmt.Errorf("failed to get paymaster hash: %w", err)
	}

	return *abi.ConvertType(out[0], new([32]byte)).(*[32]byte), nil
}
