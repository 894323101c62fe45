package aa

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/userop-builder/core/chainio/signer"
)

// SimpleAccount answers the account specific questions of the userop builder
// for an eth-infinitism SimpleAccount owned by a single ECDSA key.
type SimpleAccount struct {
	conn       bind.ContractCaller
	owner      *ecdsa.PrivateKey
	factory    common.Address
	entrypoint common.Address
	salt       *big.Int

	mu      sync.Mutex
	address *common.Address
}

// NewSimpleAccount binds the account of owner deployed (or to be deployed) by factory.
func NewSimpleAccount(conn bind.ContractCaller, owner *ecdsa.PrivateKey, factory, entrypoint common.Address, salt *big.Int) *SimpleAccount {
	if salt == nil {
		salt = defaultSalt
	}
	return &SimpleAccount{
		conn:       conn,
		owner:      owner,
		factory:    factory,
		entrypoint: entrypoint,
		salt:       new(big.Int).Set(salt),
	}
}

// Owner is the address whose signature the account accepts.
func (a *SimpleAccount) Owner() common.Address {
	return crypto.PubkeyToAddress(a.owner.PublicKey)
}

func (a *SimpleAccount) InitCode(ctx context.Context) ([]byte, error) {
	return GetInitCodeForFactory(a.Owner(), a.factory, a.salt)
}

func (a *SimpleAccount) CounterfactualAddress(ctx context.Context) (common.Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.address != nil {
		return *a.address, nil
	}

	sender, err := GetSenderAddress(ctx, a.conn, a.factory, a.Owner(), a.salt)
	if err != nil {
		return common.Address{}, err
	}
	a.address = &sender
	return sender, nil
}

// PinAddress makes the account act at addr instead of the factory's
// counterfactual address, for wallets deployed outside this factory and salt.
func (a *SimpleAccount) PinAddress(addr common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.address = &addr
}

// Nonce reads the key 0 sequence from the entry point. An undeployed account reads as 0.
func (a *SimpleAccount) Nonce(ctx context.Context) (*big.Int, error) {
	sender, err := a.CounterfactualAddress(ctx)
	if err != nil {
		return nil, err
	}
	return GetNonce(ctx, a.conn, a.entrypoint, sender, defaultSalt)
}

func (a *SimpleAccount) EncodeExecute(ctx context.Context, target common.Address, value *big.Int, data []byte) ([]byte, error) {
	return PackExecute(target, value, data)
}

// SignUserOpHash signs the userOpHash the way SimpleAccount._validateSignature
// expects it: an EIP-191 personal signature by the owner.
func (a *SimpleAccount) SignUserOpHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	return signer.SignMessage(a.owner, hash.Bytes())
}
