package userop

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// wire form used by bundlers and paymasters: hex quantities and hex bytes
type userOperationJSON struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

// MarshalJSON returns a JSON encoding of the UserOperation.
func (op UserOperation) MarshalJSON() ([]byte, error) {
	o := op.Copy()
	return json.Marshal(&userOperationJSON{
		Sender:               o.Sender,
		Nonce:                (*hexutil.Big)(o.Nonce),
		InitCode:             o.InitCode,
		CallData:             o.CallData,
		CallGasLimit:         (*hexutil.Big)(o.CallGasLimit),
		VerificationGasLimit: (*hexutil.Big)(o.VerificationGasLimit),
		PreVerificationGas:   (*hexutil.Big)(o.PreVerificationGas),
		MaxFeePerGas:         (*hexutil.Big)(o.MaxFeePerGas),
		MaxPriorityFeePerGas: (*hexutil.Big)(o.MaxPriorityFeePerGas),
		PaymasterAndData:     o.PaymasterAndData,
		Signature:            o.Signature,
	})
}

// UnmarshalJSON parses a JSON encoding of the UserOperation.
func (op *UserOperation) UnmarshalJSON(input []byte) error {
	var dec userOperationJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return fmt.Errorf("invalid user operation json: %w", err)
	}

	*op = UserOperation{
		Sender:               dec.Sender,
		Nonce:                fromHexBig(dec.Nonce),
		InitCode:             copyBytes(dec.InitCode),
		CallData:             copyBytes(dec.CallData),
		CallGasLimit:         fromHexBig(dec.CallGasLimit),
		VerificationGasLimit: fromHexBig(dec.VerificationGasLimit),
		PreVerificationGas:   fromHexBig(dec.PreVerificationGas),
		MaxFeePerGas:         fromHexBig(dec.MaxFeePerGas),
		MaxPriorityFeePerGas: fromHexBig(dec.MaxPriorityFeePerGas),
		PaymasterAndData:     copyBytes(dec.PaymasterAndData),
		Signature:            copyBytes(dec.Signature),
	}
	return nil
}

func fromHexBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set((*big.Int)(v))
}
