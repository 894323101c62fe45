package byte4

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// GetMethodFromCalldata returns the ABI method whose 4-byte selector starts calldata.
func GetMethodFromCalldata(parsedABI abi.ABI, calldata []byte) (*abi.Method, error) {
	if len(calldata) < 4 {
		return nil, fmt.Errorf("invalid selector length: %d", len(calldata))
	}

	method, err := parsedABI.MethodById(calldata[:4])
	if err != nil {
		return nil, fmt.Errorf("no matching method found: %w", err)
	}
	return method, nil
}

// DecodeCalldata resolves the method of calldata and unpacks its arguments.
func DecodeCalldata(parsedABI abi.ABI, calldata []byte) (*abi.Method, []interface{}, error) {
	method, err := GetMethodFromCalldata(parsedABI, calldata)
	if err != nil {
		return nil, nil, err
	}

	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("cannot unpack %s arguments: %w", method.Name, err)
	}
	return method, args, nil
}
