package cmd

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/userop-builder/core/chainio/aa"
	"github.com/AvaProtocol/userop-builder/pkg/erc4337/preset"
)

// intentFlags are shared by build and send. Repeating --to makes a batch.
type intentFlags struct {
	to    []string
	value []string
	data  []string
	nonce string

	gasLimit           uint64
	maxFeeGwei         string
	maxPriorityFeeGwei string
}

func (f *intentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.to, "to", nil, "call target, repeat for a batch")
	cmd.Flags().StringSliceVar(&f.value, "value", nil, "ether sent with each call, e.g. 0.01")
	cmd.Flags().StringSliceVar(&f.data, "data", nil, "hex call data of each call")
	cmd.Flags().StringVar(&f.nonce, "nonce", "", "override the account nonce")
	cmd.Flags().Uint64Var(&f.gasLimit, "gas-limit", 0, "call gas limit, estimated when 0")
	cmd.Flags().StringVar(&f.maxFeeGwei, "max-fee", "", "maxFeePerGas in gwei, needs --max-priority-fee")
	cmd.Flags().StringVar(&f.maxPriorityFeeGwei, "max-priority-fee", "", "maxPriorityFeePerGas in gwei, needs --max-fee")
	_ = cmd.MarkFlagRequired("to")
}

// parse turns the flags into the builder inputs. A batch has its execute call
// already encoded in the returned intent.
func (f *intentFlags) parse() (preset.TransactionDetails, *preset.BatchData, error) {
	var intent preset.TransactionDetails

	if len(f.to) == 0 {
		return intent, nil, fmt.Errorf("at least one --to is required")
	}

	targets := make([]common.Address, len(f.to))
	for i, to := range f.to {
		if !common.IsHexAddress(to) {
			return intent, nil, fmt.Errorf("invalid --to address %q", to)
		}
		targets[i] = common.HexToAddress(to)
	}

	values, err := padded(f.value, len(targets), "--value", parseEther)
	if err != nil {
		return intent, nil, err
	}
	data, err := padded(f.data, len(targets), "--data", parseCallData)
	if err != nil {
		return intent, nil, err
	}

	if f.gasLimit > 0 {
		intent.GasLimit = new(big.Int).SetUint64(f.gasLimit)
	}
	if f.nonce != "" {
		nonce, ok := new(big.Int).SetString(f.nonce, 0)
		if !ok || nonce.Sign() < 0 {
			return intent, nil, fmt.Errorf("invalid --nonce %q", f.nonce)
		}
		intent.Nonce = nonce
	}
	if f.maxFeeGwei != "" || f.maxPriorityFeeGwei != "" {
		if intent.MaxFeePerGas, err = parseGwei(f.maxFeeGwei); err != nil {
			return intent, nil, fmt.Errorf("invalid --max-fee: %w", err)
		}
		if intent.MaxPriorityFeePerGas, err = parseGwei(f.maxPriorityFeeGwei); err != nil {
			return intent, nil, fmt.Errorf("invalid --max-priority-fee: %w", err)
		}
	}

	if len(targets) == 1 {
		intent.Target = targets[0]
		intent.Value = values[0]
		intent.Data = data[0]
		return intent, nil, nil
	}

	batch := &preset.BatchData{Targets: targets, Values: values, Data: data}
	if intent.Data, err = aa.PackExecuteBatch(batch.Targets, batch.Values, batch.Data); err != nil {
		return intent, nil, err
	}
	return intent, batch, nil
}

// padded parses one entry per call. An absent flag means the zero value for
// every call, otherwise the count has to match the targets.
func padded[T any](raw []string, n int, flag string, parse func(string) (T, error)) ([]T, error) {
	if len(raw) != 0 && len(raw) != n {
		return nil, fmt.Errorf("%s given %d times for %d targets", flag, len(raw), n)
	}

	out := make([]T, n)
	for i := range out {
		s := ""
		if len(raw) > 0 {
			s = raw[i]
		}
		v, err := parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", flag, s, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseEther(s string) (*big.Int, error) {
	return parseUnits(s, 18)
}

func parseGwei(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("value is required")
	}
	return parseUnits(s, 9)
}

func parseUnits(s string, decimals int32) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount")
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("more than %d decimals", decimals)
	}
	return scaled.BigInt(), nil
}

func parseCallData(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return []byte{}, nil
	}
	return hexutil.Decode(s)
}
