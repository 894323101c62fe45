// Package paymaster provides the sponsors a preset.Builder can ask for paymasterAndData.
package paymaster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-resty/resty/v2"

	"github.com/AvaProtocol/userop-builder/pkg/erc4337/userop"
	"github.com/AvaProtocol/userop-builder/pkg/logger"
)

const (
	sponsorMethod  = "pm_sponsorUserOperation"
	sponsorTimeout = 30 * time.Second
)

// RPCPaymaster asks a paymaster service over JSON-RPC. The service answers
// either with the paymasterAndData hex string or with an object carrying it;
// "0x" or null means it does not sponsor the operation.
type RPCPaymaster struct {
	client     *rpc.Client
	entrypoint common.Address
	logger     logger.Logger
}

// NewRPCPaymaster prepares a client for the paymaster at url. No request is made until Sponsor.
func NewRPCPaymaster(ctx context.Context, url string, entrypoint common.Address, lgr logger.Logger) (*RPCPaymaster, error) {
	httpClient := resty.New().SetTimeout(sponsorTimeout).GetClient()

	c, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("error creating paymaster client: %w", err)
	}
	return &RPCPaymaster{
		client:     c,
		entrypoint: entrypoint,
		logger:     logger.EnsureLogger(lgr),
	}, nil
}

func (p *RPCPaymaster) Close() {
	p.client.Close()
}

func (p *RPCPaymaster) Sponsor(ctx context.Context, op userop.UserOperation) ([]byte, error) {
	var result json.RawMessage
	if err := p.client.CallContext(ctx, &result, sponsorMethod, op, p.entrypoint.Hex()); err != nil {
		return nil, fmt.Errorf("%s failed: %w", sponsorMethod, err)
	}

	data, err := parsePaymasterAndData(result)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("paymaster replied", "sender", op.Sender.Hex(), "sponsored", len(data) > 0)
	return data, nil
}

func parsePaymasterAndData(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '"' {
		var data hexutil.Bytes
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("invalid paymasterAndData: %w", err)
		}
		return data, nil
	}

	var obj struct {
		PaymasterAndData hexutil.Bytes `json:"paymasterAndData"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("invalid paymaster result: %w", err)
	}
	return obj.PaymasterAndData, nil
}
