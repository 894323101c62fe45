package cmd

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/AvaProtocol/userop-builder/core/chainio/aa"
	"github.com/AvaProtocol/userop-builder/core/config"
	"github.com/AvaProtocol/userop-builder/pkg/erc4337/paymaster"
	"github.com/AvaProtocol/userop-builder/pkg/erc4337/preset"
)

type wallet struct {
	config  *config.SmartWalletConfig
	client  *ethclient.Client
	account *aa.SimpleAccount
	builder *preset.Builder
	sponsor *paymaster.RPCPaymaster
}

// loadWallet wires the config file into a builder for the configured account.
func loadWallet(ctx context.Context) (*wallet, error) {
	cfg, err := config.NewSmartWalletConfig(configPath)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, cfg.EthRpcUrl)
	if err != nil {
		cfg.Logger.Error("cannot create ethclient", "rpc", cfg.EthRpcUrl, "error", err)
		return nil, fmt.Errorf("cannot connect to %s: %w", cfg.EthRpcUrl, err)
	}

	account := aa.NewSimpleAccount(client, cfg.ControllerPrivateKey, cfg.FactoryAddress, cfg.EntrypointAddress, cfg.Salt)

	builderConfig := cfg.BuilderConfig()
	builderConfig.Registerer = prometheus.DefaultRegisterer
	var sponsor *paymaster.RPCPaymaster
	switch {
	case cfg.PaymasterURL != "":
		if sponsor, err = paymaster.NewRPCPaymaster(ctx, cfg.PaymasterURL, cfg.EntrypointAddress, cfg.Logger); err != nil {
			client.Close()
			return nil, fmt.Errorf("cannot connect to paymaster %s: %w", cfg.PaymasterURL, err)
		}
		builderConfig.Paymaster = sponsor
	case cfg.PaymasterAddress != nil:
		builderConfig.Paymaster = paymaster.NewVerifyingPaymaster(client, *cfg.PaymasterAddress, cfg.PaymasterSignerKey, cfg.PaymasterValidFor)
	}

	w := &wallet{
		config:  cfg,
		client:  client,
		account: account,
		sponsor: sponsor,
	}
	if w.builder, err = preset.NewBuilder(client, account, builderConfig); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (w *wallet) Close() {
	if w.sponsor != nil {
		w.sponsor.Close()
	}
	w.client.Close()
}

func formatGwei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -9).String()
}
