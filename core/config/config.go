package config

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"

	"github.com/AvaProtocol/userop-builder/core/chainio/aa"
	"github.com/AvaProtocol/userop-builder/core/chainio/signer"
	"github.com/AvaProtocol/userop-builder/pkg/erc4337/preset"
	"github.com/AvaProtocol/userop-builder/pkg/erc4337/userop"
	"github.com/AvaProtocol/userop-builder/pkg/logger"
)

const (
	defaultPaymasterValidFor = 15 * time.Minute
)

// SmartWalletConfig holds everything needed to drive one smart account.
type SmartWalletConfig struct {
	EthRpcUrl  string
	BundlerURL string

	ControllerPrivateKey *ecdsa.PrivateKey
	EntrypointAddress    common.Address
	FactoryAddress       common.Address
	Salt                 *big.Int
	// AccountAddress overrides the counterfactual address from the factory.
	AccountAddress *common.Address

	PaymasterURL       string
	PaymasterAddress   *common.Address
	PaymasterSignerKey *ecdsa.PrivateKey
	PaymasterValidFor  time.Duration

	// nil keeps the builder default
	FixedPriorityFeeChains []uint64
	Overheads              userop.GasOverheads

	ReceiptTimeout        time.Duration
	ReceiptInterval       time.Duration
	ReceiptLookbackBlocks uint64

	Logger logger.Logger
}

// These are read from the config file
type ConfigRaw struct {
	Environment sdklogging.LogLevel `yaml:"environment"`
	EthRpcUrl   string              `yaml:"eth_rpc_url" validate:"required,url"`
	BundlerURL  string              `yaml:"bundler_url" validate:"omitempty,url"`

	ControllerPrivateKey string `yaml:"controller_private_key" validate:"required"`
	EntrypointAddress    string `yaml:"entrypoint_address" validate:"omitempty,eth_addr"`
	FactoryAddress       string `yaml:"factory_address" validate:"omitempty,eth_addr"`
	Salt                 int64  `yaml:"salt" validate:"gte=0"`
	AccountAddress       string `yaml:"account_address" validate:"omitempty,eth_addr"`

	Paymaster PaymasterRaw `yaml:"paymaster"`

	FixedPriorityFeeChains []uint64            `yaml:"fixed_priority_fee_chains"`
	GasOverheads           userop.GasOverheads `yaml:"gas_overheads"`

	Receipt ReceiptRaw `yaml:"receipt"`
}

type PaymasterRaw struct {
	URL       string `yaml:"url" validate:"omitempty,url,excluded_with=Address"`
	Address   string `yaml:"address" validate:"omitempty,eth_addr,required_with=SignerKey"`
	SignerKey string `yaml:"signer_key" validate:"required_with=Address"`
	ValidFor  string `yaml:"valid_for"`
}

type ReceiptRaw struct {
	Timeout        string `yaml:"timeout"`
	Interval       string `yaml:"interval"`
	LookbackBlocks uint64 `yaml:"lookback_blocks"`
}

// NewSmartWalletConfig reads and validates the YAML config at configFilePath.
func NewSmartWalletConfig(configFilePath string) (*SmartWalletConfig, error) {
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", configFilePath, err)
	}
	return ParseSmartWalletConfig(data)
}

func ParseSmartWalletConfig(data []byte) (*SmartWalletConfig, error) {
	var configRaw ConfigRaw
	if err := yaml.UnmarshalStrict(data, &configRaw); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}

	if err := validator.New().Struct(configRaw); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	lgr, err := logger.New(configRaw.Environment)
	if err != nil {
		return nil, err
	}

	controllerKey, err := signer.ParsePrivateKey(configRaw.ControllerPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("cannot parse controller_private_key: %w", err)
	}

	config := &SmartWalletConfig{
		EthRpcUrl:              configRaw.EthRpcUrl,
		BundlerURL:             configRaw.BundlerURL,
		ControllerPrivateKey:   controllerKey,
		EntrypointAddress:      addressOr(configRaw.EntrypointAddress, aa.EntrypointAddress),
		FactoryAddress:         addressOr(configRaw.FactoryAddress, aa.DefaultFactoryAddress),
		Salt:                   big.NewInt(configRaw.Salt),
		PaymasterURL:           configRaw.Paymaster.URL,
		FixedPriorityFeeChains: configRaw.FixedPriorityFeeChains,
		Overheads:              configRaw.GasOverheads,
		ReceiptLookbackBlocks:  configRaw.Receipt.LookbackBlocks,
		Logger:                 lgr,
	}

	if configRaw.AccountAddress != "" {
		addr := common.HexToAddress(configRaw.AccountAddress)
		config.AccountAddress = &addr
	}

	if configRaw.Paymaster.Address != "" {
		addr := common.HexToAddress(configRaw.Paymaster.Address)
		config.PaymasterAddress = &addr
		if config.PaymasterSignerKey, err = signer.ParsePrivateKey(configRaw.Paymaster.SignerKey); err != nil {
			return nil, fmt.Errorf("cannot parse paymaster.signer_key: %w", err)
		}
	}

	if config.PaymasterValidFor, err = parseDuration("paymaster.valid_for", configRaw.Paymaster.ValidFor, defaultPaymasterValidFor); err != nil {
		return nil, err
	}
	if config.ReceiptTimeout, err = parseDuration("receipt.timeout", configRaw.Receipt.Timeout, preset.DefaultReceiptTimeout); err != nil {
		return nil, err
	}
	if config.ReceiptInterval, err = parseDuration("receipt.interval", configRaw.Receipt.Interval, preset.DefaultReceiptInterval); err != nil {
		return nil, err
	}

	return config, nil
}

// BuilderConfig maps the file settings onto a builder config. Fee oracle and
// paymaster are wired by the caller since they need live connections.
func (c *SmartWalletConfig) BuilderConfig() preset.Config {
	return preset.Config{
		EntrypointAddress:      c.EntrypointAddress,
		AccountAddress:         c.AccountAddress,
		Overheads:              c.Overheads,
		FixedPriorityFeeChains: c.FixedPriorityFeeChains,
		ReceiptLookbackBlocks:  c.ReceiptLookbackBlocks,
		Logger:                 c.Logger,
	}
}

func addressOr(hex string, fallback common.Address) common.Address {
	if hex == "" {
		return fallback
	}
	return common.HexToAddress(hex)
}

func parseDuration(field, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", field)
	}
	return d, nil
}
