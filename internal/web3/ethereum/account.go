package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"DexAI-Chain/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// receiptPollInterval 控制等待交易上链时的轮询间隔。
const receiptPollInterval = 500 * time.Millisecond

// Backend 聚合账户所需的链访问能力，便于在测试中替换为模拟后端。
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Config describes how to construct an EVM account.
type Config struct {
	Name       string
	RPCURL     string
	PrivateKey string
	ChainID    uint64
}

// Account implements the web3.Account interface for EVM compatible chains.
type Account struct {
	name    string
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	backend Backend
	eth     *ethclient.Client
	// commit 在模拟后端上于每次交易后推进区块，真实链上为 nil。
	commit func()
}

// NewAccount dials the configured RPC endpoint and derives the signer address.
func NewAccount(ctx context.Context, cfg Config) (*Account, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置 RPC 地址")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接节点失败: %w", err)
	}

	chainID := new(big.Int).SetUint64(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("获取链 ID 失败: %w", err)
		}
	}

	return &Account{
		name:    cfg.Name,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		backend: eth,
		eth:     eth,
	}, nil
}

// NewSimulatedAccount wraps an in-memory backend for testing purposes. The
// commit callback is invoked after every transaction submission.
func NewSimulatedAccount(key *ecdsa.PrivateKey, chainID *big.Int, backend Backend, commit func()) *Account {
	return &Account{
		name:    "simulated",
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
		backend: backend,
		commit:  commit,
	}
}

// Close releases the underlying RPC connection.
func (a *Account) Close() {
	if a != nil && a.eth != nil {
		a.eth.Close()
		a.eth = nil
	}
}

// Address returns the signer address.
func (a *Account) Address() common.Address {
	return a.address
}

// ChainID returns the numeric id of the connected chain.
func (a *Account) ChainID() *big.Int {
	return new(big.Int).Set(a.chainID)
}

// ReadContract executes a constant call and unpacks the outputs.
func (a *Account) ReadContract(ctx context.Context, call web3.CallParams) ([]any, error) {
	if call.ABI == nil {
		return nil, errors.New("未提供合约 ABI")
	}
	data, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, fmt.Errorf("编码合约调用失败: %w", err)
	}
	raw, err := a.backend.CallContract(ctx, gethcore.CallMsg{
		From: a.address,
		To:   &call.To,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("合约调用失败: %w", err)
	}
	outputs, err := call.ABI.Unpack(call.Method, raw)
	if err != nil {
		return nil, fmt.Errorf("解析合约返回值失败: %w", err)
	}
	return outputs, nil
}

// SendTransaction signs and broadcasts a transaction built from the params.
func (a *Account) SendTransaction(ctx context.Context, params web3.TxParams) (common.Hash, error) {
	nonce, err := a.backend.PendingNonceAt(ctx, a.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("获取 nonce 失败: %w", err)
	}
	gasPrice, err := a.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("获取 gas 价格失败: %w", err)
	}

	value := params.Value
	if value == nil {
		value = new(big.Int)
	}

	gasLimit := params.GasLimit
	if gasLimit == 0 {
		estimated, err := a.backend.EstimateGas(ctx, gethcore.CallMsg{
			From:  a.address,
			To:    &params.To,
			Value: value,
			Data:  params.Data,
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("估算 gas 失败: %w", err)
		}
		// 预留波动余量。
		gasLimit = estimated * 120 / 100
	}

	tx := coretypes.NewTransaction(nonce, params.To, value, gasLimit, gasPrice, params.Data)
	signedTx, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(a.chainID), a.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("签名交易失败: %w", err)
	}
	if err := a.backend.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("发送交易失败: %w", err)
	}
	if a.commit != nil {
		a.commit()
	}
	return signedTx.Hash(), nil
}

// WaitMined polls for the transaction receipt until it is available or the
// context is cancelled.
func (a *Account) WaitMined(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := a.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, gethcore.NotFound) {
			return nil, fmt.Errorf("查询交易回执失败: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SignMessage signs an EIP-191 personal message.
func (a *Account) SignMessage(_ context.Context, message []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), a.key)
	if err != nil {
		return nil, fmt.Errorf("签名消息失败: %w", err)
	}
	// 以太坊约定 v 取 27/28。
	sig[64] += 27
	return sig, nil
}
