package bridge

import (
	"context"
	"math/big"
	"strings"

	xerrors "DexAI-Chain/internal/errors"
	"DexAI-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(raw string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return &parsed
}

// EnsureApproval 保证 (owner, spender) 的 ERC-20 授权额度不低于 amount。
// 额度已足够时直接返回且无任何副作用；不足时按精确数量（而非无限额度）
// 提交授权交易并阻塞等待上链，返回授权交易的回执。链上读写失败一律
// 折叠为 CHAIN_FAILURE，由调用方视为本次桥接的致命错误。
func EnsureApproval(ctx context.Context, account web3.Account, token, spender common.Address, amount *big.Int) (*coretypes.Receipt, error) {
	outputs, err := account.ReadContract(ctx, web3.CallParams{
		To:     token,
		ABI:    erc20ABI,
		Method: "allowance",
		Args:   []any{account.Address(), spender},
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询代币授权额度失败")
	}
	allowance, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, xerrors.New(xerrors.CodeChainFailure, "代币授权额度返回值类型异常")
	}
	if allowance.Cmp(amount) >= 0 {
		return nil, nil
	}

	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "编码授权交易失败")
	}
	txHash, err := account.SendTransaction(ctx, web3.TxParams{To: token, Data: data})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "提交授权交易失败")
	}
	receipt, err := account.WaitMined(ctx, txHash)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "等待授权交易上链失败")
	}
	return receipt, nil
}
