// Package lending 提供基于 Venus 协议的借贷工具。当前支持在 BNB 链核心池
// 中借出代币：先读取账户的可借额度与代币价格，校验通过后提交 borrow 交易。
package lending

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"DexAI-Chain/internal/adapter"
	"DexAI-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const comptrollerABIJSON = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"getAccountLiquidity","outputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"}],"type":"function"}
]`

const oracleABIJSON = `[
	{"constant":true,"inputs":[{"name":"vToken","type":"address"}],"name":"getUnderlyingPrice","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

const vTokenABIJSON = `[
	{"constant":false,"inputs":[{"name":"borrowAmount","type":"uint256"}],"name":"borrow","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

var (
	comptrollerABI = mustParseABI(comptrollerABIJSON)
	oracleABI      = mustParseABI(oracleABIJSON)
	vTokenABI      = mustParseABI(vTokenABIJSON)
)

func mustParseABI(raw string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return &parsed
}

// pool 描述一条链上的一个 Venus 资金池。
type pool struct {
	chain       web3.Chain
	comptroller common.Address
	oracle      common.Address
	// vTokens 按大写符号索引该池中可借的 vToken 市场。
	vTokens map[string]common.Address
}

// corePools 是内置的资金池表，目前只配置 BNB 链核心池。
var corePools = map[string]pool{
	"core": {
		chain:       web3.ChainBNB,
		comptroller: common.HexToAddress("0xfD36E2c2a6789Db23113685031d7F16329158384"),
		oracle:      common.HexToAddress("0x6592b5DE802159F3E74B2486b091D11a8256ab8A"),
		vTokens: map[string]common.Address{
			"BNB":  common.HexToAddress("0xA07c5b74C9B40447a954e1466938b865b6BBea36"),
			"USDC": common.HexToAddress("0xecA88125a5ADbe82614ffC12D0DB554E2e2867C8"),
			"USDT": common.HexToAddress("0xfD5840Cd36d94D7229439859C0112a4185BC0255"),
			"BTCB": common.HexToAddress("0x882C173bC7Ff3b7786CA16dfeD3DFFfb9Ee7847B"),
			"ETH":  common.HexToAddress("0xf508fCD89b8bd15579dc79A6827cB4686A3592c8"),
		},
	},
}

// borrowRequest 是 borrow_token 工具的入参。
type borrowRequest struct {
	ChainName   string `json:"chainName"`
	Pool        string `json:"pool"`
	TokenSymbol string `json:"tokenSymbol"`
	Amount      string `json:"amount"`
}

// Borrow 在指定资金池中借出代币。额度或价格校验不通过时直接返回失败，
// 不提交任何交易。
func Borrow(ctx context.Context, account web3.Account, req *borrowRequest) adapter.Result {
	selected, ok := corePools[req.Pool]
	if !ok {
		return adapter.Fail("不支持的资金池: " + req.Pool)
	}
	if web3.Chain(req.ChainName) != selected.chain {
		return adapter.Fail(fmt.Sprintf("资金池 %s 不支持链 %s", req.Pool, req.ChainName))
	}
	vToken, ok := selected.vTokens[strings.ToUpper(req.TokenSymbol)]
	if !ok {
		return adapter.Fail(fmt.Sprintf("资金池 %s 中没有代币 %s", req.Pool, req.TokenSymbol))
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return adapter.Fail("请输入有效的借出数量")
	}

	outputs, err := account.ReadContract(ctx, web3.CallParams{
		To:     selected.comptroller,
		ABI:    comptrollerABI,
		Method: "getAccountLiquidity",
		Args:   []any{account.Address()},
	})
	if err != nil {
		return adapter.Fail("查询可借额度失败: " + err.Error())
	}
	liquidity, ok := outputs[1].(*big.Int)
	if !ok {
		return adapter.Fail("可借额度返回值类型异常")
	}
	borrowLimitUSD := decimal.NewFromBigInt(liquidity, -18)
	if !borrowLimitUSD.IsPositive() {
		return adapter.Fail("当前没有可借额度，请先存入抵押物。")
	}

	outputs, err = account.ReadContract(ctx, web3.CallParams{
		To:     selected.oracle,
		ABI:    oracleABI,
		Method: "getUnderlyingPrice",
		Args:   []any{vToken},
	})
	if err != nil {
		return adapter.Fail("查询代币价格失败: " + err.Error())
	}
	price, ok := outputs[0].(*big.Int)
	if !ok {
		return adapter.Fail("代币价格返回值类型异常")
	}
	required := decimal.NewFromBigInt(price, -18).Mul(amount)
	if borrowLimitUSD.LessThan(required) {
		return adapter.Fail(fmt.Sprintf(
			"可借额度不足：当前额度约 $%s，借出 %s %s 需要约 $%s，请先补充抵押物。",
			borrowLimitUSD.StringFixed(2), req.Amount, req.TokenSymbol, required.StringFixed(2)))
	}

	data, err := vTokenABI.Pack("borrow", amount.Shift(18).BigInt())
	if err != nil {
		return adapter.Fail("编码借出交易失败: " + err.Error())
	}
	txHash, err := account.SendTransaction(ctx, web3.TxParams{To: vToken, Data: data})
	if err != nil {
		return adapter.Fail("提交借出交易失败: " + err.Error())
	}
	return adapter.OK(fmt.Sprintf("已借出 %s %s，交易哈希 %s。",
		req.Amount, strings.ToUpper(req.TokenSymbol), txHash.Hex()))
}

// Tools 返回借贷工具集合。
func Tools() []adapter.Tool {
	return []adapter.Tool{
		{
			Name:        "borrow_token",
			Description: "从 Venus 借贷协议的指定资金池中借出代币。",
			Schema: adapter.Schema{
				Properties: map[string]adapter.Property{
					"chainName": {
						Type:        adapter.TypeString,
						Description: "执行交易的链名称。",
						Enum:        []string{string(web3.ChainBNB)},
					},
					"pool": {
						Type:        adapter.TypeString,
						Description: "执行交易的资金池。",
						Enum:        []string{"core"},
					},
					"tokenSymbol": {
						Type:        adapter.TypeString,
						Description: "要借出的代币符号，例如 USDC。",
					},
					"amount": {
						Type:        adapter.TypeString,
						Description: "借出数量，十进制字符串。",
					},
				},
				Required: []string{"chainName", "pool", "tokenSymbol", "amount"},
			},
			RequiresAccount: true,
			Handler: func(ctx context.Context, account web3.Account, args json.RawMessage) adapter.Result {
				var req borrowRequest
				if err := json.Unmarshal(args, &req); err != nil {
					return adapter.Fail("参数解析失败: " + err.Error())
				}
				return Borrow(ctx, account, &req)
			},
		},
	}
}
