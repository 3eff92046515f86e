package bridge

import (
	"math/big"
	"time"

	"DexAI-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// Request 是 bridge_token 工具的入参，字段由调用方（LLM 运行时）在多轮对话
// 之间重复提交。
type Request struct {
	// SessionID 标识一次桥接会话，未提供时退化为账户地址。
	SessionID string `json:"sessionId,omitempty"`
	// SourceChain 与 DestinationChain 为链的人类可读名称。
	SourceChain      string `json:"sourceChain"`
	DestinationChain string `json:"destinationChain"`
	// SourceToken / DestinationToken 接受代币合约地址或符号，
	// 零地址（或留空）表示链原生代币。
	SourceToken      string `json:"sourceToken,omitempty"`
	DestinationToken string `json:"destinationToken,omitempty"`
	// To 是目标链上的收款地址，留空时默认为发送方自己的地址。
	To string `json:"to,omitempty"`
	// Amount 为十进制数量字符串。
	Amount string `json:"amount"`
	// IsConfirmed 仅在会话进入执行阶段后才有意义，其余阶段一律视为 false。
	IsConfirmed bool `json:"isConfirmed,omitempty"`
}

// TokenRecord 是代币目录中一条不可变的代币记录。
type TokenRecord struct {
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Address  common.Address `json:"address"`
	Decimals int32          `json:"decimals"`
	LogoURI  string         `json:"logoURI,omitempty"`
}

// IsNative 判断记录是否为链原生代币（零地址）。
func (t TokenRecord) IsNative() bool {
	return t.Address == (common.Address{})
}

// RouteInfo 是校验通过后的路由信息，每次调用都重新推导，不跨轮次保存。
type RouteInfo struct {
	FromChain web3.Chain
	ToChain   web3.Chain
	// TakeChainID 是目标链的 EVM 数字链 ID。
	TakeChainID uint64
	// AllowedTakerDst 与 ExternalCall 为协议参数，当前固定为空负载。
	AllowedTakerDst string
	ExternalCall    string
	ReferralCode    uint32
}

// PreparedTx 是一笔经过报价、可直接提交的桥接交易，连同展示所需的金额与
// 费用信息。会话在一个确认窗口内缓存它，保证确认消息与最终提交引用同一份
// 报价。
type PreparedTx struct {
	To    common.Address `json:"to"`
	Data  []byte         `json:"data"`
	Value *big.Int       `json:"value"`

	GiveToken  TokenRecord `json:"giveToken"`
	TakeToken  TokenRecord `json:"takeToken"`
	GiveAmount *big.Int    `json:"giveAmount"`
	TakeAmount *big.Int    `json:"takeAmount"`

	// TakeAmountDisplay 是目标数量的十进制展示值。
	TakeAmountDisplay string  `json:"takeAmountDisplay"`
	GiveAmountUSD     float64 `json:"giveAmountUsd"`
	TakeAmountUSD     float64 `json:"takeAmountUsd"`

	// FixedFeeNative 为固定协议费（原生代币计），ProtocolFeeUSD 为按比例
	// 协议费的美元估值。
	FixedFeeNative string `json:"fixedFeeNative"`
	ProtocolFeeUSD string `json:"protocolFeeUsd"`
	FeeSymbol      string `json:"feeSymbol"`

	Recipient common.Address `json:"recipient"`
	QuotedAt  time.Time      `json:"quotedAt"`
}

// OrderRecord 描述一笔已提交的桥接订单，交付给历史存储与事件通知。
type OrderRecord struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	SourceChain      string    `json:"source_chain"`
	DestinationChain string    `json:"destination_chain"`
	GiveToken        string    `json:"give_token"`
	TakeToken        string    `json:"take_token"`
	GiveAmount       string    `json:"give_amount"`
	TakeAmount       string    `json:"take_amount"`
	AmountUSD        float64   `json:"amount_usd"`
	Sender           string    `json:"sender"`
	Recipient        string    `json:"recipient"`
	TxHash           string    `json:"tx_hash"`
	CreatedAt        time.Time `json:"created_at"`
}
