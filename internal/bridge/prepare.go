package bridge

import (
	"context"
	"fmt"
	"math/big"
	"time"

	xerrors "DexAI-Chain/internal/errors"
	"DexAI-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// Preparer 将一条桥接请求转换为可直接提交的交易：解析两侧代币、按精度
// 换算数量、向报价服务发起一次请求，并整理出确认消息所需的金额与费用。
// Preparer 本身无状态，除报价请求外没有副作用，相同输入的两次调用
// （不考虑上游价格漂移）产出等价结果。
type Preparer struct {
	dir *Directory
	dln *DLNClient

	affiliateRecipient  string
	affiliateFeePercent float64
}

// NewPreparer 创建报价准备器。affiliateRecipient 为空时不附带返佣参数。
func NewPreparer(dir *Directory, dln *DLNClient, affiliateRecipient string, affiliateFeePercent float64) *Preparer {
	if affiliateFeePercent <= 0 {
		affiliateFeePercent = defaultAffiliateFeePercent
	}
	return &Preparer{
		dir:                 dir,
		dln:                 dln,
		affiliateRecipient:  affiliateRecipient,
		affiliateFeePercent: affiliateFeePercent,
	}
}

// Prepare 生成一笔 PreparedTx。两侧代币有任何一侧无法从目录解析时返回
// NOT_FOUND；报价服务失败、响应缺少协议费条目或交易负载不合法时返回
// QUOTE_FAILURE。
func (p *Preparer) Prepare(ctx context.Context, req *Request, route *RouteInfo, sender common.Address) (*PreparedTx, error) {
	srcTokens, err := p.dir.GetTokens(ctx, route.FromChain)
	if err != nil {
		return nil, err
	}
	dstTokens, err := p.dir.GetTokens(ctx, route.ToChain)
	if err != nil {
		return nil, err
	}

	srcToken, ok := Resolve(srcTokens, req.SourceToken)
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "未找到源链代币 "+req.SourceToken)
	}
	dstToken, ok := Resolve(dstTokens, req.DestinationToken)
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "未找到目标链代币 "+req.DestinationToken)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "请输入有效的桥接数量")
	}
	giveAmount := amount.Shift(srcToken.Decimals).BigInt()

	quote, err := p.dln.CreateTx(ctx, OrderQuery{
		SrcChainID:            DLNInternalID[route.FromChain],
		SrcChainTokenIn:       srcToken.Address.Hex(),
		DstChainID:            DLNInternalID[route.ToChain],
		DstChainTokenOut:      dstToken.Address.Hex(),
		SrcChainTokenAmount:   giveAmount.String(),
		SenderAuthority:       sender.Hex(),
		RecipientAuthority:    req.To,
		Recipient:             req.To,
		AffiliateFeePercent:   p.affiliateFeePercent,
		AffiliateFeeRecipient: p.affiliateRecipient,
		ReferralCode:          route.ReferralCode,
	})
	if err != nil {
		return nil, err
	}

	protocolFee, ok := quote.ProtocolFee()
	if !ok {
		return nil, xerrors.New(xerrors.CodeQuoteFailure, "报价响应缺少协议费明细")
	}

	if !common.IsHexAddress(quote.Tx.To) {
		return nil, xerrors.New(xerrors.CodeQuoteFailure, "报价响应的交易地址不合法")
	}
	txData, err := hexutil.Decode(quote.Tx.Data)
	if err != nil || len(txData) == 0 {
		return nil, xerrors.New(xerrors.CodeQuoteFailure, "报价响应的交易数据不合法")
	}

	takeAmount, ok := new(big.Int).SetString(quote.Estimation.DstChainTokenOut.RecommendedAmount, 10)
	if !ok {
		return nil, xerrors.New(xerrors.CodeQuoteFailure, "报价响应的产出数量不合法")
	}
	value := new(big.Int)
	if quote.Tx.Value != "" {
		if _, ok := value.SetString(quote.Tx.Value, 10); !ok {
			return nil, xerrors.New(xerrors.CodeQuoteFailure, "报价响应的交易金额不合法")
		}
	}
	fixFee := new(big.Int)
	if quote.FixFee != "" {
		if _, ok := fixFee.SetString(quote.FixFee, 10); !ok {
			return nil, xerrors.New(xerrors.CodeQuoteFailure, "报价响应的固定费用不合法")
		}
	}

	takeDecimals := quote.Estimation.DstChainTokenOut.Decimals
	if takeDecimals == 0 {
		takeDecimals = dstToken.Decimals
	}

	return &PreparedTx{
		To:    common.HexToAddress(quote.Tx.To),
		Data:  txData,
		Value: value,

		GiveToken:  srcToken,
		TakeToken:  dstToken,
		GiveAmount: giveAmount,
		TakeAmount: takeAmount,

		TakeAmountDisplay: decimal.NewFromBigInt(takeAmount, -takeDecimals).String(),
		GiveAmountUSD:     quote.Estimation.SrcChainTokenIn.ApproximateUsdValue,
		TakeAmountUSD:     quote.Estimation.DstChainTokenOut.RecommendedApproximateUsdValue,

		FixedFeeNative: decimal.NewFromBigInt(fixFee, -18).String(),
		ProtocolFeeUSD: fmt.Sprintf("%.2f", protocolFee.Payload.FeeApproximateUsdValue),
		FeeSymbol:      web3.NativeSymbol[route.FromChain],

		Recipient: common.HexToAddress(req.To),
		QuotedAt:  time.Now(),
	}, nil
}
