package bridge

import (
	xerrors "DexAI-Chain/internal/errors"
	"DexAI-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ValidateRequest 按固定顺序校验桥接请求：源链、目标链、收款地址、数量。
// 命中第一个失败项即返回，不做部分校验。该函数是纯函数，每轮调用都会
// 重新执行，绝不读写会话状态。
func ValidateRequest(req *Request) (*RouteInfo, error) {
	fromChain := web3.Chain(req.SourceChain)
	if !isSupportedChain(fromChain) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			"不支持的源链: "+req.SourceChain)
	}

	toChain := web3.Chain(req.DestinationChain)
	if !isSupportedChain(toChain) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			"不支持的目标链: "+req.DestinationChain)
	}

	if !common.IsHexAddress(req.To) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "收款地址不合法")
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "请输入有效的桥接数量")
	}

	return &RouteInfo{
		FromChain:       fromChain,
		ToChain:         toChain,
		TakeChainID:     web3.ChainID[toChain],
		AllowedTakerDst: "0x",
		ExternalCall:    "0x",
		ReferralCode:    ReferralCode,
	}, nil
}
