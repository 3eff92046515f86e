package bridge

import (
	"time"

	"DexAI-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// SupportedChains 列出 DLN 协议当前支持桥接的链。
var SupportedChains = []web3.Chain{
	web3.ChainArbitrum,
	web3.ChainAvalanche,
	web3.ChainBNB,
	web3.ChainEthereum,
	web3.ChainPolygon,
	web3.ChainLinea,
	web3.ChainBase,
	web3.ChainOptimism,
	web3.ChainNeon,
	web3.ChainGnosis,
	web3.ChainMetis,
	web3.ChainBitrock,
	web3.ChainSonic,
	web3.ChainCrossFi,
	web3.ChainCronosZkEVM,
	web3.ChainAbstract,
	web3.ChainBerachain,
	web3.ChainStory,
	web3.ChainHyperEVM,
}

// DLNInternalID 是 DLN 报价服务使用的内部链编号，部分链与 EVM 链 ID 不同。
var DLNInternalID = map[web3.Chain]uint64{
	web3.ChainAbstract:    100000017,
	web3.ChainArbitrum:    42161,
	web3.ChainAvalanche:   43114,
	web3.ChainBase:        8453,
	web3.ChainBerachain:   100000020,
	web3.ChainBitrock:     100000005,
	web3.ChainBNB:         56,
	web3.ChainCronosZkEVM: 100000010,
	web3.ChainCrossFi:     100000006,
	web3.ChainEthereum:    1,
	web3.ChainGnosis:      100000002,
	web3.ChainHyperEVM:    100000022,
	web3.ChainLinea:       59144,
	web3.ChainMetis:       100000004,
	web3.ChainNeon:        100000001,
	web3.ChainOptimism:    10,
	web3.ChainPolygon:     137,
	web3.ChainSonic:       100000014,
	web3.ChainStory:       100000013,
}

// DLNSourceAddress 是各 EVM 链上统一部署的 DLN 下单合约，也是 ERC-20 授权的
// spender。
var DLNSourceAddress = common.HexToAddress("0xeF4fB24aD0916217251F553c0596F8Edc630EB66")

const (
	// ReferralCode 是 DLN 下单时附带的推荐码。
	ReferralCode = 31565

	// defaultQuoteBaseURL 指向 DLN 官方报价服务。
	defaultQuoteBaseURL = "https://dln.debridge.finance/v1.0"

	// defaultQuoteTimeout 约束单次报价或代币列表请求的耗时。
	defaultQuoteTimeout = 10 * time.Second

	// defaultConfirmWindow 是确认消息展示后报价的有效期。
	defaultConfirmWindow = 30 * time.Second

	// defaultAbandonWindow 是整个会话的绝对放弃期限。
	defaultAbandonWindow = 5 * time.Minute

	// defaultTokenCacheSize 与 defaultTokenCacheTTL 控制代币目录缓存。
	defaultTokenCacheSize = 8
	defaultTokenCacheTTL  = time.Hour

	// tokenListLimit 限制每条链向用户展示的代币数量。
	tokenListLimit = 10

	// defaultAffiliateFeePercent 是默认的返佣比例。
	defaultAffiliateFeePercent = 0.5
)

// isSupportedChain 判断链是否在支持列表内。
func isSupportedChain(chain web3.Chain) bool {
	for _, c := range SupportedChains {
		if c == chain {
			return true
		}
	}
	return false
}
