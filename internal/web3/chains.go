package web3

import (
	"math/rand"
)

// Chain 是链的人类可读名称，由调用方（LLM 运行时）直接传入。
type Chain string

const (
	ChainAbstract    Chain = "abstract"
	ChainArbitrum    Chain = "arbitrum"
	ChainAvalanche   Chain = "avalanche"
	ChainBase        Chain = "base"
	ChainBerachain   Chain = "berachain"
	ChainBitrock     Chain = "bitrock"
	ChainBNB         Chain = "bsc"
	ChainCronosZkEVM Chain = "cronoszkEVM"
	ChainCrossFi     Chain = "crossFi"
	ChainEthereum    Chain = "ethereum"
	ChainGnosis      Chain = "gnosis"
	ChainHyperEVM    Chain = "hyperEVM"
	ChainLinea       Chain = "linea"
	ChainMetis       Chain = "metis"
	ChainNeon        Chain = "neon"
	ChainOptimism    Chain = "optimism"
	ChainPolygon     Chain = "polygon"
	ChainSonic       Chain = "sonic"
	ChainStory       Chain = "story"
)

// ChainID 将链名称映射到 EVM 网络的数字链 ID。
var ChainID = map[Chain]uint64{
	ChainAbstract:    2741,
	ChainArbitrum:    42161,
	ChainAvalanche:   43114,
	ChainBase:        8453,
	ChainBerachain:   80094,
	ChainBitrock:     7171,
	ChainBNB:         56,
	ChainCronosZkEVM: 388,
	ChainCrossFi:     4158,
	ChainEthereum:    1,
	ChainGnosis:      100,
	ChainHyperEVM:    999,
	ChainLinea:       59144,
	ChainMetis:       1088,
	ChainNeon:        245022934,
	ChainOptimism:    10,
	ChainPolygon:     137,
	ChainSonic:       146,
	ChainStory:       1514,
}

// NativeSymbol 记录每条链原生代币的符号，用于展示手续费。
var NativeSymbol = map[Chain]string{
	ChainAbstract:    "ETH",
	ChainArbitrum:    "ETH",
	ChainAvalanche:   "AVAX",
	ChainBase:        "ETH",
	ChainBerachain:   "BERA",
	ChainBitrock:     "BROCK",
	ChainBNB:         "BNB",
	ChainCronosZkEVM: "zkCRO",
	ChainCrossFi:     "XFI",
	ChainEthereum:    "ETH",
	ChainGnosis:      "xDAI",
	ChainHyperEVM:    "HYPE",
	ChainLinea:       "ETH",
	ChainMetis:       "METIS",
	ChainNeon:        "NEON",
	ChainOptimism:    "ETH",
	ChainPolygon:     "POL",
	ChainSonic:       "S",
	ChainStory:       "IP",
}

// ChainByID 通过数字链 ID 反查链名称。
func ChainByID(id uint64) (Chain, bool) {
	for chain, chainID := range ChainID {
		if chainID == id {
			return chain, true
		}
	}
	return "", false
}

// PickRPC 从候选 RPC 端点中随机选择一个，粗粒度地分摊节点压力。
func PickRPC(urls []string) string {
	if len(urls) == 0 {
		return ""
	}
	return urls[rand.Intn(len(urls))]
}
