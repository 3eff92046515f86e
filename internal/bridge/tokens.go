package bridge

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	xerrors "DexAI-Chain/internal/errors"
	"DexAI-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Directory 是按链缓存的可桥接代币目录。缓存带容量上限和固定 TTL，
// 命中时重新写入以刷新存活时间；目录只缓存幂等的代币快照，
// 不保存任何会话相关数据，可以安全地跨会话共享。
type Directory struct {
	cache *expirable.LRU[web3.Chain, []TokenRecord]
	dln   *DLNClient
}

// NewDirectory 创建代币目录。size 与 ttl 为零时采用默认配置。
func NewDirectory(dln *DLNClient, size int, ttl time.Duration) *Directory {
	if size <= 0 {
		size = defaultTokenCacheSize
	}
	if ttl <= 0 {
		ttl = defaultTokenCacheTTL
	}
	return &Directory{
		cache: expirable.NewLRU[web3.Chain, []TokenRecord](size, nil, ttl),
		dln:   dln,
	}
}

// GetTokens 返回指定链的代币记录，缓存未命中时向上游拉取。
func (d *Directory) GetTokens(ctx context.Context, chain web3.Chain) ([]TokenRecord, error) {
	if records, ok := d.cache.Get(chain); ok {
		// 重新写入以刷新条目的存活时间。
		d.cache.Add(chain, records)
		return records, nil
	}

	internalID, ok := DLNInternalID[chain]
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			"链 "+string(chain)+" 暂不支持代币目录查询")
	}

	entries, err := d.dln.TokenList(ctx, internalID)
	if err != nil {
		return nil, err
	}

	records := make([]TokenRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, TokenRecord{
			Symbol:   normalizeSymbol(entry.Symbol),
			Name:     entry.Name,
			Address:  common.HexToAddress(entry.Address),
			Decimals: entry.Decimals,
			LogoURI:  entry.LogoURI,
		})
	}
	// 原生代币排最前，其余按符号排序，保证展示顺序稳定。
	sort.Slice(records, func(i, j int) bool {
		if records[i].IsNative() != records[j].IsNative() {
			return records[i].IsNative()
		}
		if records[i].Symbol != records[j].Symbol {
			return records[i].Symbol < records[j].Symbol
		}
		return records[i].Address.Hex() < records[j].Address.Hex()
	})
	if len(records) > tokenListLimit {
		records = records[:tokenListLimit]
	}

	d.cache.Add(chain, records)
	return records, nil
}

// Resolve 将地址或符号形式的代币引用解析为唯一的代币记录。
// 空引用与零地址解析为链原生代币；符号存在歧义或不存在时返回 false。
func Resolve(tokens []TokenRecord, ref string) (TokenRecord, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == (common.Address{}).Hex() {
		for _, t := range tokens {
			if t.IsNative() {
				return t, true
			}
		}
		return TokenRecord{}, false
	}

	if common.IsHexAddress(ref) {
		addr := common.HexToAddress(ref)
		for _, t := range tokens {
			if t.Address == addr {
				return t, true
			}
		}
		return TokenRecord{}, false
	}

	symbol := normalizeSymbol(ref)
	var found TokenRecord
	matches := 0
	for _, t := range tokens {
		if t.Symbol == symbol {
			found = t
			matches++
		}
	}
	if matches != 1 {
		return TokenRecord{}, false
	}
	return found, true
}

// normalizeSymbol 将符号统一为大写并去掉非字母数字字符。
func normalizeSymbol(symbol string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(symbol)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
