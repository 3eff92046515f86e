package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	xerrors "DexAI-Chain/internal/errors"
)

// DLNClient 封装 DLN 报价服务的两个 HTTP 接口：代币列表与下单报价。
type DLNClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDLNClient 创建报价服务客户端，timeout 为零时采用默认超时。
func NewDLNClient(baseURL string, timeout time.Duration) *DLNClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultQuoteBaseURL
	}
	if timeout <= 0 {
		timeout = defaultQuoteTimeout
	}
	return &DLNClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// tokenListResponse 对应 /token-list 的返回结构：地址到代币信息的映射。
type tokenListResponse struct {
	Tokens map[string]tokenEntry `json:"tokens"`
}

type tokenEntry struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Decimals int32  `json:"decimals"`
	LogoURI  string `json:"logoURI"`
}

// OrderQuery 是 /dln/order/create-tx 的查询参数。
type OrderQuery struct {
	SrcChainID            uint64
	SrcChainTokenIn       string
	DstChainID            uint64
	DstChainTokenOut      string
	SrcChainTokenAmount   string
	SenderAuthority       string
	RecipientAuthority    string
	Recipient             string
	AffiliateFeePercent   float64
	AffiliateFeeRecipient string
	ReferralCode          uint32
}

// QuoteResponse 对应报价服务的返回：两侧美元估值、推荐产出数量、费用明细
// 与一笔可直接提交的交易。
type QuoteResponse struct {
	Estimation struct {
		SrcChainTokenIn struct {
			Amount              string  `json:"amount"`
			ApproximateUsdValue float64 `json:"approximateUsdValue"`
		} `json:"srcChainTokenIn"`
		DstChainTokenOut struct {
			RecommendedAmount              string  `json:"recommendedAmount"`
			RecommendedApproximateUsdValue float64 `json:"recommendedApproximateUsdValue"`
			Decimals                       int32   `json:"decimals"`
		} `json:"dstChainTokenOut"`
		CostsDetails []CostDetail `json:"costsDetails"`
	} `json:"estimation"`
	FixFee string `json:"fixFee"`
	Tx     struct {
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
	} `json:"tx"`
}

// CostDetail 是费用明细中的一项，协议费的类型为 DlnProtocolFee。
type CostDetail struct {
	Type    string `json:"type"`
	Payload struct {
		FeeApproximateUsdValue float64 `json:"feeApproximateUsdValue"`
	} `json:"payload"`
}

// protocolFeeType 是费用明细中协议费条目的类型名。
const protocolFeeType = "DlnProtocolFee"

// ProtocolFee 从费用明细中查找协议费条目。
func (r *QuoteResponse) ProtocolFee() (*CostDetail, bool) {
	for i := range r.Estimation.CostsDetails {
		if r.Estimation.CostsDetails[i].Type == protocolFeeType {
			return &r.Estimation.CostsDetails[i], true
		}
	}
	return nil, false
}

// TokenList 拉取指定链（DLN 内部编号）的可桥接代币列表。
func (c *DLNClient) TokenList(ctx context.Context, internalChainID uint64) (map[string]tokenEntry, error) {
	endpoint := fmt.Sprintf("%s/token-list?chainId=%d", c.baseURL, internalChainID)
	var resp tokenListResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}

// CreateTx 请求一次下单报价，返回可直接提交的交易与费用信息。
func (c *DLNClient) CreateTx(ctx context.Context, q OrderQuery) (*QuoteResponse, error) {
	params := url.Values{}
	params.Set("srcChainId", strconv.FormatUint(q.SrcChainID, 10))
	params.Set("srcChainTokenIn", q.SrcChainTokenIn)
	params.Set("dstChainId", strconv.FormatUint(q.DstChainID, 10))
	params.Set("dstChainTokenOut", q.DstChainTokenOut)
	params.Set("srcChainTokenInAmount", q.SrcChainTokenAmount)
	params.Set("srcChainOrderAuthorityAddress", q.SenderAuthority)
	params.Set("dstChainTokenOutAmount", "auto")
	params.Set("prependOperatingExpense", "true")
	params.Set("dstChainOrderAuthorityAddress", q.RecipientAuthority)
	params.Set("dstChainTokenOutRecipient", q.Recipient)
	if q.AffiliateFeeRecipient != "" {
		params.Set("affiliateFeePercent", strconv.FormatFloat(q.AffiliateFeePercent, 'f', -1, 64))
		params.Set("affiliateFeeRecipient", q.AffiliateFeeRecipient)
	}
	params.Set("referralCode", strconv.FormatUint(uint64(q.ReferralCode), 10))

	endpoint := c.baseURL + "/dln/order/create-tx?" + params.Encode()
	var resp QuoteResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// getJSON 执行一次带超时的 GET 请求并解析 JSON 响应。
func (c *DLNClient) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQuoteFailure, err, "构造报价请求失败")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return xerrors.Wrap(xerrors.CodeTimeout, err, "报价服务请求超时，请稍后重试")
		}
		return xerrors.Wrap(xerrors.CodeQuoteFailure, err, "请求报价服务失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return xerrors.New(xerrors.CodeQuoteFailure,
			fmt.Sprintf("报价服务返回异常状态码 %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return xerrors.Wrap(xerrors.CodeQuoteFailure, err, "解析报价服务响应失败")
	}
	return nil
}

// isTimeout 判断错误是否为网络超时。
func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	for e := err; e != nil; {
		if t, ok := e.(timeout); ok && t.Timeout() {
			return true
		}
		unwrapper, ok := e.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		e = unwrapper.Unwrap()
	}
	return false
}
