package bridge

import (
	"strings"
	"testing"

	"DexAI-Chain/internal/web3"
)

func validRequest() *Request {
	return &Request{
		SourceChain:      "bsc",
		DestinationChain: "sonic",
		To:               testSender,
		Amount:           "1.5",
	}
}

func TestValidateRequestAccepts(t *testing.T) {
	route, err := ValidateRequest(validRequest())
	if err != nil {
		t.Fatalf("合法请求被拒绝: %v", err)
	}
	if route.FromChain != web3.ChainBNB || route.ToChain != web3.ChainSonic {
		t.Fatalf("路由信息不符: %+v", route)
	}
	if route.TakeChainID != web3.ChainID[web3.ChainSonic] {
		t.Fatalf("目标链 ID 不符: %d", route.TakeChainID)
	}
	if route.ReferralCode != ReferralCode {
		t.Fatalf("推荐码不符: %d", route.ReferralCode)
	}
}

func TestValidateRequestOrder(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Request)
		message string
	}{
		{"源链优先", func(r *Request) {
			r.SourceChain = "solana"
			r.DestinationChain = "tron"
			r.To = "bad"
			r.Amount = "-1"
		}, "不支持的源链"},
		{"目标链其次", func(r *Request) {
			r.DestinationChain = "tron"
			r.To = "bad"
			r.Amount = "-1"
		}, "不支持的目标链"},
		{"收款地址再次", func(r *Request) {
			r.To = "bad"
			r.Amount = "-1"
		}, "收款地址不合法"},
		{"数量最后", func(r *Request) {
			r.Amount = "-1"
		}, "请输入有效的桥接数量"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(req)
			_, err := ValidateRequest(req)
			if err == nil {
				t.Fatalf("非法请求未被拒绝")
			}
			if !strings.Contains(err.Error(), tc.message) {
				t.Fatalf("错误信息不符，期望包含 %q: %v", tc.message, err)
			}
		})
	}
}

func TestValidateRequestAmount(t *testing.T) {
	for _, amount := range []string{"", "0", "abc", "-0.5"} {
		req := validRequest()
		req.Amount = amount
		if _, err := ValidateRequest(req); err == nil {
			t.Fatalf("数量 %q 不应通过校验", amount)
		}
	}
	req := validRequest()
	req.Amount = "0.000001"
	if _, err := ValidateRequest(req); err != nil {
		t.Fatalf("小额数量应通过校验: %v", err)
	}
}
