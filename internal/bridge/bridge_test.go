package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	xerrors "DexAI-Chain/internal/errors"
	"DexAI-Chain/internal/observability/alerting"
	"DexAI-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

const (
	testSender   = "0x1111111111111111111111111111111111111111"
	testUSDTAddr = "0x55d398326f99059fF775485246999027B3197955"
	testUSDCAddr = "0x29219dd400f2Bf60E5a23d13Be72B486D4038894"
)

type fakeAccount struct {
	mu        sync.Mutex
	address   common.Address
	allowance *big.Int
	sent      []web3.TxParams
	sendErr   error
}

func newFakeAccount() *fakeAccount {
	return &fakeAccount{
		address:   common.HexToAddress(testSender),
		allowance: big.NewInt(0),
	}
}

func (f *fakeAccount) Address() common.Address { return f.address }

func (f *fakeAccount) ChainID() *big.Int { return big.NewInt(56) }

func (f *fakeAccount) ReadContract(_ context.Context, call web3.CallParams) ([]any, error) {
	if call.Method == "allowance" {
		return []any{new(big.Int).Set(f.allowance)}, nil
	}
	return nil, fmt.Errorf("未预期的合约读取: %s", call.Method)
}

func (f *fakeAccount) SendTransaction(_ context.Context, tx web3.TxParams) (common.Hash, error) {
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return common.HexToHash(fmt.Sprintf("0x%064x", len(f.sent))), nil
}

func (f *fakeAccount) WaitMined(_ context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	return &coretypes.Receipt{Status: coretypes.ReceiptStatusSuccessful, TxHash: hash}, nil
}

func (f *fakeAccount) SignMessage(context.Context, []byte) ([]byte, error) {
	return nil, fmt.Errorf("测试账户不支持签名")
}

func (f *fakeAccount) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeAlertDispatcher 记录收到的告警事件。
type fakeAlertDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (f *fakeAlertDispatcher) Notify(_ context.Context, event alerting.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAlertDispatcher) snapshot() []alerting.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]alerting.Event(nil), f.events...)
}

// quoteServer 模拟 DLN 的代币列表与下单报价接口。
type quoteServer struct {
	srv *httptest.Server

	mu        sync.Mutex
	lastQuery url.Values
	quotes    int

	// txTo / txData 覆盖报价交易的目标地址与 calldata，零值用默认值。
	txTo   string
	txData string
}

func newQuoteServer(t *testing.T) *quoteServer {
	t.Helper()
	q := &quoteServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token-list", q.handleTokenList)
	mux.HandleFunc("/dln/order/create-tx", q.handleCreateTx)
	q.srv = httptest.NewServer(mux)
	t.Cleanup(q.srv.Close)
	return q
}

func (q *quoteServer) handleTokenList(w http.ResponseWriter, r *http.Request) {
	zero := (common.Address{}).Hex()
	var tokens map[string]tokenEntry
	switch r.URL.Query().Get("chainId") {
	case "56":
		tokens = map[string]tokenEntry{
			zero:         {Symbol: "BNB", Name: "BNB", Address: zero, Decimals: 18},
			testUSDTAddr: {Symbol: "USDT", Name: "Tether USD", Address: testUSDTAddr, Decimals: 18},
		}
	case "100000014":
		tokens = map[string]tokenEntry{
			zero:         {Symbol: "S", Name: "Sonic", Address: zero, Decimals: 18},
			testUSDCAddr: {Symbol: "USDC", Name: "USD Coin", Address: testUSDCAddr, Decimals: 6},
		}
	default:
		http.Error(w, "unknown chain", http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(tokenListResponse{Tokens: tokens})
}

func (q *quoteServer) handleCreateTx(w http.ResponseWriter, r *http.Request) {
	q.mu.Lock()
	q.lastQuery = r.URL.Query()
	q.quotes++
	q.mu.Unlock()

	var resp QuoteResponse
	resp.Estimation.SrcChainTokenIn.Amount = r.URL.Query().Get("srcChainTokenInAmount")
	resp.Estimation.SrcChainTokenIn.ApproximateUsdValue = 1200.5
	resp.Estimation.DstChainTokenOut.RecommendedAmount = "1199000000"
	resp.Estimation.DstChainTokenOut.RecommendedApproximateUsdValue = 1199.0
	resp.Estimation.DstChainTokenOut.Decimals = 6
	resp.Estimation.CostsDetails = []CostDetail{{Type: protocolFeeType}}
	resp.Estimation.CostsDetails[0].Payload.FeeApproximateUsdValue = 4.8
	resp.FixFee = "1000000000000000"
	resp.Tx.To = q.txTo
	if resp.Tx.To == "" {
		resp.Tx.To = DLNSourceAddress.Hex()
	}
	resp.Tx.Data = q.txData
	if resp.Tx.Data == "" {
		resp.Tx.Data = "0xdeadbeef"
	}
	resp.Tx.Value = "2001000000000000000"
	_ = json.NewEncoder(w).Encode(&resp)
}

func (q *quoteServer) quoteCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.quotes
}

// testClock 是可手动推进的时钟。
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestAdapter(t *testing.T) (*Adapter, *quoteServer, *testClock) {
	t.Helper()
	server := newQuoteServer(t)
	clock := newTestClock()
	adapter := NewAdapter(Config{QuoteBaseURL: server.srv.URL},
		WithClock(clock.Now),
	)
	return adapter, server, clock
}

func nativeRequest() *Request {
	return &Request{
		SessionID:        "session-1",
		SourceChain:      "bsc",
		DestinationChain: "sonic",
		DestinationToken: "USDC",
		Amount:           "2",
	}
}

func TestBridgeFullFlow(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	account := newFakeAccount()
	ctx := context.Background()

	first := adapter.Bridge(ctx, account, nativeRequest())
	if !first.Success {
		t.Fatalf("首次调用应返回确认消息: %s", first.Message)
	}
	if !strings.Contains(first.Message, "请确认本次桥接") {
		t.Fatalf("首次调用缺少确认提示: %s", first.Message)
	}
	if !strings.Contains(first.Message, "2 BNB") || !strings.Contains(first.Message, "1199 USDC") {
		t.Fatalf("确认消息缺少金额信息: %s", first.Message)
	}
	if account.sentCount() != 0 {
		t.Fatalf("确认阶段不应提交交易")
	}

	confirmed := nativeRequest()
	confirmed.IsConfirmed = true
	second := adapter.Bridge(ctx, account, confirmed)
	if !second.Success {
		t.Fatalf("确认后的调用应提交订单: %s", second.Message)
	}
	if !strings.Contains(second.Message, "交易哈希 0x") {
		t.Fatalf("提交结果缺少交易哈希: %s", second.Message)
	}
	if account.sentCount() != 1 {
		t.Fatalf("原生代币桥接应只提交一笔交易，实际 %d", account.sentCount())
	}
	sent := account.sent[0]
	if sent.To != DLNSourceAddress {
		t.Fatalf("交易目标地址不符: %s", sent.To.Hex())
	}
	if sent.Value.String() != "2001000000000000000" {
		t.Fatalf("交易金额不符: %s", sent.Value)
	}

	// 提交后会话回到初始阶段，再次调用重新走确认流程。
	third := adapter.Bridge(ctx, account, nativeRequest())
	if !strings.Contains(third.Message, "请确认本次桥接") {
		t.Fatalf("提交后的下一轮应重新确认: %s", third.Message)
	}
}

func TestBridgeConfirmationFlagScrubbed(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	account := newFakeAccount()

	req := nativeRequest()
	req.IsConfirmed = true
	result := adapter.Bridge(context.Background(), account, req)
	if !strings.Contains(result.Message, "请确认本次桥接") {
		t.Fatalf("首轮携带 isConfirmed=true 应仍然要求确认: %s", result.Message)
	}
	if account.sentCount() != 0 {
		t.Fatalf("确认环节被跳过，提交了 %d 笔交易", account.sentCount())
	}
}

func TestBridgeQuoteExpiry(t *testing.T) {
	adapter, server, clock := newTestAdapter(t)
	account := newFakeAccount()
	ctx := context.Background()

	if result := adapter.Bridge(ctx, account, nativeRequest()); !result.Success {
		t.Fatalf("首轮失败: %s", result.Message)
	}
	firstQuotes := server.quoteCount()

	clock.Advance(time.Minute)

	confirmed := nativeRequest()
	confirmed.IsConfirmed = true
	result := adapter.Bridge(ctx, account, confirmed)
	if account.sentCount() != 0 {
		t.Fatalf("过期的确认不应提交交易")
	}
	if !strings.Contains(result.Message, "已过期") {
		t.Fatalf("过期后的消息缺少过期提示: %s", result.Message)
	}
	if server.quoteCount() != firstQuotes+1 {
		t.Fatalf("过期后应重新报价")
	}

	// 新报价的确认窗口内再次确认即可提交。
	result = adapter.Bridge(ctx, account, confirmed)
	if !result.Success || account.sentCount() != 1 {
		t.Fatalf("重新确认后应提交订单: %s", result.Message)
	}
}

func TestBridgeAbandonment(t *testing.T) {
	adapter, _, clock := newTestAdapter(t)
	account := newFakeAccount()
	ctx := context.Background()

	if result := adapter.Bridge(ctx, account, nativeRequest()); !result.Success {
		t.Fatalf("首轮失败: %s", result.Message)
	}

	clock.Advance(6 * time.Minute)

	confirmed := nativeRequest()
	confirmed.IsConfirmed = true
	result := adapter.Bridge(ctx, account, confirmed)
	if result.Success {
		t.Fatalf("放弃期限后的调用不应成功: %s", result.Message)
	}
	if !strings.Contains(result.Message, "长时间未操作") {
		t.Fatalf("缺少放弃提示: %s", result.Message)
	}
	if account.sentCount() != 0 {
		t.Fatalf("放弃后的会话不应提交交易")
	}

	// 会话已重置，下一轮从头开始。
	if result := adapter.Bridge(ctx, account, nativeRequest()); !strings.Contains(result.Message, "请确认本次桥接") {
		t.Fatalf("放弃后的下一轮应重新确认: %s", result.Message)
	}
}

func TestBridgeUserCancel(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	account := newFakeAccount()
	ctx := context.Background()

	if result := adapter.Bridge(ctx, account, nativeRequest()); !result.Success {
		t.Fatalf("首轮失败: %s", result.Message)
	}

	result := adapter.Bridge(ctx, account, nativeRequest())
	if !result.Success || !strings.Contains(result.Message, "已取消") {
		t.Fatalf("执行阶段未确认应视为取消: %s", result.Message)
	}
	if account.sentCount() != 0 {
		t.Fatalf("取消不应提交交易")
	}

	if result := adapter.Bridge(ctx, account, nativeRequest()); !strings.Contains(result.Message, "请确认本次桥接") {
		t.Fatalf("取消后的下一轮应重新确认: %s", result.Message)
	}
}

func TestBridgeValidationOrder(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	account := newFakeAccount()

	req := nativeRequest()
	req.SourceChain = "solana"
	req.To = "not-an-address"
	result := adapter.Bridge(context.Background(), account, req)
	if result.Success {
		t.Fatalf("非法请求不应成功")
	}
	if !strings.Contains(result.Message, "不支持的源链") {
		t.Fatalf("应先报源链错误: %s", result.Message)
	}
}

func TestBridgeRecipientDefaultsToSender(t *testing.T) {
	adapter, server, _ := newTestAdapter(t)
	account := newFakeAccount()

	if result := adapter.Bridge(context.Background(), account, nativeRequest()); !result.Success {
		t.Fatalf("首轮失败: %s", result.Message)
	}
	recipient := server.lastQuery.Get("dstChainTokenOutRecipient")
	if !strings.EqualFold(recipient, testSender) {
		t.Fatalf("收款地址应默认为发送方: %s", recipient)
	}
}

func TestBridgeApprovesERC20Source(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	account := newFakeAccount()
	ctx := context.Background()

	req := nativeRequest()
	req.SourceToken = "USDT"
	if result := adapter.Bridge(ctx, account, req); !result.Success {
		t.Fatalf("首轮失败: %s", result.Message)
	}

	confirmed := *req
	confirmed.IsConfirmed = true
	result := adapter.Bridge(ctx, account, &confirmed)
	if !result.Success {
		t.Fatalf("确认后的调用失败: %s", result.Message)
	}
	if account.sentCount() != 2 {
		t.Fatalf("ERC-20 源代币应先授权再提交，实际 %d 笔交易", account.sentCount())
	}
	if account.sent[0].To != common.HexToAddress(testUSDTAddr) {
		t.Fatalf("授权交易应发往代币合约: %s", account.sent[0].To.Hex())
	}
	if account.sent[1].To != DLNSourceAddress {
		t.Fatalf("桥接交易应发往下单合约: %s", account.sent[1].To.Hex())
	}
}

func TestBridgeSkipsApprovalWhenAllowanceSufficient(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	account := newFakeAccount()
	account.allowance = new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
	ctx := context.Background()

	req := nativeRequest()
	req.SourceToken = "USDT"
	if result := adapter.Bridge(ctx, account, req); !result.Success {
		t.Fatalf("首轮失败: %s", result.Message)
	}
	confirmed := *req
	confirmed.IsConfirmed = true
	if result := adapter.Bridge(ctx, account, &confirmed); !result.Success {
		t.Fatalf("确认后的调用失败: %s", result.Message)
	}
	if account.sentCount() != 1 {
		t.Fatalf("额度充足时不应提交授权交易，实际 %d 笔", account.sentCount())
	}
}

func TestBridgeChainFailureResetsSession(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	account := newFakeAccount()
	account.sendErr = fmt.Errorf("nonce too low")
	ctx := context.Background()

	if result := adapter.Bridge(ctx, account, nativeRequest()); !result.Success {
		t.Fatalf("首轮失败: %s", result.Message)
	}

	confirmed := nativeRequest()
	confirmed.IsConfirmed = true
	result := adapter.Bridge(ctx, account, confirmed)
	if result.Success {
		t.Fatalf("链上失败不应返回成功")
	}

	// 会话已重置，重试从头开始。
	account.sendErr = nil
	if result := adapter.Bridge(ctx, account, nativeRequest()); !strings.Contains(result.Message, "请确认本次桥接") {
		t.Fatalf("失败后的下一轮应重新确认: %s", result.Message)
	}
}

func TestBridgeReusedRequestSurvivesExpiry(t *testing.T) {
	adapter, _, clock := newTestAdapter(t)
	account := newFakeAccount()
	ctx := context.Background()

	// 调用方跨轮次复用同一个请求对象。
	req := nativeRequest()
	if result := adapter.Bridge(ctx, account, req); !result.Success {
		t.Fatalf("首轮失败: %s", result.Message)
	}

	req.IsConfirmed = true
	clock.Advance(time.Minute)
	result := adapter.Bridge(ctx, account, req)
	if !strings.Contains(result.Message, "已过期") {
		t.Fatalf("过期后的消息缺少过期提示: %s", result.Message)
	}
	if !req.IsConfirmed {
		t.Fatalf("请求对象的确认标记被改写")
	}
	if req.To != "" {
		t.Fatalf("收款地址默认值被写回请求对象: %s", req.To)
	}

	// 新窗口内用同一个对象再次确认即可提交。
	result = adapter.Bridge(ctx, account, req)
	if !result.Success || account.sentCount() != 1 {
		t.Fatalf("重新确认后应提交订单: %s", result.Message)
	}
}

func TestBridgeRejectsMalformedQuote(t *testing.T) {
	t.Run("交易数据不是十六进制", func(t *testing.T) {
		adapter, server, _ := newTestAdapter(t)
		server.txData = "0xZZNOTHEX"
		account := newFakeAccount()
		ctx := context.Background()

		result := adapter.Bridge(ctx, account, nativeRequest())
		if result.Success {
			t.Fatalf("非法报价不应返回成功: %s", result.Message)
		}
		if !strings.Contains(result.Message, "交易数据不合法") {
			t.Fatalf("缺少报价失败提示: %s", result.Message)
		}

		// 即使调用方带着确认标记重试，也不应有任何交易被提交。
		confirmed := nativeRequest()
		confirmed.IsConfirmed = true
		if result := adapter.Bridge(ctx, account, confirmed); result.Success {
			t.Fatalf("确认重试不应绕过报价校验: %s", result.Message)
		}
		if account.sentCount() != 0 {
			t.Fatalf("非法报价提交了 %d 笔交易", account.sentCount())
		}
	})

	t.Run("交易数据为空", func(t *testing.T) {
		adapter, server, _ := newTestAdapter(t)
		server.txData = "0x"
		account := newFakeAccount()

		result := adapter.Bridge(context.Background(), account, nativeRequest())
		if result.Success || !strings.Contains(result.Message, "交易数据不合法") {
			t.Fatalf("空 calldata 应被拒绝: %s", result.Message)
		}
		if account.sentCount() != 0 {
			t.Fatalf("空 calldata 不应提交交易")
		}
	})

	t.Run("交易目标地址不合法", func(t *testing.T) {
		adapter, server, _ := newTestAdapter(t)
		server.txTo = "not-an-address"
		account := newFakeAccount()

		result := adapter.Bridge(context.Background(), account, nativeRequest())
		if result.Success || !strings.Contains(result.Message, "交易地址不合法") {
			t.Fatalf("非法目标地址应被拒绝: %s", result.Message)
		}
		if account.sentCount() != 0 {
			t.Fatalf("非法目标地址不应提交交易")
		}
	})
}

func TestBridgeChainFailureDispatchesAlert(t *testing.T) {
	server := newQuoteServer(t)
	clock := newTestClock()
	alerts := &fakeAlertDispatcher{}
	adapter := NewAdapter(Config{QuoteBaseURL: server.srv.URL},
		WithClock(clock.Now),
		WithAlertDispatcher(alerts),
	)
	account := newFakeAccount()
	account.sendErr = fmt.Errorf("execution reverted")
	ctx := context.Background()

	if result := adapter.Bridge(ctx, account, nativeRequest()); !result.Success {
		t.Fatalf("首轮失败: %s", result.Message)
	}
	confirmed := nativeRequest()
	confirmed.IsConfirmed = true
	if result := adapter.Bridge(ctx, account, confirmed); result.Success {
		t.Fatalf("链上失败不应返回成功")
	}

	events := alerts.snapshot()
	if len(events) != 1 {
		t.Fatalf("链上失败应触发一次告警，实际 %d 次", len(events))
	}
	if events[0].Code != xerrors.CodeChainFailure {
		t.Fatalf("告警错误码不符: %s", events[0].Code)
	}
	if events[0].SessionID != "session-1" || events[0].Chain != "bsc" {
		t.Fatalf("告警上下文不符: %+v", events[0])
	}
}

func TestBridgeSubmitClearsPersistedSession(t *testing.T) {
	server := newQuoteServer(t)
	clock := newTestClock()
	store := NewMemorySessionStore()
	adapter := NewAdapter(Config{QuoteBaseURL: server.srv.URL},
		WithClock(clock.Now),
		WithSessionStore(store),
	)
	account := newFakeAccount()
	ctx := context.Background()

	if result := adapter.Bridge(ctx, account, nativeRequest()); !result.Success {
		t.Fatalf("首轮失败: %s", result.Message)
	}
	confirmed := nativeRequest()
	confirmed.IsConfirmed = true
	if result := adapter.Bridge(ctx, account, confirmed); !result.Success {
		t.Fatalf("确认后的调用失败: %s", result.Message)
	}

	session, err := store.Load(ctx, "session-1")
	if err != nil {
		t.Fatalf("载入会话失败: %v", err)
	}
	if session.Phase != PhaseInitial {
		t.Fatalf("提交后的会话应回到初始阶段: %s", session.Phase)
	}
	if session.Prepared != nil {
		t.Fatalf("提交后的会话不应保留报价")
	}
	if !session.ConfirmDeadline.IsZero() || !session.AbandonDeadline.IsZero() {
		t.Fatalf("提交后的截止时间应清空")
	}
}

func TestPreparerIdempotent(t *testing.T) {
	server := newQuoteServer(t)
	dln := NewDLNClient(server.srv.URL, 0)
	dir := NewDirectory(dln, 0, 0)
	preparer := NewPreparer(dir, dln, "", 0)

	req := nativeRequest()
	req.To = testSender
	route, err := ValidateRequest(req)
	if err != nil {
		t.Fatalf("校验失败: %v", err)
	}

	sender := common.HexToAddress(testSender)
	first, err := preparer.Prepare(context.Background(), req, route, sender)
	if err != nil {
		t.Fatalf("首次报价失败: %v", err)
	}
	second, err := preparer.Prepare(context.Background(), req, route, sender)
	if err != nil {
		t.Fatalf("二次报价失败: %v", err)
	}

	if first.GiveToken.Address != second.GiveToken.Address ||
		first.TakeToken.Address != second.TakeToken.Address {
		t.Fatalf("两次报价解析出的代币不一致")
	}
	if first.GiveAmount.Cmp(second.GiveAmount) != 0 || first.TakeAmount.Cmp(second.TakeAmount) != 0 {
		t.Fatalf("两次报价的数量不一致")
	}
}
