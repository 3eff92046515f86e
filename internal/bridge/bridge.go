package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"DexAI-Chain/internal/adapter"
	xerrors "DexAI-Chain/internal/errors"
	"DexAI-Chain/internal/observability/alerting"
	"DexAI-Chain/internal/web3"
	"DexAI-Chain/pkg/logger"

	"github.com/google/uuid"
)

// Config 描述桥接适配器的可调参数，零值字段在 applyDefaults 中补齐。
type Config struct {
	// QuoteBaseURL 为报价服务地址，默认指向 DLN 官方服务。
	QuoteBaseURL string
	// QuoteTimeout 约束单次报价或代币列表请求。
	QuoteTimeout time.Duration
	// ConfirmWindow 是确认消息展示后报价的有效期。
	ConfirmWindow time.Duration
	// AbandonWindow 是会话的绝对放弃期限。
	AbandonWindow time.Duration
	// TokenCacheSize / TokenCacheTTL 控制代币目录缓存。
	TokenCacheSize int
	TokenCacheTTL  time.Duration
	// AffiliateAddress 与 AffiliateFeePercent 为下单返佣参数。
	AffiliateAddress    string
	AffiliateFeePercent float64
}

func (c *Config) applyDefaults() {
	if c.QuoteBaseURL == "" {
		c.QuoteBaseURL = defaultQuoteBaseURL
	}
	if c.QuoteTimeout <= 0 {
		c.QuoteTimeout = defaultQuoteTimeout
	}
	if c.ConfirmWindow <= 0 {
		c.ConfirmWindow = defaultConfirmWindow
	}
	if c.AbandonWindow <= 0 {
		c.AbandonWindow = defaultAbandonWindow
	}
	if c.TokenCacheSize <= 0 {
		c.TokenCacheSize = defaultTokenCacheSize
	}
	if c.TokenCacheTTL <= 0 {
		c.TokenCacheTTL = defaultTokenCacheTTL
	}
	if c.AffiliateFeePercent <= 0 {
		c.AffiliateFeePercent = defaultAffiliateFeePercent
	}
}

// OrderRecorder 是订单历史存储的抽象，提交成功后写入一条订单记录。
type OrderRecorder interface {
	RecordOrder(ctx context.Context, order *OrderRecord) error
}

// EventPublisher 在订单提交后向消息队列发布事件，供下游消费。
type EventPublisher interface {
	PublishOrderSubmitted(ctx context.Context, order *OrderRecord) error
}

// Adapter 是桥接工具的编排器。每轮调用都从会话存储载入会话、按固定顺序
// 推进状态机、再把会话写回，调用之间不依赖任何进程内状态。
type Adapter struct {
	cfg      Config
	dir      *Directory
	preparer *Preparer
	sessions SessionStore
	orders   OrderRecorder
	events   EventPublisher
	alerts   alerting.Dispatcher
	log      *slog.Logger

	// now 可注入，测试中用固定时钟驱动过期与放弃逻辑。
	now func() time.Time
}

// Option 配置 Adapter 的可选依赖。
type Option func(*Adapter)

// WithSessionStore 注入会话存储，默认使用内存实现。
func WithSessionStore(store SessionStore) Option {
	return func(a *Adapter) { a.sessions = store }
}

// WithOrderRecorder 注入订单历史存储，缺省时不记录订单。
func WithOrderRecorder(recorder OrderRecorder) Option {
	return func(a *Adapter) { a.orders = recorder }
}

// WithEventPublisher 注入订单事件发布器，缺省时不发布事件。
func WithEventPublisher(publisher EventPublisher) Option {
	return func(a *Adapter) { a.events = publisher }
}

// WithAlertDispatcher 注入告警分发器，链上写入等严重失败会触发告警。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(a *Adapter) { a.alerts = dispatcher }
}

// WithClock 注入时钟，仅测试使用。
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// NewAdapter 创建桥接适配器。
func NewAdapter(cfg Config, opts ...Option) *Adapter {
	cfg.applyDefaults()
	dln := NewDLNClient(cfg.QuoteBaseURL, cfg.QuoteTimeout)
	dir := NewDirectory(dln, cfg.TokenCacheSize, cfg.TokenCacheTTL)
	a := &Adapter{
		cfg:      cfg,
		dir:      dir,
		preparer: NewPreparer(dir, dln, cfg.AffiliateAddress, cfg.AffiliateFeePercent),
		sessions: NewMemorySessionStore(),
		log:      logger.Named("bridge"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Directory 暴露适配器内部的代币目录，供周边工具复用同一份缓存。
func (a *Adapter) Directory() *Directory {
	return a.dir
}

// Bridge 是桥接状态机的唯一入口，每个用户轮次由调用方重新调用一次。
// 所有失败都折叠为 {success, message}，不向外抛出错误。
func (a *Adapter) Bridge(ctx context.Context, account web3.Account, req *Request) adapter.Result {
	// 调用方可能跨轮次复用同一个请求对象，本轮的补默认值与确认标记
	// 清洗都只写入副本。
	local := *req
	req = &local
	if req.SessionID == "" {
		req.SessionID = strings.ToLower(account.Address().Hex())
	}
	session, err := a.sessions.Load(ctx, req.SessionID)
	if err != nil {
		return failFrom(err)
	}
	now := a.now()

	// 放弃期限采用惰性判定：期限已过视同放弃定时器已触发。
	if session.Phase != PhaseInitial && session.Phase != PhaseCancelled &&
		!session.AbandonDeadline.IsZero() && now.After(session.AbandonDeadline) {
		if err := session.transition(ctx, eventAbandon); err != nil {
			return failFrom(err)
		}
	}
	if session.Phase == PhaseCancelled {
		session.Reset()
		if err := a.sessions.Save(ctx, session); err != nil {
			return failFrom(err)
		}
		return failFrom(xerrors.New(xerrors.CodeSessionAbandoned,
			"会话因长时间未操作已取消，请重新发起桥接。"))
	}

	// 确认期限同样惰性判定：过期的执行阶段会话退回确认阶段并丢弃旧报价，
	// 下一条确认消息将基于新报价并附带过期提示。
	if session.Phase == PhaseExecution &&
		!session.ConfirmDeadline.IsZero() && now.After(session.ConfirmDeadline) {
		if err := session.transition(ctx, eventExpire); err != nil {
			return failFrom(err)
		}
		session.Expired = true
		session.Prepared = nil
		session.ConfirmDeadline = time.Time{}
		req.IsConfirmed = false
	}

	// 执行阶段收到未确认的请求视为用户主动取消。
	if session.Phase == PhaseExecution && !req.IsConfirmed {
		session.Reset()
		if err := a.sessions.Save(ctx, session); err != nil {
			return failFrom(err)
		}
		return adapter.OK("已取消本次桥接。")
	}

	// 确认标记只在执行阶段有意义，其余阶段一律清洗为 false，防止上一轮
	// 残留的 isConfirmed=true 跳过确认环节。
	if req.IsConfirmed && session.Phase != PhaseExecution {
		req.IsConfirmed = false
	}

	if req.To == "" {
		req.To = account.Address().Hex()
	}

	route, err := ValidateRequest(req)
	if err != nil {
		// 校验失败可由用户纠正，阶段保持不变。
		if saveErr := a.sessions.Save(ctx, session); saveErr != nil {
			return failFrom(saveErr)
		}
		return failFrom(err)
	}

	if session.Phase == PhaseInitial {
		result, ok := a.discover(ctx, session, req, route)
		if !ok {
			if saveErr := a.sessions.Save(ctx, session); saveErr != nil {
				return failFrom(saveErr)
			}
			return result
		}
		session.AbandonDeadline = now.Add(a.cfg.AbandonWindow)
	}

	if session.Phase == PhaseConfirmation {
		if session.Prepared == nil {
			prepared, err := a.preparer.Prepare(ctx, req, route, account.Address())
			if err != nil {
				if xerrors.CodeOf(err) != xerrors.CodeNotFound {
					// 报价失败重置会话，下次调用从头开始。
					session.Reset()
				}
				if saveErr := a.sessions.Save(ctx, session); saveErr != nil {
					return failFrom(saveErr)
				}
				return failFrom(err)
			}
			session.Prepared = prepared
		}
		if err := session.transition(ctx, eventPropose); err != nil {
			return failFrom(err)
		}
		session.ConfirmDeadline = now.Add(a.cfg.ConfirmWindow)
		message := a.confirmationMessage(session, req)
		session.Expired = false
		if err := a.sessions.Save(ctx, session); err != nil {
			return failFrom(err)
		}
		return adapter.OK(message)
	}

	// 执行阶段且已确认：提交订单。
	return a.submit(ctx, account, session, req)
}

// discover 在初始阶段解析两侧代币。任一侧无法解析时返回带候选列表的
// 失败结果且不推进阶段；两侧均解析成功时推进到确认阶段。
func (a *Adapter) discover(ctx context.Context, session *Session, req *Request, route *RouteInfo) (adapter.Result, bool) {
	srcTokens, err := a.dir.GetTokens(ctx, route.FromChain)
	if err != nil {
		return failFrom(err), false
	}
	dstTokens, err := a.dir.GetTokens(ctx, route.ToChain)
	if err != nil {
		return failFrom(err), false
	}
	if _, ok := Resolve(srcTokens, req.SourceToken); !ok {
		return adapter.Fail(tokenListing("源链", req.SourceToken, route.FromChain, srcTokens)), false
	}
	if _, ok := Resolve(dstTokens, req.DestinationToken); !ok {
		return adapter.Fail(tokenListing("目标链", req.DestinationToken, route.ToChain, dstTokens)), false
	}
	if err := session.transition(ctx, eventDiscover); err != nil {
		return failFrom(err), false
	}
	return adapter.Result{}, true
}

// submit 对应执行阶段：必要时先完成授权，然后提交报价给出的交易。
// 链上写入失败对本次桥接是致命的，会话无条件重置。
func (a *Adapter) submit(ctx context.Context, account web3.Account, session *Session, req *Request) adapter.Result {
	prepared := session.Prepared
	if prepared == nil {
		session.Reset()
		if err := a.sessions.Save(ctx, session); err != nil {
			return failFrom(err)
		}
		return adapter.Fail("会话中没有待提交的报价，请重新发起桥接。")
	}

	session.ConfirmDeadline = time.Time{}
	session.AbandonDeadline = time.Time{}

	if !prepared.GiveToken.IsNative() {
		if _, err := EnsureApproval(ctx, account, prepared.GiveToken.Address, DLNSourceAddress, prepared.GiveAmount); err != nil {
			a.alert(ctx, err, session.ID, req.SourceChain)
			session.Reset()
			if saveErr := a.sessions.Save(ctx, session); saveErr != nil {
				return failFrom(saveErr)
			}
			return failFrom(err)
		}
	}

	txHash, err := account.SendTransaction(ctx, web3.TxParams{
		To:    prepared.To,
		Data:  prepared.Data,
		Value: prepared.Value,
	})
	if err != nil {
		wrapped := xerrors.Wrap(xerrors.CodeChainFailure, err, "提交桥接交易失败")
		a.alert(ctx, wrapped, session.ID, req.SourceChain)
		session.Reset()
		if saveErr := a.sessions.Save(ctx, session); saveErr != nil {
			return failFrom(saveErr)
		}
		return failFrom(wrapped)
	}

	order := &OrderRecord{
		ID:               uuid.NewString(),
		SessionID:        session.ID,
		SourceChain:      req.SourceChain,
		DestinationChain: req.DestinationChain,
		GiveToken:        prepared.GiveToken.Symbol,
		TakeToken:        prepared.TakeToken.Symbol,
		GiveAmount:       req.Amount,
		TakeAmount:       prepared.TakeAmountDisplay,
		AmountUSD:        prepared.GiveAmountUSD,
		Sender:           account.Address().Hex(),
		Recipient:        prepared.Recipient.Hex(),
		TxHash:           txHash.Hex(),
		CreatedAt:        a.now(),
	}
	logger.Audit().Info("bridge_order_submitted",
		slog.String("order_id", order.ID),
		slog.String("session_id", order.SessionID),
		slog.String("source_chain", order.SourceChain),
		slog.String("destination_chain", order.DestinationChain),
		slog.String("tx_hash", order.TxHash),
	)

	// 订单记录与事件发布都是尽力而为，不影响已提交的交易结果。
	if a.orders != nil {
		if err := a.orders.RecordOrder(ctx, order); err != nil {
			a.log.Error("记录桥接订单失败", slog.Any("error", err), slog.String("order_id", order.ID))
		}
	}
	if a.events != nil {
		if err := a.events.PublishOrderSubmitted(ctx, order); err != nil {
			a.log.Error("发布订单事件失败", slog.Any("error", err), slog.String("order_id", order.ID))
		}
	}

	if err := session.transition(ctx, eventSubmit); err != nil {
		return failFrom(err)
	}
	session.Reset()
	if err := a.sessions.Save(ctx, session); err != nil {
		return failFrom(err)
	}
	return adapter.OK(fmt.Sprintf(
		"桥接订单已提交，交易哈希 %s。%s %s（%s）正在跨链至 %s，预计到账 %s %s，收款地址 %s。",
		txHash.Hex(),
		req.Amount, prepared.GiveToken.Symbol, req.SourceChain,
		req.DestinationChain,
		prepared.TakeAmountDisplay, prepared.TakeToken.Symbol,
		prepared.Recipient.Hex(),
	))
}

// confirmationMessage 渲染确认消息：金额、美元估值、费用、收款地址与
// 确认时限，上一窗口过期时附带过期提示。
func (a *Adapter) confirmationMessage(session *Session, req *Request) string {
	prepared := session.Prepared
	var b strings.Builder
	if session.Expired {
		b.WriteString("上一份报价已过期，以下为最新报价。\n")
	}
	fmt.Fprintf(&b, "请确认本次桥接：\n")
	fmt.Fprintf(&b, "- 转出：%s %s（%s，约 $%.2f）\n",
		req.Amount, prepared.GiveToken.Symbol, req.SourceChain, prepared.GiveAmountUSD)
	fmt.Fprintf(&b, "- 转入：%s %s（%s，约 $%.2f）\n",
		prepared.TakeAmountDisplay, prepared.TakeToken.Symbol, req.DestinationChain, prepared.TakeAmountUSD)
	fmt.Fprintf(&b, "- 固定费用：%s %s，协议费约 $%s\n",
		prepared.FixedFeeNative, prepared.FeeSymbol, prepared.ProtocolFeeUSD)
	fmt.Fprintf(&b, "- 收款地址：%s\n", prepared.Recipient.Hex())
	fmt.Fprintf(&b, "报价 %s 内有效，确认请在参数中携带 isConfirmed=true 重新调用。",
		a.cfg.ConfirmWindow)
	return b.String()
}

// tokenListing 渲染某条链上可选代币列表，用于代币解析失败时提示用户。
func tokenListing(side, ref string, chain web3.Chain, tokens []TokenRecord) string {
	var b strings.Builder
	if ref == "" {
		fmt.Fprintf(&b, "请指定%s代币。", side)
	} else {
		fmt.Fprintf(&b, "未找到%s代币 %s。", side, ref)
	}
	fmt.Fprintf(&b, "%s 上可选代币：\n", chain)
	for _, token := range tokens {
		fmt.Fprintf(&b, "- %s（%s）%s\n", token.Symbol, token.Name, token.Address.Hex())
	}
	return strings.TrimRight(b.String(), "\n")
}

// alert 将需要告警的错误分发到告警渠道，分发失败只记录日志。
func (a *Adapter) alert(ctx context.Context, err error, sessionID, chain string) {
	if a.alerts == nil {
		return
	}
	event, ok := alerting.FromError(err, sessionID, chain)
	if !ok {
		return
	}
	if notifyErr := a.alerts.Notify(ctx, event); notifyErr != nil {
		a.log.Error("分发告警失败", slog.Any("error", notifyErr), slog.String("session_id", sessionID))
	}
}

// failFrom 把内部错误折叠为统一的失败结果，未知错误不向调用方泄露细节。
func failFrom(err error) adapter.Result {
	if typed, ok := xerrors.From(err); ok {
		return adapter.Fail(typed.Message())
	}
	return adapter.Fail("桥接服务内部错误，请稍后重试。")
}

// Tools 返回桥接适配器暴露给 LLM 运行时的工具集合。
func (a *Adapter) Tools() []adapter.Tool {
	return []adapter.Tool{
		{
			Name: "bridge_token",
			Description: "跨链桥接代币。首次调用返回报价确认消息，" +
				"确认后在 30 秒内携带 isConfirmed=true 再次调用以提交订单。",
			Schema: adapter.Schema{
				Properties: map[string]adapter.Property{
					"sessionId": {
						Type:        adapter.TypeString,
						Description: "桥接会话标识，同一会话的多轮调用必须携带相同的值；省略时以账户地址作为会话标识。",
					},
					"sourceChain": {
						Type:        adapter.TypeString,
						Description: "源链名称，例如 bsc、ethereum、sonic。",
						Enum:        chainNames(),
					},
					"destinationChain": {
						Type:        adapter.TypeString,
						Description: "目标链名称，例如 bsc、ethereum、sonic。",
						Enum:        chainNames(),
					},
					"sourceToken": {
						Type:        adapter.TypeString,
						Description: "源链代币的合约地址或符号，省略或填零地址表示链原生代币。",
					},
					"destinationToken": {
						Type:        adapter.TypeString,
						Description: "目标链代币的合约地址或符号，省略或填零地址表示链原生代币。",
					},
					"to": {
						Type:        adapter.TypeString,
						Description: "目标链收款地址，省略时默认为发送方自己的地址。",
					},
					"amount": {
						Type:        adapter.TypeString,
						Description: "桥接数量，十进制字符串，例如 \"2\" 或 \"0.5\"。",
					},
					"isConfirmed": {
						Type:        adapter.TypeBoolean,
						Description: "用户是否已确认本次桥接，仅在收到确认消息后的下一次调用中设为 true。",
						Default:     false,
					},
				},
				Required: []string{"sourceChain", "destinationChain", "amount"},
			},
			RequiresAccount: true,
			Handler: func(ctx context.Context, account web3.Account, args json.RawMessage) adapter.Result {
				var req Request
				if err := json.Unmarshal(args, &req); err != nil {
					return adapter.Fail("参数解析失败: " + err.Error())
				}
				return a.Bridge(ctx, account, &req)
			},
		},
	}
}

// chainNames 返回支持的链名称列表，供工具 schema 的枚举使用。
func chainNames() []string {
	names := make([]string, 0, len(SupportedChains))
	for _, chain := range SupportedChains {
		names = append(names, string(chain))
	}
	return names
}
