package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	xerrors "DexAI-Chain/internal/errors"

	"github.com/looplab/fsm"
)

// Phase 是桥接会话所处的阶段。
type Phase string

const (
	// PhaseInitial 表示会话尚未开始或已重置。
	PhaseInitial Phase = "initial"
	// PhaseConfirmation 表示代币已解析，等待生成确认消息。
	PhaseConfirmation Phase = "confirmation"
	// PhaseExecution 表示确认消息已展示，等待用户确认后提交。
	PhaseExecution Phase = "execution"
	// PhaseCancelled 是放弃期限触发后的吸收态，下一次调用时重置。
	PhaseCancelled Phase = "cancelled"
)

// 会话状态机的事件。
const (
	eventDiscover = "discover" // initial -> confirmation：代币解析完成
	eventPropose  = "propose"  // confirmation -> execution：确认消息已展示
	eventExpire   = "expire"   // execution -> confirmation：报价过期，需要重新确认
	eventSubmit   = "submit"   // execution -> initial：订单已提交
	eventAbandon  = "abandon"  // confirmation/execution -> cancelled：超过放弃期限
)

// newPhaseMachine 以当前阶段重建会话状态机。会话本身只持久化阶段字符串，
// 状态机在每次载入时重建。
func newPhaseMachine(current Phase) *fsm.FSM {
	return fsm.NewFSM(
		string(current),
		fsm.Events{
			{Name: eventDiscover, Src: []string{string(PhaseInitial)}, Dst: string(PhaseConfirmation)},
			{Name: eventPropose, Src: []string{string(PhaseConfirmation)}, Dst: string(PhaseExecution)},
			{Name: eventExpire, Src: []string{string(PhaseExecution)}, Dst: string(PhaseConfirmation)},
			{Name: eventSubmit, Src: []string{string(PhaseExecution)}, Dst: string(PhaseInitial)},
			{Name: eventAbandon, Src: []string{string(PhaseConfirmation), string(PhaseExecution)}, Dst: string(PhaseCancelled)},
		},
		fsm.Callbacks{},
	)
}

// Session 是一次桥接会话的全部可持久化状态。同一会话的不变量：任一时刻
// 至多只有一个确认截止时间和一个放弃截止时间；设置新的截止时间前总是
// 先清除旧值。
type Session struct {
	ID    string `json:"id"`
	Phase Phase  `json:"phase"`
	// Expired 标记上一个确认窗口已过期，下一条确认消息需附带过期提示。
	Expired bool `json:"expired,omitempty"`
	// ConfirmDeadline 是当前报价的绝对过期时间，零值表示未武装。
	ConfirmDeadline time.Time `json:"confirm_deadline,omitempty"`
	// AbandonDeadline 是整个会话的绝对放弃时间，零值表示未武装。
	AbandonDeadline time.Time `json:"abandon_deadline,omitempty"`
	// Prepared 是确认窗口内缓存的报价交易。
	Prepared  *PreparedTx `json:"prepared,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NewSession 创建处于初始阶段的会话。
func NewSession(id string) *Session {
	return &Session{ID: id, Phase: PhaseInitial}
}

// transition 在会话状态机上触发一次事件并回写阶段。
func (s *Session) transition(ctx context.Context, event string) error {
	machine := newPhaseMachine(s.Phase)
	if err := machine.Event(ctx, event); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err,
			"会话状态流转失败: "+event)
	}
	s.Phase = Phase(machine.Current())
	return nil
}

// Reset 将会话恢复到初始阶段并清空全部派生状态。
func (s *Session) Reset() {
	s.Phase = PhaseInitial
	s.Expired = false
	s.ConfirmDeadline = time.Time{}
	s.AbandonDeadline = time.Time{}
	s.Prepared = nil
}

// SessionStore 按会话 ID 提供会话的读写。多实例部署时注入 Redis 实现，
// 单进程部署用内存实现即可。
type SessionStore interface {
	// Load 返回指定会话，不存在时返回一个全新的初始会话。
	Load(ctx context.Context, id string) (*Session, error)
	// Save 持久化会话。
	Save(ctx context.Context, session *Session) error
}

// MemorySessionStore 以内存方式保存会话，主要面向单进程部署与测试。
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemorySessionStore 创建内存会话存储。
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

// Load 实现 SessionStore 接口。
func (m *MemorySessionStore) Load(_ context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "会话 ID 不能为空")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return NewSession(id), nil
	}
	return cloneSession(session), nil
}

// Save 实现 SessionStore 接口。
func (m *MemorySessionStore) Save(_ context.Context, session *Session) error {
	if session == nil || session.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "会话不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	session.UpdatedAt = time.Now()
	m.sessions[session.ID] = cloneSession(session)
	return nil
}

// cloneSession 深拷贝会话，避免调用方与存储共享可变状态。
func cloneSession(session *Session) *Session {
	clone := *session
	if session.Prepared != nil {
		// PreparedTx 经 JSON 往返做深拷贝，字段全部可序列化。
		raw, err := json.Marshal(session.Prepared)
		if err == nil {
			var prepared PreparedTx
			if json.Unmarshal(raw, &prepared) == nil {
				clone.Prepared = &prepared
			}
		}
	}
	return &clone
}
