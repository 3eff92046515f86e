package adapter

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	xerrors "DexAI-Chain/internal/errors"
	"DexAI-Chain/internal/web3"
)

// Registry 在启动阶段通过显式注册构建工具表，运行期只读。
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry 创建空的注册表。
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register 注册一个工具，名称冲突或定义不完整时报错。
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "工具名称不能为空")
	}
	if tool.Handler == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "工具 "+tool.Name+" 缺少执行函数")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return xerrors.New(xerrors.CodeInvalidArgument, "工具 "+tool.Name+" 已经注册")
	}
	r.tools[tool.Name] = tool
	return nil
}

// MustRegister 与 Register 相同，但在失败时直接 panic，用于启动期装配。
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Get 返回指定名称的工具。
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Descriptors 返回所有工具的元数据，按名称排序。
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, Descriptor{
			Name:            tool.Name,
			Description:     tool.Description,
			Schema:          tool.Schema,
			RequiresAccount: tool.RequiresAccount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke 查找并执行工具，所有失败都折叠为统一的 Result。
func (r *Registry) Invoke(ctx context.Context, name string, account web3.Account, args json.RawMessage) Result {
	tool, ok := r.Get(name)
	if !ok {
		return Fail("未找到工具 " + name)
	}
	if tool.RequiresAccount && account == nil {
		return Fail("工具 " + name + " 需要绑定钱包账户")
	}
	return tool.Handler(ctx, account, args)
}
