package adapter

import (
	"context"
	"encoding/json"

	"DexAI-Chain/internal/web3"
)

// Result 是所有工具调用统一的返回结构，错误不会越过该边界。
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// OK 构造成功结果。
func OK(message string) Result {
	return Result{Success: true, Message: message}
}

// Fail 构造失败结果。
func Fail(message string) Result {
	return Result{Success: false, Message: message}
}

// Handler 是工具的执行入口。对于无需账户的工具，account 可能为 nil。
type Handler func(ctx context.Context, account web3.Account, args json.RawMessage) Result

// Tool 描述一个可供 LLM 运行时调用的工具。
type Tool struct {
	// Name 是工具的唯一名称，例如 bridge_token。
	Name string
	// Description 提供给 LLM 的工具说明。
	Description string
	// Schema 描述工具参数，字段说明同样面向 LLM。
	Schema Schema
	// RequiresAccount 表示调用时必须绑定钱包账户。
	RequiresAccount bool
	// Handler 为实际执行函数。
	Handler Handler
}

// Descriptor 是工具对外暴露的元数据视图。
type Descriptor struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Schema          Schema `json:"schema"`
	RequiresAccount bool   `json:"requires_account"`
}
