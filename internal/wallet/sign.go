// Package wallet 提供与钱包账户直接相关的工具，目前只有消息签名。
package wallet

import (
	"context"
	"encoding/json"

	"DexAI-Chain/internal/adapter"
	"DexAI-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// signRequest 是 sign_message 工具的入参。
type signRequest struct {
	Message string `json:"message"`
}

// SignMessage 用账户私钥对消息做 EIP-191 个人签名。
func SignMessage(ctx context.Context, account web3.Account, req *signRequest) adapter.Result {
	if req.Message == "" {
		return adapter.Fail("待签名消息不能为空")
	}
	signature, err := account.SignMessage(ctx, []byte(req.Message))
	if err != nil {
		return adapter.Fail("签名失败: " + err.Error())
	}
	return adapter.OK("签名完成: " + hexutil.Encode(signature))
}

// Tools 返回钱包工具集合。
func Tools() []adapter.Tool {
	return []adapter.Tool{
		{
			Name:        "sign_message",
			Description: "用当前钱包账户对一段文本消息做个人签名（EIP-191）。",
			Schema: adapter.Schema{
				Properties: map[string]adapter.Property{
					"message": {
						Type:        adapter.TypeString,
						Description: "待签名的文本消息。",
					},
				},
				Required: []string{"message"},
			},
			RequiresAccount: true,
			Handler: func(ctx context.Context, account web3.Account, args json.RawMessage) adapter.Result {
				var req signRequest
				if err := json.Unmarshal(args, &req); err != nil {
					return adapter.Fail("参数解析失败: " + err.Error())
				}
				return SignMessage(ctx, account, &req)
			},
		},
	}
}
