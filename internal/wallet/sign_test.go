package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"DexAI-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

type fakeAccount struct {
	signed  []byte
	signErr error
}

func (f *fakeAccount) Address() common.Address {
	return common.HexToAddress("0x1111111111111111111111111111111111111111")
}

func (f *fakeAccount) ChainID() *big.Int { return big.NewInt(56) }

func (f *fakeAccount) ReadContract(context.Context, web3.CallParams) ([]any, error) {
	return nil, fmt.Errorf("测试账户不支持合约读取")
}

func (f *fakeAccount) SendTransaction(context.Context, web3.TxParams) (common.Hash, error) {
	return common.Hash{}, fmt.Errorf("测试账户不支持交易")
}

func (f *fakeAccount) WaitMined(context.Context, common.Hash) (*coretypes.Receipt, error) {
	return nil, fmt.Errorf("测试账户不支持交易")
}

func (f *fakeAccount) SignMessage(_ context.Context, message []byte) ([]byte, error) {
	if f.signErr != nil {
		return nil, f.signErr
	}
	f.signed = message
	return []byte{0x01, 0x02}, nil
}

func TestSignMessage(t *testing.T) {
	account := &fakeAccount{}
	result := SignMessage(context.Background(), account, &signRequest{Message: "hello"})
	if !result.Success {
		t.Fatalf("签名失败: %s", result.Message)
	}
	if !strings.Contains(result.Message, "0x0102") {
		t.Fatalf("结果应包含十六进制签名: %s", result.Message)
	}
	if string(account.signed) != "hello" {
		t.Fatalf("签名内容不符: %q", account.signed)
	}
}

func TestSignMessageRejectsEmpty(t *testing.T) {
	result := SignMessage(context.Background(), &fakeAccount{}, &signRequest{})
	if result.Success || !strings.Contains(result.Message, "不能为空") {
		t.Fatalf("空消息应被拒绝: %+v", result)
	}
}

func TestSignMessageSignerFailure(t *testing.T) {
	account := &fakeAccount{signErr: fmt.Errorf("locked")}
	result := SignMessage(context.Background(), account, &signRequest{Message: "hello"})
	if result.Success || !strings.Contains(result.Message, "签名失败") {
		t.Fatalf("签名错误应返回失败: %+v", result)
	}
}

func TestSignMessageTool(t *testing.T) {
	tools := Tools()
	if len(tools) != 1 || tools[0].Name != "sign_message" {
		t.Fatalf("工具集合不符: %+v", tools)
	}
	if !tools[0].RequiresAccount {
		t.Fatalf("签名工具必须绑定账户")
	}

	account := &fakeAccount{}
	result := tools[0].Handler(context.Background(), account, json.RawMessage(`{"message":"世界"}`))
	if !result.Success {
		t.Fatalf("通过工具入口签名失败: %s", result.Message)
	}
	if result = tools[0].Handler(context.Background(), account, json.RawMessage(`not-json`)); result.Success {
		t.Fatalf("非法参数应返回失败")
	}
}
