package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"DexAI-Chain/sdk/go/dexai"
)

func main() {
	client := dexai.NewClient("http://127.0.0.1:8080", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tools, err := client.ListTools(ctx)
	if err != nil {
		log.Fatalf("列出工具失败: %v", err)
	}
	for _, tool := range tools {
		fmt.Printf("%s - %s\n", tool.Name, tool.Description)
	}

	result, err := client.InvokeTool(ctx, "bridge_token", map[string]any{
		"sessionId":        "demo",
		"sourceChain":      "bsc",
		"destinationChain": "sonic",
		"destinationToken": "USDC",
		"amount":           "0.1",
	})
	if err != nil {
		log.Fatalf("调用工具失败: %v", err)
	}
	fmt.Printf("success=%t message=%s\n", result.Success, result.Message)
}
