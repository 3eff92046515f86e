package main

import (
	"context"
	"testing"

	"DexAI-Chain/internal/bridge"
	"DexAI-Chain/internal/config"
)

func TestCreateOrderStore(t *testing.T) {
	ctx := context.Background()

	t.Run("none 不创建存储", func(t *testing.T) {
		store, closeStore, err := createOrderStore(ctx, &config.Config{})
		if err != nil {
			t.Fatalf("创建失败: %v", err)
		}
		defer closeStore()
		if store != nil {
			t.Fatal("driver none 不应返回存储")
		}
	})

	t.Run("memory 可写可查", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Storage.OrderStore.Driver = "memory"
		cfg.Storage.OrderStore.DataDir = t.TempDir()
		store, closeStore, err := createOrderStore(ctx, cfg)
		if err != nil {
			t.Fatalf("创建失败: %v", err)
		}
		defer closeStore()
		if store == nil {
			t.Fatal("memory 驱动应返回存储")
		}
		if err := store.RecordOrder(ctx, &bridge.OrderRecord{ID: "o1", SessionID: "s1"}); err != nil {
			t.Fatalf("写入订单失败: %v", err)
		}
		records, err := store.ListLatest(ctx, 10)
		if err != nil {
			t.Fatalf("查询订单失败: %v", err)
		}
		if len(records) != 1 || records[0].ID != "o1" {
			t.Fatalf("查询结果不符: %+v", records)
		}
	})

	t.Run("未知驱动报错", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Storage.OrderStore.Driver = "postgres"
		if _, _, err := createOrderStore(ctx, cfg); err == nil {
			t.Fatal("未知驱动应返回错误")
		}
	})
}

func TestCreateAlertDispatcher(t *testing.T) {
	if dispatcher := createAlertDispatcher(&config.Config{}); dispatcher != nil {
		t.Fatal("未配置渠道时不应创建告警分发器")
	}

	cfg := &config.Config{}
	cfg.Alert.DingTalk.Webhook = "https://example.com/hook"
	cfg.Alert.Slack.Webhook = "https://example.com/slack"
	cfg.Alert.Slack.Channel = "#alerts"
	if dispatcher := createAlertDispatcher(cfg); dispatcher == nil {
		t.Fatal("配置渠道后应创建告警分发器")
	}
}
