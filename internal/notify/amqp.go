// Package notify 在桥接订单提交后向消息队列发布事件，供记账、风控等下游
// 系统消费。发布失败只记录日志，不影响已提交的链上交易。
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"DexAI-Chain/internal/bridge"
	xerrors "DexAI-Chain/internal/errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig 描述 RabbitMQ 发布端的连接参数。
type AMQPConfig struct {
	URL        string
	Queue      string
	Durable    bool
	AutoDelete bool
}

// AMQPPublisher 使用 RabbitMQ 发布订单事件。
type AMQPPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewAMQPPublisher 创建 RabbitMQ 发布器并声明队列。
func NewAMQPPublisher(cfg AMQPConfig) (*AMQPPublisher, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "dexai:orders"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 RabbitMQ 失败")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "创建 RabbitMQ channel 失败")
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "声明 RabbitMQ 队列失败")
	}
	return &AMQPPublisher{conn: conn, ch: ch, queue: queue}, nil
}

// PublishOrderSubmitted 实现 bridge.EventPublisher 接口。
func (p *AMQPPublisher) PublishOrderSubmitted(ctx context.Context, order *bridge.OrderRecord) error {
	if p == nil || p.ch == nil {
		return xerrors.New(xerrors.CodeQueueFailure, "RabbitMQ 发布器未初始化")
	}
	body, err := json.Marshal(order)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "序列化订单事件失败")
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   order.ID,
		Body:        body,
	}); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, fmt.Sprintf("发布订单事件 %s 失败", order.ID))
	}
	return nil
}

// Close 关闭 RabbitMQ 连接。
func (p *AMQPPublisher) Close() error {
	if p == nil {
		return nil
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
