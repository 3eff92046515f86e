package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

// webhookTimeout 约束单次 webhook 推送。
const webhookTimeout = 5 * time.Second

// SMTPSender 通过 SMTP 服务器发送告警邮件，实现 EmailSender 接口。
type SMTPSender struct {
	// Addr 为 host:port 形式的 SMTP 地址。
	Addr     string
	Username string
	Password string
	From     string
}

// Send 实现 EmailSender 接口。
func (s *SMTPSender) Send(_ context.Context, subject, content string, to []string) error {
	host := s.Addr
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, host)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		s.From, strings.Join(to, ","), subject, content)
	if err := smtp.SendMail(s.Addr, auth, s.From, to, []byte(msg)); err != nil {
		return fmt.Errorf("发送告警邮件失败: %w", err)
	}
	return nil
}

// DingTalkWebhookSender 调用钉钉自定义机器人 webhook，实现 DingTalkSender。
type DingTalkWebhookSender struct {
	webhook    string
	httpClient *http.Client
}

// NewDingTalkWebhookSender 创建钉钉 webhook 发送器。
func NewDingTalkWebhookSender(webhook string) *DingTalkWebhookSender {
	return &DingTalkWebhookSender{
		webhook:    webhook,
		httpClient: &http.Client{Timeout: webhookTimeout},
	}
}

// Send 实现 DingTalkSender 接口。
func (s *DingTalkWebhookSender) Send(ctx context.Context, content string) error {
	payload := map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": content},
	}
	return postJSON(ctx, s.httpClient, s.webhook, payload, "钉钉")
}

// SlackWebhookSender 调用 Slack incoming webhook，实现 SlackSender。
type SlackWebhookSender struct {
	webhook    string
	httpClient *http.Client
}

// NewSlackWebhookSender 创建 Slack webhook 发送器。
func NewSlackWebhookSender(webhook string) *SlackWebhookSender {
	return &SlackWebhookSender{
		webhook:    webhook,
		httpClient: &http.Client{Timeout: webhookTimeout},
	}
}

// Send 实现 SlackSender 接口。
func (s *SlackWebhookSender) Send(ctx context.Context, channel, content string) error {
	payload := map[string]string{
		"channel": channel,
		"text":    content,
	}
	return postJSON(ctx, s.httpClient, s.webhook, payload, "Slack")
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any, channel string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化%s告警失败: %w", channel, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构造%s告警请求失败: %w", channel, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("推送%s告警失败: %w", channel, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s告警返回状态码 %d", channel, resp.StatusCode)
	}
	return nil
}
