package email

import (
	"Tradelink/internal/api/config"
	"Tradelink/internal/pkg/logger"
	"context"
	log "log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Client 事务邮件 HTTP 接口客户端
type Client struct {
	http *resty.Client
	cfg  config.EmailConfig
}

type sendPayload struct {
	From    address   `json:"from"`
	To      []address `json:"to"`
	Subject string    `json:"subject"`
	Text    string    `json:"text"`
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func NewClient(cfg config.EmailConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetTransport(logger.NewHTTPTransport("email")).
		SetTimeout(timeout).
		SetAuthToken(cfg.ApiKey).
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &Client{http: httpClient, cfg: cfg}
}

// Enabled 未配置接口地址时不发送
func (s *Client) Enabled() bool {
	return s.cfg.URL != ""
}

// OpsMailbox 客服收件箱
func (s *Client) OpsMailbox() string {
	return s.cfg.OpsMailbox
}

// Send 发送纯文本邮件，失败返回错误但不重试
func (s *Client) Send(ctx context.Context, to, subject, body string) error {
	if !s.Enabled() {
		log.DebugContext(ctx, "email disabled, skip", "to", to, "subject", subject)
		return nil
	}
	if to == "" {
		return errors.New("email recipient is empty")
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(sendPayload{
			From:    address{Email: s.cfg.FromAddress, Name: s.cfg.FromName},
			To:      []address{{Email: to}},
			Subject: subject,
			Text:    body,
		}).
		Post(s.cfg.URL)
	if err != nil {
		return errors.Wrap(err, "email request failed")
	}
	if resp.IsError() {
		return errors.Errorf("email api responded %d", resp.StatusCode())
	}
	return nil
}
