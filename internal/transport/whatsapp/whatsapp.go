// Package whatsapp is a thin Twilio-style WhatsApp adapter. It only knows
// how to POST one message; everything smarter lives in internal/delivery.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lastro/internal/transport"
	logx "lastro/pkg/logx"
)

type Config struct {
	AccountSID string
	AuthToken  string
	From       string // sending WhatsApp number, E.164
	BaseURL    string // override for tests; default Twilio API
	Timeout    time.Duration
}

type Adapter struct {
	cfg    Config
	client *http.Client
	log    logx.Logger
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("whatsapp: account_sid and auth_token are required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("whatsapp: from number is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}, nil
}

type apiResponse struct {
	SID         string `json:"sid"`
	Status      string `json:"status"`
	ErrorCode   *int   `json:"error_code"`
	DateCreated string `json:"date_created"`
}

func (a *Adapter) SendText(ctx context.Context, to string, text string) (transport.Receipt, error) {
	if strings.TrimSpace(to) == "" {
		return transport.Receipt{}, errors.New("whatsapp: empty destination")
	}

	form := url.Values{}
	form.Set("From", "whatsapp:"+a.cfg.From)
	form.Set("To", "whatsapp:"+to)
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", a.cfg.BaseURL, a.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return transport.Receipt{}, err
	}
	req.SetBasicAuth(a.cfg.AccountSID, a.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return transport.Receipt{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.log.Debug("send rejected", logx.Int("status", resp.StatusCode))
		return transport.Receipt{}, fmt.Errorf("whatsapp: send failed: status %d", resp.StatusCode)
	}

	var ar apiResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return transport.Receipt{}, fmt.Errorf("whatsapp: decode response: %w", err)
	}
	if ar.ErrorCode != nil {
		return transport.Receipt{}, fmt.Errorf("whatsapp: provider error %d", *ar.ErrorCode)
	}

	at := time.Now()
	if ar.DateCreated != "" {
		if t, err := time.Parse(time.RFC1123Z, ar.DateCreated); err == nil {
			at = t
		}
	}
	return transport.Receipt{ProviderID: ar.SID, DeliveredAt: at}, nil
}
