package distribution

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mediarelay/internal/registry"
	"mediarelay/internal/services"
)

const (
	userAgent          = "mediarelay/0.1.0"
	maxRateLimitWaits  = 2
	maxRateLimitDelay  = 30 * time.Second
	errorBodyReadLimit = 2048
)

// WebhookConfig describes the webhook deliverer.
type WebhookConfig struct {
	BaseURL          string
	DefaultUsername  string
	DefaultAvatarURL string
	Timeout          time.Duration
	HTTPClient       *http.Client
}

// Webhook delivers messages by executing Discord-compatible webhooks.
type Webhook struct {
	baseURL   string
	username  string
	avatarURL string
	timeout   time.Duration
	client    *http.Client
	sleep     func(context.Context, time.Duration) error
}

var _ Deliverer = (*Webhook)(nil)

// NewWebhook constructs a webhook deliverer.
func NewWebhook(cfg WebhookConfig) *Webhook {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Webhook{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		username:  cfg.DefaultUsername,
		avatarURL: cfg.DefaultAvatarURL,
		timeout:   cfg.Timeout,
		client:    client,
		sleep:     sleepContext,
	}
}

type webhookPayload struct {
	Content   string `json:"content"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Deliver posts msg with every file attached to dest.
func (w *Webhook) Deliver(ctx context.Context, dest registry.Destination, msg Message) error {
	if !dest.HasCredentials() {
		return services.Wrap(services.ErrMissingCredentials, "distribution", "deliver", "No webhook information available", nil)
	}
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	payload := webhookPayload{Username: msg.Username, AvatarURL: msg.AvatarURL}
	if strings.TrimSpace(payload.Username) == "" {
		payload.Username = w.username
	}
	if strings.TrimSpace(payload.AvatarURL) == "" {
		payload.AvatarURL = w.avatarURL
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return services.Wrap(services.ErrDelivery, "distribution", "encode payload", "", err)
	}
	endpoint := w.endpoint(dest)

	for attempt := 0; ; attempt++ {
		retryAfter, err := w.post(ctx, endpoint, payloadJSON, msg.Files)
		if err == nil {
			return nil
		}
		if retryAfter <= 0 || attempt >= maxRateLimitWaits {
			return err
		}
		if sleepErr := w.sleep(ctx, min(retryAfter, maxRateLimitDelay)); sleepErr != nil {
			return services.Wrap(services.ErrDelivery, "distribution", "rate limit wait", "", sleepErr)
		}
	}
}

func (w *Webhook) endpoint(dest registry.Destination) string {
	return fmt.Sprintf("%s/webhooks/%s/%s", w.baseURL,
		url.PathEscape(strings.TrimSpace(dest.WebhookID)),
		url.PathEscape(strings.TrimSpace(dest.WebhookToken)))
}

// post sends a single request. A positive duration is returned when the
// destination rate limited the request and asked to retry later.
func (w *Webhook) post(ctx context.Context, endpoint string, payloadJSON []byte, files []string) (time.Duration, error) {
	body, contentType := multipartBody(payloadJSON, files)
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return 0, services.Wrap(services.ErrDelivery, "distribution", "build request", "", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, services.Wrap(services.ErrDelivery, "distribution", "execute webhook", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyReadLimit))
		return retryDelay(resp.Header.Get("Retry-After")), services.Wrap(services.ErrDelivery, "distribution", "execute webhook", "rate limited", nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return 0, services.Wrap(services.ErrDelivery, "distribution", "execute webhook",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return 0, nil
}

// multipartBody streams payload_json followed by files[i] parts through a pipe
// so attachments are never held in memory.
func multipartBody(payloadJSON []byte, files []string) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeParts(writer, payloadJSON, files))
	}()
	return pr, writer.FormDataContentType()
}

func writeParts(writer *multipart.Writer, payloadJSON []byte, files []string) error {
	if err := writer.WriteField("payload_json", string(payloadJSON)); err != nil {
		return err
	}
	for i, path := range files {
		if err := writeFilePart(writer, i, path); err != nil {
			return err
		}
	}
	return writer.Close()
}

func writeFilePart(writer *multipart.Writer, index int, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer file.Close()
	part, err := writer.CreateFormFile(fmt.Sprintf("files[%d]", index), filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("attach %s: %w", filepath.Base(path), err)
	}
	return nil
}

// retryDelay parses Retry-After as seconds, accepting fractional values.
func retryDelay(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return time.Second
	}
	secs, err := strconv.ParseFloat(header, 64)
	if err != nil || secs <= 0 {
		return time.Second
	}
	return time.Duration(secs * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
