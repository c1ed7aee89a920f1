package conversion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"mediarelay/internal/services"
)

const (
	defaultHTTPTimeout  = 60 * time.Second
	defaultVideoQuality = "1080"
	defaultAudioBitrate = "320"
	maxResponseBytes    = 1 << 20
)

var (
	videoQualities = []string{"144", "240", "360", "480", "720", "1080", "1440", "2160", "4320", "max"}
	audioBitrates  = []string{"320", "256", "128", "96", "64", "8"}
)

// Config describes the conversion client configuration.
type Config struct {
	APIURL       string
	APIKey       string
	VideoQuality string
	AudioBitrate string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client wraps the conversion service API.
type Client struct {
	endpoint     string
	apiKey       string
	videoQuality string
	audioBitrate string
	http         *http.Client
}

// ServiceError carries the raw payload of a rejected conversion call.
type ServiceError struct {
	StatusCode int
	Payload    []byte
}

func (e *ServiceError) Error() string {
	payload := strings.TrimSpace(string(e.Payload))
	if e.StatusCode != 0 {
		return fmt.Sprintf("status %d: %s", e.StatusCode, payload)
	}
	return payload
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.APIURL)
	if endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "conversion", "init", "api url is required", nil)
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, "conversion", "init", fmt.Sprintf("invalid api url %q", endpoint), err)
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	quality := strings.TrimSpace(cfg.VideoQuality)
	if quality == "" {
		quality = defaultVideoQuality
	}
	bitrate := strings.TrimSpace(cfg.AudioBitrate)
	if bitrate == "" {
		bitrate = defaultAudioBitrate
	}
	return &Client{
		endpoint:     parsed.String(),
		apiKey:       strings.TrimSpace(cfg.APIKey),
		videoQuality: quality,
		audioBitrate: bitrate,
		http:         client,
	}, nil
}

// Endpoint returns the configured service URL.
func (c *Client) Endpoint() string {
	if c == nil {
		return ""
	}
	return c.endpoint
}

// Convert resolves a source URL into a service reply. Only redirect, tunnel,
// and picker replies are returned without error.
func (c *Client) Convert(ctx context.Context, req Request) (Response, error) {
	if c == nil {
		return Response{}, errors.New("conversion: client is nil")
	}
	body, err := c.buildBody(req)
	if err != nil {
		return Response{}, err
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return Response{}, services.Wrap(services.ErrInvalidArgument, "conversion", "encode request", "", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return Response{}, services.Wrap(services.ErrInvalidArgument, "conversion", "build request", "", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Api-Key "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Response{}, services.Wrap(services.ErrTimeout, "conversion", "request", "", err)
		}
		return Response{}, services.Wrap(services.ErrServiceResponse, "conversion", "request", "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, services.Wrap(services.ErrServiceResponse, "conversion", "read response", "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, services.Wrap(services.ErrServiceResponse, "conversion", "request", "", &ServiceError{StatusCode: resp.StatusCode, Payload: raw})
	}

	var payload Response
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Response{}, services.Wrap(services.ErrServiceResponse, "conversion", "decode response", "", &ServiceError{StatusCode: resp.StatusCode, Payload: raw})
	}

	switch payload.Status {
	case StatusRedirect, StatusTunnel:
		if strings.TrimSpace(payload.URL) == "" {
			return Response{}, services.Wrap(services.ErrServiceResponse, "conversion", "decode response", "reply has no url", &ServiceError{Payload: raw})
		}
		return payload, nil
	case StatusPicker:
		if len(payload.Assets()) == 0 {
			return Response{}, services.Wrap(services.ErrServiceResponse, "conversion", "decode response", "picker has no items", &ServiceError{Payload: raw})
		}
		return payload, nil
	case StatusError:
		return Response{}, services.Wrap(services.ErrServiceResponse, "conversion", "convert", "", &ServiceError{Payload: payload.Error})
	default:
		return Response{}, services.Wrap(services.ErrUnknownResponse, "conversion", "convert", fmt.Sprintf("status %q", payload.Status), nil)
	}
}

// requestBody mirrors the service JSON schema. Optional fields are omitted
// from the reduced photo body, which carries only url, mode, and naming style.
type requestBody struct {
	URL               string `json:"url"`
	DownloadMode      Mode   `json:"downloadMode"`
	FilenameStyle     string `json:"filenameStyle"`
	VideoQuality      string `json:"videoQuality,omitempty"`
	AudioBitrate      string `json:"audioBitrate,omitempty"`
	YouTubeVideoCodec string `json:"youtubeVideoCodec,omitempty"`
	YouTubeHLS        *bool  `json:"youtubeHLS,omitempty"`
	TikTokFullAudio   *bool  `json:"tiktokFullAudio,omitempty"`
	TikTokH265        *bool  `json:"tiktokH265,omitempty"`
}

func (c *Client) buildBody(req Request) (requestBody, error) {
	source := strings.TrimSpace(req.URL)
	if source == "" {
		return requestBody{}, services.Wrap(services.ErrInvalidArgument, "conversion", "validate", "url is required", nil)
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeAuto
	}
	if !mode.Valid() {
		return requestBody{}, services.Wrap(services.ErrInvalidArgument, "conversion", "validate", fmt.Sprintf("invalid mode %q: must be auto, audio, or mute", req.Mode), nil)
	}
	quality := strings.ToLower(strings.TrimSpace(req.VideoQuality))
	if quality == "" {
		quality = c.videoQuality
	}
	if !slices.Contains(videoQualities, quality) {
		return requestBody{}, services.Wrap(services.ErrInvalidArgument, "conversion", "validate", fmt.Sprintf("invalid video quality %q", req.VideoQuality), nil)
	}
	bitrate := strings.TrimSpace(req.AudioBitrate)
	if bitrate == "" {
		bitrate = c.audioBitrate
	}
	if !slices.Contains(audioBitrates, bitrate) {
		return requestBody{}, services.Wrap(services.ErrInvalidArgument, "conversion", "validate", fmt.Sprintf("invalid audio bitrate %q", req.AudioBitrate), nil)
	}

	body := requestBody{URL: source, DownloadMode: mode, FilenameStyle: "pretty"}
	if isTikTokPhoto(source) {
		return body, nil
	}
	hls := true
	fullAudio := req.TikTokFullAudio
	h265 := req.TikTokH265
	body.VideoQuality = quality
	body.AudioBitrate = bitrate
	body.YouTubeVideoCodec = "h264"
	body.YouTubeHLS = &hls
	body.TikTokFullAudio = &fullAudio
	body.TikTokH265 = &h265
	return body, nil
}

// isTikTokPhoto reports whether the service only accepts the reduced body.
func isTikTokPhoto(source string) bool {
	return strings.Contains(source, "tiktok.com") && strings.Contains(source, "photo")
}
