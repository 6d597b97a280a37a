// Package modules provides module implementations the orchestrator can
// register without linking the daemon in-process: HTTP-backed adapters that
// drive provider, transcoder, and publisher daemons over their REST control
// APIs, plus no-op stand-ins for disabled deployments and tests.
//
// All HTTP adapters share common retry behavior: transient network errors,
// 5xx responses, and 429 are retried up to the configured attempt budget;
// any other 4xx is treated as a permanent failure.
package modules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"emberlive/internal/models"
	"emberlive/internal/orchestrator"
)

// RemoteConfig configures an HTTP-backed module. Exactly one of Token or
// Username/Password is used for authentication; both empty means
// unauthenticated.
type RemoteConfig struct {
	BaseURL       string
	Token         string
	Username      string
	Password      string
	HTTPClient    *http.Client
	Logger        *slog.Logger
	MaxAttempts   int
	RetryInterval time.Duration
}

// RemoteModule drives a module daemon over its REST control API. It
// implements orchestrator.Module for the transcoder and publisher kinds;
// use NewRemoteProvider for providers.
type RemoteModule struct {
	kind          orchestrator.ModuleKind
	baseURL       string
	token         string
	username      string
	password      string
	client        *http.Client
	logger        *slog.Logger
	maxAttempts   int
	retryInterval time.Duration
}

type applicationPayload struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	VHost string `json:"vhost"`
	App   string `json:"app"`
	Type  string `json:"type,omitempty"`
}

type pullPayload struct {
	Application applicationPayload `json:"application"`
	Stream      string             `json:"stream"`
	URL         string             `json:"url"`
	Offset      int64              `json:"offset"`
}

func appPayload(app models.Application) applicationPayload {
	return applicationPayload{
		ID:    int64(app.ID),
		Name:  app.Name,
		VHost: app.VHost,
		App:   app.App,
		Type:  app.Config.Type,
	}
}

// NewRemoteModule constructs an HTTP-backed module of the given kind.
func NewRemoteModule(kind orchestrator.ModuleKind, cfg RemoteConfig) (*RemoteModule, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("remote module base URL is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &RemoteModule{
		kind:          kind,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		token:         cfg.Token,
		username:      cfg.Username,
		password:      cfg.Password,
		client:        client,
		logger:        logger,
		maxAttempts:   attempts,
		retryInterval: interval,
	}, nil
}

// Kind implements orchestrator.Module.
func (m *RemoteModule) Kind() orchestrator.ModuleKind {
	return m.kind
}

// OnCreateApplication asks the daemon to prepare the application.
func (m *RemoteModule) OnCreateApplication(ctx context.Context, app models.Application) error {
	return m.postJSON(ctx, m.baseURL+"/v1/applications", appPayload(app), nil)
}

// OnDeleteApplication asks the daemon to tear the application down.
func (m *RemoteModule) OnDeleteApplication(ctx context.Context, app models.Application) error {
	return m.delete(ctx, m.baseURL+"/v1/applications/"+url.PathEscape(app.Name))
}

// RemoteProvider is a RemoteModule that also advertises an ingress flavor
// and accepts pull requests.
type RemoteProvider struct {
	RemoteModule
	providerType orchestrator.ProviderType
}

// NewRemoteProvider constructs an HTTP-backed provider advertising the
// given flavor.
func NewRemoteProvider(providerType orchestrator.ProviderType, cfg RemoteConfig) (*RemoteProvider, error) {
	base, err := NewRemoteModule(orchestrator.KindProvider, cfg)
	if err != nil {
		return nil, err
	}
	return &RemoteProvider{RemoteModule: *base, providerType: providerType}, nil
}

// ProviderType implements orchestrator.Provider.
func (p *RemoteProvider) ProviderType() orchestrator.ProviderType {
	return p.providerType
}

// PullStream asks the provider daemon to pull the stream from the URL.
func (p *RemoteProvider) PullStream(ctx context.Context, app models.Application, stream, pullURL string, offset int64) error {
	payload := pullPayload{
		Application: appPayload(app),
		Stream:      stream,
		URL:         pullURL,
		Offset:      offset,
	}
	return p.postJSON(ctx, p.baseURL+"/v1/pulls", payload, nil)
}

func (m *RemoteModule) postJSON(ctx context.Context, requestURL string, payload, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return m.doWithRetry(ctx, http.MethodPost, requestURL, body, dest)
}

func (m *RemoteModule) delete(ctx context.Context, requestURL string) error {
	return m.doWithRetry(ctx, http.MethodDelete, requestURL, nil, nil)
}

func (m *RemoteModule) authenticate(req *http.Request) {
	switch {
	case m.token != "":
		req.Header.Set("Authorization", "Bearer "+m.token)
	case m.username != "" || m.password != "":
		req.SetBasicAuth(m.username, m.password)
	}
}

func (m *RemoteModule) doWithRetry(ctx context.Context, method, requestURL string, payload []byte, dest interface{}) error {
	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, requestURL, reqBody)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		m.authenticate(req)

		resp, err := m.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			retryable, respErr := consumeResponse(resp, dest)
			if respErr == nil {
				return nil
			}
			if !retryable {
				return respErr
			}
			lastErr = respErr
		}

		if attempt < m.maxAttempts {
			m.logger.Warn("remote module request retrying",
				"kind", m.kind.String(),
				"method", method,
				"url", requestURL,
				"attempt", attempt,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.retryInterval):
			}
		}
	}
	return lastErr
}

// consumeResponse drains the response and reports whether a failure may be
// retried. 2xx succeeds, 5xx and 429 are retryable, every other status is
// permanent.
func consumeResponse(resp *http.Response, dest interface{}) (retryable bool, err error) {
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if dest == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return false, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
		return false, nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests, err
}
