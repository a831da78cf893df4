// Package remote is the HTTP client for target agents.
//
// Every target runs an agent that performs the actual OS automation. The
// controller reaches it at <protocol>://<address>:<port>/<endpoint> with a
// JSON body and a bearer token, optionally over mutual TLS. Calls are
// bounded by a per-call timeout; typing text gets a longer one because the
// agent types key by key.
package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nerrad567/relay-core/internal/infrastructure/config"
)

// maxResponseBytes caps how much of an agent response is read.
const maxResponseBytes = 1 << 20

// TokenProvider supplies the bearer token for each call.
type TokenProvider interface {
	Token() (string, error)
}

// Logger defines the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client calls target agents.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	http            *http.Client
	protocol        string
	port            int
	timeout         time.Duration
	typeTextTimeout time.Duration
	tokens          TokenProvider
	logger          Logger
}

// New creates a client from the remote config section.
//
// Parameters:
//   - cfg: protocol, port, timeouts and TLS material
//   - tokens: source of bearer tokens (may be nil for unauthenticated agents)
//   - logger: Logger instance (may be nil)
//
// Returns:
//   - *Client: ready for use
//   - error: ErrTLSConfig if certificate files cannot be loaded
func New(cfg config.RemoteConfig, tokens TokenProvider, logger Logger) (*Client, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Protocol == "https" {
		tlsCfg, err := loadTLS(cfg.TLS)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsCfg
	}

	return &Client{
		http:            &http.Client{Transport: transport},
		protocol:        cfg.Protocol,
		port:            cfg.Port,
		timeout:         cfg.Timeout(),
		typeTextTimeout: cfg.TypeTextTimeout(),
		tokens:          tokens,
		logger:          logger,
	}, nil
}

// loadTLS builds the client side of mutual TLS.
func loadTLS(cfg config.RemoteTLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed lab setups
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading CA: %w", ErrTLSConfig, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates in %s", ErrTLSConfig, cfg.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: client certificate: %w", ErrTLSConfig, err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	return tlsCfg, nil
}

// Ping checks that the agent on host answers.
func (c *Client) Ping(ctx context.Context, host string) error {
	_, err := c.do(ctx, http.MethodGet, host, PathPing, nil, c.timeout)
	return err
}

// KeyPress presses keys on host.
func (c *Client) KeyPress(ctx context.Context, host string, req KeyPressRequest) error {
	if req.HoldKeys == nil {
		req.HoldKeys = []string{}
	}
	_, err := c.post(ctx, host, PathKeyPress, req, c.timeout)
	return err
}

// MouseClick clicks at a position on host.
func (c *Client) MouseClick(ctx context.Context, host string, req MouseClickRequest) error {
	_, err := c.post(ctx, host, PathMouseClick, req, c.timeout)
	return err
}

// LeftMouseClick clicks at the current cursor position on host.
func (c *Client) LeftMouseClick(ctx context.Context, host string) error {
	_, err := c.post(ctx, host, PathLeftMouseClick, struct{}{}, c.timeout)
	return err
}

// Launch starts an executable on host and reports its pid when the agent returns one.
func (c *Client) Launch(ctx context.Context, host string, req LaunchRequest) (LaunchResult, error) {
	if req.Arguments == nil {
		req.Arguments = []string{}
	}
	body, err := c.post(ctx, host, PathLaunch, req, c.timeout)
	if err != nil {
		return LaunchResult{}, err
	}
	pid := gjson.GetBytes(body, "pid")
	if !pid.Exists() || pid.Type != gjson.Number {
		return LaunchResult{}, nil
	}
	return LaunchResult{PID: int(pid.Int()), HasPID: true}, nil
}

// KillByName kills processes by executable name on host.
func (c *Client) KillByName(ctx context.Context, host string, req KillByNameRequest) error {
	_, err := c.post(ctx, host, PathKillByName, req, c.timeout)
	return err
}

// KillByPid kills one process on host.
func (c *Client) KillByPid(ctx context.Context, host string, req PIDRequest) error {
	_, err := c.post(ctx, host, PathKillByPid, req, c.timeout)
	return err
}

// TypeText types text on host, using the longer type-text timeout.
func (c *Client) TypeText(ctx context.Context, host string, req TypeTextRequest) error {
	_, err := c.post(ctx, host, PathTypeText, req, c.typeTextTimeout)
	return err
}

// FocusWindow brings a process window to the foreground on host.
func (c *Client) FocusWindow(ctx context.Context, host string, req PIDRequest) error {
	_, err := c.post(ctx, host, PathFocus, req, c.timeout)
	return err
}

func (c *Client) post(ctx context.Context, host, path string, payload any, timeout time.Duration) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding %s: %w", ErrRequestFailed, path, err)
	}
	return c.do(ctx, http.MethodPost, host, path, body, timeout)
}

func (c *Client) do(parent context.Context, method, host, path string, body []byte, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	url := c.url(host, path)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s/%s: %w", ErrRequestFailed, method, host, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, tokenErr := c.tokens.Token()
		if tokenErr != nil {
			return nil, fmt.Errorf("%w: %s %s/%s: token: %w", ErrRequestFailed, method, host, path, tokenErr)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if perr := parent.Err(); perr != nil {
			return nil, fmt.Errorf("%w: %s %s/%s: cancelled: %w", ErrRequestFailed, method, host, path, perr)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s %s/%s - request timed out after %s", ErrTimeout, method, host, path, timeout)
		}
		return nil, fmt.Errorf("%w: %s %s/%s: %w", ErrRequestFailed, method, host, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s/%s: reading response: %w", ErrRequestFailed, method, host, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s/%s: %d %s", ErrRequestFailed, method, host, path,
			resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	c.logger.Debug("remote call ok", "method", method, "host", host, "path", path, "response", string(respBody))
	return respBody, nil
}

func (c *Client) url(host, path string) string {
	return fmt.Sprintf("%s://%s/%s", c.protocol, net.JoinHostPort(host, strconv.Itoa(c.port)), path)
}
