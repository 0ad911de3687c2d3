// Package zabbix implements a small JSON-RPC client for the Zabbix API and
// the trigger, host and item queries the bot relays into chat.
package zabbix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/sirupsen/logrus"
)

const (
	apiPath          = "/api_jsonrpc.php"
	jsonRPCVersion   = "2.0"
	contentType      = "application/json-rpc"
	maxResponseBytes = 32 << 20
)

// ErrNotAuthenticated is returned when a call is made before Login
var ErrNotAuthenticated = errors.New("zabbix session is not authenticated")

// APIError is an error object returned by the Zabbix JSON-RPC endpoint
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *APIError) Error() string {
	if e.Data == "" {
		return fmt.Sprintf("zabbix api error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("zabbix api error %d: %s %s", e.Code, e.Message, e.Data)
}

// Options configures a Client
type Options struct {
	Host        string // base URL of the frontend, with or without api_jsonrpc.php
	Username    string
	Password    string
	Token       string // API token; skips user.login when set
	AuthHeader  bool   // send the session as "Authorization: Bearer" (Zabbix >= 6.4)
	LegacyLogin bool   // use the "user" login parameter (Zabbix < 5.4)
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client talks JSON-RPC 2.0 to one Zabbix server
type Client struct {
	url         string
	username    string
	password    string
	authHeader  bool
	legacyLogin bool
	httpClient  *http.Client

	mu     sync.Mutex
	token  string
	static bool
	nextID int
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	Auth    string      `json:"auth,omitempty"`
	ID      int         `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *APIError       `json:"error"`
	ID      int             `json:"id"`
}

// NewClient creates a client for the server described by opts
func NewClient(opts Options) (*Client, error) {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		return nil, fmt.Errorf("zabbix host is required")
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	url := strings.TrimRight(host, "/")
	if !strings.HasSuffix(url, ".php") {
		url += apiPath
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		url:         url,
		username:    opts.Username,
		password:    opts.Password,
		authHeader:  opts.AuthHeader,
		legacyLogin: opts.LegacyLogin,
		httpClient:  httpClient,
		token:       opts.Token,
		static:      opts.Token != "",
	}, nil
}

// Authenticated reports whether the client holds a session or API token
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != ""
}

// Login obtains a session token with user.login. It is a no-op for clients
// configured with an API token.
func (c *Client) Login(ctx context.Context) error {
	if c.static {
		return nil
	}

	userParam := "username"
	if c.legacyLogin {
		userParam = "user"
	}
	params := map[string]string{
		userParam:  c.username,
		"password": c.password,
	}

	var token string
	if err := c.do(ctx, "user.login", params, "", &token); err != nil {
		return fmt.Errorf("zabbix login as %q failed: %w", c.username, err)
	}
	if token == "" {
		return fmt.Errorf("zabbix login as %q returned an empty session", c.username)
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"url":  c.url,
		"user": c.username,
	}).Debug("zabbix-login-succeeded")
	return nil
}

// Call invokes an authenticated API method and decodes its result into result
func (c *Client) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token == "" {
		return ErrNotAuthenticated
	}
	return c.do(ctx, method, params, token, result)
}

func (c *Client) do(ctx context.Context, method string, params interface{}, token string, result interface{}) error {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	req := rpcRequest{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  params,
		ID:      id,
	}
	if token != "" && !c.authHeader {
		req.Auth = token
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	if token != "" && c.authHeader {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	logger.WithFields(logrus.Fields{
		"method": method,
		"id":     id,
	}).Debug("zabbix-api-call")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned HTTP %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}
