package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/lordievader/matrix-zabbix-bot/internal/config"
	"github.com/lordievader/matrix-zabbix-bot/internal/core"
	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// HookNotifier talks to a running bot's hook server
type HookNotifier struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *http.Client
}

// NewHookNotifier creates a notifier for the hook server at baseURL
func NewHookNotifier(baseURL, token string) *HookNotifier {
	return &HookNotifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: constants.DefaultHTTPTimeout,
		client:  http.DefaultClient,
	}
}

// Notify posts text to /alert with timeout control
func (h *HookNotifier) Notify(ctx context.Context, room, platform, text string) error {
	q := url.Values{}
	if room != "" {
		q.Set("room", room)
	}
	if platform != "" {
		q.Set("platform", platform)
	}
	target := h.baseURL + "/alert"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	resp, err := h.do(ctx, http.MethodPost, target, []byte(text))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != constants.HTTPSuccessStatusCode {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status: %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Health fetches /healthz
func (h *HookNotifier) Health(ctx context.Context) (core.HealthStatus, error) {
	var status core.HealthStatus

	resp, err := h.do(ctx, http.MethodGet, h.baseURL+"/healthz", nil)
	if err != nil {
		return status, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != constants.HTTPSuccessStatusCode {
		return status, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode health response: %w", err)
	}
	return status, nil
}

func (h *HookNotifier) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("send request: %w", err)
	}
	resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose releases the request context together with the body
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

var (
	hookHost      string
	hookPort      int
	hookToken     string
	notifyRoom    string
	notifyChannel string
)

// hookNotifier builds a notifier from the flags, falling back to the
// hook_server section of the config file when it can be read
func hookNotifier() *HookNotifier {
	port, token := hookPort, hookToken
	cfg, err := config.Read(configFile)
	switch {
	case err == nil:
		if port == 0 {
			port = cfg.HookServer.Port
		}
		if token == "" {
			token = cfg.HookServer.Token
		}
	case !errors.Is(err, config.ErrConfigMissing):
		logger.WithError(err).Warn("config-unreadable-using-flags")
	}
	if port == 0 {
		port = config.DefaultHookPort
	}
	return NewHookNotifier(fmt.Sprintf("http://%s:%d", hookHost, port), token)
}

var notifyCmd = &cobra.Command{
	Use:   "notify [message...]",
	Short: "Send an alert through a running bot",
	Long: `Post a message to the hook server of a running "serve" process, which
colorizes and relays it. Without arguments the message is read from stdin.

Examples:
  matrix-zabbix-bot notify 'High: database down'
  echo 'Warning: disk 90% full' | matrix-zabbix-bot notify --room '!ops:example.com'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if len(args) == 0 {
			data, err := io.ReadAll(io.LimitReader(os.Stdin, 64<<10))
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			text = string(data)
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("message is required")
		}

		notifier := hookNotifier()
		if err := notifier.Notify(cmd.Context(), notifyRoom, notifyChannel, text); err != nil {
			logger.WithError(err).Error("hook-notification-failed")
			return err
		}

		logger.WithFields(logrus.Fields{
			"room":     notifyRoom,
			"platform": notifyChannel,
			"size":     len(text),
		}).Debug("hook-notification-succeeded")
		fmt.Fprintln(cmd.OutOrStdout(), "Alert sent")
		return nil
	},
}

func addHookFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&hookHost, "host", "localhost", "Hook server host")
	cmd.Flags().IntVar(&hookPort, "port", 0, "Hook server port (default from config, else 8080)")
	cmd.Flags().StringVar(&hookToken, "token", "", "Hook server bearer token (default from config)")
}

func init() {
	addHookFlags(notifyCmd)
	notifyCmd.Flags().StringVar(&notifyRoom, "room", "", "Target room (default: the configured Matrix room)")
	notifyCmd.Flags().StringVar(&notifyChannel, "platform", "", "Target platform (default: matrix)")
}
