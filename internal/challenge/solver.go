// Package challenge submits image challenges to an external solving service
// and polls for the answer.
package challenge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jobkontakt/crawler/internal/core"
)

const notReady = "CAPCHA_NOT_READY"

// Config captures the parameters for the solving service client.
type Config struct {
	// APIKey authenticates against the solving service.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	// BaseURL is the service root, e.g. "https://2captcha.com".
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// Warmup is how long to wait before the first poll.
	Warmup time.Duration `mapstructure:"warmup" yaml:"warmup"`
	// PollInterval separates consecutive polls.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// MaxPolls bounds the number of result polls per submission.
	MaxPolls int `mapstructure:"max_polls" yaml:"max_polls"`
	// SubmitTimeout bounds each individual HTTP request.
	SubmitTimeout time.Duration `mapstructure:"submit_timeout" yaml:"submit_timeout"`
}

// Solver implements core.ChallengeSolver over the service's two-endpoint
// protocol: POST the image, then poll until the answer is ready or the poll
// budget runs out.
type Solver struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Solver. httpClient may be nil, in which case a client bounded
// by cfg.SubmitTimeout is used.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Solver, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("solver api key is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("solver base url is required")
	}
	if cfg.Warmup <= 0 {
		cfg.Warmup = 20 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 10
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.SubmitTimeout}
	}
	return &Solver{cfg: cfg, client: httpClient, logger: logger}, nil
}

// apiResponse is the service's uniform JSON envelope. status 1 means request
// carries the payload (a task id on submit, the answer on poll); status 0
// means request carries an error code, except the in-flight marker during
// polling.
type apiResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// Solve submits the challenge image and blocks until the service answers,
// the poll budget is exhausted (core.ErrChallengeTimeout) or the service
// rejects the task (core.ErrChallengeRejected). ctx cancellation is honored
// between requests and during waits.
func (s *Solver) Solve(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("challenge image is empty")
	}

	taskID, err := s.submit(ctx, image)
	if err != nil {
		return "", err
	}
	s.logger.Debug("challenge submitted", zap.String("task_id", taskID))

	if err := sleepCtx(ctx, s.cfg.Warmup); err != nil {
		return "", err
	}

	for attempt := 1; attempt <= s.cfg.MaxPolls; attempt++ {
		resp, err := s.poll(ctx, taskID)
		if err != nil {
			return "", err
		}
		switch {
		case resp.Status == 1:
			s.logger.Debug("challenge solved",
				zap.String("task_id", taskID),
				zap.Int("polls", attempt))
			return resp.Request, nil
		case resp.Request == notReady:
			if attempt < s.cfg.MaxPolls {
				if err := sleepCtx(ctx, s.cfg.PollInterval); err != nil {
					return "", err
				}
			}
		default:
			return "", fmt.Errorf("%w: %s", core.ErrChallengeRejected, resp.Request)
		}
	}

	s.logger.Warn("challenge poll budget exhausted",
		zap.String("task_id", taskID),
		zap.Int("polls", s.cfg.MaxPolls))
	return "", core.ErrChallengeTimeout
}

func (s *Solver) submit(ctx context.Context, image []byte) (string, error) {
	form := url.Values{}
	form.Set("key", s.cfg.APIKey)
	form.Set("method", "base64")
	form.Set("body", base64.StdEncoding.EncodeToString(image))
	form.Set("json", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.BaseURL+"/in.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.do(req)
	if err != nil {
		return "", fmt.Errorf("submit challenge: %w", err)
	}
	if resp.Status != 1 {
		return "", fmt.Errorf("%w: %s", core.ErrChallengeRejected, resp.Request)
	}
	return resp.Request, nil
}

func (s *Solver) poll(ctx context.Context, taskID string) (apiResponse, error) {
	q := url.Values{}
	q.Set("key", s.cfg.APIKey)
	q.Set("action", "get")
	q.Set("id", taskID)
	q.Set("json", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.cfg.BaseURL+"/res.php?"+q.Encode(), nil)
	if err != nil {
		return apiResponse{}, fmt.Errorf("build poll request: %w", err)
	}

	resp, err := s.do(req)
	if err != nil {
		return apiResponse{}, fmt.Errorf("poll challenge result: %w", err)
	}
	return resp, nil
}

func (s *Solver) do(req *http.Request) (apiResponse, error) {
	httpResp, err := s.client.Do(req)
	if err != nil {
		return apiResponse{}, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return apiResponse{}, fmt.Errorf("unexpected status %d", httpResp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return apiResponse{}, fmt.Errorf("read response body: %w", err)
	}
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return apiResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
