// Package interview is the client of the async interview service.
package interview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

const (
	apiSessionsPath = "/api/interviews/sessions"
	maxListLimit    = 500
	maxErrorBody    = 400
	minTimeout      = 3 * time.Second
	defaultTimeout  = 20 * time.Second
)

var ErrNotConfigured = errors.New("interview api base url is not configured")

type Client struct {
	logger     *zap.Logger
	HTTPClient *http.Client
	APIURL     string
	// Token is sent as a bearer token when set.
	Token string
}

func New(logger *zap.Logger, baseURL string, timeout time.Duration) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case timeout <= 0:
		timeout = defaultTimeout
	case timeout < minTimeout:
		timeout = minTimeout
	}
	return &Client{
		logger:     logger,
		APIURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Available() bool {
	return c != nil && c.APIURL != ""
}

type StartRequest struct {
	JobID          int64  `json:"job_id"`
	CandidateID    int64  `json:"candidate_id"`
	CandidateName  string `json:"candidate_name,omitempty"`
	ConversationID int64  `json:"conversation_id"`
	Language       string `json:"language"`
	TTLHours       int    `json:"ttl_hours,omitempty"`
}

type Summary struct {
	TotalScore *float64 `mapstructure:"total_score" json:"total_score,omitempty"`
}

// Session is the remote interview session as reported by the service.
type Session struct {
	SessionID   string   `mapstructure:"session_id" json:"session_id"`
	JobID       int64    `mapstructure:"job_id" json:"job_id"`
	CandidateID int64    `mapstructure:"candidate_id" json:"candidate_id"`
	Status      string   `mapstructure:"status" json:"status"`
	EntryURL    string   `mapstructure:"entry_url" json:"entry_url,omitempty"`
	Provider    string   `mapstructure:"provider" json:"provider,omitempty"`
	Summary     *Summary `mapstructure:"summary" json:"summary,omitempty"`
	TotalScore  *float64 `mapstructure:"total_score" json:"total_score,omitempty"`
}

// Score returns the summary score, falling back to a top-level total.
func (s Session) Score() *float64 {
	if s.Summary != nil && s.Summary.TotalScore != nil {
		return s.Summary.TotalScore
	}
	return s.TotalScore
}

type Scorecard struct {
	TotalScore *float64 `mapstructure:"total_score" json:"total_score,omitempty"`
}

type Assessment struct {
	AssessmentID string `mapstructure:"assessment_id" json:"assessment_id"`
	Name         string `mapstructure:"name" json:"name,omitempty"`
	Status       string `mapstructure:"status" json:"status,omitempty"`
}

func (c *Client) StartSession(ctx context.Context, req StartRequest) (Session, error) {
	if req.Language == "" {
		req.Language = "en"
	}
	var s Session
	err := c.call(ctx, http.MethodPost, apiSessionsPath+"/start", nil, req, &s)
	return s, err
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var s Session
	err := c.call(ctx, http.MethodGet, apiSessionsPath+"/"+url.PathEscape(sessionID), nil, nil, &s)
	return s, err
}

func (c *Client) RefreshSession(ctx context.Context, sessionID string, force bool) (Session, error) {
	var s Session
	err := c.call(ctx, http.MethodPost, apiSessionsPath+"/"+url.PathEscape(sessionID)+"/refresh", nil, map[string]bool{"force": force}, &s)
	return s, err
}

func (c *Client) ListSessions(ctx context.Context, jobID int64, status string, limit int) ([]Session, error) {
	if limit < 1 || limit > maxListLimit {
		limit = 100
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if jobID > 0 {
		q.Set("job_id", strconv.FormatInt(jobID, 10))
	}
	if status != "" {
		q.Set("status", status)
	}

	var out struct {
		Items []Session `mapstructure:"items"`
	}
	if err := c.call(ctx, http.MethodGet, apiSessionsPath, q, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) GetScorecard(ctx context.Context, sessionID string) (Scorecard, error) {
	var out struct {
		Scorecard  *Scorecard `mapstructure:"scorecard"`
		TotalScore *float64   `mapstructure:"total_score"`
	}
	if err := c.call(ctx, http.MethodGet, apiSessionsPath+"/"+url.PathEscape(sessionID)+"/scorecard", nil, nil, &out); err != nil {
		return Scorecard{}, err
	}
	if out.Scorecard != nil && out.Scorecard.TotalScore != nil {
		return *out.Scorecard, nil
	}
	return Scorecard{TotalScore: out.TotalScore}, nil
}

// PrepareAssessment asks the service to generate the job's question set.
func (c *Client) PrepareAssessment(ctx context.Context, jobID int64) (Assessment, error) {
	var out struct {
		Assessment `mapstructure:",squash"`
		Details    *Assessment `mapstructure:"details"`
	}
	path := fmt.Sprintf("/api/admin/jobs/%d/assessment/prepare", jobID)
	if err := c.call(ctx, http.MethodPost, path, nil, map[string]any{}, &out); err != nil {
		return Assessment{}, err
	}
	if out.AssessmentID == "" && out.Details != nil {
		return *out.Details, nil
	}
	return out.Assessment, nil
}

func (c *Client) call(ctx context.Context, method, path string, q url.Values, payload, target any) error {
	if !c.Available() {
		return ErrNotConfigured
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal interview request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIURL+path, body)
	if err != nil {
		return err
	}
	if q != nil {
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("interview api request", zap.String("method", method), zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("interview api network error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		text := strings.TrimSpace(string(data))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return fmt.Errorf("interview api http %d: %s", resp.StatusCode, text)
	}
	if target == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("interview api returned invalid payload: %w", err)
	}
	if err := mapstructure.WeakDecode(raw, target); err != nil {
		return fmt.Errorf("decode interview payload: %w", err)
	}
	return nil
}
