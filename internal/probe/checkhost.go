package probe

import (
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
)

const (
	DefaultPollInterval = 6 * time.Second
	DefaultPollAttempts = 5
)

var (
	ErrSubmitRejected = errors.New("checkhost: job rejected")
	ErrPollExhausted  = errors.New("checkhost: nodes did not report in time")
)

type CheckHostConfig struct {
	BaseURL      string
	Nodes        []string // explicit node list; empty lets the service pick
	MaxNodes     int
	PollInterval time.Duration
	PollAttempts int
	Timeout      time.Duration // per HTTP request
}

// jobState is the lifecycle of one multi-node ping job.
type jobState int

const (
	jobSubmitted jobState = iota
	jobPolling
	jobSuccess
	jobFailure
	jobTimeout
)

func (s jobState) String() string {
	switch s {
	case jobSubmitted:
		return "submitted"
	case jobPolling:
		return "polling"
	case jobSuccess:
		return "success"
	case jobFailure:
		return "failure"
	case jobTimeout:
		return "timeout"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

func (s jobState) terminal() bool { return s >= jobSuccess }

// CheckHost runs asynchronous ping jobs on a multi-node checking service:
// submit returns a request id and the chosen nodes, the result endpoint
// fills in per node as nodes finish.
type CheckHost struct {
	cfg    CheckHostConfig
	client *http.Client
}

func NewCheckHost(cfg CheckHostConfig, client *http.Client) *CheckHost {
	if cfg.PollInterval < 0 {
		cfg.PollInterval = 0
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = DefaultPollAttempts
	}
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	return &CheckHost{cfg: cfg, client: client}
}

func (c *CheckHost) Name() string { return "checkhost" }

type job struct {
	id    string
	nodes []string
	state jobState
}

func (c *CheckHost) Check(ctx context.Context, host string) (bool, error) {
	j, err := c.submit(ctx, host)
	if err != nil {
		return false, err
	}
	j.state = jobPolling

	for attempt := 1; attempt <= c.cfg.PollAttempts && !j.state.terminal(); attempt++ {
		if !sleep(ctx, c.cfg.PollInterval) {
			return false, ctx.Err()
		}
		results, err := c.poll(ctx, j.id)
		if err != nil {
			// A failed poll is a lost attempt, not a verdict.
			continue
		}
		j.state = evaluate(results, j.nodes)
	}

	if !j.state.terminal() {
		j.state = jobTimeout
	}
	switch j.state {
	case jobSuccess:
		return true, nil
	case jobFailure:
		return false, nil
	default:
		return false, ErrPollExhausted
	}
}

type submitResponse struct {
	OK        int                        `json:"ok"`
	RequestID string                     `json:"request_id"`
	Nodes     map[string]json.RawMessage `json:"nodes"`
	Error     string                     `json:"error"`
}

func (c *CheckHost) submit(ctx context.Context, host string) (*job, error) {
	q := url.Values{"host": {host}}
	if len(c.cfg.Nodes) > 0 {
		q["node"] = append([]string(nil), c.cfg.Nodes...)
	} else {
		q.Set("max_nodes", strconv.Itoa(c.cfg.MaxNodes))
	}

	var out submitResponse
	if err := c.getJSON(ctx, "/check-ping?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	if out.OK != 1 || out.RequestID == "" {
		if out.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrSubmitRejected, out.Error)
		}
		return nil, ErrSubmitRejected
	}
	j := &job{id: out.RequestID, state: jobSubmitted}
	for n := range out.Nodes {
		j.nodes = append(j.nodes, n)
	}
	return j, nil
}

func (c *CheckHost) poll(ctx context.Context, id string) (map[string]json.RawMessage, error) {
	var out map[string]json.RawMessage
	if err := c.getJSON(ctx, "/check-result/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CheckHost) getJSON(ctx context.Context, path string, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.cfg.BaseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("checkhost: %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(dst); err != nil {
		return fmt.Errorf("checkhost: decode: %w", err)
	}
	return nil
}

// evaluate folds one poll's partial results into a state. A node that has
// not reported is null. A reported node holds one group of attempts per
// resolved address, each attempt being [status, rtt, ip?].
func evaluate(results map[string]json.RawMessage, nodes []string) jobState {
	if len(nodes) == 0 {
		for n := range results {
			nodes = append(nodes, n)
		}
	}
	if len(nodes) == 0 {
		return jobPolling
	}

	reported := 0
	for _, n := range nodes {
		raw, ok := results[n]
		if !ok || isNull(raw) {
			continue
		}
		reported++
		if nodeHasOK(raw) {
			return jobSuccess
		}
	}
	if reported == len(nodes) {
		return jobFailure
	}
	return jobPolling
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func nodeHasOK(raw json.RawMessage) bool {
	var groups [][][]any
	if err := json.Unmarshal(raw, &groups); err != nil {
		return false
	}
	for _, attempts := range groups {
		for _, a := range attempts {
			if len(a) == 0 {
				continue
			}
			if status, ok := a[0].(string); ok && status == "OK" {
				return true
			}
		}
	}
	return false
}
