package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APISource reads the schedule API:
//
//	{"date_today": "2026-10-15", "date_tomorrow": "2026-10-16",
//	 "regions": {"kyiv": {"1.1": {"2026-10-15": {"00:00": "ON", ...}}}}}
type APISource struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
	Now     func() time.Time
}

type apiResponse struct {
	DateToday    string                                                      `json:"date_today"`
	DateTomorrow string                                                      `json:"date_tomorrow"`
	Regions      map[string]map[string]map[string]map[string]json.RawMessage `json:"regions"`
}

func (s *APISource) Fetch(ctx context.Context) (*Grid, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("schedule api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("schedule api: status %d", resp.StatusCode)
	}

	var out apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("schedule api: decode: %w", err)
	}
	if len(out.Regions) == 0 {
		return nil, ErrNoData
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	g := NewGrid(now(), out.DateToday, out.DateTomorrow)
	for region, queues := range out.Regions {
		for queue, days := range queues {
			key := Key{Region: region, Queue: queue}
			for date, slots := range days {
				if _, err := time.Parse(dateLayout, date); err != nil {
					continue
				}
				for label, raw := range slots {
					l, ok := normalizeLabel(label)
					if !ok {
						continue
					}
					g.Set(key, date, l, ParseStatus(rawStatus(raw)))
				}
			}
		}
	}
	return g, nil
}

// rawStatus accepts both "ON" and 1 style values.
func rawStatus(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
