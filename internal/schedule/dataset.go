package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Dataset is one region's raw outage data: day start (unix seconds) ->
// GPV group -> hour ("1".."24") -> code.
type Dataset struct {
	Region string
	Today  int64
	Days   map[int64]map[string]map[string]string
}

// Tomorrow returns the first day key after Today.
func (d *Dataset) Tomorrow() (int64, bool) {
	keys := make([]int64, 0, len(d.Days))
	for k := range d.Days {
		if k > d.Today {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return 0, false
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys[0], true
}

// Group returns the expanded day grid for a group on a day, or nil.
func (d *Dataset) Group(day int64, group string) DayGrid {
	hours := d.Days[day][group]
	if len(hours) == 0 {
		return nil
	}
	return ExpandHours(hours)
}

// DatasetSource fetches a region's dataset.
type DatasetSource interface {
	FetchRegion(ctx context.Context, region string) (*Dataset, error)
}

// DatasetClient reads {base}/{region}.json:
//
//	{"fact": {"today": 1760475600, "data": {"1760475600": {"GPV1.1": {"1": "yes", ...}}}}}
type DatasetClient struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

type datasetResponse struct {
	Fact struct {
		Today json.Number                                      `json:"today"`
		Data  map[string]map[string]map[string]json.RawMessage `json:"data"`
	} `json:"fact"`
}

func (c *DatasetClient) FetchRegion(ctx context.Context, region string) (*Dataset, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := strings.TrimRight(c.BaseURL, "/") + "/" + url.PathEscape(region) + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", region, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("dataset %s: status %d", region, resp.StatusCode)
	}

	var out datasetResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("dataset %s: decode: %w", region, err)
	}
	today, err := out.Fact.Today.Int64()
	if err != nil {
		return nil, fmt.Errorf("dataset %s: bad today %q", region, out.Fact.Today)
	}

	ds := &Dataset{Region: region, Today: today, Days: map[int64]map[string]map[string]string{}}
	for dayKey, groups := range out.Fact.Data {
		day, err := strconv.ParseInt(dayKey, 10, 64)
		if err != nil {
			continue
		}
		m := make(map[string]map[string]string, len(groups))
		for group, hours := range groups {
			h := make(map[string]string, len(hours))
			for hour, raw := range hours {
				h[hour] = rawStatus(raw)
			}
			m[group] = h
		}
		ds.Days[day] = m
	}
	return ds, nil
}
