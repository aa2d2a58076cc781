package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerwatch/internal/storage"
	kit "powerwatch/internal/transport"
	logx "powerwatch/pkg/logx"
	"powerwatch/pkg/tgui"
)

type fakeSender struct {
	mu    sync.Mutex
	fail  map[int64]error
	calls map[int64]int
	times []time.Time
}

func newFakeSender(fail map[int64]error) *fakeSender {
	return &fakeSender{fail: fail, calls: map[int64]int{}}
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[to.ChatID]++
	f.times = append(f.times, time.Now())
	if err := f.fail[to.ChatID]; err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.times)}, nil
}

type countingSubs struct {
	*storage.Memory
	mu      sync.Mutex
	removed map[int64]int
	listErr error
}

func newSubs(t *testing.T, loc string, chats ...int64) *countingSubs {
	t.Helper()
	m := storage.NewMemory()
	for _, c := range chats {
		require.NoError(t, m.AddSubscription(context.Background(), storage.Subscription{LocationID: loc, ChatID: c}))
	}
	return &countingSubs{Memory: m, removed: map[int64]int{}}
}

func (c *countingSubs) ListSubscriptions(ctx context.Context, loc string) ([]storage.Subscription, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.Memory.ListSubscriptions(ctx, loc)
}

func (c *countingSubs) RemoveSubscription(ctx context.Context, loc string, chatID int64) error {
	c.mu.Lock()
	c.removed[chatID]++
	c.mu.Unlock()
	return c.Memory.RemoveSubscription(ctx, loc, chatID)
}

type outcomes struct {
	mu sync.Mutex
	m  map[string]int
}

func (o *outcomes) ObserveDispatch(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.m == nil {
		o.m = map[string]int{}
	}
	o.m[outcome]++
}

func blocked(chat int64) error {
	return &kit.RecipientGoneError{Target: kit.ChatTarget{ChatID: chat}, Reason: "bot was blocked by the user", Err: errors.New("telegram: Forbidden (403)")}
}

func message() tgui.Message { return tgui.New().Title("🔴", "Home: power is gone").Build() }

func TestDispatchRemovesBlockedRecipientOnce(t *testing.T) {
	t.Parallel()

	subs := newSubs(t, "home", 1, 2, 3)
	sender := newFakeSender(map[int64]error{
		2: blocked(2),
		3: errors.New("telegram: Too Many Requests"),
	})
	obs := &outcomes{}
	d := New(Config{SendDelay: time.Millisecond}, subs, sender, logx.Nop(), obs)

	r := d.Dispatch(context.Background(), "home", message())
	assert.Equal(t, Report{Total: 3, Sent: 1, Failed: 1, Removed: 1}, r)

	assert.Equal(t, map[int64]int{2: 1}, subs.removed, "exactly one removal, only for the blocked chat")
	assert.Equal(t, 1, sender.calls[2], "no retry after a blocked send")
	assert.Equal(t, 1, sender.calls[3], "no retry after a generic failure")
	assert.Equal(t, map[string]int{"sent": 1, "failed": 1, "removed": 1}, obs.m)

	left, err := subs.Memory.ListSubscriptions(context.Background(), "home")
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestDispatchPacesSends(t *testing.T) {
	t.Parallel()

	subs := newSubs(t, "home", 1, 2, 3, 4)
	sender := newFakeSender(nil)
	d := New(Config{SendDelay: 20 * time.Millisecond, Workers: 4}, subs, sender, logx.Nop(), nil)

	start := time.Now()
	r := d.Dispatch(context.Background(), "home", message())
	assert.Equal(t, 4, r.Sent)
	// The first send goes out immediately; the other three wait a slot each.
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
	require.Len(t, sender.times, 4)
}

func TestDispatchNeverFails(t *testing.T) {
	t.Parallel()

	subs := newSubs(t, "home", 1)
	subs.listErr = errors.New("db locked")
	sender := newFakeSender(nil)
	d := New(Config{}, subs, sender, logx.Nop(), nil)

	assert.Equal(t, Report{}, d.Dispatch(context.Background(), "home", message()))
	assert.Empty(t, sender.calls)

	assert.Equal(t, Report{}, d.Dispatch(context.Background(), "nobody", message()))
}

func TestDispatchCancelled(t *testing.T) {
	t.Parallel()

	subs := newSubs(t, "home", 1, 2, 3)
	sender := newFakeSender(nil)
	obs := &outcomes{}
	d := New(Config{SendDelay: time.Hour, Workers: 1}, subs, sender, logx.Nop(), obs)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r := d.Dispatch(ctx, "home", message())
	assert.Equal(t, Report{Total: 3, Sent: 1, Failed: 2}, r)
	assert.Equal(t, map[string]int{"sent": 1, "failed": 2}, obs.m, "every recipient is observed once")
}

func TestDedupe(t *testing.T) {
	t.Parallel()

	in := []storage.Subscription{{ChatID: 1}, {ChatID: 2}, {ChatID: 1}}
	assert.Len(t, dedupe(in), 2)
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	d := New(Config{}, storage.NewMemory(), newFakeSender(nil), logx.Nop(), nil)
	cfg, lim := d.snapshot()
	assert.Equal(t, DefaultSendDelay, cfg.SendDelay)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, 1, lim.Burst())

	d.Apply(Config{SendDelay: time.Second, Workers: 2})
	cfg, _ = d.snapshot()
	assert.Equal(t, time.Second, cfg.SendDelay)
	assert.Equal(t, 2, cfg.Workers)
}
