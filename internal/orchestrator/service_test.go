package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versekeeper/versekeeper/internal/providers"
	"github.com/versekeeper/versekeeper/internal/registry"
	"github.com/versekeeper/versekeeper/pkg/models"
	"github.com/versekeeper/versekeeper/pkg/result"
)

// fakeProvider is an AI provider whose behaviour is set per test.
type fakeProvider struct {
	desc models.ProviderDescriptor

	mu    sync.Mutex
	ready bool

	fail   bool
	panics bool
	delay  time.Duration
	verses []models.ScriptureVerse
	calls  atomic.Int32
}

func newFake(id string, priority int) *fakeProvider {
	return &fakeProvider{
		desc:  models.ProviderDescriptor{ID: id, Name: id, ServiceType: models.ServiceMock, Priority: priority},
		ready: true,
		verses: []models.ScriptureVerse{
			{Number: 1, Text: "from " + id},
		},
	}
}

func (f *fakeProvider) Descriptor() models.ProviderDescriptor {
	d := f.desc
	d.Available = f.IsInitialized()
	return d
}

func (f *fakeProvider) Configure(cfg models.ProviderConfig) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = cfg.Enabled
	return f.ready
}

func (f *fakeProvider) IsInitialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeProvider) InitializationError() string {
	if f.IsInitialized() {
		return ""
	}
	return "disabled"
}

func (f *fakeProvider) Test(ctx context.Context) bool {
	return !f.fail
}

// run simulates one remote call.
func run[T any](ctx context.Context, f *fakeProvider, v T) result.Result[T] {
	f.calls.Add(1)
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return result.Fail[T](result.KindTimeout, f.desc.ID+": "+ctx.Err().Error(), ctx.Err())
		}
	}
	if f.fail {
		return result.Errorf[T](result.KindTransport, "%s: connection refused", f.desc.ID)
	}
	return result.Success(v)
}

func (f *fakeProvider) FetchScripture(ctx context.Context, _ models.VerseRef, _ string) result.Result[[]models.ScriptureVerse] {
	return run(ctx, f, f.verses)
}

func (f *fakeProvider) GetKeyTakeaway(ctx context.Context, _ string) result.Result[string] {
	return run(ctx, f, "takeaway from "+f.desc.ID)
}

func (f *fakeProvider) GetAIScore(ctx context.Context, _, _, _ string) result.Result[models.ScoreResult] {
	return run(ctx, f, models.ScoreResult{ContextScore: 70, Explanation: f.desc.ID, Feedback: "ok"})
}

func (f *fakeProvider) ValidateKeyTakeaway(ctx context.Context, _, _ string) result.Result[bool] {
	return run(ctx, f, true)
}

func (f *fakeProvider) FindVersesByDescription(ctx context.Context, _ string) result.Result[[]models.VerseRef] {
	return run(ctx, f, []models.VerseRef{{Book: "John", Chapter: 1, StartVerse: 1, EndVerse: 1}})
}

func newTestService(t *testing.T, opts ...Option) (*Service, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	return New(reg, opts...), reg
}

var romans = models.VerseRef{Book: "Romans", Chapter: 12, StartVerse: 12, EndVerse: 14}

func TestFallback_ReturnsFirstSuccessAndStops(t *testing.T) {
	svc, reg := newTestService(t)
	p1, p2, p3 := newFake("p1", 1), newFake("p2", 2), newFake("p3", 3)
	p1.fail = true
	for _, p := range []*fakeProvider{p3, p1, p2} {
		require.NoError(t, reg.RegisterAI(p))
	}

	got, ok := svc.GetKeyTakeaway(context.Background(), "John 3:16").Value()
	require.True(t, ok)
	assert.Equal(t, "takeaway from p2", got)
	assert.EqualValues(t, 1, p1.calls.Load())
	assert.EqualValues(t, 1, p2.calls.Load())
	assert.EqualValues(t, 0, p3.calls.Load())
}

func TestFallback_AllOperations(t *testing.T) {
	svc, reg := newTestService(t)
	bad, good := newFake("bad", 1), newFake("good", 2)
	bad.fail = true
	require.NoError(t, reg.RegisterAI(bad))
	require.NoError(t, reg.RegisterAI(good))
	ctx := context.Background()

	verses, ok := svc.FetchScripture(ctx, romans, "ESV").Value()
	require.True(t, ok)
	assert.Equal(t, "from good", verses[0].Text)

	score, ok := svc.GetAIScore(ctx, "John 3:16", "q", "a").Value()
	require.True(t, ok)
	assert.Equal(t, "good", score.Explanation)

	valid, ok := svc.ValidateKeyTakeaway(ctx, "John 3:16", "God loves the world").Value()
	require.True(t, ok)
	assert.True(t, valid)

	refs, ok := svc.FindVersesByDescription(ctx, "the beginning").Value()
	require.True(t, ok)
	assert.Len(t, refs, 1)

	assert.EqualValues(t, 4, bad.calls.Load())
	assert.EqualValues(t, 4, good.calls.Load())
}

func TestFallback_TimeoutAdvances(t *testing.T) {
	svc, reg := newTestService(t, WithAttemptTimeout(30*time.Millisecond))
	slow, fast := newFake("slow", 1), newFake("fast", 2)
	slow.delay = 5 * time.Second
	require.NoError(t, reg.RegisterAI(slow))
	require.NoError(t, reg.RegisterAI(fast))

	start := time.Now()
	got, ok := svc.GetKeyTakeaway(context.Background(), "John 3:16").Value()
	require.True(t, ok)
	assert.Equal(t, "takeaway from fast", got)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.EqualValues(t, 1, slow.calls.Load())
	assert.EqualValues(t, 1, fast.calls.Load())
}

func TestAttempt_IgnoredContextStillTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	r := attempt(context.Background(), 20*time.Millisecond, "hangs", func(ctx context.Context) result.Result[string] {
		<-release
		return result.Success("late")
	})
	assert.Equal(t, result.KindTimeout, r.Kind())
	assert.Equal(t, "hangs: timed out after 20ms", r.Message())
	assert.Less(t, time.Since(start), time.Second)
}

func TestAttempt_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	r := attempt(ctx, time.Minute, "p", func(ctx context.Context) result.Result[int] {
		<-ctx.Done()
		return result.Fail[int](result.KindTransport, "interrupted", ctx.Err())
	})
	// Either the provider's own error or the cancellation wins the race; both are failures.
	assert.False(t, r.IsSuccess())
}

func TestFallback_Exhausted(t *testing.T) {
	svc, reg := newTestService(t, WithAttemptTimeout(20*time.Millisecond))
	a, b, c := newFake("a", 1), newFake("b", 2), newFake("c", 3)
	a.fail = true
	b.delay = time.Second
	c.fail = true
	for _, p := range []*fakeProvider{a, b, c} {
		require.NoError(t, reg.RegisterAI(p))
	}

	r := svc.GetAIScore(context.Background(), "John 3:16", "q", "a")
	assert.False(t, r.IsSuccess())
	assert.Equal(t, result.KindExhausted, r.Kind())
	assert.Equal(t, "all providers failed, last error: c: connection refused", r.Message())
	for _, p := range []*fakeProvider{a, b, c} {
		assert.EqualValues(t, 1, p.calls.Load(), p.desc.ID)
	}
}

func TestFallback_NoProviders(t *testing.T) {
	svc, reg := newTestService(t)
	r := svc.GetKeyTakeaway(context.Background(), "John 3:16")
	assert.Equal(t, "no available providers", r.Message())
	assert.Equal(t, result.KindExhausted, r.Kind())

	// Registered but unconfigured providers are not candidates either.
	idle := newFake("idle", 1)
	idle.ready = false
	require.NoError(t, reg.RegisterAI(idle))
	search := svc.FindVersesByDescription(context.Background(), "peace")
	assert.Equal(t, "no available providers", search.Message())
	assert.Zero(t, idle.calls.Load())
}

func TestFallback_PanicIsFailure(t *testing.T) {
	svc, reg := newTestService(t)
	crash, ok := newFake("crash", 1), newFake("ok", 2)
	crash.panics = true
	require.NoError(t, reg.RegisterAI(crash))
	require.NoError(t, reg.RegisterAI(ok))

	got, success := svc.GetKeyTakeaway(context.Background(), "John 3:16").Value()
	require.True(t, success)
	assert.Equal(t, "takeaway from ok", got)
}

func TestFallback_CancelledContextStops(t *testing.T) {
	svc, reg := newTestService(t)
	a, b := newFake("a", 1), newFake("b", 2)
	require.NoError(t, reg.RegisterAI(a))
	require.NoError(t, reg.RegisterAI(b))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := svc.GetKeyTakeaway(ctx, "John 3:16")
	assert.Equal(t, result.KindCancelled, r.Kind())
	assert.Zero(t, a.calls.Load())
	assert.Zero(t, b.calls.Load())
}

func TestFetchScripture_RomansScenario(t *testing.T) {
	svc, reg := newTestService(t)
	a, b := newFake("a", 1), newFake("b", 2)
	a.verses = []models.ScriptureVerse{
		{Number: 12, Text: "Rejoice in hope, be patient in tribulation, be constant in prayer."},
		{Number: 13, Text: "Contribute to the needs of the saints and seek to show hospitality."},
		{Number: 14, Text: "Bless those who persecute you; bless and do not curse them."},
	}
	require.NoError(t, reg.RegisterAI(a))
	require.NoError(t, reg.RegisterAI(b))
	require.True(t, svc.Configure(models.AggregateSettings{Configs: map[string]models.ProviderConfig{
		"a": {ID: "a", Enabled: true},
		"b": {ID: "b", Enabled: true},
	}}))

	verses, ok := svc.FetchScripture(context.Background(), romans, "ESV").Value()
	require.True(t, ok)
	assert.Equal(t, a.verses, verses)
	assert.Zero(t, b.calls.Load())
}

func TestFetchScripture_ScripturePoolFirst(t *testing.T) {
	svc, reg := newTestService(t)
	ai, esv := newFake("ai", 0), newFake("esv", 5)
	require.NoError(t, reg.RegisterAI(ai))
	require.NoError(t, reg.RegisterScripture(esv))

	verses, ok := svc.FetchScripture(context.Background(), romans, "ESV").Value()
	require.True(t, ok)
	assert.Equal(t, "from esv", verses[0].Text)
	assert.Zero(t, ai.calls.Load())

	esv.fail = true
	verses, ok = svc.FetchScripture(context.Background(), romans, "ESV").Value()
	require.True(t, ok)
	assert.Equal(t, "from ai", verses[0].Text)
}

func TestFetchScripture_InvalidReference(t *testing.T) {
	svc, reg := newTestService(t)
	p := newFake("p", 1)
	require.NoError(t, reg.RegisterAI(p))

	r := svc.FetchScripture(context.Background(), models.VerseRef{Book: " ", Chapter: 1, StartVerse: 1}, "ESV")
	assert.Equal(t, result.KindInvalidInput, r.Kind())
	assert.Zero(t, p.calls.Load())
}

func TestFetchScripture_Cache(t *testing.T) {
	svc, reg := newTestService(t, WithScriptureCache(8))
	p := newFake("p", 1)
	require.NoError(t, reg.RegisterAI(p))
	ctx := context.Background()

	first, ok := svc.FetchScripture(ctx, romans, "esv").Value()
	require.True(t, ok)
	first[0].Text = "mutated by caller"

	second, ok := svc.FetchScripture(ctx, romans, "ESV").Value()
	require.True(t, ok)
	assert.Equal(t, "from p", second[0].Text)
	assert.EqualValues(t, 1, p.calls.Load())

	_, ok = svc.FetchScripture(ctx, romans, "KJV").Value()
	require.True(t, ok)
	assert.EqualValues(t, 2, p.calls.Load())

	// Reconfiguring drops memoized answers.
	svc.Configure(models.AggregateSettings{Configs: map[string]models.ProviderConfig{"p": {ID: "p", Enabled: true}}})
	_, ok = svc.FetchScripture(ctx, romans, "ESV").Value()
	require.True(t, ok)
	assert.EqualValues(t, 3, p.calls.Load())
}

func TestSelectedProviderGoesFirst(t *testing.T) {
	svc, reg := newTestService(t)
	a, b, c := newFake("a", 1), newFake("b", 2), newFake("c", 3)
	for _, p := range []*fakeProvider{a, b, c} {
		require.NoError(t, reg.RegisterAI(p))
	}
	require.True(t, svc.Configure(models.AggregateSettings{
		SelectedProvider: "c",
		Configs: map[string]models.ProviderConfig{
			"a": {ID: "a", Enabled: true},
			"b": {ID: "b", Enabled: true},
			"c": {ID: "c", Enabled: true},
		},
	}))
	assert.Equal(t, "c", svc.SelectedProvider())

	got, ok := svc.GetKeyTakeaway(context.Background(), "John 3:16").Value()
	require.True(t, ok)
	assert.Equal(t, "takeaway from c", got)

	c.fail = true
	got, ok = svc.GetKeyTakeaway(context.Background(), "John 3:16").Value()
	require.True(t, ok)
	assert.Equal(t, "takeaway from a", got)
	assert.Zero(t, b.calls.Load())
}

func TestConfigure_ReplacesPreviousSettings(t *testing.T) {
	svc, reg := newTestService(t)
	a, b := newFake("a", 1), newFake("b", 2)
	require.NoError(t, reg.RegisterAI(a))
	require.NoError(t, reg.RegisterAI(b))

	require.True(t, svc.Configure(models.AggregateSettings{
		SelectedProvider: "a",
		Configs:          map[string]models.ProviderConfig{"a": {ID: "a", Enabled: true}},
	}))
	require.True(t, svc.Configure(models.AggregateSettings{
		Configs: map[string]models.ProviderConfig{"b": {ID: "b", Enabled: true}},
	}))

	assert.False(t, a.IsInitialized(), "a has no entry in the second batch")
	assert.True(t, b.IsInitialized())
	assert.Empty(t, svc.SelectedProvider())
	assert.Equal(t, 1, svc.Stats().AvailableProviders)

	got, ok := svc.GetKeyTakeaway(context.Background(), "John 3:16").Value()
	require.True(t, ok)
	assert.Equal(t, "takeaway from b", got)
	assert.Zero(t, a.calls.Load())
}

func TestConfigure_NothingReady(t *testing.T) {
	svc, reg := newTestService(t)
	p, _ := providers.NewMock("mock", 1)
	require.NoError(t, reg.RegisterAI(p))

	ok := svc.Configure(models.AggregateSettings{Configs: map[string]models.ProviderConfig{
		"mock": {ID: "mock", Temperature: 5, Enabled: true},
	}})
	assert.False(t, ok)
	assert.False(t, svc.IsInitialized())
	assert.Contains(t, svc.InitializationError(), "mock")

	require.True(t, svc.Configure(models.AggregateSettings{Configs: map[string]models.ProviderConfig{
		"mock": {ID: "mock", Enabled: true},
	}}))
	assert.Empty(t, svc.InitializationError())
}

func TestValidateKeyTakeaway_FalseIsSuccess(t *testing.T) {
	svc, reg := newTestService(t)
	p, backend := providers.NewMock("mock", 1)
	backend.WithResponse(providers.OpValidate, `{"valid": false, "reason": "John 3:16 is about God's love"}`)
	require.NoError(t, reg.RegisterAI(p))
	require.True(t, svc.Configure(models.AggregateSettings{Configs: map[string]models.ProviderConfig{
		"mock": {ID: "mock", Enabled: true},
	}}))

	valid, ok := svc.ValidateKeyTakeaway(context.Background(), "John 3:16", "This is about fishing techniques").Value()
	require.True(t, ok)
	assert.False(t, valid)
}

func TestTestAndHealthCheck(t *testing.T) {
	svc, reg := newTestService(t)
	up, down, idle := newFake("up", 1), newFake("down", 2), newFake("idle", 3)
	down.fail = true
	idle.ready = false
	for _, p := range []*fakeProvider{up, down, idle} {
		require.NoError(t, reg.RegisterAI(p))
	}

	assert.True(t, svc.Test(context.Background()), "first available provider is tested")

	svc.mu.Lock()
	svc.selected = "down"
	svc.mu.Unlock()
	assert.False(t, svc.Test(context.Background()))

	report := svc.HealthCheck(context.Background())
	require.Len(t, report, 3)
	assert.Equal(t, models.ProviderHealth{ID: "up", Healthy: true, LatencyMs: report[0].LatencyMs}, report[0])
	assert.False(t, report[1].Healthy)
	assert.Equal(t, "test failed", report[1].Error)
	assert.Equal(t, "disabled", report[2].Error)
}

func TestTest_NoProviders(t *testing.T) {
	svc, _ := newTestService(t)
	assert.False(t, svc.Test(context.Background()))
}

func TestLatenciesRecordedOnSuccess(t *testing.T) {
	svc, reg := newTestService(t)
	bad, good := newFake("bad", 1), newFake("good", 2)
	bad.fail = true
	require.NoError(t, reg.RegisterAI(bad))
	require.NoError(t, reg.RegisterAI(good))

	require.True(t, svc.GetKeyTakeaway(context.Background(), "John 3:16").IsSuccess())
	lat := svc.Latencies()
	assert.Contains(t, lat, "good")
	assert.NotContains(t, lat, "bad")
}

func TestConcurrentCalls(t *testing.T) {
	svc, reg := newTestService(t, WithScriptureCache(4))
	p := newFake("p", 1)
	require.NoError(t, reg.RegisterAI(p))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, svc.FetchScripture(context.Background(), romans, "ESV").IsSuccess())
			assert.True(t, svc.GetKeyTakeaway(context.Background(), "Romans 12:12").IsSuccess())
		}()
	}
	wg.Wait()
}

func TestInvalidInputNeverReachesProviders(t *testing.T) {
	svc, reg := newTestService(t)
	p := newFake("p", 1)
	require.NoError(t, reg.RegisterAI(p))
	ctx := context.Background()

	for _, r := range []interface{ Kind() result.ErrorKind }{
		svc.GetKeyTakeaway(ctx, "  "),
		svc.GetAIScore(ctx, "", "q", "a"),
		svc.ValidateKeyTakeaway(ctx, "John 3:16", ""),
		svc.FindVersesByDescription(ctx, "\t"),
	} {
		assert.Equal(t, result.KindInvalidInput, r.Kind())
	}
	assert.Zero(t, p.calls.Load())
}
