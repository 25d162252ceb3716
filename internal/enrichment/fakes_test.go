package enrichment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("worker-%d", s.n), nil
}

type claimRow struct {
	worker   string
	live     bool
	failures int
}

// memClaims mimics the Postgres claim semantics under a mutex.
type memClaims struct {
	mu         sync.Mutex
	candidates []string
	claims     map[string]*claimRow
	done       map[string]ranker.ProcessedStatus
	lostFor    map[string]bool
}

func newMemClaims(urls ...string) *memClaims {
	return &memClaims{
		candidates: urls,
		claims:     map[string]*claimRow{},
		done:       map[string]ranker.ProcessedStatus{},
		lostFor:    map[string]bool{},
	}
}

func (m *memClaims) Stage() ranker.Stage { return ranker.StageEnrichment }

func (m *memClaims) ListCandidates(_ context.Context, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, u := range m.candidates {
		if _, ok := m.done[u]; ok {
			continue
		}
		if c, ok := m.claims[u]; ok && c.live {
			continue
		}
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memClaims) Claim(_ context.Context, url, worker string) (ranker.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.done[url]; ok {
		return ranker.Claim{}, ranker.ErrClaimConflict
	}
	c, ok := m.claims[url]
	if ok && c.live {
		return ranker.Claim{}, ranker.ErrClaimConflict
	}
	if !ok {
		c = &claimRow{}
		m.claims[url] = c
	}
	c.worker, c.live = worker, true
	return ranker.Claim{Stage: ranker.StageEnrichment, ChannelURL: url, WorkerID: worker, Failures: c.failures}, nil
}

func (m *memClaims) Complete(_ context.Context, url, worker string, status ranker.ProcessedStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.done[url]; !ok {
		m.done[url] = status
	}
	c, ok := m.claims[url]
	if m.lostFor[url] || !ok || c.worker != worker {
		return ranker.ErrClaimLost
	}
	delete(m.claims, url)
	return nil
}

func (m *memClaims) Release(_ context.Context, url, worker string, transient bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[url]
	if !ok || c.worker != worker {
		return 0, ranker.ErrClaimLost
	}
	c.live, c.worker = false, ""
	if transient {
		c.failures++
	}
	return c.failures, nil
}

func (m *memClaims) Drop(_ context.Context, url, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, url)
	return nil
}

func (m *memClaims) status(url string) (ranker.ProcessedStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.done[url]
	return s, ok
}

type memChannels struct {
	mu       sync.Mutex
	profiles map[string]ranker.ChannelProfile
	videos   map[string][]ranker.ChannelVideo
	fail     error
}

func newMemChannels() *memChannels {
	return &memChannels{profiles: map[string]ranker.ChannelProfile{}, videos: map[string][]ranker.ChannelVideo{}}
}

func (m *memChannels) UpsertProfile(_ context.Context, p ranker.ChannelProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.profiles[p.ChannelURL] = p
	return nil
}

func (m *memChannels) UpsertVideos(_ context.Context, url string, v []ranker.ChannelVideo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos[url] = v
	return nil
}

func (m *memChannels) GetProfile(_ context.Context, url string) (ranker.ChannelProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[url], nil
}

func (m *memChannels) ListVideos(_ context.Context, url string) ([]ranker.ChannelVideo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videos[url], nil
}

// scriptedExtractor returns queued errors per URL, then succeeds.
type scriptedExtractor struct {
	mu     sync.Mutex
	errs   map[string][]error
	calls  map[string]int
	block  bool
	videos int
}

func newScriptedExtractor() *scriptedExtractor {
	return &scriptedExtractor{errs: map[string][]error{}, calls: map[string]int{}, videos: 2}
}

func (s *scriptedExtractor) Extract(ctx context.Context, url string, _ int) (ranker.Extraction, error) {
	s.mu.Lock()
	s.calls[url]++
	var err error
	if queue := s.errs[url]; len(queue) > 0 {
		err, s.errs[url] = queue[0], queue[1:]
	}
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return ranker.Extraction{}, &ranker.ExtractError{ChannelURL: url, Err: ctx.Err()}
	}
	if err != nil {
		return ranker.Extraction{}, err
	}
	subs := int64(1234)
	videos := make([]ranker.ChannelVideo, 0, s.videos)
	for i := range s.videos {
		videos = append(videos, ranker.ChannelVideo{ChannelURL: url, VideoID: fmt.Sprintf("v%d", i)})
	}
	return ranker.Extraction{
		Profile: ranker.ChannelProfile{ChannelURL: url, Subscribers: &subs},
		Videos:  videos,
		Raw:     []byte(`{"id":"` + url + `"}`),
	}, nil
}

func (s *scriptedExtractor) callCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.calls))
	for k, v := range s.calls {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
