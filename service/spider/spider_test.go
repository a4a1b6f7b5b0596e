package spider

import (
	"Blogroll/fetcher"
	"context"
	"github.com/juju/clock/testclock"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
	"sync"
	"testing"
	"time"
)

var _ = gc.Suite(new(SpiderServiceTestSuite))

func Test(t *testing.T) {
	// Run all gocheck test-suites
	gc.TestingT(t)
}

type SpiderServiceTestSuite struct{}

func (s *SpiderServiceTestSuite) TestSpiderPass(c *gc.C) {
	sp := &spiderStub{
		errs:     map[string]error{"http://down.com": xerrors.Errorf("fetch: %w", fetcher.ErrFetch)},
		passDone: make(chan struct{}, 1),
	}
	clk := testclock.NewClock(time.Now())
	svc, err := NewService(Config{
		Spider:         sp,
		Seeds:          []string{"http://a.com", "http://down.com", "http://b.com"},
		Clock:          clk,
		UpdateInterval: time.Hour,
	})
	c.Assert(err, gc.IsNil)

	ctx, cancel := context.WithCancel(context.TODO())
	defer cancel()
	doneCh := make(chan error, 1)
	go func() { doneCh <- svc.Run(ctx) }()

	c.Assert(clk.WaitAdvance(time.Hour, 10*time.Second, 1), gc.IsNil)
	select {
	case <-sp.passDone:
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for spider pass")
	}
	c.Assert(sp.spidered(), gc.DeepEquals, []string{"http://a.com", "http://down.com", "http://b.com"})

	cancel()
	select {
	case err := <-doneCh:
		c.Assert(err, gc.IsNil)
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for service to exit")
	}
}

func (s *SpiderServiceTestSuite) TestStoreErrorStopsService(c *gc.C) {
	sp := &spiderStub{
		errs: map[string]error{"http://a.com": xerrors.New("disk full")},
	}
	clk := testclock.NewClock(time.Now())
	svc, err := NewService(Config{
		Spider:         sp,
		Seeds:          []string{"http://a.com"},
		Clock:          clk,
		UpdateInterval: time.Hour,
	})
	c.Assert(err, gc.IsNil)

	doneCh := make(chan error, 1)
	go func() { doneCh <- svc.Run(context.TODO()) }()

	c.Assert(clk.WaitAdvance(time.Hour, 10*time.Second, 1), gc.IsNil)
	select {
	case err := <-doneCh:
		c.Assert(err, gc.ErrorMatches, ".*disk full.*")
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for service to exit")
	}
}

func (s *SpiderServiceTestSuite) TestConfigValidation(c *gc.C) {
	_, err := NewService(Config{})
	c.Assert(err, gc.ErrorMatches, "(?ms).*spider has not been provided.*update interval.*")
}

type spiderStub struct {
	mu       sync.Mutex
	seeds    []string
	errs     map[string]error
	passDone chan struct{}
}

func (s *spiderStub) SpiderFrom(_ context.Context, startURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeds = append(s.seeds, startURL)
	return s.errs[startURL]
}

func (s *spiderStub) BuildLinkGraph(context.Context) (int, error) {
	if s.passDone != nil {
		s.passDone <- struct{}{}
	}
	return 0, nil
}

func (s *spiderStub) spidered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seeds...)
}
