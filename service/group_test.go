package service

import (
	"context"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
	"testing"
	"time"
)

var _ = gc.Suite(new(GroupTestSuite))

func Test(t *testing.T) {
	// Run all gocheck test-suites
	gc.TestingT(t)
}

type GroupTestSuite struct{}

func (s *GroupTestSuite) TestCancelStopsAllServices(c *gc.C) {
	ctx, cancel := context.WithCancel(context.TODO())
	stopped := make(chan string, 2)
	g := Group{
		&serviceStub{name: "a", stopped: stopped},
		&serviceStub{name: "b", stopped: stopped},
	}

	doneCh := make(chan error)
	go func() { doneCh <- g.Run(ctx) }()
	cancel()

	select {
	case err := <-doneCh:
		c.Assert(err, gc.IsNil)
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for group to exit")
	}
	c.Assert(stopped, gc.HasLen, 2)
}

func (s *GroupTestSuite) TestFailingServiceStopsGroup(c *gc.C) {
	stopped := make(chan string, 2)
	g := Group{
		&serviceStub{name: "healthy", stopped: stopped},
		&serviceStub{name: "broken", stopped: stopped, err: xerrors.New("boom")},
	}

	doneCh := make(chan error)
	go func() { doneCh <- g.Run(context.TODO()) }()

	select {
	case err := <-doneCh:
		c.Assert(err, gc.ErrorMatches, "(?s).*broken: boom.*")
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for group to exit")
	}
	c.Assert(stopped, gc.HasLen, 2)
}

type serviceStub struct {
	name    string
	err     error
	stopped chan<- string
}

func (s *serviceStub) Name() string { return s.name }

func (s *serviceStub) Run(ctx context.Context) error {
	defer func() { s.stopped <- s.name }()
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return nil
}
