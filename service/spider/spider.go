package spider

import (
	"Blogroll/fetcher"
	"context"
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"io"
	"time"
)

// Spider is implemented by objects that can discover sites and link them.
type Spider interface {
	SpiderFrom(ctx context.Context, startURL string) error
	BuildLinkGraph(ctx context.Context) (int, error)
}

// Config encapsulates the settings for configuring the spider service.
type Config struct {
	// The spider to drive.
	Spider Spider

	// Seeds are the URLs every spider pass starts from.
	Seeds []string

	// A clock instance for generating time-related events. If not
	// specified, the default wall-clock will be used instead.
	Clock clock.Clock

	// The time between subsequent spider passes.
	UpdateInterval time.Duration

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.Spider == nil {
		err = multierror.Append(err, xerrors.Errorf("spider has not been provided"))
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.UpdateInterval <= 0 {
		err = multierror.Append(err, xerrors.Errorf("invalid value for update interval"))
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}
	return err
}

// Service periodically spiders from a set of seed URLs and rebuilds the
// link graph.
type Service struct {
	cfg Config
}

// NewService creates a new spider service instance with the specified
// config.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("spider service: config validation failed: %w", err)
	}
	return &Service{cfg: cfg}, nil
}

// Name implements service.Service
func (svc *Service) Name() string { return "spider" }

// Run implements service.Service
func (svc *Service) Run(ctx context.Context) error {
	svc.cfg.Logger.WithField("update_interval", svc.cfg.UpdateInterval.String()).Info("starting service")
	defer svc.cfg.Logger.Info("stopped service")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-svc.cfg.Clock.After(svc.cfg.UpdateInterval):
			if err := svc.spiderPass(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (svc *Service) spiderPass(ctx context.Context) error {
	svc.cfg.Logger.WithField("seeds", len(svc.cfg.Seeds)).Info("starting new spider pass")
	startAt := svc.cfg.Clock.Now()

	for _, seed := range svc.cfg.Seeds {
		if err := svc.cfg.Spider.SpiderFrom(ctx, seed); err != nil {
			// Unreachable seeds do not abort the pass.
			if xerrors.Is(err, fetcher.ErrFetch) {
				svc.cfg.Logger.WithFields(logrus.Fields{
					"url": seed,
					"err": err,
				}).Warn("unable to register seed")
				continue
			}
			return xerrors.Errorf("spider: unable to spider from %q: %w", seed, err)
		}
	}

	edges, err := svc.cfg.Spider.BuildLinkGraph(ctx)
	if err != nil {
		return xerrors.Errorf("spider: unable to build the link graph: %w", err)
	}

	svc.cfg.Logger.WithFields(logrus.Fields{
		"edges":        edges,
		"elapsed_time": svc.cfg.Clock.Now().Sub(startAt).String(),
	}).Info("completed spider pass")
	return nil
}
