package stats

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/opscrm/opscrm/internal/platform/httpx"
)

// Service computes and caches yearly summaries.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewService wires a Repository with a Cache helper.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// Get returns the summary of year, the current year when zero.
func (s *Service) Get(ctx context.Context, year int) (*Stats, error) {
	if year == 0 {
		year = s.now().Year()
	}
	if year < 2000 || year > 2100 {
		return nil, fmt.Errorf("%w: year out of range", httpx.ErrValidation)
	}
	key, err := s.cache.Key(ctx, year)
	if err != nil {
		s.logger.Warn("stats cache version", slog.Any("error", err))
		return s.compute(ctx, year)
	}
	if cached, ok, err := s.cache.Load(ctx, key); err != nil {
		s.logger.Warn("stats cache read", slog.String("key", key), slog.Any("error", err))
	} else if ok {
		return cached, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		st, err := s.compute(ctx, year)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Store(ctx, key, st); err != nil {
			s.logger.Warn("stats cache write", slog.String("key", key), slog.Any("error", err))
		}
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Stats), nil
}

// Invalidate drops every cached summary.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) compute(ctx context.Context, year int) (*Stats, error) {
	st := &Stats{Year: year}
	var (
		totals Totals
		avg    float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		totals, err = s.repo.Totals(gctx, year)
		return err
	})
	g.Go(func() (err error) {
		st.WorkersCount, err = s.repo.WorkersCount(gctx, year)
		return err
	})
	g.Go(func() (err error) {
		avg, err = s.repo.AvgDayRate(gctx)
		return err
	})
	g.Go(func() (err error) {
		st.ByMonth, err = s.repo.ByMonth(gctx, year)
		return err
	})
	g.Go(func() (err error) {
		st.ByWork, err = s.repo.ByWork(gctx, year, TopLimit)
		return err
	})
	g.Go(func() (err error) {
		st.TopWorkers, err = s.repo.TopWorkers(gctx, year, TopLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("payroll stats %d: %w", year, err)
	}
	st.TotalAccrued, st.TotalPaid, st.TotalPending, st.SheetsCount = totals.Accrued, totals.Paid, totals.Pending, totals.SheetsCount
	st.AvgDayRate = int64(math.Round(avg))
	if st.ByMonth == nil {
		st.ByMonth = []MonthRow{}
	}
	if st.ByWork == nil {
		st.ByWork = []WorkRow{}
	}
	if st.TopWorkers == nil {
		st.TopWorkers = []WorkerRow{}
	}
	return st, nil
}
