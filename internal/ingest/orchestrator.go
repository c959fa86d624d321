package ingest

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/simodepertis/frontend-sub001/internal/normalize"
	"github.com/simodepertis/frontend-sub001/internal/scraper"
)

// ErrNoSources is returned when a run is started without any source.
var ErrNoSources = errors.New("no sources configured")

type AdapterRegistry interface {
	Get(name string) (scraper.Adapter, error)
}

// Recorder observes per-item outcomes, e.g. for metrics.
type Recorder interface {
	IngestItem(outcome string)
}

type RunOptions struct {
	LimitPerSource int
	DelayMin       time.Duration
	DelayMax       time.Duration
	// OwnerID, when set, owns the listings created by this run.
	OwnerID *int64
}

type ItemError struct {
	Source  string `json:"source"`
	URL     string `json:"url"`
	Message string `json:"message"`
}

type Report struct {
	Imported int         `json:"imported"`
	Updated  int         `json:"updated"`
	Skipped  int         `json:"skipped"`
	Errors   []ItemError `json:"errors"`
}

type Orchestrator struct {
	adapters AdapterRegistry
	upserter *Upserter
	recorder Recorder
	log      *slog.Logger

	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(adapters AdapterRegistry, upserter *Upserter, recorder Recorder, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		adapters: adapters,
		upserter: upserter,
		recorder: recorder,
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:    sleepContext,
	}
}

// Run crawls sources in order. Detail pages are fetched one at a time with a
// jittered pause between them. Per-item failures are collected in the report;
// only cancellation stops the run early.
func (o *Orchestrator) Run(ctx context.Context, sources []scraper.SourceConfig, opts RunOptions) (Report, error) {
	report := Report{Errors: []ItemError{}}
	if len(sources) == 0 {
		return report, ErrNoSources
	}
	fetched := 0

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		adapter, err := o.adapters.Get(src.Adapter)
		if err != nil {
			o.fail(&report, src, src.URL, err)
			continue
		}
		links, err := adapter.FetchListingLinks(ctx, src)
		if err != nil {
			o.fail(&report, src, src.URL, err)
			continue
		}
		if opts.LimitPerSource > 0 && len(links) > opts.LimitPerSource {
			links = links[:opts.LimitPerSource]
		}
		if o.log != nil {
			o.log.Info("source links discovered", "source", src.Name, "links", len(links))
		}

		for _, link := range links {
			if fetched > 0 {
				if err := o.sleep(ctx, o.delay(opts)); err != nil {
					return report, err
				}
			}
			fetched++

			raw, err := adapter.FetchDetail(ctx, src, link)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return report, ctxErr
				}
				o.fail(&report, src, link, err)
				continue
			}
			rec := normalize.Listing(raw, src.Category, src.City, link)
			rec.UserID = opts.OwnerID
			res, err := o.upserter.Upsert(ctx, rec)
			if err != nil {
				o.fail(&report, src, link, err)
				continue
			}
			o.count(&report, res)
		}
	}
	return report, nil
}

func (o *Orchestrator) count(report *Report, res Result) {
	switch res.Outcome {
	case OutcomeCreated:
		report.Imported++
	case OutcomeUpdated:
		report.Updated++
	case OutcomeSkipped:
		report.Skipped++
	}
	if o.recorder != nil {
		o.recorder.IngestItem(string(res.Outcome))
	}
}

func (o *Orchestrator) fail(report *Report, src scraper.SourceConfig, url string, err error) {
	report.Errors = append(report.Errors, ItemError{Source: src.Name, URL: url, Message: err.Error()})
	if o.recorder != nil {
		o.recorder.IngestItem("error")
	}
	if o.log != nil {
		o.log.Warn("ingest item failed", "source", src.Name, "url", url, "err", err)
	}
}

func (o *Orchestrator) delay(opts RunOptions) time.Duration {
	if opts.DelayMax <= opts.DelayMin {
		return opts.DelayMin
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return opts.DelayMin + time.Duration(o.rng.Int63n(int64(opts.DelayMax-opts.DelayMin)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
