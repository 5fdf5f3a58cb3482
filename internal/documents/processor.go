package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/memohai/docdesk/internal/files"
	"github.com/memohai/docdesk/internal/metrics"
)

const queueFactor = 16

var errJobDropped = errors.New("job status dropped")

type ProcessorOptions struct {
	DefaultEngine string
	Workers       int
	Retention     time.Duration
	PruneSchedule string
}

type job struct {
	id       uint64
	filename string
	engine   string
}

// Processor runs text extraction jobs on a bounded worker pool.
type Processor struct {
	files   *files.Service
	tracker *Tracker
	engines map[string]Extractor
	opts    ProcessorOptions
	jobs    chan job
	cron    *cron.Cron
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewProcessor(log *slog.Logger, svc *files.Service, tracker *Tracker, engines map[string]Extractor, opts ProcessorOptions) *Processor {
	if log == nil {
		log = slog.Default()
	}
	if tracker == nil {
		tracker = NewTracker()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if strings.TrimSpace(opts.DefaultEngine) == "" {
		opts.DefaultEngine = EngineOCR
	}
	return &Processor{
		files:   svc,
		tracker: tracker,
		engines: engines,
		opts:    opts,
		jobs:    make(chan job, opts.Workers*queueFactor),
		logger:  log.With(slog.String("service", "documents")),
	}
}

// Run starts the workers and the status prune schedule.
func (p *Processor) Run(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel

	if p.opts.Retention > 0 && strings.TrimSpace(p.opts.PruneSchedule) != "" {
		c := cron.New()
		if _, err := c.AddFunc(p.opts.PruneSchedule, p.prune); err != nil {
			cancel()
			return fmt.Errorf("schedule status prune: %w", err)
		}
		c.Start()
		p.cron = c
	}

	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(workerCtx)
	}
	p.running = true
	p.logger.Info("processor started", slog.Int("workers", p.opts.Workers))
	return nil
}

// Stop cancels in-flight jobs and waits for the workers to exit.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.cancel()
	if p.cron != nil {
		<-p.cron.Stop().Done()
		p.cron = nil
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start queues extraction of an upload and returns its pending status.
func (p *Processor) Start(ctx context.Context, filename, engine string) (Status, error) {
	engine = strings.ToLower(strings.TrimSpace(engine))
	if engine == "" {
		engine = p.opts.DefaultEngine
	}
	if _, ok := p.engines[engine]; !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownEngine, engine)
	}
	ok, err := p.files.Exists(ctx, filename)
	if err != nil {
		return Status{}, err
	}
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", files.ErrNotFound, filename)
	}

	status, err := p.tracker.Begin(filename, engine)
	if err != nil {
		return status, err
	}
	select {
	case p.jobs <- job{id: status.job, filename: filename, engine: engine}:
	default:
		p.tracker.Fail(filename, ErrQueueFull)
		return Status{}, ErrQueueFull
	}
	p.logger.Info("processing queued", slog.String("filename", filename), slog.String("engine", engine))
	return status, nil
}

// Status returns the tracked status of filename.
func (p *Processor) Status(filename string) (Status, bool) {
	return p.tracker.Get(filename)
}

// Subscribe streams status events of filename, see Tracker.Subscribe.
func (p *Processor) Subscribe(filename string) (<-chan Event, func()) {
	return p.tracker.Subscribe(filename)
}

// Text returns the extracted full text of filename.
func (p *Processor) Text(ctx context.Context, filename string) (string, error) {
	if status, ok := p.tracker.Get(filename); ok {
		switch status.Status {
		case StatusPending, StatusProcessing:
			return "", ErrNotReady
		case StatusFailed:
			return "", fmt.Errorf("%w: %s", ErrNotProcessed, status.Error)
		}
	}
	return ReadFullText(ctx, p.files.Outputs(), files.OutputDir(filename))
}

func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			p.process(ctx, j)
		}
	}
}

func (p *Processor) process(ctx context.Context, j job) {
	if !p.tracker.owns(j.filename, j.id) {
		p.logger.Warn("processing skipped, status was dropped", slog.String("filename", j.filename))
		return
	}
	started := time.Now()
	p.tracker.Processing(j.filename)

	pages, err := p.extract(ctx, j)
	if errors.Is(err, errJobDropped) {
		p.logger.Warn("processing result discarded, status was dropped", slog.String("filename", j.filename))
		return
	}
	metrics.RecordProcessingJob(j.engine, err == nil, time.Since(started))
	if err != nil {
		p.tracker.Fail(j.filename, err)
		p.logger.Error("processing failed",
			slog.String("filename", j.filename),
			slog.String("engine", j.engine),
			slog.Any("error", err),
		)
		return
	}
	p.tracker.Done(j.filename, pages)
	p.logger.Info("processing finished",
		slog.String("filename", j.filename),
		slog.String("engine", j.engine),
		slog.Int("pages", pages),
		slog.Duration("duration", time.Since(started)),
	)
}

func (p *Processor) extract(ctx context.Context, j job) (int, error) {
	localPath, err := p.files.LocalPath(ctx, j.filename)
	if err != nil {
		return 0, err
	}
	result, err := p.engines[j.engine].Extract(ctx, localPath)
	if err != nil {
		return 0, err
	}
	if len(result.Pages) == 0 {
		return 0, errors.New("no text extracted")
	}
	if !p.tracker.owns(j.filename, j.id) {
		return 0, errJobDropped
	}
	if err := WriteResult(ctx, p.files.Outputs(), files.OutputDir(j.filename), result); err != nil {
		return 0, err
	}
	return len(result.Pages), nil
}

func (p *Processor) prune() {
	if n := p.tracker.Prune(p.opts.Retention); n > 0 {
		p.logger.Debug("pruned processing statuses", slog.Int("removed", n))
	}
}
