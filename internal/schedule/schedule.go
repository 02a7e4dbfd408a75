// Package schedule runs the service's maintenance jobs: an hourly speech
// provider health probe and a nightly pass that submits one recording
// without a diarization job to the external provider.
//
// Jobs call into the store and gateway exactly as an interactive caller
// would; there is no separate internal concurrency path.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teangalab/beal/internal/record"
	"github.com/teangalab/beal/pkg/speech"
)

// jobTimeout bounds one scheduled job run.
const jobTimeout = 5 * time.Minute

// JobStarter submits a diarization job for a recording's media.
type JobStarter interface {
	StartJob(ctx context.Context, recordingID, mediaURL string) (string, error)
}

// Options wires the scheduler's collaborators.
type Options struct {
	// ProbeSpec is the cron spec for the speech health probe.
	ProbeSpec string

	// AutoDiarizeSpec is the cron spec for the nightly diarization pass.
	AutoDiarizeSpec string

	Store    record.Store
	Gateway  speech.Gateway
	Diarizer JobStarter // nil disables the nightly pass
	Log      *slog.Logger
}

// Scheduler owns the cron runner.
type Scheduler struct {
	opts Options
	cron *cron.Cron
	log  *slog.Logger
}

// New registers the jobs and returns a Scheduler ready to [Scheduler.Start].
func New(opts Options) (*Scheduler, error) {
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}
	s := &Scheduler{
		opts: opts,
		cron: cron.New(),
		log:  opts.Log,
	}

	if _, err := s.cron.AddFunc(opts.ProbeSpec, s.runProbe); err != nil {
		return nil, fmt.Errorf("schedule: probe spec %q: %w", opts.ProbeSpec, err)
	}
	if opts.Diarizer != nil {
		if _, err := s.cron.AddFunc(opts.AutoDiarizeSpec, s.runAutoDiarize); err != nil {
			return nil, fmt.Errorf("schedule: auto-diarize spec %q: %w", opts.AutoDiarizeSpec, err)
		}
	}
	return s, nil
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "probe_spec", s.opts.ProbeSpec, "auto_diarize", s.opts.Diarizer != nil)
}

// Stop halts the runner and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) runProbe() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if ok := s.opts.Gateway.Probe(ctx); !ok {
		s.log.Warn("speech provider probe failed")
		return
	}
	s.log.Debug("speech provider probe ok")
}

func (s *Scheduler) runAutoDiarize() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.AutoDiarizeOnce(ctx); err != nil {
		s.log.Warn("auto-diarize pass failed", "err", err)
	}
}

// AutoDiarizeOnce picks one recording that has media but no diarization job
// yet and submits it. A pass with nothing to submit is not an error.
func (s *Scheduler) AutoDiarizeOnce(ctx context.Context) error {
	recordings, err := s.opts.Store.ListRecordings(ctx)
	if err != nil {
		return fmt.Errorf("schedule: auto-diarize: %w", err)
	}

	for _, r := range recordings {
		if r.DiarizationJobID != "" || r.MediaURL == "" {
			continue
		}

		jobID, err := s.opts.Diarizer.StartJob(ctx, r.ID, r.MediaURL)
		if err != nil {
			return fmt.Errorf("schedule: auto-diarize %s: %w", r.ID, err)
		}
		if err := s.opts.Store.StartDiarizationJob(ctx, r.ID, jobID); err != nil {
			// A concurrent writer already claimed the recording; the
			// provider-side job becomes a no-op callback.
			if errors.Is(err, record.ErrJobMismatch) {
				s.log.Warn("recording claimed concurrently", "recording", r.ID, "job", jobID)
				return nil
			}
			return fmt.Errorf("schedule: auto-diarize %s: %w", r.ID, err)
		}
		s.log.Info("diarization job submitted", "recording", r.ID, "job", jobID)
		return nil
	}

	s.log.Debug("no recording pending diarization")
	return nil
}
