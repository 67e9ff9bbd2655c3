package audio

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/convolab-backend/internal/domain/courses"
	"github.com/yungbote/convolab-backend/internal/observability"
	"github.com/yungbote/convolab-backend/internal/platform/apierr"
	"github.com/yungbote/convolab-backend/internal/platform/httpx"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

const stageAudio = "audio"

type OrchestratorOptions struct {
	Concurrency    int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Orchestrator sends every speech unit of a script to the speech provider with
// bounded concurrency and keeps the results in unit order.
type Orchestrator struct {
	log   *logger.Logger
	synth Synthesizer
	opts  OrchestratorOptions
}

func NewOrchestrator(log *logger.Logger, synth Synthesizer, opts OrchestratorOptions) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 10 * time.Second
	}
	return &Orchestrator{
		log:   log.With("component", "AudioOrchestrator"),
		synth: synth,
		opts:  opts,
	}
}

// ProgressFunc receives the number of finished speech units out of total.
type ProgressFunc func(done, total int)

// SynthesizeAll returns one segment per unit index; pauses and markers keep a
// nil slot. It waits for every in-flight request before returning, so callers
// never see a partial result.
func (o *Orchestrator) SynthesizeAll(ctx context.Context, units []courses.ScriptUnit, speed float64, onProgress ProgressFunc) ([]*Segment, error) {
	if speed <= 0 {
		speed = 1
	}
	ctx, span := observability.StartSpan(ctx, "audio.synthesize_all",
		attribute.Int("units", len(units)),
		attribute.Float64("speed", speed),
	)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	total := courses.CountSpeech(units)
	segments := make([]*Segment, len(units))
	var done int64

	sem := semaphore.NewWeighted(int64(o.opts.Concurrency))
	g, gctx := errgroup.WithContext(ctx)
	var acquireErr error
	for i, u := range units {
		if !u.IsSpeech() {
			continue
		}
		if acquireErr = sem.Acquire(gctx, 1); acquireErr != nil {
			break
		}
		i, req := i, SynthesisRequest{Text: u.Text, VoiceID: u.VoiceID, Speed: u.SpeedOr(1) * speed}
		g.Go(func() error {
			defer sem.Release(1)
			seg, err := o.synthesizeWithRetry(gctx, i, req)
			if err != nil {
				return err
			}
			segments[i] = &seg
			n := atomic.AddInt64(&done, 1)
			if onProgress != nil {
				onProgress(int(n), total)
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	if acquireErr != nil {
		err = acquireErr
		return nil, err
	}
	return segments, nil
}

// SynthesizeOne renders a single line under the same retry policy.
func (o *Orchestrator) SynthesizeOne(ctx context.Context, req SynthesisRequest) (Segment, error) {
	if req.Speed <= 0 {
		req.Speed = 1
	}
	ctx, span := observability.StartSpan(ctx, "audio.synthesize_one", attribute.String("voice_id", req.VoiceID))
	seg, err := o.synthesizeWithRetry(ctx, -1, req)
	observability.EndSpan(span, err)
	return seg, err
}

func (o *Orchestrator) synthesizeWithRetry(ctx context.Context, unitIndex int, req SynthesisRequest) (Segment, error) {
	attempt := 0
	start := time.Now()
	op := func() (Segment, error) {
		attempt++
		seg, err := o.synth.Synthesize(ctx, req)
		if err == nil {
			if len(seg.Audio) == 0 {
				return Segment{}, backoff.Permanent(errors.New("provider returned empty audio"))
			}
			return seg, nil
		}
		if !httpx.IsRetryableError(err) {
			return Segment{}, backoff.Permanent(err)
		}
		return Segment{}, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.opts.InitialBackoff
	b.MaxInterval = o.opts.MaxBackoff

	seg, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(o.opts.MaxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			observability.Current().IncSynthesisRetry()
			o.log.Warn("synthesis failed, retrying",
				"unit_index", unitIndex,
				"voice_id", req.VoiceID,
				"attempt", attempt,
				"wait_ms", wait.Milliseconds(),
				"error", err,
			)
		}),
	)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.Current().ObserveSynthesis(outcome, time.Since(start))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return Segment{}, err
		}
		what := "line"
		if unitIndex >= 0 {
			what = fmt.Sprintf("unit %d", unitIndex)
		}
		return Segment{}, apierr.External(stageAudio, fmt.Errorf("synthesize %s after %d attempts: %w", what, attempt, err))
	}
	return seg, nil
}
