package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ajirohack/echo/internal/audio"
	"github.com/Ajirohack/echo/internal/metrics"
	"github.com/Ajirohack/echo/internal/pipeline"
	"github.com/Ajirohack/echo/internal/storage"
)

// Processor runs one translation request end to end.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// ResultPublisher delivers result payloads to a broker topic.
type ResultPublisher interface {
	Publish(topic string, payload []byte) error
}

// QueueStats reports the current state of the job queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// WorkerPoolOptions configures the translation worker pool.
type WorkerPoolOptions struct {
	Pipeline        Processor
	Store           storage.AudioStore
	Publisher       ResultPublisher // nil when MQTT is disabled
	ResultTopic     string
	WatchDir        string
	AudioDir        string
	PipelineTimeout time.Duration
	Workers         int
	QueueSize       int
	Log             zerolog.Logger
}

// WorkerPool runs queued jobs through the pipeline.
type WorkerPool struct {
	jobs   chan Job
	opts   WorkerPoolOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	completed atomic.Int64
	failed    atomic.Int64
}

// NewWorkerPool creates a translation worker pool.
func NewWorkerPool(opts WorkerPoolOptions) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobs:   make(chan Job, opts.QueueSize),
		opts:   opts,
		log:    opts.Log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Info().Int("workers", wp.opts.Workers).Int("queue_size", wp.opts.QueueSize).Msg("translation worker pool started")
}

// Stop signals workers to drain and waits for completion.
func (wp *WorkerPool) Stop() {
	close(wp.jobs)
	wp.wg.Wait()
	wp.cancel()
	wp.log.Info().
		Int64("completed", wp.completed.Load()).
		Int64("failed", wp.failed.Load()).
		Msg("translation worker pool stopped")
}

// Enqueue adds a job to the queue. Returns false if the queue is full.
func (wp *WorkerPool) Enqueue(j Job) bool {
	select {
	case wp.jobs <- j:
		metrics.IngestJobsTotal.WithLabelValues(j.Source).Inc()
		return true
	default:
		metrics.IngestRejectedTotal.Inc()
		return false
	}
}

// Stats returns current queue statistics.
func (wp *WorkerPool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(wp.jobs),
		Completed: wp.completed.Load(),
		Failed:    wp.failed.Load(),
	}
}

// QueueDepth reports pending jobs for the metrics collector.
func (wp *WorkerPool) QueueDepth() int { return len(wp.jobs) }

// QueueCap reports the queue capacity.
func (wp *WorkerPool) QueueCap() int { return cap(wp.jobs) }

// Workers returns the number of worker goroutines.
func (wp *WorkerPool) Workers() int { return wp.opts.Workers }

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()

	for job := range wp.jobs {
		if err := wp.processJob(log, job); err != nil {
			wp.failed.Add(1)
			log.Warn().Err(err).
				Str("request_id", job.RequestID).
				Str("source", job.Source).
				Msg("job failed")
		} else {
			wp.completed.Add(1)
		}
	}
}

func (wp *WorkerPool) processJob(log zerolog.Logger, job Job) error {
	start := time.Now()
	// Grace beyond the pipeline budget covers audio resolution and output storage.
	ctx, cancel := context.WithTimeout(wp.ctx, wp.opts.PipelineTimeout+10*time.Second)
	defer cancel()

	// 1. Resolve the input audio
	audioData, err := wp.resolveAudio(ctx, job)
	if err != nil {
		wp.deliverError(log, job, "", pipeline.KindInvalidInput, err, time.Since(start))
		return fmt.Errorf("resolve audio: %w", err)
	}

	// 2. Run the pipeline
	res, err := wp.opts.Pipeline.Process(ctx, pipeline.Request{
		ID:                  job.RequestID,
		Audio:               audioData,
		SourceLang:          job.SourceLang,
		TargetLang:          job.TargetLang,
		STTProvider:         job.STTProvider,
		TranslationProvider: job.TranslationProvider,
		TTSProvider:         job.TTSProvider,
	})
	if err != nil {
		var perr *pipeline.Error
		if errors.As(err, &perr) {
			wp.deliverError(log, job, string(perr.Stage), perr.Kind, err, perr.Elapsed)
		} else {
			wp.deliverError(log, job, "", pipeline.KindProviderFailure, err, time.Since(start))
		}
		return fmt.Errorf("pipeline: %w", err)
	}

	// 3. Store the synthesized audio
	key := storage.BuildKey(res.SourceLang, res.TargetLang, res.RequestID, res.ContentType, time.Now())
	if err := wp.opts.Store.Save(ctx, key, res.Audio, res.ContentType); err != nil {
		wp.deliverError(log, job, "", "internal", err, res.Elapsed)
		return fmt.Errorf("store output: %w", err)
	}
	url, err := wp.opts.Store.URL(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("presign failed, result carries key only")
		url = ""
	}

	// Watched jobs also get the audio dropped next to the job file.
	if job.OutputBase != "" {
		out := job.OutputBase + "." + res.TargetLang + "." + audio.ExtForContentType(res.ContentType)
		if err := os.WriteFile(out, res.Audio, 0o644); err != nil {
			log.Warn().Err(err).Str("path", out).Msg("write output audio")
		}
	}

	// 4. Deliver the result
	msg := ResultMessage{
		RequestID:      res.RequestID,
		Status:         "ok",
		SourceLang:     res.SourceLang,
		TargetLang:     res.TargetLang,
		Transcript:     res.Transcript,
		TranslatedText: res.TranslatedText,
		AudioKey:       key,
		AudioURL:       url,
		ContentType:    res.ContentType,
		ElapsedMs:      res.Elapsed.Milliseconds(),
		Stages:         res.Stages,
	}
	wp.deliver(log, job, msg)

	log.Debug().
		Str("request_id", res.RequestID).
		Str("source", job.Source).
		Str("audio_key", key).
		Int64("elapsed_ms", res.Elapsed.Milliseconds()).
		Msg("job complete")

	return nil
}

// resolveAudio loads the job's audio from whichever reference it carries.
func (wp *WorkerPool) resolveAudio(ctx context.Context, job Job) ([]byte, error) {
	switch {
	case job.AudioBase64 != "":
		data, err := base64.StdEncoding.DecodeString(job.AudioBase64)
		if err != nil {
			return nil, fmt.Errorf("decode audio_base64: %w", err)
		}
		return data, nil

	case job.AudioKey != "":
		r, err := wp.opts.Store.Open(ctx, job.AudioKey)
		if err != nil {
			return nil, fmt.Errorf("open audio_key %q: %w", job.AudioKey, err)
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read audio_key %q: %w", job.AudioKey, err)
		}
		return data, nil

	case job.AudioPath != "":
		path := audio.ResolveFile(wp.opts.WatchDir, wp.opts.AudioDir, job.AudioPath)
		if path == "" {
			return nil, fmt.Errorf("audio file not found: %q", job.AudioPath)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("job missing audio reference")
}

func (wp *WorkerPool) deliverError(log zerolog.Logger, job Job, stage string, kind pipeline.ErrorKind, cause error, elapsed time.Duration) {
	wp.deliver(log, job, ResultMessage{
		RequestID:  job.RequestID,
		Status:     "error",
		SourceLang: job.SourceLang,
		TargetLang: job.TargetLang,
		ElapsedMs:  elapsed.Milliseconds(),
		Error: &ResultError{
			Kind:    string(kind),
			Stage:   stage,
			Message: cause.Error(),
		},
	})
}

// deliver writes the result next to the job file for watched jobs, or
// publishes it to the reply topic for MQTT jobs.
func (wp *WorkerPool) deliver(log zerolog.Logger, job Job, msg ResultMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("request_id", msg.RequestID).Msg("marshal result")
		return
	}

	if job.ResultPath != "" {
		if err := os.WriteFile(job.ResultPath, payload, 0o644); err != nil {
			log.Warn().Err(err).Str("path", job.ResultPath).Msg("write result file")
			return
		}
		metrics.ResultsPublishedTotal.Inc()
		return
	}

	if wp.opts.Publisher == nil {
		log.Debug().Str("request_id", msg.RequestID).Msg("no result sink configured")
		return
	}

	topic := job.ReplyTopic
	if topic == "" {
		topic = wp.opts.ResultTopic
		if msg.RequestID != "" {
			topic += "/" + msg.RequestID
		}
	}
	if err := wp.opts.Publisher.Publish(topic, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("publish result")
		return
	}
	metrics.ResultsPublishedTotal.Inc()
}
