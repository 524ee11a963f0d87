package channels

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
	"github.com/tbourn/omnichannel-gateway/internal/services"
)

const (
	DefaultPollInterval = time.Second
	MinPollInterval     = 250 * time.Millisecond
	DefaultBatchSize    = 10
)

var batchDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "sender_batch_duration_seconds",
		Help:    "Duration of one sender worker batch.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"channel"},
)

func init() {
	prometheus.MustRegister(batchDuration)
}

// Queue is the slice of the outbox a worker needs.
type Queue interface {
	ClaimNext(ctx context.Context, channel domain.Channel) (*domain.ChannelMessage, error)
	MarkSent(ctx context.Context, id string, receipt domain.DeliveryReceipt) error
	MarkFailed(ctx context.Context, id, errText string, maxAttempts int, receipt domain.DeliveryReceipt) (services.FailResult, error)
}

// BatchResult counts what one ProcessBatch call did.
type BatchResult struct {
	Processed    int `json:"processed"`
	Sent         int `json:"sent"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"deadLettered"`
}

// WorkerConfig tunes a Worker. Zero values take the defaults.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	SendRPS      float64 // 0 disables send throttling
}

// Worker drains the outbox of one channel through its Sender.
type Worker struct {
	queue   Queue
	sender  Sender
	cfg     WorkerConfig
	limiter *rate.Limiter
	log     zerolog.Logger

	started  atomic.Bool
	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewWorker(q Queue, s Sender, cfg WorkerConfig, log zerolog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollInterval < MinPollInterval {
		cfg.PollInterval = MinPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = services.DefaultMaxAttempts
	}
	w := &Worker{
		queue:  q,
		sender: s,
		cfg:    cfg,
		log:    log.With().Str("component", "sender_worker").Str("channel", string(s.Channel())).Logger(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if cfg.SendRPS > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(cfg.SendRPS), 1)
	}
	return w
}

// Start runs the poll loop until ctx is done or Stop is called. The first
// tick fires immediately.
func (w *Worker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.loop(ctx)
}

func (w *Worker) loop(ctx context.Context) {
	var inflight sync.WaitGroup
	defer close(w.done)
	defer inflight.Wait()

	t := time.NewTicker(w.cfg.PollInterval)
	defer t.Stop()

	w.log.Info().Dur("poll_interval", w.cfg.PollInterval).Int("batch_size", w.cfg.BatchSize).Msg("sender worker started")
	fire := func() {
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			w.tick(ctx)
		}()
	}
	fire()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-t.C:
			fire()
		}
	}
}

// tick runs one batch unless the previous one is still running. Sends are
// detached from ctx so shutdown never abandons a claimed row mid-send.
func (w *Worker) tick(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	defer w.running.Store(false)

	res, err := w.ProcessBatch(context.WithoutCancel(ctx))
	if err != nil {
		w.log.Error().Err(err).Msg("sender batch failed")
		return
	}
	if res.Processed > 0 {
		w.log.Info().
			Int("processed", res.Processed).
			Int("sent", res.Sent).
			Int("failed", res.Failed).
			Int("dead_lettered", res.DeadLettered).
			Msg("sender batch")
	}
}

// Stop prevents further ticks and waits for the in-flight one. It is safe to
// call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.started.Load() {
		<-w.done
	}
}

// ProcessBatch claims up to BatchSize rows and sends them one by one. It
// returns early when the queue runs dry. A queue error aborts the batch; a
// send error or panic is recorded on the row and the batch continues.
func (w *Worker) ProcessBatch(ctx context.Context) (BatchResult, error) {
	channel := w.sender.Channel()
	start := time.Now()
	defer func() {
		batchDuration.WithLabelValues(string(channel)).Observe(time.Since(start).Seconds())
	}()

	var res BatchResult
	for i := 0; i < w.cfg.BatchSize; i++ {
		row, err := w.queue.ClaimNext(ctx, channel)
		if err != nil {
			return res, fmt.Errorf("claim: %w", err)
		}
		if row == nil {
			break
		}
		res.Processed++

		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return res, err
			}
		}

		receipt, sendErr := w.send(ctx, row)
		if sendErr == nil {
			if err := w.queue.MarkSent(ctx, row.ID, receipt); err != nil {
				return res, err
			}
			res.Sent++
			continue
		}

		var se *SendError
		if errors.As(sendErr, &se) {
			receipt = se.Receipt()
		}
		fr, err := w.queue.MarkFailed(ctx, row.ID, sendErr.Error(), w.cfg.MaxAttempts, receipt)
		if err != nil {
			return res, err
		}
		res.Failed++
		if fr.DeadLettered {
			res.DeadLettered++
		}
		w.log.Warn().Err(sendErr).
			Str("message_id", row.ID).
			Int("attempt", fr.AttemptCount).
			Bool("dead_lettered", fr.DeadLettered).
			Msg("send failed")
	}
	return res, nil
}

func (w *Worker) send(ctx context.Context, row *domain.ChannelMessage) (receipt domain.DeliveryReceipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	msg, err := row.DecodeOutbound()
	if err != nil {
		return domain.DeliveryReceipt{}, err
	}
	return w.sender.Send(ctx, *msg)
}
