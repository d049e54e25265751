// Command historiand drains the invite hand-off audit queue from Redis and
// persists each event to Postgres in small batches. It is deliberately
// decoupled from invitelobbyd: hand-off events are fire-and-forget from the
// lobby coordinator's perspective, so a historiand outage never blocks a
// game from starting.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corvidchess/invitelobby/internal/eventlog"
	"github.com/corvidchess/invitelobby/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Fatal("historiand: fatal error")
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("HISTORIAND")
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "historiand",
		Short: "Batch-persists the invite lobby's hand-off audit trail from Redis to Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	flags := cmd.Flags()
	flags.String("redis-addr", "localhost:6379", "Redis address to consume the hand-off audit queue from")
	flags.String("queue-name", eventlog.DefaultQueueName, "Redis list name to BLPop from")
	flags.String("postgres-dsn", "", "Postgres DSN to persist audit events to")
	flags.Int("batch-size", 20, "number of events to accumulate before flushing")
	flags.Duration("flush-interval", 500*time.Millisecond, "interval at which a partial batch is flushed; checked between queue polls, which block for up to 3s")
	flags.Bool("verbose", false, "enable debug logging")
	v.BindPFlags(flags)

	return cmd
}

func run(v *viper.Viper) error {
	log := logrus.New()
	if v.GetBool("verbose") {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Connect(ctx, v.GetString("postgres-dsn"))
	if err != nil {
		return err
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{Addr: v.GetString("redis-addr")})
	defer rdb.Close()

	svc := newService(rdb, store, log, v.GetString("queue-name"), v.GetInt("batch-size"), v.GetDuration("flush-interval"))

	go svc.run(ctx)
	log.Info("historiand: started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("historiand: shutting down")
	cancel()
	svc.flush(context.Background())
	return nil
}

// service mirrors the teacher's HistorianService: a batch accumulator fed
// by a BLPop loop, flushed on size or a timer, whichever comes first.
type service struct {
	rdb       *redis.Client
	store     *storage.Store
	log       *logrus.Logger
	queueName string
	batchSize int
	flushEach time.Duration

	mu    sync.Mutex
	batch []eventlog.HandoffEvent
}

func newService(rdb *redis.Client, store *storage.Store, log *logrus.Logger, queueName string, batchSize int, flushEach time.Duration) *service {
	return &service{
		rdb:       rdb,
		store:     store,
		log:       log,
		queueName: queueName,
		batchSize: batchSize,
		flushEach: flushEach,
		batch:     make([]eventlog.HandoffEvent, 0, batchSize),
	}
}

func (s *service) run(ctx context.Context) {
	ticker := time.NewTicker(s.flushEach)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx)
		default:
			res, err := s.rdb.BLPop(ctx, 3*time.Second, s.queueName).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					s.log.WithError(err).Warn("historiand: blpop failed")
				}
				continue
			}
			if len(res) < 2 {
				continue
			}
			var ev eventlog.HandoffEvent
			if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
				s.log.WithError(err).Warn("historiand: discarding malformed handoff event")
				continue
			}
			s.append(ctx, ev)
		}
	}
}

func (s *service) append(ctx context.Context, ev eventlog.HandoffEvent) {
	s.mu.Lock()
	s.batch = append(s.batch, ev)
	full := len(s.batch) >= s.batchSize
	s.mu.Unlock()
	if full {
		s.flush(ctx)
	}
}

func (s *service) flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.batch) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.batch
	s.batch = make([]eventlog.HandoffEvent, 0, s.batchSize)
	s.mu.Unlock()

	for _, ev := range batch {
		at := time.UnixMilli(ev.TimestampMS)
		if err := s.store.RecordHandoffAudit(ctx, ev.GameID, ev.InviteID, ev.OwnerKey, ev.AccepterKey, ev.Variant, ev.Rated, at); err != nil {
			s.log.WithError(err).Error("historiand: failed to persist handoff audit event")
		}
	}
	s.log.WithField("count", len(batch)).Debug("historiand: flushed batch")
}
