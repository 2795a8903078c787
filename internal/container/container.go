// Package container builds one actor process's explicit, non-global
// context: logger, clock, config, actor registry, event manager and
// RPC manager, wired together from pkg/config and handed down from
// main rather than reached for as a package-level singleton (§9's
// redesign: "the container-singleton pattern must be reified as an
// explicit context passed down from main; tests must be able to
// instantiate multiple independent contexts in one process").
package container

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	kafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/fabric-actor/kernel/internal/clock"
	"github.com/fabric-actor/kernel/internal/kernel"
	"github.com/fabric-actor/kernel/internal/management"
	"github.com/fabric-actor/kernel/internal/metrics"
	"github.com/fabric-actor/kernel/internal/persistence"
	"github.com/fabric-actor/kernel/internal/policy"
	"github.com/fabric-actor/kernel/internal/proxy"
	"github.com/fabric-actor/kernel/internal/recovery"
	"github.com/fabric-actor/kernel/internal/restapi"
	"github.com/fabric-actor/kernel/internal/rpcengine"
	"github.com/fabric-actor/kernel/pkg/apierr"
	"github.com/fabric-actor/kernel/pkg/config"
	"github.com/fabric-actor/kernel/pkg/logger"
)

// Container bundles every collaborator one actor process needs: the
// registry is of one, since a single process runs one actor's kernel
// (§4.3), but the name stays general since the maintenance cron and
// cache are process-wide, not per-actor, the way §9 describes them.
type Container struct {
	Log      *logger.Logger
	Config   *config.Config
	Clock    *clock.Clock
	Calendar *clock.Calendar
	Cache    *Cache
	Metrics  *metrics.Metrics

	DB      *sql.DB
	Gateway persistence.Gateway

	Kernel    *kernel.Kernel
	RPCEngine *rpcengine.Engine
	Proxies   *proxy.Factory
	Consumer  *proxy.Consumer
	producer  *kafka.Producer

	Management *management.Base
	REST       *restapi.Server
	maintCron  *cron.Cron
}

// New builds a Container from cfg without starting anything; call
// Start to launch the kernel, RPC dispatch workers and REST server.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	log := logger.New(logger.Config(cfg.Logging))

	epoch, err := parseEpoch(cfg.Time.EpochRFC3339)
	if err != nil {
		return nil, fmt.Errorf("parse time.epoch: %w", err)
	}
	ck := clock.New(cfg.Time.CycleMillis, epoch)
	calendar := clock.NewCalendar()

	cache, err := NewCache(ctx, cfg.Container.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("connect cache: %w", err)
	}

	m := metrics.New(cfg.Actor.GUID)

	db, err := persistence.Connect(ctx, cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.Database.MigrateOnStart {
		if err := persistence.Migrate(db, "file://internal/persistence/migrations"); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}
	store := persistence.NewStore(db)
	var gw persistence.Gateway = persistence.NewInstrumented(store, m, cfg.Actor.GUID)

	pol, err := buildPolicy(cfg.Actor.Policy, log, ck)
	if err != nil {
		db.Close()
		return nil, err
	}

	k := kernel.New(kernel.Config{
		Log:           log,
		Clock:         ck,
		Calendar:      calendar,
		Policy:        pol,
		Gateway:       gw,
		Metrics:       m,
		ActorID:       cfg.Actor.GUID,
		QueueCapacity: cfg.Runtime.KernelQueueCapacity,
	})

	engine := rpcengine.New(rpcengine.Config{
		Log:     log,
		Kernel:  k,
		Metrics: m,
		ActorID: cfg.Actor.GUID,
	})
	k.SetDispatcher(engine)

	c := &Container{
		Log:       log,
		Config:    cfg,
		Clock:     ck,
		Calendar:  calendar,
		Cache:     cache,
		Metrics:   m,
		DB:        db,
		Gateway:   gw,
		Kernel:    k,
		RPCEngine: engine,
	}

	locals := map[string]*kernel.Kernel{}
	remoteBuilder := func(peerID string) (*proxy.Remote, error) {
		for _, p := range cfg.Peers {
			if p.GUID != peerID {
				continue
			}
			if c.producer == nil {
				var err error
				c.producer, err = kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": cfg.Container.KafkaBrokers})
				if err != nil {
					return nil, apierr.InternalError("build kafka producer", err)
				}
			}
			return proxy.NewRemote(peerID, p.KafkaTopic, c.producer), nil
		}
		return nil, apierr.InvalidArguments("unknown peer " + peerID)
	}
	c.Proxies = proxy.NewFactory(k, locals, remoteBuilder)
	engine.SetResolver(c.Proxies)

	c.Management = management.NewBase(k, gw, management.NewJWTAccessChecker(cfg.OAuth.JWTSecret, nil), log)
	c.REST = restapi.New(restapi.Config{
		Log:        log,
		Addr:       fmt.Sprintf(":%d", cfg.Container.RESTPort),
		Registerer: prometheus.DefaultGatherer,
	})
	c.REST.RegisterEvents(c.Management.Events())

	return c, nil
}

func buildPolicy(name string, log *logger.Logger, ck *clock.Clock) (policy.Policy, error) {
	switch name {
	case "", "simple":
		return policy.NewSimple(log, ck, 2, 1), nil
	case "batch_on_tick":
		return policy.NewBatchOnTick(log, ck, 2, 1), nil
	case "ticket_review":
		return policy.NewTicketReview(log, ck, 2, 1), nil
	default:
		return nil, fmt.Errorf("unknown actor.policy %q", name)
	}
}

func parseEpoch(rfc3339 string) (time.Time, error) {
	if rfc3339 == "" {
		return time.Unix(0, 0), nil
	}
	return time.Parse(time.RFC3339, rfc3339)
}

// Start recovers persisted state, opens the kernel queue, launches the
// kernel loop, starts the Kafka consumer (if this actor's own config
// names a Kafka topic), the REST server, and the maintenance cron.
func (c *Container) Start(ctx context.Context) error {
	if c.Config.Runtime.RecoveryOnStart {
		if err := recovery.Restore(ctx, c.Kernel, c.Gateway, c.RPCEngine, c.Config.Actor.GUID, c.Log); err != nil {
			return fmt.Errorf("recover actor state: %w", err)
		}
	}
	c.Kernel.MarkRecovered()
	if err := c.Kernel.Start(ctx); err != nil {
		return fmt.Errorf("start kernel: %w", err)
	}

	if c.Config.Actor.KafkaTopic != "" {
		var limiter *rate.Limiter
		if c.Config.Runtime.InboundRatePerSecond > 0 {
			limiter = rate.NewLimiter(rate.Limit(c.Config.Runtime.InboundRatePerSecond), c.Config.Runtime.InboundRateBurst)
		}
		consumer, err := proxy.NewConsumer(c.Log, &kafka.ConfigMap{
			"bootstrap.servers": c.Config.Container.KafkaBrokers,
			"group.id":          c.Config.Actor.GUID,
		}, []string{c.Config.Actor.KafkaTopic}, c.Kernel, proxy.DefaultHandlers(), limiter)
		if err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		c.Consumer = consumer
		go consumer.Run(ctx)
	}

	c.REST.Start()

	c.maintCron = cron.New()
	if _, err := c.maintCron.AddFunc(c.Config.Container.MaintenanceCron, c.runMaintenance); err != nil {
		return fmt.Errorf("schedule maintenance cron: %w", err)
	}
	c.maintCron.Start()

	return nil
}

// runMaintenance snapshots the current queue depth into Prometheus, a
// housekeeping tick distinct from the simulated kernel clock since it
// runs on wall-clock cron schedule regardless of cycle length.
func (c *Container) runMaintenance() {
	c.Metrics.KernelQueueDepth.Set(float64(c.Kernel.QueueDepth()))
}

// Stop shuts everything down in reverse dependency order, honoring
// ctx's deadline.
func (c *Container) Stop(ctx context.Context) error {
	if c.maintCron != nil {
		stopCtx := c.maintCron.Stop()
		<-stopCtx.Done()
	}
	if err := c.REST.Shutdown(ctx); err != nil {
		c.Log.Warn("rest api shutdown: " + err.Error())
	}
	if c.producer != nil {
		c.producer.Close()
	}
	if err := c.Kernel.Stop(ctx); err != nil {
		c.Log.Warn("kernel stop: " + err.Error())
	}
	if err := c.Cache.Close(); err != nil {
		c.Log.Warn("cache close: " + err.Error())
	}
	return c.DB.Close()
}
