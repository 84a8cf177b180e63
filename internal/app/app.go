// Package app wires configuration into a running engine: stores, queue,
// scheduler, channels and the services built on them. The binaries under
// cmd/ pick which surfaces of an App to start.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-engine/internal/api"
	"github.com/ignite/campaign-engine/internal/audit"
	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/directory"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/pkg/httpretry"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/repository/memory"
	"github.com/ignite/campaign-engine/internal/repository/postgres"
	redisrepo "github.com/ignite/campaign-engine/internal/repository/redis"
	"github.com/ignite/campaign-engine/internal/scheduler"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/sending"
	"github.com/ignite/campaign-engine/internal/service/suppression"
	"github.com/ignite/campaign-engine/internal/tracking"
	"github.com/ignite/campaign-engine/internal/worker"
)

// CallbackPath is where the scheduler posts fired tasks.
const CallbackPath = "/internal/scheduler/callback"

// App is one process's view of the engine.
type App struct {
	cfg *config.Config

	db     *sql.DB
	redis  *redis.Client
	queue  queue.Queue
	locker distlock.Locker
	stores stores
	local  *scheduler.Local
	aws    *aws.Config

	Campaigns    *campaign.Service
	Tracking     *tracking.Service
	Suppressions *suppression.Service
}

// New connects to every configured backend and builds the services.
// Backends left unconfigured fall back to in-process implementations.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	cfg := a.cfg

	if cfg.Database.URL != "" {
		db, err := postgres.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		a.db = db
		a.stores = postgresStores(db)
		logger.Info("[app] database connected")
	} else {
		a.stores = memoryStores()
		logger.Warn("[app] DATABASE_URL not set, using in-memory stores")
	}

	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("[app] redis unreachable, continuing without it", "addr", cfg.Redis.Addr, "error", err)
			rdb.Close()
		} else {
			a.redis = rdb
			logger.Info("[app] redis connected", "addr", cfg.Redis.Addr)
		}
	}
	a.locker = distlock.NewLocker(a.redis, a.db)

	switch cfg.Queue.Driver {
	case "amqp":
		q, err := queue.DialAMQP(cfg.Queue.AMQPURL, cfg.Queue.Name, cfg.Queue.Prefetch, 5)
		if err != nil {
			return err
		}
		a.queue = q
	default:
		a.queue = queue.NewMemory(0, 5, time.Second)
	}
	return nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg
	st := a.stores

	auditor, err := a.auditor(ctx)
	if err != nil {
		return err
	}

	var sched campaign.Scheduler
	switch cfg.Scheduler.Driver {
	case "http":
		sched = scheduler.NewHTTPClient(cfg.Scheduler.BaseURL, cfg.Scheduler.APIKey, httpretry.NewRetryClient(nil, 3))
	default:
		loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
		if err != nil {
			return fmt.Errorf("scheduler timezone: %w", err)
		}
		a.local = scheduler.NewLocal(loc, a.locker)
		sched = a.local
	}

	var dir sending.Directory = st.directory
	if cfg.Directory.Driver == "http" {
		dir = directory.NewHTTPClient(cfg.Directory.BaseURL, cfg.Directory.APIKey, cfg.Directory.PageSize, httpretry.NewRetryClient(nil, 3))
	}

	signer := tracking.NewSigner(cfg.Tracking.SigningSecret, cfg.Tracking.AuthUser, cfg.Tracking.ClockSkew())
	shortener := tracking.NewShortener(st.links, signer, cfg.Tracking.ShortURLBase, cfg.Tracking.LinkTTL())
	channels, err := buildChannels(ctx, cfg.Channels, shortener)
	if err != nil {
		return err
	}

	dispatcher := sending.NewDispatcher(channels, st.directory, st.blasts,
		sending.WithConcurrency(cfg.Dispatch.Concurrency),
		sending.WithUnitTimeout(cfg.Dispatch.UnitTimeout()))

	a.Suppressions = suppression.NewService(st.suppressions)
	a.Campaigns = campaign.NewService(campaign.Deps{
		Campaigns:    st.campaigns,
		Blasts:       st.blasts,
		Sends:        st.blasts,
		Users:        st.directory,
		Lists:        st.directory,
		Scheduler:    sched,
		Audit:        auditor,
		Queue:        a.queue,
		Resolver:     sending.NewResolver(st.campaigns, dir, cfg.Dispatch.ListTimeout()),
		Dispatcher:   dispatcher,
		Suppressions: a.Suppressions,
		CallbackURL:  strings.TrimRight(cfg.Server.PublicURL, "/") + CallbackPath,
	})

	var cache tracking.TargetCache
	if a.redis != nil {
		cache = redisrepo.NewLinkCache(a.redis, cfg.Tracking.CacheTTL())
	}
	a.Tracking = tracking.NewService(tracking.Deps{
		Links:      st.links,
		SendLinks:  st.blasts,
		Blasts:     st.blasts,
		Campaigns:  st.campaigns,
		Recipients: st.directory,
		Audit:      auditor,
		Cache:      cache,
		Signer:     signer,
	})

	if a.local != nil {
		svc := a.Campaigns
		a.local.SetCallback(func(ctx context.Context, campaignID, taskID string) error {
			_, err := svc.SendFromSchedule(ctx, campaignID, taskID)
			return err
		})
	}
	return nil
}

func (a *App) awsConfig(ctx context.Context, region string) (aws.Config, error) {
	if a.aws != nil {
		return *a.aws, nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	c, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("aws config: %w", err)
	}
	a.aws = &c
	return c, nil
}

func (a *App) auditor(ctx context.Context) (campaign.Auditor, error) {
	if a.cfg.Audit.Driver != "sqs" {
		return audit.LogClient{}, nil
	}
	awsCfg, err := a.awsConfig(ctx, a.cfg.Audit.Region)
	if err != nil {
		return nil, err
	}
	return audit.NewSQSClient(sqs.NewFromConfig(awsCfg), a.cfg.Audit.SQSQueueURL), nil
}

// AdminHandler is the admin API. With redirects set it also serves
// GET /redirect/{shortLinkID}.
func (a *App) AdminHandler(redirects bool) http.Handler {
	h := api.NewHandlers(a.Campaigns, a.Tracking, api.NewHealthChecker(a.db, a.redis))
	h.SetSuppressions(a.Suppressions)
	opts := api.RouterOptions{
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		InternalToken:  a.cfg.Server.InternalToken,
	}
	if redirects {
		opts.Redirect = tracking.NewHandler(a.Tracking).HandleRedirect
	}
	return api.SetupRoutes(h, opts)
}

// RedirectHandler serves only the click redirect and a health probe.
func (a *App) RedirectHandler() http.Handler {
	return tracking.NewHandler(a.Tracking).Routes()
}

// StartScheduler restores stored schedules into the in-process scheduler
// and starts it. A remote scheduler needs nothing here.
func (a *App) StartScheduler(ctx context.Context) error {
	if a.local == nil {
		return nil
	}
	scheduled, err := a.stores.campaigns.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("list scheduled campaigns: %w", err)
	}
	now := time.Now()
	restored := 0
	for i := range scheduled {
		c := &scheduled[i]
		task, ok := a.Campaigns.StoredTask(c)
		if !ok {
			logger.Warn("[app] stored schedule cannot be rebuilt", "campaign_id", c.ID)
			continue
		}
		if task.Type == domain.TaskOneTime && task.RunAt.Before(now) {
			logger.Warn("[app] one-time task missed while no scheduler ran",
				"campaign_id", c.ID, "task_id", task.ID, "run_at", task.RunAt)
			continue
		}
		if err := a.local.Restore(task); err != nil {
			logger.Warn("[app] restore task failed", "campaign_id", c.ID, "task_id", task.ID, "error", err)
			continue
		}
		restored++
	}
	a.local.Start()
	logger.Info("[app] local scheduler started", "restored", restored, "stored", len(scheduled))
	return nil
}

// NewWorker builds a send worker on the app's queue.
func (a *App) NewWorker() *worker.SendWorker {
	return worker.NewSendWorker(a.queue, a.Campaigns, a.locker, a.cfg.Queue.Workers, 0)
}

// NewEngagementConsumer builds the SQS reply/open consumer, or returns nil
// when no queue is configured.
func (a *App) NewEngagementConsumer(ctx context.Context) (*tracking.Consumer, error) {
	url := a.cfg.Tracking.EngagementQueueURL
	if url == "" {
		return nil, nil
	}
	awsCfg, err := a.awsConfig(ctx, a.cfg.Audit.Region)
	if err != nil {
		return nil, err
	}
	return tracking.NewConsumer(sqs.NewFromConfig(awsCfg), url, a.Campaigns), nil
}

// Memory returns the in-memory store, or nil when Postgres backs the app.
func (a *App) Memory() *memory.Store { return a.stores.memory }

// Close releases every backend. Safe on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.local != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		a.local.Stop(ctx)
		cancel()
	}
	if a.queue != nil {
		errs = append(errs, a.queue.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
