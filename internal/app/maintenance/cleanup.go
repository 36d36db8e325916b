package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/burnnote/internal/auth"
	"github.com/charlesng35/burnnote/internal/monitoring"
	"github.com/charlesng35/burnnote/internal/services"
	"github.com/charlesng35/burnnote/pkg/logger"
)

// Job names, used for schedules, metrics labels and the readiness report.
const (
	JobCredentialCleanup = "credential_cleanup"
	JobSecretRedaction   = "secret_redaction"
	JobInactiveUsers     = "inactive_users"
	JobAuditRetention    = "audit_retention"
	JobCachePurge        = "cache_purge"
)

const (
	defaultAuditRetentionDays = 90
	defaultJobTimeout         = 5 * time.Minute
)

var defaultSchedules = map[string]string{
	JobCredentialCleanup: "@hourly",
	JobSecretRedaction:   "@every 15m",
	JobInactiveUsers:     "@daily",
	JobAuditRetention:    "@daily",
	JobCachePurge:        "@hourly",
}

// ExpiringStore is a cache that can drop its expired entries.
type ExpiringStore interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Dependencies lists the services the maintenance jobs act on. A nil
// dependency disables the jobs that need it.
type Dependencies struct {
	Tokens  *iauth.TokenService
	OTP     *iauth.OTPService
	Secrets *services.SecretService
	Users   *services.UserService
	Audit   *services.AuditService
	Cache   ExpiringStore
	Tracker *monitoring.JobTracker
}

// Cleaner schedules the periodic purges that keep expired credentials and
// dead secret material out of the database.
type Cleaner struct {
	deps        Dependencies
	cron        *cron.Cron
	log         *zap.Logger
	schedules   map[string]string
	retention   int
	inactiveAge time.Duration
	timeout     time.Duration
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSchedule overrides the cron specification of a job.
func WithSchedule(job, spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedules[job] = spec
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithInactiveUserAge sets how long an account may go without logging in.
func WithInactiveUserAge(age time.Duration) Option {
	return func(cleaner *Cleaner) {
		if age > 0 {
			cleaner.inactiveAge = age
		}
	}
}

// NewCleaner constructs a Cleaner with the default schedules.
func NewCleaner(deps Dependencies, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		deps:        deps,
		log:         logger.WithModule("maintenance"),
		schedules:   make(map[string]string, len(defaultSchedules)),
		retention:   defaultAuditRetentionDays,
		inactiveAge: services.DefaultInactiveUserAge,
		timeout:     defaultJobTimeout,
	}
	for job, spec := range defaultSchedules {
		cleaner.schedules[job] = spec
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

type job struct {
	name string
	run  func(ctx context.Context) (int64, error)
}

func (c *Cleaner) jobs() []job {
	var jobs []job

	if c.deps.Tokens != nil || c.deps.OTP != nil {
		jobs = append(jobs, job{name: JobCredentialCleanup, run: c.cleanupCredentials})
	}
	if c.deps.Secrets != nil {
		jobs = append(jobs, job{name: JobSecretRedaction, run: c.deps.Secrets.RedactExpired})
	}
	if c.deps.Users != nil {
		jobs = append(jobs, job{name: JobInactiveUsers, run: func(ctx context.Context) (int64, error) {
			return c.deps.Users.CleanupInactive(ctx, c.inactiveAge)
		}})
	}
	if c.deps.Audit != nil && c.retention > 0 {
		jobs = append(jobs, job{name: JobAuditRetention, run: func(ctx context.Context) (int64, error) {
			return c.deps.Audit.CleanupOlderThan(ctx, c.retention)
		}})
	}
	if c.deps.Cache != nil {
		jobs = append(jobs, job{name: JobCachePurge, run: c.deps.Cache.PurgeExpired})
	}
	return jobs
}

func (c *Cleaner) cleanupCredentials(ctx context.Context) (int64, error) {
	var (
		total int64
		errs  error
	)
	if c.deps.Tokens != nil {
		removed, err := c.deps.Tokens.CleanupExpired(ctx)
		total += removed
		errs = multierr.Append(errs, err)
	}
	if c.deps.OTP != nil {
		removed, err := c.deps.OTP.CleanupExpired(ctx)
		total += removed
		errs = multierr.Append(errs, err)
	}
	return total, errs
}

// Start registers the enabled jobs with the scheduler and launches it.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		j := j
		spec := c.schedules[j.name]
		if _, err := c.cron.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			_ = c.execute(ctx, j)
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s (%q): %w", j.name, spec, err)
		}
		c.deps.Tracker.Register(j.name)
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every enabled job sequentially and aggregates their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		errs = multierr.Append(errs, c.execute(ctx, j))
	}
	return errs
}

// RunJob executes a single job by name and returns the number of affected rows.
func (c *Cleaner) RunJob(ctx context.Context, name string) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, j := range c.jobs() {
		if j.name == name {
			affected, err := c.timed(ctx, j)
			return affected, err
		}
	}
	return 0, fmt.Errorf("maintenance: job %q is not configured", name)
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	_, err := c.timed(ctx, j)
	return err
}

func (c *Cleaner) timed(ctx context.Context, j job) (int64, error) {
	start := time.Now()
	affected, err := j.run(ctx)
	duration := time.Since(start)

	if err != nil {
		c.deps.Tracker.Record(j.name, "failure", err.Error(), duration)
		c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
		return affected, fmt.Errorf("%s: %w", j.name, err)
	}

	c.deps.Tracker.Record(j.name, "success", "", duration)
	if affected > 0 {
		c.log.Info("maintenance job completed",
			zap.String("job", j.name),
			zap.Int64("affected", affected),
			zap.Duration("duration", duration),
		)
	}
	return affected, nil
}
