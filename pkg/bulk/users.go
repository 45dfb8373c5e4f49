package bulk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/natserract/sailthru/pkg/sailthru"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultMaxGoroutines = 10

// UserSaver is the part of the Sailthru client the importer needs.
type UserSaver interface {
	SaveUser(ctx context.Context, user sailthru.UserParams) (sailthru.Value, error)
}

// Metrics tracks the outcome of an import
type Metrics struct {
	Succeeded int
	Failed    int
	mu        sync.Mutex
}

// AddSuccess increments the succeeded count
func (m *Metrics) AddSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Succeeded++
}

// AddFailure increments the failed count
func (m *Metrics) AddFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failed++
}

// Total returns the number of processed users
func (m *Metrics) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Succeeded + m.Failed
}

// Result is the outcome for one user, in input order.
type Result struct {
	ID       string
	Response sailthru.Value
	Err      error
}

// Importer saves users concurrently through a bounded worker pool
type Importer struct {
	client        UserSaver
	maxGoroutines int
	limiter       *rate.Limiter
	logger        *zap.Logger
}

// NewImporter creates a new importer; maxGoroutines <= 0 selects DefaultMaxGoroutines
func NewImporter(client UserSaver, maxGoroutines int, logger *zap.Logger) *Importer {
	if maxGoroutines <= 0 {
		maxGoroutines = DefaultMaxGoroutines
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		client:        client,
		maxGoroutines: maxGoroutines,
		logger:        logger,
	}
}

// WithRateLimit paces SaveUser calls to perSecond across all workers.
// perSecond <= 0 removes the limit.
func (i *Importer) WithRateLimit(perSecond float64) *Importer {
	if perSecond <= 0 {
		i.limiter = nil
		return i
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	i.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return i
}

// Import saves every user and returns per-user results. A failed user does
// not stop the others; the returned error is non-nil when any user failed.
func (i *Importer) Import(ctx context.Context, users []sailthru.UserParams) ([]Result, *Metrics, error) {
	startTime := time.Now()
	i.logger.Info("Starting user import",
		zap.Int("users", len(users)),
		zap.Int("max_goroutines", i.maxGoroutines))

	metrics := &Metrics{}
	results := make([]Result, len(users))

	p := pool.New().WithMaxGoroutines(i.maxGoroutines).WithErrors().WithContext(ctx)
	for idx, user := range users {
		p.Go(func(ctx context.Context) error {
			var (
				resp sailthru.Value
				err  error
			)
			if i.limiter != nil {
				err = i.limiter.Wait(ctx)
			}
			if err == nil {
				resp, err = i.client.SaveUser(ctx, user)
			}
			results[idx] = Result{ID: userID(user), Response: resp, Err: err}
			if err != nil {
				metrics.AddFailure()
				i.logger.Error("Failed to save user",
					zap.String("user_id", userID(user)),
					zap.Error(err))
				return fmt.Errorf("user %s: %w", userID(user), err)
			}
			metrics.AddSuccess()
			i.logger.Debug("Saved user", zap.String("user_id", userID(user)))
			return nil
		})
	}

	err := p.Wait()

	i.logger.Info("Completed user import",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("succeeded", metrics.Succeeded),
		zap.Int("failed", metrics.Failed))

	return results, metrics, err
}

func userID(u sailthru.UserParams) string {
	if u.ID != "" {
		return u.ID
	}
	if email := u.Keys["email"]; email != "" {
		return email
	}
	return "<unknown>"
}
