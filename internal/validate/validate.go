// Package validate is the Request Validator: a token-bucket rate
// limiter, struct validation against the data model's invariants, and
// quota/batch-size enforcement. Memory save, batch save, recall and
// update, and session creation pass through it before touching
// storage; the other service operations do not. Built on golang.org/x/time/rate for the
// token bucket and go-playground/validator/v10 for struct-tag
// validation.
package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/mindcache/mindcache/internal/logging"
	"github.com/mindcache/mindcache/internal/model"
)

var log = logging.GetLogger("validate")

// Config mirrors the Configuration record's validator-relevant fields.
type Config struct {
	EnableRequestLimits bool
	MaxRequestsPerMinute int
	MaxBatchSize         int
	MaxMemoriesPerUser   int
	ImportanceThreshold  float32
}

// Validator is a request validator. Each Validator built by New owns
// its own token bucket, shared only by the services handed that same
// Validator; the bucket is the only mutable state here.
type Validator struct {
	cfg     Config
	limiter *rate.Limiter
	v       *validator.Validate
}

// memoryInput is the struct-tag-annotated shape validator/v10 checks
// on save, mirroring the Memory invariants of the data model.
type memoryInput struct {
	UserID     string  `validate:"required,max=255"`
	SessionID  string  `validate:"required,max=255"`
	Content    string  `validate:"required,min=1,max=1048576"`
	Importance float32 `validate:"gte=0,lte=1"`
	TTLHours   *int    `validate:"omitempty,gte=1,lte=8760"`
}

// New builds a validator with a token bucket sized to
// MaxRequestsPerMinute (capacity) refilling at the same rate,
// converted to a per-second rate.Limit.
func New(cfg Config) *Validator {
	if cfg.MaxRequestsPerMinute <= 0 {
		cfg.MaxRequestsPerMinute = 120
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 100
	}
	ratePerSecond := rate.Limit(float64(cfg.MaxRequestsPerMinute) / 60.0)
	return &Validator{
		cfg:     cfg,
		limiter: rate.NewLimiter(ratePerSecond, cfg.MaxRequestsPerMinute),
		v:       validator.New(),
	}
}

// TryAcquire debits n tokens from the global bucket, returning
// ErrRateLimited if fewer than n remain. A disabled validator always
// allows.
func (vl *Validator) TryAcquire(n int) error {
	if !vl.cfg.EnableRequestLimits {
		return nil
	}
	if !vl.limiter.AllowN(time.Now(), n) {
		return fmt.Errorf("%w: requested %d tokens", model.ErrRateLimited, n)
	}
	return nil
}

// BatchTokenCost is max(1, ceil(n/10)), the debit a batch save makes
// against the rate limiter.
func BatchTokenCost(n int) int {
	if n <= 0 {
		return 1
	}
	cost := (n + 9) / 10
	if cost < 1 {
		return 1
	}
	return cost
}

// ValidateMemory checks a memory's fields against the data model's
// invariants before it reaches storage.
func (vl *Validator) ValidateMemory(m *model.Memory) error {
	in := memoryInput{
		UserID:     strings.TrimSpace(m.UserID),
		SessionID:  strings.TrimSpace(m.SessionID),
		Content:    m.Content,
		Importance: m.Importance,
		TTLHours:   m.TTLHours,
	}
	if err := vl.v.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	metaSize := 0
	for k, v := range m.Metadata {
		metaSize += len(k) + len(v)
	}
	if metaSize > 10*1024 {
		return fmt.Errorf("%w: metadata exceeds 10KB", model.ErrInvalidInput)
	}
	if m.IsCompressed && len(m.CompressedFrom) == 0 {
		return fmt.Errorf("%w: is_compressed requires a non-empty compressed_from", model.ErrInvalidInput)
	}
	return nil
}

// ValidateFilter checks a recall filter's numeric bounds.
func (vl *Validator) ValidateFilter(f *model.Filter) error {
	if f.Limit < 0 || f.Limit > 1000 {
		return fmt.Errorf("%w: limit must be in [1,1000]", model.ErrInvalidInput)
	}
	if f.Offset < 0 || f.Offset > 1_000_000 {
		return fmt.Errorf("%w: offset must be in [0,1000000]", model.ErrInvalidInput)
	}
	if f.MinImportance != nil && (*f.MinImportance < 0 || *f.MinImportance > 1) {
		return fmt.Errorf("%w: min_importance must be in [0,1]", model.ErrInvalidInput)
	}
	return nil
}

// CheckBatchSize enforces max_batch_size on a batch save request.
func (vl *Validator) CheckBatchSize(n int) error {
	if n > vl.cfg.MaxBatchSize {
		return fmt.Errorf("%w: batch size %d exceeds max %d", model.ErrInvalidInput, n, vl.cfg.MaxBatchSize)
	}
	return nil
}

// CheckQuota enforces max_memories_per_user on save.
func (vl *Validator) CheckQuota(currentCount int) error {
	if vl.cfg.MaxMemoriesPerUser > 0 && currentCount >= vl.cfg.MaxMemoriesPerUser {
		return fmt.Errorf("%w: user has %d memories, limit is %d", model.ErrQuotaExceeded, currentCount, vl.cfg.MaxMemoriesPerUser)
	}
	return nil
}

// Disable turns off rate limiting entirely, e.g. for benchmarks.
func (vl *Validator) Disable() { vl.cfg.EnableRequestLimits = false }

// Enable turns rate limiting back on.
func (vl *Validator) Enable() { vl.cfg.EnableRequestLimits = true }

// Enabled reports whether request limits are currently enforced.
func (vl *Validator) Enabled() bool { return vl.cfg.EnableRequestLimits }
