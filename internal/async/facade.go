package async

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/mindcache/mindcache/internal/decay"
	"github.com/mindcache/mindcache/internal/logging"
	"github.com/mindcache/mindcache/internal/memory"
	"github.com/mindcache/mindcache/internal/model"
	"github.com/mindcache/mindcache/internal/session"
	"github.com/mindcache/mindcache/internal/vector"
)

var log = logging.GetLogger("async")

const defaultPoolSize = 8

// Facade offers the Memory/Session/Decay services as futures,
// dispatched onto a bounded worker pool so callers never block on
// submission.
type Facade struct {
	mem    *memory.Service
	sess   *session.Service
	decayE *decay.Engine
	sem    *semaphore.Weighted
}

// New builds an async façade over the three core services, bounding
// concurrent in-flight operations to poolSize (defaultPoolSize if <= 0).
func New(mem *memory.Service, sess *session.Service, decayE *decay.Engine, poolSize int) *Facade {
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	return &Facade{mem: mem, sess: sess, decayE: decayE, sem: semaphore.NewWeighted(int64(poolSize))}
}

// submit dispatches fn onto the worker pool and returns a future for
// its result. The semaphore acquire happens inside the spawned
// goroutine, so Submit itself never blocks the caller; once acquired,
// cancelling ctx does not abort fn once it has started running.
func submit[T any](f *Facade, ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	fut := newFuture[T]()
	go func() {
		if err := f.sem.Acquire(ctx, 1); err != nil {
			log.Warn("async task dropped before running", "error", err)
			var zero T
			fut.complete(zero, err)
			return
		}
		defer f.sem.Release(1)
		val, err := fn(context.WithoutCancel(ctx))
		fut.complete(val, err)
	}()
	return fut
}

// Save offloads memory.Service.Save.
func (f *Facade) Save(ctx context.Context, m model.Memory) *Future[string] {
	return submit(f, ctx, func(ctx context.Context) (string, error) {
		return f.mem.Save(ctx, m)
	})
}

// SaveBatch offloads memory.Service.SaveBatch.
func (f *Facade) SaveBatch(ctx context.Context, memories []model.Memory, failOnError bool) *Future[*memory.BatchResult] {
	return submit(f, ctx, func(ctx context.Context) (*memory.BatchResult, error) {
		return f.mem.SaveBatch(ctx, memories, failOnError)
	})
}

// Recall offloads memory.Service.Recall.
func (f *Facade) Recall(ctx context.Context, filter model.Filter) *Future[*model.PaginatedResponse] {
	return submit(f, ctx, func(ctx context.Context) (*model.PaginatedResponse, error) {
		return f.mem.Recall(ctx, filter)
	})
}

// Get offloads memory.Service.Get.
func (f *Facade) Get(ctx context.Context, id string) *Future[*model.Memory] {
	return submit(f, ctx, func(ctx context.Context) (*model.Memory, error) {
		return f.mem.Get(ctx, id)
	})
}

// UpdateMemory offloads memory.Service.Update.
func (f *Facade) UpdateMemory(ctx context.Context, id string, patch model.MemoryUpdate) *Future[*model.Memory] {
	return submit(f, ctx, func(ctx context.Context) (*model.Memory, error) {
		return f.mem.Update(ctx, id, patch)
	})
}

// DeleteMemory offloads memory.Service.Delete.
func (f *Facade) DeleteMemory(ctx context.Context, id string) *Future[bool] {
	return submit(f, ctx, func(ctx context.Context) (bool, error) {
		return f.mem.Delete(ctx, id)
	})
}

// Export offloads memory.Service.Export.
func (f *Facade) Export(ctx context.Context, userID string) *Future[[]model.Memory] {
	return submit(f, ctx, func(ctx context.Context) ([]model.Memory, error) {
		return f.mem.Export(ctx, userID)
	})
}

// Stats offloads memory.Service.Stats.
func (f *Facade) Stats(ctx context.Context, userID string) *Future[*memory.UserStats] {
	return submit(f, ctx, func(ctx context.Context) (*memory.UserStats, error) {
		return f.mem.Stats(ctx, userID)
	})
}

// SearchSimilar offloads memory.Service.SearchSimilar.
func (f *Facade) SearchSimilar(ctx context.Context, embedding []float32, embeddingModel string, k int) *Future[[]vector.SimilarityResult] {
	return submit(f, ctx, func(ctx context.Context) ([]vector.SimilarityResult, error) {
		return f.mem.SearchSimilar(ctx, embedding, embeddingModel, k)
	})
}

// CreateSession offloads session.Service.Create.
func (f *Facade) CreateSession(ctx context.Context, userID, name string) *Future[*model.Session] {
	return submit(f, ctx, func(ctx context.Context) (*model.Session, error) {
		return f.sess.Create(ctx, userID, name)
	})
}

// GenerateSummary offloads session.Service.GenerateSummary.
func (f *Facade) GenerateSummary(ctx context.Context, sessionID string) *Future[*model.SessionSummary] {
	return submit(f, ctx, func(ctx context.Context) (*model.SessionSummary, error) {
		return f.sess.GenerateSummary(ctx, sessionID)
	})
}

// CrossSessionSearch offloads session.Service.CrossSessionSearch.
func (f *Facade) CrossSessionSearch(ctx context.Context, userID string, keywords []string) *Future[[]model.Session] {
	return submit(f, ctx, func(ctx context.Context) ([]model.Session, error) {
		return f.sess.CrossSessionSearch(ctx, userID, keywords)
	})
}

// DeleteSession offloads session.Service.Delete.
func (f *Facade) DeleteSession(ctx context.Context, id string, deleteMemories bool) *Future[struct{}] {
	return submit(f, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, f.sess.Delete(ctx, id, deleteMemories)
	})
}

// SessionAnalytics offloads session.Service.Analytics.
func (f *Facade) SessionAnalytics(ctx context.Context, userID string) *Future[*session.Analytics] {
	return submit(f, ctx, func(ctx context.Context) (*session.Analytics, error) {
		return f.sess.Analytics(ctx, userID)
	})
}

// RunDecay offloads decay.Engine.Run.
func (f *Facade) RunDecay(ctx context.Context) *Future[*model.DecayStats] {
	return submit(f, ctx, func(ctx context.Context) (*model.DecayStats, error) {
		return f.decayE.Run(ctx)
	})
}

// DecayRecommendations offloads decay.Engine.GetRecommendations.
func (f *Facade) DecayRecommendations(ctx context.Context) *Future[*decay.Recommendations] {
	return submit(f, ctx, func(ctx context.Context) (*decay.Recommendations, error) {
		return f.decayE.GetRecommendations(ctx)
	})
}
