package handle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mindcache/mindcache/internal/model"
	"github.com/mindcache/mindcache/pkg/config"
)

const version = "1.0.0"

// Error codes returned by GetLastError, mirroring the error kinds in
// the error-handling design.
const (
	ErrCodeNone             = 0
	ErrCodeInvalidInput     = 1
	ErrCodeNotFound         = 2
	ErrCodeRateLimited      = 3
	ErrCodeQuotaExceeded    = 4
	ErrCodeDimensionMismatch = 5
	ErrCodeStorage          = 6
	ErrCodeInternal         = 7
)

func classify(err error) int {
	switch {
	case err == nil:
		return ErrCodeNone
	case errors.Is(err, model.ErrInvalidInput):
		return ErrCodeInvalidInput
	case errors.Is(err, model.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, model.ErrRateLimited):
		return ErrCodeRateLimited
	case errors.Is(err, model.ErrQuotaExceeded):
		return ErrCodeQuotaExceeded
	case errors.Is(err, model.ErrDimensionMismatch):
		return ErrCodeDimensionMismatch
	case errors.Is(err, model.ErrStorage):
		return ErrCodeStorage
	default:
		return ErrCodeInternal
	}
}

// Init parses configJSON into a config.Config, opens a fresh engine,
// and returns its handle, or 0 on failure.
func Init(configJSON string) int64 {
	cfg := config.DefaultConfig()
	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), cfg); err != nil {
			return 0
		}
	}
	if err := cfg.Validate(); err != nil {
		return 0
	}
	e, err := newEngine(cfg)
	if err != nil {
		return 0
	}
	return register(e)
}

// IsValid reports whether h refers to a live engine.
func IsValid(h int64) bool {
	_, ok := lookup(h)
	return ok
}

// Destroy closes and forgets the engine behind h.
func Destroy(h int64) {
	e, ok := unregister(h)
	if !ok {
		return
	}
	e.close()
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// Save persists a memory and returns its id, or "" on failure.
// A negative ttlHours means "no TTL".
func Save(h int64, user, session, content string, importance float32, ttlHours int, metadataJSON string) string {
	e, ok := lookup(h)
	if !ok {
		return ""
	}
	e.clearError()

	var metadata map[string]string
	if metadataJSON != "" {
		_ = json.Unmarshal([]byte(metadataJSON), &metadata)
	}

	m := model.Memory{
		UserID:     user,
		SessionID:  session,
		Content:    content,
		Importance: importance,
		Metadata:   metadata,
	}
	if ttlHours >= 0 {
		m.TTLHours = &ttlHours
	}

	id, err := e.mem.Save(context.Background(), m)
	if err != nil {
		e.setError(classify(err), err.Error())
		return ""
	}
	return id
}

// GetMemory returns a memory as JSON, or the literal "null" if absent.
func GetMemory(h int64, id string) string {
	e, ok := lookup(h)
	if !ok {
		return "null"
	}
	e.clearError()

	m, err := e.mem.Get(context.Background(), id)
	if err != nil {
		e.setError(classify(err), err.Error())
		return "null"
	}
	return toJSON(m)
}

// Recall runs a filter (JSON-encoded model.Filter) and returns the
// paginated response as JSON.
func Recall(h int64, filterJSON string) string {
	e, ok := lookup(h)
	if !ok {
		return "null"
	}
	e.clearError()

	var f model.Filter
	if err := json.Unmarshal([]byte(filterJSON), &f); err != nil {
		e.setError(ErrCodeInvalidInput, err.Error())
		return "null"
	}

	resp, err := e.mem.Recall(context.Background(), f)
	if err != nil {
		e.setError(classify(err), err.Error())
		return "null"
	}
	return toJSON(resp)
}

// Search keyword-searches a user's memories and returns a paginated
// JSON response.
func Search(h int64, user, query string, limit, offset int) string {
	e, ok := lookup(h)
	if !ok {
		return "null"
	}
	e.clearError()

	resp, err := e.mem.Recall(context.Background(), model.Filter{
		UserID: user,
		Limit:  limit,
		Offset: offset,
		Keywords: tokenizeQuery(query),
	})
	if err != nil {
		e.setError(classify(err), err.Error())
		return "null"
	}
	return toJSON(resp)
}

// SearchSimilar ranks memories by cosine similarity to a query
// embedding and returns a JSON array of similarity results.
func SearchSimilar(h int64, embeddingJSON, embeddingModel string, k int) string {
	e, ok := lookup(h)
	if !ok {
		return "null"
	}
	e.clearError()

	var embedding []float32
	if err := json.Unmarshal([]byte(embeddingJSON), &embedding); err != nil {
		e.setError(ErrCodeInvalidInput, err.Error())
		return "null"
	}

	results, err := e.mem.SearchSimilar(context.Background(), embedding, embeddingModel, k)
	if err != nil {
		e.setError(classify(err), err.Error())
		return "null"
	}
	return toJSON(results)
}

func tokenizeQuery(q string) []string {
	var out []string
	var cur []rune
	for _, r := range q {
		if r == ' ' || r == '\t' || r == '\n' {
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = nil
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

// UpdateMemory applies a JSON-encoded model.MemoryUpdate, returning
// true on success.
func UpdateMemory(h int64, id, updateJSON string) bool {
	e, ok := lookup(h)
	if !ok {
		return false
	}
	e.clearError()

	var patch model.MemoryUpdate
	if err := json.Unmarshal([]byte(updateJSON), &patch); err != nil {
		e.setError(ErrCodeInvalidInput, err.Error())
		return false
	}

	_, err := e.mem.Update(context.Background(), id, patch)
	if err != nil {
		e.setError(classify(err), err.Error())
		return false
	}
	return true
}

// DeleteMemory removes a memory by id.
func DeleteMemory(h int64, id string) bool {
	e, ok := lookup(h)
	if !ok {
		return false
	}
	e.clearError()

	ok2, err := e.mem.Delete(context.Background(), id)
	if err != nil {
		e.setError(classify(err), err.Error())
		return false
	}
	return ok2
}

// CreateSession creates a session and returns it as JSON, or "null"
// on failure.
func CreateSession(h int64, user, name string) string {
	e, ok := lookup(h)
	if !ok {
		return "null"
	}
	e.clearError()
	sess, err := e.sess.Create(context.Background(), user, name)
	if err != nil {
		e.setError(classify(err), err.Error())
		return "null"
	}
	return toJSON(sess)
}

// GenerateSummary (re)generates a session summary and returns it as
// JSON.
func GenerateSummary(h int64, sessionID string) string {
	e, ok := lookup(h)
	if !ok {
		return "null"
	}
	e.clearError()
	summary, err := e.sess.GenerateSummary(context.Background(), sessionID)
	if err != nil {
		e.setError(classify(err), err.Error())
		return "null"
	}
	return toJSON(summary)
}

// DeleteSession removes a session, optionally purging its memories.
func DeleteSession(h int64, id string, deleteMemories bool) bool {
	e, ok := lookup(h)
	if !ok {
		return false
	}
	e.clearError()
	if err := e.sess.Delete(context.Background(), id, deleteMemories); err != nil {
		e.setError(classify(err), err.Error())
		return false
	}
	return true
}

// RunDecay triggers a decay pass and returns the resulting
// DecayStats as JSON.
func RunDecay(h int64) string {
	e, ok := lookup(h)
	if !ok {
		return "null"
	}
	e.clearError()
	stats, err := e.decayE.Run(context.Background())
	if err != nil {
		e.setError(classify(err), err.Error())
		return "null"
	}
	return toJSON(stats)
}

// DecayRecommendations returns the engine's non-mutating
// recommendations report as JSON.
func DecayRecommendations(h int64) string {
	e, ok := lookup(h)
	if !ok {
		return "null"
	}
	e.clearError()
	rec, err := e.decayE.GetRecommendations(context.Background())
	if err != nil {
		e.setError(classify(err), err.Error())
		return "null"
	}
	return toJSON(rec)
}

// Version returns the ABI's semantic version string.
func Version() string { return version }

// GetLastError returns the error code recorded on handle h's last
// call, or ErrCodeNone if no engine is registered under h.
func GetLastError(h int64) int {
	e, ok := lookup(h)
	if !ok {
		return ErrCodeNone
	}
	return e.lastErrCode
}

// ErrorMessage returns the human-readable message for handle h's last
// error, or a canned message if code does not match it (callers
// should treat GetLastError/ErrorMessage as a pair read immediately
// after a failing call).
func ErrorMessage(h int64, code int) string {
	e, ok := lookup(h)
	if ok && e.lastErrCode == code && e.lastErrMsg != "" {
		return e.lastErrMsg
	}
	switch code {
	case ErrCodeNone:
		return "no error"
	case ErrCodeInvalidInput:
		return "invalid input"
	case ErrCodeNotFound:
		return "not found"
	case ErrCodeRateLimited:
		return "rate limit exceeded"
	case ErrCodeQuotaExceeded:
		return "quota exceeded"
	case ErrCodeDimensionMismatch:
		return "embedding dimension mismatch"
	case ErrCodeStorage:
		return "storage error"
	default:
		return fmt.Sprintf("unknown error code %d", code)
	}
}

// FreeString is a no-op: there is no cgo export boundary in this
// module, so Go's garbage collector already owns every string this
// package returns. Kept for call-site symmetry with embedders whose
// other language bindings do cross a real FFI boundary.
func FreeString(s string) {}
