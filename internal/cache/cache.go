package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/dkoval/paperfetch/internal/model"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key generates a cache key for a record's search results on one backend.
func Key(signature, backendID string) string {
	hash := sha256.Sum256([]byte(signature + "|" + backendID))
	return "paperfetch:v1:" + hex.EncodeToString(hash[:])
}

// Results wraps a Cache with typed access to candidate lists. Empty lists are
// cached too, so a repeated miss does not re-hit the backend within the TTL.
type Results struct {
	cache Cache
	ttl   time.Duration
}

// NewResults creates a typed results cache on top of c.
func NewResults(c Cache, ttl time.Duration) *Results {
	return &Results{cache: c, ttl: ttl}
}

type resultsEntry struct {
	Candidates []model.Candidate `json:"candidates"`
}

// Get returns the cached candidate list for (signature, backendID), if any.
func (r *Results) Get(signature, backendID string) ([]model.Candidate, bool) {
	if r == nil || r.cache == nil {
		return nil, false
	}
	data, found := r.cache.Get(Key(signature, backendID))
	if !found {
		return nil, false
	}
	var entry resultsEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	return entry.Candidates, true
}

// Put stores the candidate list for (signature, backendID).
func (r *Results) Put(signature, backendID string, candidates []model.Candidate) error {
	if r == nil || r.cache == nil {
		return nil
	}
	data, err := json.Marshal(resultsEntry{Candidates: candidates})
	if err != nil {
		return err
	}
	return r.cache.Set(Key(signature, backendID), data, r.ttl)
}
