package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRobotsChecker(t *testing.T) {
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&fetches, 1)
		fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
	}))
	defer srv.Close()

	checker := NewRobotsChecker("paperfetch-test", 5*time.Second)
	ctx := context.Background()

	assert.True(t, checker.Allowed(ctx, srv.URL+"/scholar?q=x"))
	assert.False(t, checker.Allowed(ctx, srv.URL+"/private/paper.pdf"))

	// One robots.txt fetch per host, cached afterwards.
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
}

func TestRobotsChecker_FetchFailureDefaultsToAllowed(t *testing.T) {
	checker := NewRobotsChecker("paperfetch-test", time.Second)
	assert.True(t, checker.Allowed(context.Background(), "http://127.0.0.1:1/anything"))
}
