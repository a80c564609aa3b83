// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

package talker_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smoothtalker/smoothtalker/lib/testutil"
	"github.com/smoothtalker/smoothtalker/talker"
)

func TestHTTPAvatarFetcher(t *testing.T) {
	image := []byte{0x89, 'P', 'N', 'G'}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(image)
	}))
	t.Cleanup(server.Close)

	fetcher := &talker.HTTPAvatarFetcher{Client: server.Client()}
	data, err := fetcher.FetchAvatar(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchAvatar: %v", err)
	}
	if !bytes.Equal(data, image) {
		t.Errorf("data = %v, want %v", data, image)
	}
}

func TestHTTPAvatarFetcherRejectsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	fetcher := &talker.HTTPAvatarFetcher{Client: server.Client()}
	if _, err := fetcher.FetchAvatar(context.Background(), server.URL); err == nil {
		t.Fatal("expected error for 404")
	}
}

// countingFetcher records fetch URLs and serves fixed bytes.
type countingFetcher struct {
	mu    sync.Mutex
	urls  []string
	total atomic.Int32
}

func (f *countingFetcher) FetchAvatar(ctx context.Context, url string) ([]byte, error) {
	f.total.Add(1)
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	return []byte("img"), nil
}

func TestAvatarFetchedOncePerUser(t *testing.T) {
	fetcher := &countingFetcher{}
	h := newSessionHarness(t, func(cfg *talker.SessionConfig) {
		cfg.Avatars = fetcher
	})
	h.connect(t)

	h.server.send(t, `{"type":"users","users":[{"id":9,"name":"ada","email":"ada@example.com"}],"id":"ev-1"}`)
	testutil.RequireReceive(t, h.obs.rosterUpdates, waitTimeout, "roster update")

	// The fetch completes asynchronously and redelivers the user with
	// image bytes attached.
	updated := testutil.RequireReceive(t, h.obs.userUpdates, waitTimeout, "avatar delivery")
	if updated.ID != 9 || string(updated.Avatar) != "img" {
		t.Fatalf("updated = %+v", updated)
	}

	// Further events for the same user must not refetch.
	h.server.send(t, `{"type":"join","user":{"id":9,"name":"ada","email":"ada@example.com"},"time":1700000001,"id":"ev-2"}`)
	testutil.RequireReceive(t, h.obs.userUpdates, waitTimeout, "join update")
	testutil.RequireNoReceive(t, h.obs.errs, 100*time.Millisecond, "unexpected error")

	if got := fetcher.total.Load(); got != 1 {
		t.Errorf("fetch count = %d, want 1", got)
	}
}
