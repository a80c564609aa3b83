// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

package talker

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Avatar fetch defaults. Size is the pixel edge of the requested
// image; the default type selects the generated fallback for
// addresses with no gravatar.
const (
	defaultAvatarSize = 48
	defaultAvatarType = "wavatar"
)

// AvatarFetcher loads avatar images for roster entries. The session
// issues at most one request per user and delivers the bytes
// asynchronously via OnUserUpdated.
type AvatarFetcher interface {
	FetchAvatar(ctx context.Context, url string) ([]byte, error)
}

// HTTPAvatarFetcher fetches avatars over plain HTTP GETs.
type HTTPAvatarFetcher struct {
	// Client is used for requests. If nil, http.DefaultClient.
	Client *http.Client
}

// FetchAvatar retrieves the image bytes at url.
func (f *HTTPAvatarFetcher) FetchAvatar(ctx context.Context, url string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("talker: avatar request: %w", err)
	}
	response, err := client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("talker: avatar fetch %s: %w", url, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("talker: avatar fetch %s: unexpected status %d", url, response.StatusCode)
	}
	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("talker: reading avatar body: %w", err)
	}
	return data, nil
}
