// ABOUTME: Resolves a descriptor location to a readable stream.
// ABOUTME: Accepts http(s) URLs, file URLs and plain filesystem paths.

package wsdl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// Open returns a reader for location. The caller must close it.
func Open(ctx context.Context, client *http.Client, location string) (io.ReadCloser, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: empty location", ErrDescriptor)
	}

	u, err := url.Parse(location)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return openURL(ctx, client, location)
		case "file":
			return openFile(u.Path)
		}
	}
	// Anything else, including Windows drive letters parsed as schemes, is a path.
	return openFile(location)
}

func openURL(ctx context.Context, client *http.Client, location string) (io.ReadCloser, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDescriptor, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", ErrDescriptor, location, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: fetching %s: unexpected status %s", ErrDescriptor, location, resp.Status)
	}
	return resp.Body, nil
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDescriptor, err)
	}
	return f, nil
}
