package counter

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"github.com/icholy/digest"
)

// Feed opens the long-lived event stream of one camera.
type Feed interface {
	Open(ctx context.Context, creds model.Credentials) (io.ReadCloser, error)
}

// HTTPFeed attaches to the camera event manager over HTTP, answering a
// digest challenge and falling back to basic auth.
type HTTPFeed struct {
	Scheme string
	Path   string
	// Port overrides the camera's HTTP port. Zero means the scheme default.
	Port   int
	Client *http.Client
}

// NewHTTPFeed builds a feed. The client has no timeout since the response
// body stays open for the life of the stream.
func NewHTTPFeed(scheme, path string) *HTTPFeed {
	if scheme == "" {
		scheme = "http"
	}
	return &HTTPFeed{Scheme: scheme, Path: path, Client: &http.Client{}}
}

func (f *HTTPFeed) url(creds model.Credentials) string {
	host := creds.IP
	if f.Port > 0 {
		host = net.JoinHostPort(creds.IP, strconv.Itoa(f.Port))
	}
	path := f.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return f.Scheme + "://" + host + path
}

// Open issues the subscription request. The caller owns the returned body.
// A digest challenge is answered through digest.Transport; any other 401 is
// retried with basic auth.
func (f *HTTPFeed) Open(ctx context.Context, creds model.Credentials) (io.ReadCloser, error) {
	target := f.url(creds)
	base := f.Client
	if base == nil {
		base = http.DefaultClient
	}

	resp, err := get(ctx, base, target, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		isDigest := wantsDigest(resp.Header)
		drain(resp)

		if isDigest {
			client := *base
			client.Transport = &digest.Transport{
				Username:  creds.Username,
				Password:  creds.Password,
				Transport: base.Transport,
			}
			resp, err = get(ctx, &client, target, nil)
		} else {
			resp, err = get(ctx, base, target, func(req *http.Request) {
				req.SetBasicAuth(creds.Username, creds.Password)
			})
		}
		if err != nil {
			return nil, err
		}
	}
	if resp.StatusCode != http.StatusOK {
		drain(resp)
		return nil, fmt.Errorf("event stream: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func get(ctx context.Context, client *http.Client, target string, auth func(*http.Request)) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if auth != nil {
		auth(req)
	}
	return client.Do(req)
}

func wantsDigest(h http.Header) bool {
	for _, v := range h.Values("WWW-Authenticate") {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(v)), "digest ") {
			return true
		}
	}
	return false
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
