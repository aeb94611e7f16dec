package transcoder

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/errs"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/model"
	"go.uber.org/zap"
)

// DefaultRTSPPort is used when a camera has no port configured.
const DefaultRTSPPort = 554

// candidatePaths are stream paths of common firmwares, most likely first.
var candidatePaths = []string{
	"/cam/realmonitor?channel=1&subtype=0", // Dahua / Imou
	"/Streaming/Channels/101",              // Hikvision
	"/live",
	"/stream1",
	"/h264",
}

// BuildCandidates returns candidate RTSP URLs for the credentials, in try order.
func BuildCandidates(c model.Credentials) []string {
	port := c.Port
	if port <= 0 {
		port = DefaultRTSPPort
	}
	host := net.JoinHostPort(c.IP, strconv.Itoa(port))
	out := make([]string, 0, len(candidatePaths))
	for _, p := range candidatePaths {
		u := url.URL{
			Scheme: "rtsp",
			User:   url.UserPassword(c.Username, c.Password),
			Host:   host,
		}
		out = append(out, u.String()+p)
	}
	return out
}

// Connection is the outcome of a successful connect.
type Connection struct {
	URL    string
	Reused bool
	Worker *Worker
}

// Resolver tries candidate URLs until one yields a first frame.
type Resolver struct {
	sup        *Supervisor
	timeout    time.Duration
	candidates func(model.Credentials) []string
	log        *zap.Logger
}

// NewResolver creates a resolver probing each candidate for up to timeout.
func NewResolver(sup *Supervisor, timeout time.Duration, log *zap.Logger) *Resolver {
	return &Resolver{sup: sup, timeout: timeout, candidates: BuildCandidates, log: log}
}

// WithCandidates overrides the candidate builder.
func (r *Resolver) WithCandidates(fn func(model.Credentials) []string) *Resolver {
	r.candidates = fn
	return r
}

// ConnectWithFallback reuses a live worker or probes candidates in order.
// On failure no worker is left registered.
func (r *Resolver) ConnectWithFallback(ctx context.Context, creds model.Credentials) (*Connection, error) {
	if !creds.HasAuth() {
		return nil, fmt.Errorf("camera %d: %w", creds.CameraID, errs.ErrMissingCredentials)
	}
	unlock := r.sup.lockCamera(creds.CameraID)
	defer unlock()

	if w := r.sup.alive(creds.CameraID); w != nil {
		return &Connection{URL: w.URL, Reused: true, Worker: w}, nil
	}

	candidates := r.candidates(creds)
	var last error
	for i, u := range candidates {
		if err := ctx.Err(); err != nil {
			last = err
			break
		}
		log := r.log.With(
			zap.Int("camera_id", creds.CameraID),
			zap.Int("candidate", i),
			zap.String("url", redact(u)))
		w, err := r.sup.probe(ctx, creds.CameraID, u, r.timeout)
		if err != nil {
			log.Info("candidate failed", zap.Error(err))
			last = err
			continue
		}
		log.Info("candidate connected")
		return &Connection{URL: u, Worker: w}, nil
	}
	return nil, &errs.ConnectError{CameraID: creds.CameraID, Tried: candidates, Last: last}
}
