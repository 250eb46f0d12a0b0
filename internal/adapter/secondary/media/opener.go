package media

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"calmsession/internal/domain"
	"calmsession/internal/logging"
)

// Opener implements domain.MediaOpener for local files, http(s) URLs and
// "virtual:" placeholders. A "duration" query parameter (e.g. ?duration=3m or
// ?duration=180) sets the stream length; otherwise DefaultDuration is used.
type Opener struct {
	DefaultDuration time.Duration
	Client          *http.Client
	now             func() time.Time
	log             logging.Logger
}

// NewOpener creates an opener whose streams last defaultDuration unless the
// URL says otherwise.
func NewOpener(defaultDuration time.Duration) *Opener {
	return &Opener{
		DefaultDuration: defaultDuration,
		Client:          &http.Client{Timeout: 10 * time.Second},
		now:             time.Now,
		log:             logging.For("media"),
	}
}

func (o *Opener) Open(ctx context.Context, raw string, loop bool) (domain.MediaSource, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}
	switch u.Scheme {
	case "", "file":
		if _, err := os.Stat(u.Path); err != nil {
			return nil, err
		}
	case "http", "https":
		if err := o.probe(ctx, u); err != nil {
			return nil, err
		}
	case "virtual":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	d, err := parseDuration(u.Query().Get("duration"), o.DefaultDuration)
	if err != nil {
		return nil, err
	}
	o.log.Debugf("opened %s (%s, loop=%t)", raw, d, loop)
	return newVirtualSource(raw, d, loop, o.now), nil
}

func (o *Opener) probe(ctx context.Context, u *url.URL) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("HEAD %s: %s", u.Redacted(), resp.Status)
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", s, err)
	}
	return d, nil
}
