// Package digitalocean wraps the DigitalOcean API behind the small
// surface the provisioner needs, with uniform error classification
// and a shared retry envelope.
package digitalocean

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/digitalocean/godo"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/cedros/claw-spawn/internal/metrics"
	"github.com/cedros/claw-spawn/internal/model"
)

// Kind classifies an API failure. Callers branch on the kind, never
// on message text.
type Kind string

const (
	KindRequestFailed   Kind = "request_failed"
	KindCreationFailed  Kind = "creation_failed"
	KindNotFound        Kind = "not_found"
	KindRateLimited     Kind = "rate_limited"
	KindInvalidResponse Kind = "invalid_response"
	KindInvalidConfig   Kind = "invalid_config"
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func IsRateLimited(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindRateLimited
}

func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound
}

// KindOf extracts the classification, KindRequestFailed for anything
// unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindRequestFailed
}

// CreateRequest carries the caller-chosen droplet parameters. The
// remaining creation knobs are fixed policy: monitoring on, IPv6 off,
// backups off.
type CreateRequest struct {
	Name     string
	Region   string
	Size     string
	Image    string
	UserData string
	Tags     []string
}

const (
	requestTimeout  = 30 * time.Second
	connectTimeout  = 10 * time.Second
	idleConnTimeout = 90 * time.Second
)

// Transport failures and 500/502/503 get one attempt per schedule
// entry, sleeping the entry's delay before the next. The schedule
// doubles without jitter; the last delay is never slept because the
// attempt it follows is final.
var defaultRetryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Client is stateless and safe for concurrent use.
type Client struct {
	droplets    godo.DropletsService
	actions     godo.DropletActionsService
	log         *zap.Logger
	metrics     *metrics.Metrics
	retryDelays []time.Duration
}

// New builds a client authenticating with the given API token. godo's
// built-in retryer stays off; the envelope here decides what retries.
func New(token string, log *zap.Logger, m *metrics.Metrics, opts ...godo.ClientOpt) (*Client, error) {
	if token == "" {
		return nil, &Error{Kind: KindInvalidConfig, Message: "invalid client config: api token is empty"}
	}
	base := &http.Client{
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			DialContext:     (&net.Dialer{Timeout: connectTimeout}).DialContext,
			IdleConnTimeout: idleConnTimeout,
		},
	}
	authed := oauth2.NewClient(
		context.WithValue(context.Background(), oauth2.HTTPClient, base),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	// oauth2.NewClient keeps only the transport of the base client;
	// the overall deadline has to be reapplied.
	authed.Timeout = requestTimeout

	gc, err := godo.New(authed, opts...)
	if err != nil {
		return nil, &Error{Kind: KindInvalidConfig, Message: fmt.Sprintf("invalid client config: %v", err)}
	}
	return &Client{
		droplets:    gc.Droplets,
		actions:     gc.DropletActions,
		log:         log,
		metrics:     m,
		retryDelays: defaultRetryDelays,
	}, nil
}

func (c *Client) CreateDroplet(ctx context.Context, req CreateRequest) (droplet *model.Droplet, err error) {
	defer c.instrument("create", time.Now(), &err)

	var created *godo.Droplet
	err = c.withRetry(ctx, "create", func() error {
		var callErr error
		created, _, callErr = c.droplets.Create(ctx, &godo.DropletCreateRequest{
			Name:       req.Name,
			Region:     req.Region,
			Size:       req.Size,
			Image:      godo.DropletCreateImage{Slug: req.Image},
			UserData:   req.UserData,
			Tags:       req.Tags,
			Monitoring: true,
			IPv6:       false,
			Backups:    false,
		})
		return callErr
	})
	if err != nil {
		return nil, classifyCreate(err)
	}
	if created == nil {
		return nil, &Error{Kind: KindInvalidResponse, Message: "invalid response: create returned no droplet"}
	}
	return fromGodo(created), nil
}

func (c *Client) GetDroplet(ctx context.Context, dropletID int64) (droplet *model.Droplet, err error) {
	defer c.instrument("get", time.Now(), &err)

	var fetched *godo.Droplet
	err = c.withRetry(ctx, "get", func() error {
		var callErr error
		fetched, _, callErr = c.droplets.Get(ctx, int(dropletID))
		return callErr
	})
	if err != nil {
		return nil, classifyDroplet(err, dropletID)
	}
	if fetched == nil {
		return nil, &Error{Kind: KindInvalidResponse, Message: "invalid response: get returned no droplet"}
	}
	return fromGodo(fetched), nil
}

func (c *Client) DestroyDroplet(ctx context.Context, dropletID int64) (err error) {
	defer c.instrument("destroy", time.Now(), &err)

	err = c.withRetry(ctx, "destroy", func() error {
		_, callErr := c.droplets.Delete(ctx, int(dropletID))
		return callErr
	})
	if err != nil {
		return classifyDroplet(err, dropletID)
	}
	return nil
}

func (c *Client) ShutdownDroplet(ctx context.Context, dropletID int64) (err error) {
	defer c.instrument("shutdown", time.Now(), &err)

	err = c.withRetry(ctx, "shutdown", func() error {
		_, _, callErr := c.actions.Shutdown(ctx, int(dropletID))
		return callErr
	})
	if err != nil {
		return classifyDroplet(err, dropletID)
	}
	return nil
}

func (c *Client) RebootDroplet(ctx context.Context, dropletID int64) (err error) {
	defer c.instrument("reboot", time.Now(), &err)

	err = c.withRetry(ctx, "reboot", func() error {
		_, _, callErr := c.actions.Reboot(ctx, int(dropletID))
		return callErr
	})
	if err != nil {
		return classifyDroplet(err, dropletID)
	}
	return nil
}

// withRetry runs fn once per schedule entry, sleeping between
// attempts on retryable failures. Terminal statuses (429, 404, other
// 4xx) return on the first observation.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt >= len(c.retryDelays)-1 {
			return lastErr
		}
		delay := c.retryDelays[attempt]
		c.log.Warn("retrying DigitalOcean request",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func retryable(err error) bool {
	switch statusOf(err) {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	case 0:
		// No status at all means the transport failed before a
		// response arrived.
		return true
	}
	return false
}

func statusOf(err error) int {
	var er *godo.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return er.Response.StatusCode
	}
	return 0
}

func classifyCreate(err error) *Error {
	switch statusOf(err) {
	case http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Message: "rate limited"}
	case 0:
		return &Error{Kind: KindRequestFailed, Message: fmt.Sprintf("api request failed: %v", err)}
	}
	return &Error{Kind: KindCreationFailed, Message: fmt.Sprintf("droplet creation failed: %v", err)}
}

func classifyDroplet(err error, dropletID int64) *Error {
	switch statusOf(err) {
	case http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Message: "rate limited"}
	case http.StatusNotFound:
		return &Error{Kind: KindNotFound, Message: fmt.Sprintf("droplet %d not found", dropletID)}
	}
	return &Error{Kind: KindRequestFailed, Message: fmt.Sprintf("api request failed: %v", err)}
}

func (c *Client) instrument(op string, start time.Time, errp *error) {
	outcome := "ok"
	if *errp != nil {
		outcome = string(KindOf(*errp))
	}
	c.metrics.DropletRequests.WithLabelValues(op, outcome).Inc()
	c.metrics.DropletRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func fromGodo(d *godo.Droplet) *model.Droplet {
	droplet := &model.Droplet{
		ID:        int64(d.ID),
		Name:      d.Name,
		Size:      d.SizeSlug,
		Status:    model.DropletStatusFromRemote(d.Status),
		IPAddress: publicIPv4(d),
		CreatedAt: time.Now().UTC(),
	}
	if d.Region != nil {
		droplet.Region = d.Region.Slug
	}
	if d.Image != nil {
		droplet.Image = d.Image.Slug
	}
	return droplet
}

// publicIPv4 selects the address workers are reachable on: a network
// tagged public wins over anything else; with no v4 networks at all
// the address is absent. Fresh droplets report empty networks until
// the machine boots.
func publicIPv4(d *godo.Droplet) *string {
	if ip, err := d.PublicIPv4(); err == nil && ip != "" {
		return &ip
	}
	if d.Networks == nil || len(d.Networks.V4) == 0 {
		return nil
	}
	ip := d.Networks.V4[0].IPAddress
	return &ip
}
