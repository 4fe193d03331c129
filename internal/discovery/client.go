package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"gatehouse/pkg/httpclient"
)

var (
	// ErrUnreachable means no registry address answered (network error or 5xx).
	ErrUnreachable = errors.New("discovery: registry unreachable")
	// ErrRejected means a registry refused the registration (4xx).
	ErrRejected = errors.New("discovery: registration rejected")
)

// Descriptor identifies this gateway instance to the registry.
type Descriptor struct {
	ID          string   `json:"id"`
	ServiceType string   `json:"serviceType"`
	Address     string   `json:"address"`
	HealthURI   string   `json:"healthCheckUri"`
	Tags        []string `json:"tags,omitempty"`
}

// Registry accepts service registrations.
type Registry interface {
	Register(ctx context.Context, d Descriptor) error
}

// Client registers against one or more registry addresses, tried in order.
// Requests carry "Authorization: SecureToken <secret>".
type Client struct {
	log     *zap.SugaredLogger
	servers []*httpclient.Client
}

func NewClient(log *zap.SugaredLogger, addresses []string, secureToken string, timeout time.Duration) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Client{log: log}
	opts := []httpclient.Option{httpclient.WithAuthorization("SecureToken " + secureToken)}
	if timeout > 0 {
		opts = append(opts, httpclient.WithTimeout(timeout))
	}
	for _, a := range addresses {
		c.servers = append(c.servers, httpclient.New(a, opts...))
	}
	return c
}

// Register creates the instance, or refreshes it when the registry reports a
// conflict. The first address that answers decides; a 4xx answer is final.
func (c *Client) Register(ctx context.Context, d Descriptor) error {
	if len(c.servers) == 0 {
		return fmt.Errorf("%w: no registry addresses configured", ErrUnreachable)
	}
	var errs []error
	for _, s := range c.servers {
		err := registerAt(ctx, s, d)
		if err == nil {
			return nil
		}
		var se *httpclient.StatusError
		if errors.As(err, &se) && se.StatusCode < 500 {
			return fmt.Errorf("%w: %s", ErrRejected, se)
		}
		c.log.Debugw("registry address failed", "address", s.BaseURL(), "err", err)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: %w", ErrUnreachable, errors.Join(errs...))
}

func registerAt(ctx context.Context, s *httpclient.Client, d Descriptor) error {
	err := s.PostJSON(ctx, "/api/services", d, nil)
	var se *httpclient.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
		return s.PutJSON(ctx, "/api/services/"+url.PathEscape(d.ID), d, nil)
	}
	return err
}
