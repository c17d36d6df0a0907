// Package listing resolves marketplace listings referenced by listing
// conversations.
package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/marketChat-gRPC/internal/chat"
)

// ErrUnavailable means the listing service could not answer. Callers degrade
// instead of failing.
var ErrUnavailable = errors.New("listing service unavailable")

// Listing is the listing service's view of a listing.
type Listing struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
	OwnerID  string `json:"owner_id"`
}

// Resolver looks up a listing. A listing that does not exist yields an
// error matching chat.ErrValidation.
type Resolver interface {
	Resolve(ctx context.Context, category, id string) (*Listing, error)
}

// Nop is the resolver used when no listing service is configured.
type Nop struct{}

func (Nop) Resolve(context.Context, string, string) (*Listing, error) {
	return nil, ErrUnavailable
}

// HTTPResolver calls GET {base}/listings/{category}/{id} behind a circuit
// breaker, retrying transient failures with exponential backoff.
type HTTPResolver struct {
	base   string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	log    *zap.Logger

	maxRetries      uint64
	initialInterval time.Duration
}

// Option configures an HTTPResolver.
type Option func(*HTTPResolver)

// WithRetry sets the retry budget per lookup.
func WithRetry(maxRetries uint64, initialInterval time.Duration) Option {
	return func(r *HTTPResolver) {
		r.maxRetries = maxRetries
		r.initialInterval = initialInterval
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *HTTPResolver) { r.client = c }
}

func NewHTTPResolver(baseURL string, timeout time.Duration, log *zap.Logger, opts ...Option) *HTTPResolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &HTTPResolver{
		base:            strings.TrimRight(baseURL, "/"),
		client:          &http.Client{Timeout: timeout},
		log:             log,
		maxRetries:      2,
		initialInterval: 100 * time.Millisecond,
	}
	for _, o := range opts {
		o(r)
	}
	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "listing",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a missing listing is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, chat.ErrValidation)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return r
}

func (r *HTTPResolver) Resolve(ctx context.Context, category, id string) (*Listing, error) {
	res, err := r.cb.Execute(func() (interface{}, error) {
		return r.fetch(ctx, category, id)
	})
	switch {
	case err == nil:
		return res.(*Listing), nil
	case errors.Is(err, chat.ErrValidation):
		return nil, err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	r.log.Warn("listing lookup failed",
		zap.String("category", category), zap.String("listing_id", id), zap.Error(err))
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (r *HTTPResolver) fetch(ctx context.Context, category, id string) (*Listing, error) {
	u := fmt.Sprintf("%s/listings/%s/%s", r.base, url.PathEscape(category), url.PathEscape(id))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx)

	return backoff.RetryWithData(func() (*Listing, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound:
			return nil, backoff.Permanent(chat.Invalid("listing", "listing not found"))
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("listing service returned %d", resp.StatusCode)
		default:
			return nil, backoff.Permanent(fmt.Errorf("listing service returned %d", resp.StatusCode))
		}

		var l Listing
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&l); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("decode listing: %w", err))
		}
		return &l, nil
	}, policy)
}

// Apply resolves the listing of a listing conversation and fills in the
// title and price snapshot. With no participants given, the listing owner
// becomes the counterpart. When the service is unavailable the conversation
// keeps the client's reference without a snapshot.
func Apply(ctx context.Context, r Resolver, nc *chat.NewConversation, log *zap.Logger) error {
	if nc.Type != chat.ConversationListing {
		return nil
	}
	if err := nc.Listing.Validate(); err != nil {
		return err
	}
	l, err := r.Resolve(ctx, nc.Listing.Category, nc.Listing.ID)
	switch {
	case errors.Is(err, ErrUnavailable):
		if log != nil {
			log.Info("creating listing conversation without snapshot",
				zap.String("category", nc.Listing.Category), zap.String("listing_id", nc.Listing.ID))
		}
		// only the listing service may supply title and price
		nc.Listing = &chat.ListingRef{Category: nc.Listing.Category, ID: nc.Listing.ID}
		return nil
	case err != nil:
		return err
	}

	ref := *nc.Listing
	ref.Title = l.Title
	ref.Price = l.Price
	ref.Currency = l.Currency
	nc.Listing = &ref
	if len(nc.Participants) == 0 && l.OwnerID != "" {
		nc.Participants = []string{l.OwnerID}
	}
	return nil
}
