package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/nutrisync/internal/client/models"
	"github.com/dmitrijs2005/nutrisync/internal/logging"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultRetries   = 3
	defaultRetryBase = 200 * time.Millisecond
	maxErrorBody     = 512
)

// Options configures an HTTPGateway. Zero values pick defaults.
type Options struct {
	BaseURL string
	// Token is sent as a bearer token. When it is a JWT with an exp claim,
	// requests fail with ErrUnauthorized once it has expired.
	Token   string
	Timeout time.Duration
	// RequestsPerSecond caps the request rate; 0 disables limiting.
	RequestsPerSecond float64
	Burst             int
	// MaxRetries bounds the retries of read requests.
	MaxRetries uint64
	RetryBase  time.Duration
	HTTPClient *http.Client
	Logger     logging.Logger
}

// HTTPGateway implements Gateway over the server's REST API.
type HTTPGateway struct {
	base      string
	token     string
	expiresAt time.Time
	hc        *http.Client
	limiter   *rate.Limiter
	retries   uint64
	retryBase time.Duration
	log       logging.Logger
	now       func() time.Time
}

func NewHTTPGateway(opts Options) *HTTPGateway {
	hc := opts.HTTPClient
	if hc == nil {
		to := opts.Timeout
		if to == 0 {
			to = defaultTimeout
		}
		hc = &http.Client{Timeout: to}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	retries := opts.MaxRetries
	if retries == 0 {
		retries = defaultRetries
	}
	retryBase := opts.RetryBase
	if retryBase == 0 {
		retryBase = defaultRetryBase
	}

	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}

	return &HTTPGateway{
		base:      strings.TrimRight(opts.BaseURL, "/"),
		token:     opts.Token,
		expiresAt: tokenExpiry(opts.Token),
		hc:        hc,
		limiter:   limiter,
		retries:   retries,
		retryBase: retryBase,
		log:       log.With("component", "gateway"),
		now:       time.Now,
	}
}

func (g *HTTPGateway) Create(ctx context.Context, m Mutation) (Ack, error) {
	body, err := encodeMutation(m)
	if err != nil {
		return Ack{}, err
	}
	resp, err := g.do(ctx, http.MethodPost, "/"+m.Entity.Collection(), nil, body, m.ChangeID)
	if err != nil {
		return Ack{}, err
	}
	return decodeAck(resp, m.Entity)
}

func (g *HTTPGateway) Update(ctx context.Context, m Mutation) (Ack, error) {
	if m.RemoteID == "" {
		return Ack{}, fmt.Errorf("%w: update of %s without remote id", ErrRejected, m.Entity)
	}
	body, err := encodeMutation(m)
	if err != nil {
		return Ack{}, err
	}
	resp, err := g.do(ctx, http.MethodPut, recordPath(m), nil, body, m.ChangeID)
	if err != nil {
		return Ack{}, err
	}
	ack, err := decodeAck(resp, m.Entity)
	if err != nil {
		return Ack{}, err
	}
	if ack.RemoteID == "" {
		ack.RemoteID = m.RemoteID
	}
	return ack, nil
}

func (g *HTTPGateway) Delete(ctx context.Context, m Mutation) error {
	if m.RemoteID == "" {
		return fmt.Errorf("%w: delete of %s without remote id", ErrRejected, m.Entity)
	}
	_, err := g.do(ctx, http.MethodDelete, recordPath(m), nil, nil, m.ChangeID)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil
	}
	return err
}

// List fetches the owner's records matching f. Transient failures are
// retried with exponential backoff.
func (g *HTTPGateway) List(ctx context.Context, entity models.Entity, ownerID string, f models.Filter) ([]RemoteRecord, error) {
	q := url.Values{"ownerId": {ownerID}}
	if f.Date != "" {
		q.Set("date", f.Date)
	}
	if f.From != "" {
		q.Set("from", f.From)
	}
	if f.To != "" {
		q.Set("to", f.To)
	}

	var out []RemoteRecord
	backoff := retry.WithMaxRetries(g.retries, retry.NewExponential(g.retryBase))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		resp, err := g.do(ctx, http.MethodGet, "/"+entity.Collection(), q, nil, "")
		if err != nil {
			if Retryable(err) {
				g.log.Debug(ctx, "list failed, retrying", "entity", entity, "attempt", attempt, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		out, err = decodeList(resp, entity)
		return err
	})
	if err != nil {
		if ctx.Err() != nil && !Retryable(err) {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return nil, err
	}
	return out, nil
}

// Ping checks that the server answers its health endpoint.
func (g *HTTPGateway) Ping(ctx context.Context) error {
	_, err := g.do(ctx, http.MethodGet, "/health", nil, nil, "")
	return err
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, q url.Values, body []byte, idemKey string) ([]byte, error) {
	if !g.expiresAt.IsZero() && !g.now().Before(g.expiresAt) {
		return nil, fmt.Errorf("%w: token expired at %s", ErrUnauthorized, g.expiresAt.Format(time.RFC3339))
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}

	target := g.base + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := g.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %w", ErrUnavailable, method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := strings.TrimSpace(string(data))
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody]
		}
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Detail: detail}
	}
	return data, nil
}

func recordPath(m Mutation) string {
	return "/" + m.Entity.Collection() + "/" + url.PathEscape(m.RemoteID)
}

// tokenExpiry returns the exp claim of a JWT, or the zero time when the
// token is opaque or carries no expiry. The signature is not checked; the
// server does that.
func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
