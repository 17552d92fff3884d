// Package sdk provides the client-side library for the Celerix Market ledger.
// It supports both remote connections via TCP/TLS and local embedded mode.
package sdk

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-market/pkg/schema"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultAttempts = 3
)

// Client is a remote client for the ledger daemon's TCP protocol.
// It implements Ledger.
type Client struct {
	addr       string
	disableTLS bool
	timeout    time.Duration
	attempts   uint64
	log        zerolog.Logger

	mu     sync.Mutex // Protects concurrent access to the connection
	conn   net.Conn
	reader *bufio.Reader
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithoutTLS connects over plain TCP.
func WithoutTLS() ClientOption {
	return func(c *Client) { c.disableTLS = true }
}

// WithTimeout bounds each request when the context carries no deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithClientLogger sets the logger used for retry diagnostics.
func WithClientLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// Connect establishes a connection to a remote ledger daemon.
func Connect(ctx context.Context, addr string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		addr:     addr,
		timeout:  defaultTimeout,
		attempts: defaultAttempts,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.reconnect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// reconnect MUST be called while holding c.mu.
func (c *Client) reconnect(ctx context.Context) error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 60 * time.Second,
	}

	var conn net.Conn
	var err error
	if c.disableTLS {
		conn, err = dialer.DialContext(ctx, "tcp", c.addr)
	} else {
		td := &tls.Dialer{
			NetDialer: dialer,
			Config: &tls.Config{
				InsecureSkipVerify: true, // daemon uses a self-signed certificate
			},
		}
		conn, err = td.DialContext(ctx, "tcp", c.addr)
	}
	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// roundTrip sends one command line and returns the payload of an OK reply.
// Transport failures are retried with exponential backoff. Commands that
// mutate the ledger are only retried if they never reached the wire.
func (c *Client) roundTrip(ctx context.Context, cmd string, idempotent bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 100 * time.Millisecond
	exp.MaxInterval = 2 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, c.attempts-1), ctx)

	attempt := 0
	var payload string
	op := func() error {
		attempt++
		if c.conn == nil {
			if err := c.reconnect(ctx); err != nil {
				return fmt.Errorf("reconnect failed: %w", err)
			}
		}

		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(c.timeout)
		}
		c.conn.SetDeadline(deadline)

		if _, err := fmt.Fprint(c.conn, cmd+"\n"); err != nil {
			c.dropConn()
			return err
		}
		resp, err := c.reader.ReadString('\n')
		if err != nil {
			c.dropConn()
			if !idempotent {
				return backoff.Permanent(fmt.Errorf("connection lost after sending command: %w", err))
			}
			return err
		}

		resp = strings.TrimSpace(resp)
		switch {
		case resp == "OK" || resp == "PONG":
			payload = ""
		case strings.HasPrefix(resp, "OK "):
			payload = strings.TrimPrefix(resp, "OK ")
		case strings.HasPrefix(resp, "ERR"):
			code, msg, _ := strings.Cut(strings.TrimSpace(strings.TrimPrefix(resp, "ERR")), " ")
			return backoff.Permanent(schema.ErrorFromCode(code, msg))
		default:
			return backoff.Permanent(fmt.Errorf("unexpected reply %q", resp))
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("ledger request failed")
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return "", err
	}
	return payload, nil
}

func (c *Client) dropConn() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// call sends cmd and decodes the JSON payload of the reply into T.
func call[T any](ctx context.Context, c *Client, cmd string, idempotent bool) (T, error) {
	var out T
	payload, err := c.roundTrip(ctx, cmd, idempotent)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return out, fmt.Errorf("decode reply: %w", err)
	}
	return out, nil
}

func withJSON(cmd string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return cmd + " " + string(b), nil
}

// Ping checks that the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.roundTrip(ctx, "PING", true)
	return err
}

func (c *Client) GetWork(ctx context.Context, id int64) (schema.Work, error) {
	return call[schema.Work](ctx, c, fmt.Sprintf("GET_WORK %d", id), true)
}

func (c *Client) ListWorks(ctx context.Context, f schema.WorkFilter) ([]schema.Work, error) {
	cmd, err := withJSON("LIST_WORKS", f)
	if err != nil {
		return nil, err
	}
	return call[[]schema.Work](ctx, c, cmd, true)
}

func (c *Client) CreateWork(ctx context.Context, in schema.CreateWorkInput) (schema.Work, error) {
	cmd, err := withJSON("CREATE_WORK", in)
	if err != nil {
		return schema.Work{}, err
	}
	return call[schema.Work](ctx, c, cmd, false)
}

func (c *Client) AncestryChain(ctx context.Context, id int64) ([]schema.Work, error) {
	return call[[]schema.Work](ctx, c, fmt.Sprintf("ANCESTRY %d", id), true)
}

func (c *Client) RootOf(ctx context.Context, id int64) (schema.Work, error) {
	return call[schema.Work](ctx, c, fmt.Sprintf("ROOT %d", id), true)
}

func (c *Client) ListDerivatives(ctx context.Context, id int64) ([]schema.Work, error) {
	return call[[]schema.Work](ctx, c, fmt.Sprintf("DERIVATIVES %d", id), true)
}

func (c *Client) Purchase(ctx context.Context, workID, buyerAgentID int64, purpose string) (schema.PurchaseResult, error) {
	cmd, err := withJSON("PURCHASE", PurchaseRequest{WorkID: workID, BuyerAgentID: buyerAgentID, Purpose: purpose})
	if err != nil {
		return schema.PurchaseResult{}, err
	}
	return call[schema.PurchaseResult](ctx, c, cmd, false)
}

func (c *Client) PurchasesOfWork(ctx context.Context, workID int64) ([]schema.Purchase, error) {
	return call[[]schema.Purchase](ctx, c, fmt.Sprintf("PURCHASES %d", workID), true)
}

func (c *Client) PurchasesByBuyer(ctx context.Context, agentID int64) ([]schema.Purchase, error) {
	return call[[]schema.Purchase](ctx, c, fmt.Sprintf("PURCHASES_BY %d", agentID), true)
}

func (c *Client) RevenueOf(ctx context.Context, agentID int64) ([]schema.RevenueEntry, error) {
	return call[[]schema.RevenueEntry](ctx, c, fmt.Sprintf("REVENUE %d", agentID), true)
}

func (c *Client) StatsOf(ctx context.Context, agentID int64) (schema.AgentStats, error) {
	return call[schema.AgentStats](ctx, c, fmt.Sprintf("STATS %d", agentID), true)
}

func (c *Client) MarketplaceStats(ctx context.Context) (schema.MarketplaceStats, error) {
	return call[schema.MarketplaceStats](ctx, c, "MARKET_STATS", true)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	fmt.Fprintln(c.conn, "QUIT")
	err := c.conn.Close()
	c.conn = nil
	return err
}
