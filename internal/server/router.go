// Package server exposes the ledger over a line-based TCP protocol.
//
// Each request is one line: a command word followed by its arguments. Replies
// are "OK <json>", "PONG" or "ERR <code> <message>".
package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-market/pkg/schema"
	"github.com/celerix-dev/celerix-market/pkg/sdk"
)

// DefaultMaxConns bounds concurrent client connections.
const DefaultMaxConns = 100

type Router struct {
	ledger   sdk.Ledger
	cert     *tls.Certificate
	maxConns int
	log      zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

func NewRouter(l sdk.Ledger, log zerolog.Logger) *Router {
	return &Router{
		ledger:   l,
		maxConns: DefaultMaxConns,
		log:      log.With().Str("component", "tcp").Logger(),
	}
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// SetMaxConns changes the concurrent connection limit.
func (r *Router) SetMaxConns(n int) {
	if n > 0 {
		r.maxConns = n
	}
}

// Addr returns the listening address, or nil before Listen has bound.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Listen starts the TCP server and blocks until Stop is called.
func (r *Router) Listen(port string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		listener.Close()
		return nil
	}
	r.listener = listener
	r.mu.Unlock()

	r.log.Info().Str("addr", listener.Addr().String()).Bool("tls", r.cert != nil).Msg("TCP server listening")

	semaphore := make(chan struct{}, r.maxConns)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			r.log.Warn().Err(err).Msg("accept failed")
			continue
		}

		// connections live at most five minutes
		conn.SetDeadline(time.Now().Add(5 * time.Minute))

		go func(c net.Conn) {
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
				c.Close()
			}()
			r.handleConnection(c)
		}(conn)
	}
}

// Stop closes the listener, which makes Listen return.
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.listener == nil {
		return nil
	}
	return r.listener.Close()
}

func (r *Router) handleConnection(conn net.Conn) {
	reader := bufio.NewReader(conn)

	for {
		// Set a deadline for the next command
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.Debug().Err(err).Msg("connection closed")
			}
			return
		}

		line = strings.TrimSpace(line)
		command, args, _ := strings.Cut(line, " ")
		if command == "" {
			continue
		}
		command = strings.ToUpper(command)
		if command == "QUIT" {
			return
		}

		fmt.Fprintln(conn, r.dispatch(context.Background(), command, strings.TrimSpace(args)))
	}
}

// dispatch executes one command and renders its reply line.
func (r *Router) dispatch(ctx context.Context, command, args string) string {
	var (
		val any
		err error
	)

	switch command {
	case "PING":
		return "PONG"

	case "GET_WORK":
		val, err = withID(args, func(id int64) (any, error) { return r.ledger.GetWork(ctx, id) })

	case "LIST_WORKS":
		var f schema.WorkFilter
		if args != "" {
			if err := json.Unmarshal([]byte(args), &f); err != nil {
				return errReply(schema.NewValidationError("filter", "invalid json"))
			}
		}
		val, err = r.ledger.ListWorks(ctx, f)

	case "CREATE_WORK":
		var in schema.CreateWorkInput
		if err := json.Unmarshal([]byte(args), &in); err != nil {
			return errReply(schema.NewValidationError("body", "invalid json"))
		}
		val, err = r.ledger.CreateWork(ctx, in)

	case "PURCHASE":
		var req sdk.PurchaseRequest
		if err := json.Unmarshal([]byte(args), &req); err != nil {
			return errReply(schema.NewValidationError("body", "invalid json"))
		}
		val, err = r.ledger.Purchase(ctx, req.WorkID, req.BuyerAgentID, req.Purpose)

	case "ANCESTRY":
		val, err = withID(args, func(id int64) (any, error) { return r.ledger.AncestryChain(ctx, id) })

	case "ROOT":
		val, err = withID(args, func(id int64) (any, error) { return r.ledger.RootOf(ctx, id) })

	case "DERIVATIVES":
		val, err = withID(args, func(id int64) (any, error) { return r.ledger.ListDerivatives(ctx, id) })

	case "PURCHASES":
		val, err = withID(args, func(id int64) (any, error) { return r.ledger.PurchasesOfWork(ctx, id) })

	case "PURCHASES_BY":
		val, err = withID(args, func(id int64) (any, error) { return r.ledger.PurchasesByBuyer(ctx, id) })

	case "REVENUE":
		val, err = withID(args, func(id int64) (any, error) { return r.ledger.RevenueOf(ctx, id) })

	case "STATS":
		val, err = withID(args, func(id int64) (any, error) { return r.ledger.StatsOf(ctx, id) })

	case "MARKET_STATS":
		val, err = r.ledger.MarketplaceStats(ctx)

	default:
		return fmt.Sprintf("ERR %s unknown command %s", schema.CodeValidation, command)
	}

	if err != nil {
		if schema.CodeOf(err) == schema.CodeInternal {
			r.log.Error().Err(err).Str("command", command).Msg("command failed")
		}
		return errReply(err)
	}
	res, err := json.Marshal(val)
	if err != nil {
		return "ERR " + schema.CodeInternal + " internal error"
	}
	return "OK " + string(res)
}

func withID(arg string, fn func(int64) (any, error)) (any, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return nil, schema.NewValidationError("id", "must be an integer")
	}
	return fn(id)
}

func errReply(err error) string {
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	return fmt.Sprintf("ERR %s %s", schema.CodeOf(err), msg)
}
