package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-market/internal/engine"
	"github.com/celerix-dev/celerix-market/pkg/schema"
)

func startRouter(t *testing.T, l *engine.MemLedger) (*Router, string) {
	t.Helper()
	router := NewRouter(l, zerolog.Nop())

	go router.Listen("0")

	// Wait a bit for listener to be set
	var port string
	for i := 0; i < 20; i++ {
		time.Sleep(50 * time.Millisecond)
		if addr := router.Addr(); addr != nil {
			port = fmt.Sprintf("%d", addr.(*net.TCPAddr).Port)
			break
		}
	}
	if port == "" {
		t.Fatalf("Server did not start in time")
	}
	t.Cleanup(func() { router.Stop() })
	return router, port
}

func dial(t *testing.T, port string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", "127.0.0.1:"+port)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func send(t *testing.T, conn net.Conn, r *bufio.Reader, cmd string) string {
	t.Helper()
	fmt.Fprintf(conn, "%s\n", cmd)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("Read error after %q: %v", cmd, err)
	}
	return strings.TrimSuffix(line, "\n")
}

func TestRouter_TCP_Commands(t *testing.T) {
	ledger := engine.NewMemLedger()
	_, port := startRouter(t, ledger)
	conn, reader := dial(t, port)

	if line := send(t, conn, reader, "PING"); line != "PONG" {
		t.Errorf("Expected PONG, got %q", line)
	}

	line := send(t, conn, reader, `CREATE_WORK {"creator_agent_id":3,"title":"Dawn","style":"poem","license":"open","price":50}`)
	if !strings.HasPrefix(line, `OK {"id":1,`) {
		t.Fatalf("Expected created work 1, got %q", line)
	}

	line = send(t, conn, reader, `CREATE_WORK {"creator_agent_id":2,"title":"Dawn Haiku","style":"generative-svg","license":"open","price":"45.00","parent_id":1}`)
	if !strings.Contains(line, `"style":"generative-diagram"`) || !strings.Contains(line, `"parent_id":1`) {
		t.Fatalf("Expected derivative with normalised style, got %q", line)
	}

	line = send(t, conn, reader, `PURCHASE {"work_id":2,"buyer_agent_id":3,"purpose":"research"}`)
	if !strings.Contains(line, `"amount":31.50`) || !strings.Contains(line, `"amount":13.50`) {
		t.Errorf("Expected 70/30 split, got %q", line)
	}

	line = send(t, conn, reader, "ANCESTRY 2")
	if !strings.HasPrefix(line, `OK [{"id":1,`) {
		t.Errorf("Expected chain rooted at 1, got %q", line)
	}

	line = send(t, conn, reader, "STATS 3")
	if line != `OK {"agent_id":3,"total_earned":13.50,"sales_count":0,"royalties_count":1,"royalties_earned":13.50}` {
		t.Errorf("Unexpected stats %q", line)
	}

	line = send(t, conn, reader, "MARKET_STATS")
	if !strings.Contains(line, `"total_volume":45.00`) {
		t.Errorf("Unexpected market stats %q", line)
	}
}

func TestRouter_ErrorCodes(t *testing.T) {
	ledger := engine.NewMemLedger()
	if _, err := ledger.CreateWork(context.Background(), schema.CreateWorkInput{
		CreatorAgentID: 1, Title: "Solo", Style: schema.StyleHaiku,
		License: schema.LicenseExclusive, Price: schema.Units(60),
	}); err != nil {
		t.Fatal(err)
	}
	_, port := startRouter(t, ledger)
	conn, reader := dial(t, port)

	cases := []struct {
		cmd  string
		code string
	}{
		{"GET_WORK 42", schema.CodeWorkNotFound},
		{"GET_WORK abc", schema.CodeValidation},
		{`PURCHASE {"work_id":1,"buyer_agent_id":1,"purpose":"x"}`, schema.CodeSelfPurchase},
		{`PURCHASE {"work_id":1,"buyer_agent_id":2}`, schema.CodeValidation},
		{`CREATE_WORK {"creator_agent_id":2,"title":"t","style":"poem","license":"open","price":1,"parent_id":1}`, schema.CodeLicenseViolation},
		{`CREATE_WORK {"creator_agent_id":2,"title":"t","style":"poem","license":"open","price":1,"parent_id":9}`, schema.CodeInvalidParent},
		{`CREATE_WORK {invalid}`, schema.CodeValidation},
		{"FROB", schema.CodeValidation},
	}
	for _, tc := range cases {
		line := send(t, conn, reader, tc.cmd)
		if !strings.HasPrefix(line, "ERR "+tc.code+" ") {
			t.Errorf("%s: expected ERR %s, got %q", tc.cmd, tc.code, line)
		}
	}
}

func TestRouter_ConcurrentConnections(t *testing.T) {
	router := NewRouter(engine.NewMemLedger(), zerolog.Nop())
	router.SetMaxConns(4)

	go router.Listen("0")
	var port string
	for i := 0; i < 20; i++ {
		time.Sleep(50 * time.Millisecond)
		if addr := router.Addr(); addr != nil {
			port = fmt.Sprintf("%d", addr.(*net.TCPAddr).Port)
			break
		}
	}
	if port == "" {
		t.Fatalf("Server did not start in time")
	}
	defer router.Stop()

	conns := make([]net.Conn, 0)
	for i := 0; i < 10; i++ {
		conn, err := net.DialTimeout("tcp", "127.0.0.1:"+port, 100*time.Millisecond)
		if err == nil {
			conns = append(conns, conn)
		}
	}
	for _, c := range conns {
		c.Close()
	}

	// the server still serves once the burst is gone
	conn, reader := dial(t, port)
	if line := send(t, conn, reader, "PING"); line != "PONG" {
		t.Errorf("Expected PONG, got %q", line)
	}
}

func TestRouter_StopBeforeListen(t *testing.T) {
	router := NewRouter(engine.NewMemLedger(), zerolog.Nop())
	router.Stop()
	done := make(chan error, 1)
	go func() { done <- router.Listen("0") }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after Stop")
	}
}
