package vault

import (
	"crypto/tls"
	"io"
	"testing"
	"time"
)

func TestGenerateSelfSignedCert(t *testing.T) {
	cert, err := GenerateSelfSignedCert("market.internal", "10.0.0.5")
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert failed: %v", err)
	}
	if cert.Leaf == nil {
		t.Fatal("Expected parsed leaf certificate")
	}
	if len(cert.Leaf.DNSNames) != 1 || cert.Leaf.DNSNames[0] != "market.internal" {
		t.Errorf("Unexpected DNS names %v", cert.Leaf.DNSNames)
	}
	if len(cert.Leaf.IPAddresses) != 1 || cert.Leaf.IPAddresses[0].String() != "10.0.0.5" {
		t.Errorf("Unexpected IPs %v", cert.Leaf.IPAddresses)
	}
	if !cert.Leaf.NotAfter.After(time.Now().Add(300 * 24 * time.Hour)) {
		t.Errorf("Certificate expires too soon: %v", cert.Leaf.NotAfter)
	}
}

func TestCertServesTLS(t *testing.T) {
	cert, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatal(err)
	}
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		c.Write([]byte("hi"))
		c.Close()
	}()

	conn, err := tls.Dial("tcp", ln.Addr().String(), &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("TLS dial failed: %v", err)
	}
	defer conn.Close()
	buf := make([]byte, 2)
	if _, err := io.ReadFull(conn, buf); err != nil || string(buf) != "hi" {
		t.Errorf("Expected hi, got %q (%v)", buf, err)
	}
}
