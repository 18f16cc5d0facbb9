package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	logging "github.com/ipfs/go-log"
	"golang.org/x/crypto/acme/autocert"
)

/*
	The proxy listens for TLS on a domain, gets a LetsEncrypt certificate on
	demand, and forwards the decrypted TCP stream to a plaintext Backend.

	A node uses it to put https in front of its rpc server without the rpc
	server knowing anything about certificates.
*/

var logger = logging.Logger("tlsproxy")

const DefaultConnectTimeout = 5 * time.Second

// Backend describes the TCP connection the server should talk to (unencrypted)
type Backend struct {
	Addr           string
	ConnectTimeout time.Duration
}

type Server struct {
	BindDomain    string
	Backend       Backend
	CertDirectory string
	// ChallengeAddress serves the ACME http-01 challenge, ":80" when empty
	ChallengeAddress string

	manager *autocert.Manager
}

func (s *Server) Manager() *autocert.Manager {
	if s.manager != nil {
		return s.manager
	}
	var cache autocert.Cache
	if s.CertDirectory != "" {
		cache = autocert.DirCache(s.CertDirectory)
	}
	s.manager = &autocert.Manager{
		Cache:      cache,
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(s.BindDomain),
	}
	return s.manager
}

// Run terminates TLS on :443 until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if s.BindDomain == "" {
		return fmt.Errorf("a BindDomain is required")
	}
	m := s.Manager()

	challengeAddr := s.ChallengeAddress
	if challengeAddr == "" {
		challengeAddr = ":80"
	}
	challenge := &http.Server{Addr: challengeAddr, Handler: m.HTTPHandler(nil)}
	go func() {
		logger.Debugf("starting http challenge handler on %s", challengeAddr)
		if err := challenge.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("error running http handler: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		challenge.Close()
	}()

	return s.Serve(ctx, m.Listener()) // port 443 is the only thing allowed here
}

// Serve forwards every connection accepted on ln to the backend.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	logger.Infof("Serving connections on %v for %s", ln.Addr(), s.Backend.Addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("error accepting: %w", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(c net.Conn) {
	timeout := s.Backend.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}
	backendConn, err := net.DialTimeout("tcp", s.Backend.Addr, timeout)
	if err != nil {
		logger.Errorf("Failed to dial backend connection %v: %v", s.Backend.Addr, err)
		c.Close()
		return
	}
	logger.Debugf("Initiated new connection to backend: %v %v", backendConn.LocalAddr(), backendConn.RemoteAddr())
	pipe(backendConn, c)
}

// pipe copies both ways until either side is done, then closes both.
func pipe(srvConn net.Conn, cliConn net.Conn) {
	done := make(chan struct{}, 2)

	go broker(srvConn, cliConn, done)
	go broker(cliConn, srvConn, done)

	<-done
	srvConn.Close()
	cliConn.Close()
	<-done
}

func broker(dst, src net.Conn, done chan<- struct{}) {
	if _, err := io.Copy(dst, src); err != nil {
		// the other half closing both conns lands here too
		logger.Debugf("copy ended: %s", err)
	}
	done <- struct{}{}
}
