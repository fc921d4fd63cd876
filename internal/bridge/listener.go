package bridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/justachat/irc-bridge/internal/config"
	"github.com/justachat/irc-bridge/internal/constants"
)

// ListenerSet owns the client-facing TCP listeners: a plaintext listener and,
// when certificates are configured, a TLS listener on its own port. Both feed
// accepted sockets to the same handler, tagged with their transport.
type ListenerSet struct {
	handler *Handler

	plain net.Listener
	tls   net.Listener

	wg      sync.WaitGroup
	closing bool
	mu      sync.Mutex
}

// NewListenerSet binds the configured listen addresses. Bind failures are
// returned with enough context to distinguish an occupied port from an
// unassignable address.
func NewListenerSet(cfg *config.AppConfig, handler *Handler) (*ListenerSet, error) {
	ls := &ListenerSet{handler: handler}

	addr := cfg.Listen.BridgeAddress()
	plain, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, bindError(addr, err)
	}
	ls.plain = plain

	if cfg.TLS.Configured() {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			plain.Close()
			return nil, fmt.Errorf("loading TLS key pair: %w", err)
		}

		tlsAddr := net.JoinHostPort(cfg.Listen.Host, fmt.Sprintf("%d", cfg.TLS.Port))
		tlsListener, err := tls.Listen("tcp", tlsAddr, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		if err != nil {
			plain.Close()
			return nil, bindError(tlsAddr, err)
		}
		ls.tls = tlsListener
	}

	return ls, nil
}

// Start launches the accept loops. Each accepted socket gets its own handler
// goroutine.
func (ls *ListenerSet) Start(ctx context.Context) {
	ls.wg.Add(1)
	go ls.acceptLoop(ctx, ls.plain, constants.TransportPlain)
	log.Info().Str("address", ls.plain.Addr().String()).Msg("IRC bridge listening")

	if ls.tls != nil {
		ls.wg.Add(1)
		go ls.acceptLoop(ctx, ls.tls, constants.TransportTLS)
		log.Info().Str("address", ls.tls.Addr().String()).Msg("IRC bridge listening (TLS)")
	}
}

// TLSEnabled reports whether a TLS listener is active.
func (ls *ListenerSet) TLSEnabled() bool {
	return ls.tls != nil
}

// Close stops both accept loops and waits for them to return. In-flight
// connections are not touched; the registry owns those.
func (ls *ListenerSet) Close() {
	ls.mu.Lock()
	ls.closing = true
	ls.mu.Unlock()

	ls.plain.Close()
	if ls.tls != nil {
		ls.tls.Close()
	}
	ls.wg.Wait()
}

func (ls *ListenerSet) acceptLoop(ctx context.Context, lis net.Listener, transport string) {
	defer ls.wg.Done()

	for {
		sock, err := lis.Accept()
		if err != nil {
			ls.mu.Lock()
			closing := ls.closing
			ls.mu.Unlock()
			if closing || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Str("transport", transport).Msg("Accept failed")
			continue
		}

		go ls.handler.Handle(ctx, sock, transport)
	}
}

// bindError rewraps a listen failure with an operator-facing hint for the two
// common misconfigurations.
func bindError(addr string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "address already in use"):
		return fmt.Errorf("address %s is already in use by another process: %w", addr, err)
	case strings.Contains(msg, "cannot assign requested address"):
		return fmt.Errorf("address %s is not assignable on this host: %w", addr, err)
	default:
		return fmt.Errorf("binding %s: %w", addr, err)
	}
}
