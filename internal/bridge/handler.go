package bridge

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/justachat/irc-bridge/internal/ban"
	"github.com/justachat/irc-bridge/internal/config"
	"github.com/justachat/irc-bridge/internal/constants"
	"github.com/justachat/irc-bridge/internal/geoip"
	"github.com/justachat/irc-bridge/internal/ratelimit"
)

// Handler runs the admission pipeline for each accepted socket and, on pass,
// bridges IRC lines between the socket and an upstream WebSocket session.
type Handler struct {
	cfg      *config.AppConfig
	bans     *ban.Manager
	geo      *geoip.Resolver
	rates    *ratelimit.Tracker
	registry *Registry
	dialer   *websocket.Dialer
}

// NewHandler creates a connection handler wired to the shared admission
// components and the live connection registry.
func NewHandler(cfg *config.AppConfig, bans *ban.Manager, geo *geoip.Resolver, rates *ratelimit.Tracker, registry *Registry) *Handler {
	return &Handler{
		cfg:      cfg,
		bans:     bans,
		geo:      geo,
		rates:    rates,
		registry: registry,
		dialer: &websocket.Dialer{
			HandshakeTimeout: constants.UpstreamHandshakeTimeout,
		},
	}
}

// Handle owns one accepted socket for its whole lifetime: admission,
// upstream session establishment, bidirectional relay and teardown. It is
// run on its own goroutine per connection.
func (h *Handler) Handle(ctx context.Context, sock net.Conn, transport string) {
	ip, port := remoteEndpoint(sock)

	// Admission pipeline: ban, then geo, then connection rate. The first
	// failure writes a terminal protocol line and closes the socket.
	if record := h.bans.Get(ip); record != nil {
		log.Info().Str("ip", ip).Str("reason", record.Reason).Msg("Rejected banned IP")
		writeAndClose(sock, BannedLine(record.Reason))
		return
	}

	var location *geoip.Result
	if h.cfg.Geo.Enabled {
		decision := h.geo.ShouldAllow(ctx, ip)
		if !decision.Allowed {
			log.Info().Str("ip", ip).Str("reason", decision.Reason).Msg("Rejected geo-blocked IP")
			writeAndClose(sock, RegionBlockedLine())
			return
		}
		// Reuse the policy lookup for display; no second external call.
		location = decision.Result
	}

	if decision := h.rates.CanConnect(ip); !decision.Allowed {
		retry := int(decision.RetryAfter.Seconds() + 0.5)
		log.Warn().Str("ip", ip).Int("retry_after", retry).Msg("Rejected rate-limited IP")
		writeAndClose(sock, RateLimitedLine(retry))

		if decision.ShouldBan {
			h.autoBan(ip, "Too many connection attempts")
		}
		return
	}

	conn := h.registry.Register(sock, ip, port, transport)
	h.rates.InitConnection(conn.ID)
	if location != nil {
		conn.setLocation(location.Country, location.CountryCode, location.City)
	} else if h.cfg.Geo.Enabled && !geoip.IsPrivateIP(ip) {
		// Display-only lookup; must not delay bridging.
		go func() {
			if res := h.geo.Lookup(ctx, ip); res != nil {
				conn.setLocation(res.Country, res.CountryCode, res.City)
			}
		}()
	}

	log.Info().
		Uint64("conn", conn.ID).
		Str("ip", ip).
		Int("port", port).
		Str("transport", transport).
		Msg("IRC client connected")

	ws, _, err := h.dialer.DialContext(ctx, h.cfg.Upstream.URL, nil)
	if err != nil {
		log.Error().Err(err).Uint64("conn", conn.ID).Str("url", h.cfg.Upstream.URL).Msg("Failed to reach upstream gateway")
		conn.WriteLine(UpstreamFailedLine())
		h.teardown(conn, nil)
		return
	}

	log.Debug().Uint64("conn", conn.ID).Msg("Upstream gateway session established")

	// Upstream-to-client relay. Server-to-client traffic is trusted and not
	// rate limited.
	go func() {
		defer h.teardown(conn, ws)

		for {
			msgType, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !conn.Closed() {
					log.Warn().Err(err).Uint64("conn", conn.ID).Msg("Upstream session error")
				}
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}

			log.Debug().Uint64("conn", conn.ID).Str("dir", "gateway->irc").Str("line", strings.TrimRight(string(data), "\r\n")).Msg("Relay")

			if err := conn.WriteLine(string(data)); err != nil {
				return
			}
		}
	}()

	h.readClient(conn, ws)
}

// readClient pumps client lines to the gateway until either side closes.
// Lines are buffered and split on CRLF before dispatch, so per-connection
// processing is strictly sequential in arrival order.
func (h *Handler) readClient(conn *Conn, ws *websocket.Conn) {
	defer h.teardown(conn, ws)

	scanner := bufio.NewScanner(conn.sock)
	scanner.Buffer(make([]byte, 4096), 64*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if !h.rates.CanSendMessage(conn.ID) {
			if !h.handleThrottle(conn) {
				return
			}
			continue
		}

		conn.messages.Add(1)

		parsed := ParseLine(line)
		switch parsed.Command {
		case CommandPass:
			conn.setAuthenticated()
			log.Info().Uint64("conn", conn.ID).Msg("Client authenticating")
		case CommandNick:
			conn.setNick(parsed.Arg)
		case CommandUser:
			conn.setUser(parsed.Arg)
		}

		log.Debug().Uint64("conn", conn.ID).Str("dir", "irc->gateway").Str("line", line).Msg("Relay")

		ws.SetWriteDeadline(time.Now().Add(constants.UpstreamWriteTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			log.Warn().Err(err).Uint64("conn", conn.ID).Msg("Upstream write failed")
			return
		}
	}

	if err := scanner.Err(); err != nil && !conn.Closed() {
		log.Debug().Err(err).Uint64("conn", conn.ID).Msg("Client socket closed")
	}
}

// handleThrottle accounts one dropped line for a throttled connection,
// periodically warning the client and escalating to a flood violation once
// the cumulative count crosses the warning threshold. It returns false when
// the connection was auto-banned and must stop reading.
func (h *Handler) handleThrottle(conn *Conn) bool {
	throttled := conn.throttled.Add(1)

	if throttled%constants.FloodNoticeEvery == 0 {
		conn.WriteLine(ThrottleNotice())
	}

	if throttled%constants.FloodWarningThreshold == 0 {
		shouldBan, count := h.rates.RecordViolation(conn.IP, "flood")
		log.Warn().
			Uint64("conn", conn.ID).
			Str("ip", conn.IP).
			Uint64("throttled", throttled).
			Int("violations", count).
			Msg("Message flood detected")

		if shouldBan {
			h.autoBan(conn.IP, "Message flooding")
			return false
		}
	}

	return true
}

// autoBan escalates repeated violations into a timed ban, kicking any live
// connections from the IP.
func (h *Handler) autoBan(ip, reason string) {
	if h.cfg.RateLimit.AutoBanThreshold <= 0 {
		return
	}
	h.bans.Ban(ip, fmt.Sprintf("Automatic ban: %s", reason), h.cfg.RateLimit.AutoBanDuration(), true)
}

// teardown closes both sides of the relay and releases per-connection state.
// Safe to call from either pump; the registry and rate limiter tolerate
// repeated removal.
func (h *Handler) teardown(conn *Conn, ws *websocket.Conn) {
	wasOpen := !conn.Closed()

	conn.Close()
	if ws != nil {
		ws.Close()
	}

	h.registry.Remove(conn.ID)
	h.rates.RemoveConnection(conn.ID)

	if wasOpen {
		log.Info().
			Uint64("conn", conn.ID).
			Str("ip", conn.IP).
			Uint64("messages", conn.messages.Load()).
			Uint64("throttled", conn.throttled.Load()).
			Msg("IRC client disconnected")
	}
}

// remoteEndpoint extracts and normalizes the client IP and port, stripping
// the IPv6-mapped IPv4 prefix.
func remoteEndpoint(sock net.Conn) (string, int) {
	host, portStr, err := net.SplitHostPort(sock.RemoteAddr().String())
	if err != nil {
		return sock.RemoteAddr().String(), 0
	}

	host = strings.TrimPrefix(host, "::ffff:")
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// writeAndClose writes a terminal protocol line then closes the socket.
func writeAndClose(sock net.Conn, line string) {
	sock.SetWriteDeadline(time.Now().Add(constants.SocketWriteTimeout))
	sock.Write([]byte(line))
	sock.Close()
}
