// Package bridge implements the IRC side of the proxy: the TCP/TLS listener
// set, the per-connection handler that runs admission control and relays
// lines to the upstream WebSocket gateway, and the live connection registry
// the admin control plane reads and mutates.
package bridge

import (
	"fmt"
	"strings"

	"github.com/justachat/irc-bridge/internal/constants"
)

// Command identifies the IRC client commands the bridge inspects while
// relaying. Everything else maps to CommandOther and is forwarded untouched.
type Command int

const (
	CommandOther Command = iota
	CommandPass
	CommandNick
	CommandUser
)

// Line is one parsed IRC client line.
type Line struct {
	// Command is the recognized leading command, or CommandOther.
	Command Command

	// Arg is the first parameter after the command (the nick for NICK, the
	// username for USER, the credential for PASS). Empty for CommandOther.
	Arg string

	// Raw is the full line without the terminator.
	Raw string
}

// ParseLine classifies a single IRC line by its leading command. It never
// fails: unrecognized input is CommandOther with the raw line preserved.
func ParseLine(raw string) Line {
	command, rest, ok := strings.Cut(raw, " ")
	if !ok {
		return Line{Command: CommandOther, Raw: raw}
	}

	var cmd Command
	switch strings.ToUpper(command) {
	case constants.CommandPass:
		cmd = CommandPass
	case constants.CommandNick:
		cmd = CommandNick
	case constants.CommandUser:
		cmd = CommandUser
	default:
		return Line{Command: CommandOther, Raw: raw}
	}

	arg := strings.TrimSpace(rest)
	if i := strings.IndexByte(arg, ' '); i >= 0 {
		arg = arg[:i]
	}
	arg = strings.TrimPrefix(arg, ":")

	return Line{Command: cmd, Arg: arg, Raw: raw}
}

// The bridge generates a small set of server-to-client lines itself. They
// follow standard IRC numeric/command framing closely enough for common
// clients to display them sensibly.

// BannedLine is the terminal line sent to a banned client.
func BannedLine(reason string) string {
	return fmt.Sprintf(":%s %s * :Banned: %s%s", constants.ServerName, constants.NumericBanned, reason, constants.LineTerminator)
}

// RegionBlockedLine is the terminal line sent to a geo-blocked client.
func RegionBlockedLine() string {
	return fmt.Sprintf(":%s %s * :Connections from your region are not allowed%s", constants.ServerName, constants.NumericBanned, constants.LineTerminator)
}

// RateLimitedLine is the terminal line sent to a client over its connection
// quota.
func RateLimitedLine(retryAfterSeconds int) string {
	return fmt.Sprintf("ERROR :Too many connection attempts, try again in %d seconds%s", retryAfterSeconds, constants.LineTerminator)
}

// UpstreamFailedLine is the terminal line sent when the gateway session could
// not be established.
func UpstreamFailedLine() string {
	return fmt.Sprintf("ERROR :Cannot reach the chat gateway, try again later%s", constants.LineTerminator)
}

// ThrottleNotice warns a client that its messages are being dropped.
func ThrottleNotice() string {
	return fmt.Sprintf(":%s NOTICE * :You are sending messages too fast, slow down%s", constants.ServerName, constants.LineTerminator)
}

// KillLine is the terminal line written when an operator kicks a connection.
func KillLine(reason string) string {
	return fmt.Sprintf("ERROR :Closing Link: killed by operator (%s)%s", reason, constants.LineTerminator)
}

// BroadcastNotice carries an operator broadcast to every live client.
func BroadcastNotice(message string) string {
	return fmt.Sprintf(":%s NOTICE * :%s%s", constants.ServerName, message, constants.LineTerminator)
}

// ShutdownNotice tells clients the bridge is going down.
func ShutdownNotice() string {
	return fmt.Sprintf(":%s NOTICE * :Bridge shutting down%s", constants.ServerName, constants.LineTerminator)
}
