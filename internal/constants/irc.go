package constants

// IRC Protocol Values used on lines the bridge itself generates. These follow
// common IRC framing closely enough for mIRC, HexChat and irssi to display
// them sensibly; the bridge does not claim full numeric-reply compliance.
const (
	// ServerName is the source prefix on bridge-generated lines.
	ServerName = "irc.justachat.net"

	// LineTerminator ends every IRC line on the wire.
	LineTerminator = "\r\n"

	// NumericBanned is the ERR_YOUREBANNEDCREEP numeric used for ban and
	// region rejections.
	NumericBanned = "465"
)

// IRC Client Commands the bridge inspects while relaying. Everything else is
// forwarded verbatim.
const (
	CommandPass = "PASS"
	CommandNick = "NICK"
	CommandUser = "USER"
)

// Transport kinds recorded on live connections.
const (
	TransportPlain = "plain"
	TransportTLS   = "tls"
)
