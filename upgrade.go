package wsbridge

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gobwas/httphead"
)

const (
	headerUpgrade    = "Upgrade"
	headerConnection = "Connection"
)

var connectionUpgrade = []byte("upgrade")

// IsUpgradeRequest reports whether the request headers ask to switch
// protocols to WebSocket.
//
// See https://tools.ietf.org/html/rfc6455#section-4.1
// The request MUST contain an Upgrade header field whose value equals
// "websocket" (case-insensitive) and a Connection header field that includes
// the "upgrade" token.
func IsUpgradeRequest(h http.Header) bool {
	if !strings.EqualFold(h.Get(headerUpgrade), "websocket") {
		return false
	}
	c := h.Get(headerConnection)
	if c == "Upgrade" {
		return true
	}
	var found bool
	httphead.ScanTokens([]byte(c), func(token []byte) bool {
		found = bytes.EqualFold(token, connectionUpgrade)
		return !found
	})
	return found
}
