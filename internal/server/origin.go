package server

import (
	"net"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

// checkOrigin returns an origin policy for WebSocket upgrades:
// same-origin, localhost and private-range clients are allowed.
func checkOrigin(log zerolog.Logger) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Same-origin requests omit the Origin header
		if origin == "" {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil {
			log.Warn().Str("origin", origin).Msg("rejected websocket connection: invalid origin URL")
			return false
		}

		host := u.Hostname()

		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			return true
		}

		requestHost := r.Host
		if h, _, err := net.SplitHostPort(requestHost); err == nil {
			requestHost = h
		}
		if host == requestHost {
			return true
		}

		if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
			return true
		}

		log.Warn().Str("origin", origin).Str("host", host).Msg("rejected websocket connection")
		return false
	}
}
