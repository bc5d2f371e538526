/*
Package handler provides the HTTP surface of the relay.

This file contains the WebSocket upgrade handler. It rate limits connection
attempts per IP, upgrades the connection and hands it to a new chat session:
NewSession registers the connection, Run drives its state machine until
disconnect.
*/
package handler

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"pairchat/internal/app/chat"
	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/limiter"
	"pairchat/internal/pkg/logx"
	"pairchat/internal/pkg/resp"
)

// HandleWebSocket creates the HandlerFunc that accepts chat connections.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		session := chat.NewSession(conn, deps.Service, deps.Registry, deps.Config)

		logx.Info("WebSocket connection established, session starting.")

		session.Run()
	}
}
