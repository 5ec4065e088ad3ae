package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"blossom/internal/session"
	"blossom/internal/types"
)

const (
	builderWSWriteWait = 10 * time.Second
	builderWSPongWait  = 60 * time.Second
	builderWSPingEvery = (builderWSPongWait * 9) / 10
)

var builderWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// builderWSInbound is a client message: "submit" carries a Submission, "ping" asks for
// a "pong".
type builderWSInbound struct {
	Type string `json:"type"`
	session.Submission
}

type builderWSOutbound struct {
	Type    string             `json:"type"`
	Surface string             `json:"surface,omitempty"`
	Token   *types.StreamToken `json:"token,omitempty"`
	Result  *builderResponse   `json:"result,omitempty"`
	Status  int                `json:"status,omitempty"`
	Message string             `json:"message,omitempty"`
}

// GET /api/builder/:surface/ws
//
// A submission runs in the background so pings and further messages are still read; a
// second submit while one runs is answered with a 409 error message.
func (h *APIHandler) builderWS(c *gin.Context) {
	surface := session.NormalizeSurface(c.Param("surface"))

	conn, err := builderWSUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("builder ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(builderWSPongWait)); err != nil {
		h.logger.Warn("builder ws set read deadline failed", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(builderWSPongWait))
	})

	writeCh := make(chan builderWSOutbound, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(builderWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(builderWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(builderWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	push := func(out builderWSOutbound) {
		select {
		case writeCh <- out:
		case <-ctx.Done():
		}
	}

	var running sync.WaitGroup
	defer running.Wait()

	push(builderWSOutbound{Type: "ready", Surface: surface})

	for {
		var in builderWSInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}
		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "ping":
			push(builderWSOutbound{Type: "pong"})
		case "submit":
			sub := in.Submission
			sub.SurfaceID = surface
			running.Add(1)
			go func() {
				defer running.Done()
				res, err := h.submitter.SubmitStream(ctx, sub, func(tok types.StreamToken) {
					push(builderWSOutbound{Type: "token", Surface: surface, Token: &tok})
				})
				if err != nil {
					push(builderWSOutbound{Type: "error", Surface: surface, Status: errorStatus(err), Message: err.Error()})
					return
				}
				push(builderWSOutbound{Type: "result", Surface: surface, Result: &builderResponse{Surface: surface, Result: res}})
			}()
		default:
			push(builderWSOutbound{Type: "error", Status: http.StatusBadRequest, Message: "type must be submit or ping"})
		}
	}
}
