package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"fairCaseServer/config"
	"fairCaseServer/game"
	"fairCaseServer/logger"
	"fairCaseServer/state"
)

const intentTimeout = 10 * time.Second

// Reply types for direct responses
const (
	ReplySubscribed   = "subscribed"
	ReplyUnsubscribed = "unsubscribed"
	ReplyPublished    = "published"
	ReplyRound        = "round"
	ReplyRevealed     = "revealed"
	ReplyClientSeed   = "client_seed"
	ReplyVerified     = "verified"
	ReplyError        = "error"
)

type channelData struct {
	Channel string `json:"channel"`
}

type sessionData struct {
	SessionID  string `json:"sessionId"`
	ClientSeed string `json:"clientSeed,omitempty"`
}

// VerifyReply carries the verification report and its verdict.
type VerifyReply struct {
	Valid  bool         `json:"valid"`
	Report *game.Report `json:"report"`
	Error  string       `json:"error,omitempty"`
}

// handleMessage routes client intents
func (c *ClientConnection) handleMessage(msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		c.handleSubscribe(msg.Data, true)
	case "unsubscribe":
		c.handleSubscribe(msg.Data, false)
	case "publish", "open", "reveal", "client_seed":
		c.handleSessionIntent(msg.Type, msg.Data)
	case "verify":
		c.handleVerify(msg.Data)
	case "ping":
		c.reply(ServerMessage{Type: "pong"})
	default:
		c.reply(ServerMessage{Type: ReplyError, Error: "unknown message type: " + msg.Type})
	}
}

func (c *ClientConnection) handleSubscribe(raw json.RawMessage, subscribe bool) {
	var data channelData
	if err := json.Unmarshal(raw, &data); err != nil || !validChannel(data.Channel) {
		c.reply(ServerMessage{Type: ReplyError, Error: "invalid channel"})
		return
	}

	c.mu.Lock()
	if subscribe {
		c.Subscriptions[data.Channel] = true
	} else {
		delete(c.Subscriptions, data.Channel)
	}
	c.mu.Unlock()

	replyType := ReplySubscribed
	if !subscribe {
		replyType = ReplyUnsubscribed
	}
	logger.Debug("📡 Subscription changed", "client", c.ID, "channel", data.Channel, "subscribed", subscribe)
	c.reply(ServerMessage{Type: replyType, Data: data})
}

func validChannel(channel string) bool {
	if channel == config.WSFairnessChannel {
		return true
	}
	id, ok := strings.CutPrefix(channel, "session:")
	return ok && id != ""
}

func (c *ClientConnection) handleSessionIntent(intent string, raw json.RawMessage) {
	if c.hub.sessions == nil {
		c.reply(ServerMessage{Type: ReplyError, Error: "sessions unavailable"})
		return
	}

	var data sessionData
	if err := json.Unmarshal(raw, &data); err != nil || data.SessionID == "" {
		c.reply(ServerMessage{Type: ReplyError, Error: "sessionId is required"})
		return
	}

	session, err := c.hub.sessions.Get(data.SessionID)
	if err != nil {
		c.reply(ServerMessage{Type: ReplyError, Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
	defer cancel()

	switch intent {
	case "publish":
		ev, err := session.Publish(ctx)
		c.replyResult(ReplyPublished, ev, err)
	case "open":
		res, err := session.OpenRound(ctx)
		c.replyResult(ReplyRound, res, err)
	case "reveal":
		rec, err := session.Reveal(ctx)
		c.replyResult(ReplyRevealed, rec, err)
	case "client_seed":
		seed, err := session.SetClientSeed(data.ClientSeed)
		c.replyResult(ReplyClientSeed, sessionData{SessionID: session.ID, ClientSeed: seed}, err)
	}
}

func (c *ClientConnection) replyResult(replyType string, data any, err error) {
	if err != nil {
		if !errors.Is(err, game.ErrPreconditionViolated) && !errors.Is(err, state.ErrInsufficientBalance) {
			logger.Error("❌ Intent failed", "client", c.ID, "type", replyType, logger.Err(err))
		}
		c.reply(ServerMessage{Type: ReplyError, Error: err.Error()})
		return
	}
	c.reply(ServerMessage{Type: replyType, Data: data})
}

func (c *ClientConnection) handleVerify(raw json.RawMessage) {
	var t game.Transcript
	if err := json.Unmarshal(raw, &t); err != nil || t.ServerSeed == "" {
		c.reply(ServerMessage{Type: ReplyError, Error: "invalid transcript"})
		return
	}

	report, err := game.Verify(t)
	out := VerifyReply{Valid: err == nil, Report: report}
	if err != nil {
		out.Error = err.Error()
	}
	c.reply(ServerMessage{Type: ReplyVerified, Data: out})
}
