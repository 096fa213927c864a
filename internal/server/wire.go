package server

import (
	"time"

	"taskpilot/internal/bridge"
	"taskpilot/internal/engine"
)

// Wire message types. Every frame the server sends is a wireMessage with one
// of these types.
const (
	TypeSessionCreated      = "session-created"
	TypeUserEcho            = "user-echo"
	TypeProgressStep        = "progress-step"
	TypeRouteDecision       = "route-decision"
	TypeClarificationNeeded = "clarification-needed"
	TypeFinalResult         = "final-result"
	TypeError               = "error"
	TypeKeepAlive           = "keep-alive"
)

// wireMessage is the envelope for every server-to-client frame.
type wireMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

func newWireMessage(msgType string, data any) wireMessage {
	return wireMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// clientMessage is what the browser sends per user turn. SessionID is
// optional; when present it must name the session this connection owns.
type clientMessage struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func eventToWire(ev bridge.Event) wireMessage {
	switch ev.Kind {
	case bridge.EventStep:
		return newWireMessage(TypeProgressStep, map[string]any{"step": ev.Text})
	case bridge.EventRoute:
		return newWireMessage(TypeRouteDecision, map[string]any{"route": ev.Text})
	case bridge.EventKeepAlive:
		return newWireMessage(TypeKeepAlive, map[string]any{})
	case bridge.EventClarification:
		return newWireMessage(TypeClarificationNeeded, map[string]any{
			"question": ev.Text,
			"round":    ev.Result.ClarificationRounds,
		})
	case bridge.EventError:
		return newWireMessage(TypeError, map[string]any{"message": ev.Text})
	default:
		return newWireMessage(TypeFinalResult, finalPayload(ev.Result))
	}
}

func finalPayload(res *engine.Result) map[string]any {
	return map[string]any{
		"result":       res.FinalResult,
		"route":        res.Route.String(),
		"clarified":    res.Clarified,
		"refined_task": res.RefinedTask,
		"steps":        res.Steps,
	}
}
