package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/caseforge/caseforge/services/testgen/datatypes"
	"github.com/caseforge/caseforge/services/testgen/engine"
	"github.com/caseforge/caseforge/services/testgen/observability"
)

// WSRequest is one client command on the workflow websocket.
type WSRequest struct {
	Action  string            `json:"action"` // "start", "submit_answers", "select_case", "state", "tree"
	Level   datatypes.Level   `json:"level,omitempty"`
	Answers map[string]string `json:"answers,omitempty"`
	Index   int               `json:"index,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024 * 1024,
	WriteBufferSize: 1024 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleWorkflowWebSocket runs the generation workflow over a websocket.
//
// Each request is answered with the same frame sequence as the SSE
// endpoints: zero or more token frames followed by exactly one complete
// or error frame. State and tree queries answer with a single message.
func HandleWorkflowWebSocket(orch *engine.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		slog.Info("Websocket client connected", "session_id", sessionID)

		for {
			var req WSRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("Websocket client disconnected", "error", err.Error())
				break
			}

			ctx := c.Request.Context()
			sink := func(frame datatypes.Frame) error {
				return sendJSON(ws, frame)
			}

			switch req.Action {
			case "start":
				runWSOperation(observability.OperationStart, func() error {
					return orch.StartStream(ctx, sessionID, sink)
				})

			case "submit_answers":
				if !req.Level.Valid() {
					if sendJSON(ws, datatypes.Frame{Type: datatypes.FrameError, Error: "invalid level"}) != nil {
						return
					}
					continue
				}
				runWSOperation(observability.OperationSubmitAnswers, func() error {
					return orch.SubmitAnswersStream(ctx, sessionID, req.Level, req.Answers, sink)
				})

			case "select_case":
				runWSOperation(observability.OperationSelectCase, func() error {
					return orch.SelectCaseStream(ctx, sessionID, req.Level, req.Index, sink)
				})

			case "state":
				st, err := orch.GetState(ctx, sessionID)
				if err != nil {
					if sendJSON(ws, datatypes.Frame{Type: datatypes.FrameError, Error: engine.SanitizeError(err)}) != nil {
						return
					}
					continue
				}
				if sendJSON(ws, datatypes.Frame{Type: datatypes.FrameComplete, State: st}) != nil {
					return
				}

			case "tree":
				st, err := orch.GetState(ctx, sessionID)
				if err != nil {
					if sendJSON(ws, datatypes.Frame{Type: datatypes.FrameError, Error: engine.SanitizeError(err)}) != nil {
						return
					}
					continue
				}
				if sendJSON(ws, st.BuildTree()) != nil {
					return
				}

			default:
				slog.Warn("unknown websocket action", "action", req.Action)
				if sendJSON(ws, datatypes.Frame{Type: datatypes.FrameError, Error: "unknown action"}) != nil {
					return
				}
			}
		}
	}
}

// runWSOperation records request metrics around a streamed operation.
// Error frames are already delivered by the engine's relay.
func runWSOperation(op observability.Operation, run func() error) {
	err := run()
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(op, err == nil)
		if err != nil {
			_, code, _ := mapError(err)
			m.RecordError(op, code)
		}
	}
	if err != nil {
		slog.Error("websocket workflow operation failed", "operation", string(op), "error", err)
	}
}
