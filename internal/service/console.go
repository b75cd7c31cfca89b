package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// Console serves the interactive evaluation session over a websocket. Each
// "evaluate" message is an independent evaluation.
type Console struct {
	svc *EvaluationService
	log *logrus.Entry
}

func NewConsole(svc *EvaluationService, log *logrus.Entry) *Console {
	return &Console{svc: svc, log: log.WithField("component", "console")}
}

// Envelope types for client <-> console communication
type consoleEnvelope struct {
	Type         string      `json:"type"`
	Ref          string      `json:"ref,omitempty"`
	Config       string      `json:"config,omitempty"`
	Expression   string      `json:"expression,omitempty"`
	Response     *Response   `json:"response,omitempty"`
	Body         *string     `json:"body,omitempty"`
	ID           string      `json:"id,omitempty"`
	Value        interface{} `json:"value,omitempty"`
	Optimization string      `json:"optimization,omitempty"`
	Message      string      `json:"message,omitempty"`
	Line         int         `json:"line,omitempty"`
	Column       int         `json:"column,omitempty"`
	Timestamp    string      `json:"timestamp,omitempty"`
}

// HandleConsole upgrades the request and runs the session until the client
// sends "close" or the connection drops. configName applies to messages
// that do not name a configuration themselves.
func (c *Console) HandleConsole(w http.ResponseWriter, r *http.Request, configName string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		c.log.WithError(err).Warn("failed to accept console connection")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sessionLog := c.log.WithField("remote", r.RemoteAddr)
	sessionLog.Debug("console session opened")
	evaluated := 0

	for {
		var msg consoleEnvelope
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				sessionLog.WithError(err).Debug("console read failed")
			}
			break
		}

		switch msg.Type {
		case "evaluate":
			evaluated++
			c.evaluate(ctx, conn, msg, configName)
		case "close":
			conn.Close(websocket.StatusNormalClosure, "client requested close")
			sessionLog.WithField("evaluations", evaluated).Debug("console session closed")
			return
		default:
			c.sendError(ctx, conn, msg.Ref, "unknown message type: "+msg.Type)
		}
	}
	sessionLog.WithField("evaluations", evaluated).Debug("console session ended")
}

func (c *Console) evaluate(ctx context.Context, conn *websocket.Conn, msg consoleEnvelope, configName string) {
	if msg.Config != "" {
		configName = msg.Config
	}
	ev, err := c.svc.Evaluate(ctx, EvaluationRequest{
		ConfigName: configName,
		Expression: msg.Expression,
		Response:   msg.Response,
		Body:       msg.Body,
	})
	if err != nil {
		c.sendError(ctx, conn, msg.Ref, err.Error())
		return
	}
	if ev.Err != nil {
		c.write(ctx, conn, consoleEnvelope{
			Type:      "error",
			Ref:       msg.Ref,
			ID:        ev.ID,
			Message:   ev.Err.Message,
			Line:      ev.Err.Line,
			Column:    ev.Err.Column,
			Timestamp: time.Now().Format(time.RFC3339Nano),
		})
		return
	}
	c.write(ctx, conn, consoleEnvelope{
		Type:         "result",
		Ref:          msg.Ref,
		ID:           ev.ID,
		Value:        ev.Value,
		Optimization: ev.Optimization.String(),
		Timestamp:    time.Now().Format(time.RFC3339Nano),
	})
}

func (c *Console) sendError(ctx context.Context, conn *websocket.Conn, ref, message string) {
	c.write(ctx, conn, consoleEnvelope{
		Type:      "error",
		Ref:       ref,
		Message:   message,
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
}

func (c *Console) write(ctx context.Context, conn *websocket.Conn, env consoleEnvelope) {
	if err := wsjson.Write(ctx, conn, env); err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"type": env.Type,
			"ref":  env.Ref,
		}).Warn("failed to write console message")
	}
}
