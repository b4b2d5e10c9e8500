package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/net/websocket"
)

// Socket message types. A "query" is answered with a "result"; the
// statement calls of the remote database client are answered with a
// "respond" carrying the caller's id. Failures of either are "error".
const (
	msgQuery    = "query"
	msgResult   = "result"
	msgRun      = "run"
	msgPrepare  = "prepare"
	msgAll      = "prepare.all"
	msgGet      = "prepare.get"
	msgFinalize = "prepare.finalize"
	msgRespond  = "respond"
	msgError    = "error"
)

type socketMessage struct {
	ID      *int64          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type socketReply struct {
	ID        *int64 `json:"id,omitempty"`
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	Truncated bool   `json:"truncated,omitempty"`
}

// statementCall is the payload of prepare.all and prepare.get.
type statementCall struct {
	Handle int64             `json:"handle"`
	Args   []json.RawMessage `json:"args"`
}

// isWebSocket reports whether r asks to upgrade to a websocket.
func isWebSocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	ws := websocket.Server{Handler: s.serveSocket}
	ws.ServeHTTP(w, r)
}

// socketSession holds the statements prepared on one connection.
type socketSession struct {
	next       int64
	statements map[int64]string
}

func (s *Server) serveSocket(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()
	conn.MaxPayloadBytes = maxBodyBytes

	ctx := conn.Request().Context()
	sess := &socketSession{statements: make(map[int64]string)}
	s.logger.Debug("socket opened", "remote", conn.Request().RemoteAddr)

	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			s.logger.Debug("socket closed", "error", err)
			return
		}

		var msg socketMessage
		reply := socketReply{Type: msgError}
		if err := json.Unmarshal(data, &msg); err != nil {
			reply.Payload = "invalid message: " + err.Error()
		} else {
			reply = s.dispatch(ctx, sess, msg)
		}

		out, err := json.Marshal(reply)
		if err != nil {
			s.logger.Error("failed to encode socket reply", "error", err)
			return
		}
		if err := websocket.Message.Send(conn, string(out)); err != nil {
			s.logger.Debug("socket send failed", "error", err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, sess *socketSession, msg socketMessage) socketReply {
	fail := func(err error) socketReply {
		return socketReply{ID: msg.ID, Type: msgError, Payload: err.Error()}
	}
	respond := func(payload any, truncated bool) socketReply {
		typ := msgRespond
		if msg.Type == msgQuery {
			typ = msgResult
		}
		return socketReply{ID: msg.ID, Type: typ, Payload: payload, Truncated: truncated}
	}

	switch msg.Type {
	case msgQuery:
		var sql string
		if err := json.Unmarshal(msg.Payload, &sql); err != nil {
			return fail(fmt.Errorf("query payload must be a string"))
		}
		rows, truncated, err := s.socketRows(ctx, sql, nil)
		if err != nil {
			return fail(err)
		}
		return respond(rows, truncated)

	case msgRun:
		sql, args, err := callArgs(msg.Payload)
		if err != nil {
			return fail(err)
		}
		rows, truncated, err := s.socketRows(ctx, sql, args)
		if err != nil {
			return fail(err)
		}
		return respond(rows, truncated)

	case msgPrepare:
		sql, _, err := callArgs(msg.Payload)
		if err != nil {
			return fail(err)
		}
		if err := s.checkStatement(sql); err != nil {
			return fail(err)
		}
		sess.next++
		sess.statements[sess.next] = sql
		return respond(sess.next, false)

	case msgAll, msgGet:
		var call statementCall
		if err := json.Unmarshal(msg.Payload, &call); err != nil {
			return fail(fmt.Errorf("invalid statement call: %w", err))
		}
		sql, ok := sess.statements[call.Handle]
		if !ok {
			return fail(fmt.Errorf("unknown statement handle %d", call.Handle))
		}
		args, err := bindArgs(call.Args)
		if err != nil {
			return fail(err)
		}
		rows, truncated, err := s.socketRows(ctx, sql, args)
		if err != nil {
			return fail(err)
		}
		if msg.Type == msgGet {
			return respond(firstRow(rows), false)
		}
		return respond(rows, truncated)

	case msgFinalize:
		var handle int64
		if err := json.Unmarshal(msg.Payload, &handle); err != nil {
			return fail(fmt.Errorf("finalize payload must be a statement handle"))
		}
		if _, ok := sess.statements[handle]; !ok {
			return fail(fmt.Errorf("unknown statement handle %d", handle))
		}
		delete(sess.statements, handle)
		return respond(nil, false)
	}
	return fail(fmt.Errorf("unknown message type %q", msg.Type))
}

// checkStatement applies the checks runSQL applies to HTTP requests.
func (s *Server) checkStatement(sql string) error {
	if strings.TrimSpace(sql) == "" {
		return errors.New("empty statement")
	}
	if s.readOnly && !IsReadOnly(sql) {
		return errors.New("read-only server")
	}
	return nil
}

// socketRows runs sql and returns its rows as a JSON array of ordered
// objects.
func (s *Server) socketRows(ctx context.Context, sql string, args []any) (json.RawMessage, bool, error) {
	if err := s.checkStatement(sql); err != nil {
		return nil, false, err
	}
	rs, err := s.engine.QueryAll(ctx, sql, s.maxRows, args...)
	if err != nil {
		return nil, false, err
	}
	body, err := EncodeRows(rs)
	if err != nil {
		return nil, false, err
	}
	return body, rs.Truncated, nil
}

// firstRow returns the first object of a JSON array of rows, or nil.
func firstRow(rows json.RawMessage) any {
	var all []json.RawMessage
	if err := json.Unmarshal(rows, &all); err != nil || len(all) == 0 {
		return nil
	}
	return all[0]
}

// callArgs splits a [sql, args...] payload.
func callArgs(payload json.RawMessage) (string, []any, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(payload, &parts); err != nil || len(parts) == 0 {
		return "", nil, errors.New("payload must be [sql, args...]")
	}
	var sql string
	if err := json.Unmarshal(parts[0], &sql); err != nil {
		return "", nil, errors.New("payload must start with the SQL text")
	}
	args, err := bindArgs(parts[1:])
	if err != nil {
		return "", nil, err
	}
	return sql, args, nil
}

// bindArgs decodes JSON values into bind parameters. Whole numbers bind
// as integers; arrays and objects are rejected.
func bindArgs(raw []json.RawMessage) ([]any, error) {
	args := make([]any, len(raw))
	for i, r := range raw {
		dec := json.NewDecoder(bytes.NewReader(r))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		switch t := v.(type) {
		case json.Number:
			if n, err := t.Int64(); err == nil {
				args[i] = n
			} else if f, err := t.Float64(); err == nil {
				args[i] = f
			} else {
				return nil, fmt.Errorf("argument %d: bad number %s", i+1, t)
			}
		case nil, string, bool:
			args[i] = t
		default:
			return nil, fmt.Errorf("argument %d: arrays and objects cannot be bound", i+1)
		}
	}
	return args, nil
}
