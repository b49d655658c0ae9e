package driver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Gremlin server status codes.
const (
	statusSuccess        = 200
	statusNoContent      = 204
	statusPartialContent = 206
	statusAuthenticate   = 407
	statusServerTimeout  = 598
)

type gremlinRequest struct {
	RequestID string         `json:"requestId"`
	Op        string         `json:"op"`
	Processor string         `json:"processor"`
	Args      map[string]any `json:"args"`
}

type gremlinResponse struct {
	RequestID string `json:"requestId"`
	Status    struct {
		Code       int            `json:"code"`
		Message    string         `json:"message"`
		Attributes map[string]any `json:"attributes"`
	} `json:"status"`
	Result struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
}

// GremlinStatusError is a non-success status returned by the server.
type GremlinStatusError struct {
	Code       int
	Message    string
	Attributes map[string]any
}

func (e *GremlinStatusError) Error() string {
	return fmt.Sprintf("gremlin server status %d: %s", e.Code, e.Message)
}

// Throttled reports server-side timeouts and Cosmos DB request-rate limits,
// which are worth retrying.
func (e *GremlinStatusError) Throttled() bool {
	if e.Code == statusServerTimeout {
		return true
	}
	switch v := e.Attributes["x-ms-status-code"].(type) {
	case int64:
		return v == 429 || v == 408
	case float64:
		return v == 429 || v == 408
	}
	return false
}

// gremlinConn is one websocket to the server. It is used by a single
// goroutine at a time (the pool hands it out exclusively).
type gremlinConn struct {
	ws       *websocket.Conn
	username string
	password string
	source   string
}

type gremlinDialOptions struct {
	URL             string
	Username        string
	Password        string
	TraversalSource string
	HandshakeTime   time.Duration
}

func dialGremlin(ctx context.Context, opts gremlinDialOptions) (*gremlinConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTime,
		Proxy:            http.ProxyFromEnvironment,
	}
	ws, resp, err := dialer.DialContext(ctx, opts.URL, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("gremlin: dial %s: status %d: %w", opts.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("gremlin: dial %s: %w", opts.URL, err)
	}
	return &gremlinConn{ws: ws, username: opts.Username, password: opts.Password, source: opts.TraversalSource}, nil
}

func (c *gremlinConn) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.ws.Close()
}

// eval submits one script and collects every result frame.
func (c *gremlinConn) eval(ctx context.Context, script string, bindings map[string]any) ([]any, error) {
	args := map[string]any{
		"gremlin":  script,
		"language": "gremlin-groovy",
	}
	if b := encodeBindings(bindings); b != nil {
		args["bindings"] = b
	}
	if c.source != "" && c.source != "g" {
		args["aliases"] = map[string]string{"g": c.source}
	}
	req := gremlinRequest{RequestID: uuid.New().String(), Op: "eval", Args: args}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(deadline)
		_ = c.ws.SetWriteDeadline(deadline)
	} else {
		_ = c.ws.SetReadDeadline(time.Time{})
		_ = c.ws.SetWriteDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := c.send(req); err != nil {
		return nil, ctxErr(ctx, err)
	}

	var out []any
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return nil, ctxErr(ctx, err)
		}
		var resp gremlinResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			return nil, fmt.Errorf("gremlin: bad response frame: %w", err)
		}
		if resp.RequestID != "" && resp.RequestID != req.RequestID {
			continue
		}

		switch resp.Status.Code {
		case statusSuccess, statusPartialContent:
			data, err := decodeGraphSON(resp.Result.Data)
			if err != nil {
				return nil, err
			}
			if list, ok := data.([]any); ok {
				out = append(out, list...)
			} else if data != nil {
				out = append(out, data)
			}
			if resp.Status.Code == statusSuccess {
				return out, nil
			}
		case statusNoContent:
			return out, nil
		case statusAuthenticate:
			if err := c.authenticate(req.RequestID); err != nil {
				return nil, ctxErr(ctx, err)
			}
		default:
			attrs, _ := untype(resp.Status.Attributes).(map[string]any)
			return nil, &GremlinStatusError{Code: resp.Status.Code, Message: resp.Status.Message, Attributes: attrs}
		}
	}
}

// authenticate answers a 407 challenge with SASL PLAIN.
func (c *gremlinConn) authenticate(requestID string) error {
	sasl := base64.StdEncoding.EncodeToString([]byte("\x00" + c.username + "\x00" + c.password))
	return c.send(gremlinRequest{
		RequestID: requestID,
		Op:        "authentication",
		Args:      map[string]any{"sasl": sasl, "saslMechanism": "PLAIN"},
	})
}

// send writes a binary frame: mime length byte, mime type, JSON body.
func (c *gremlinConn) send(req gremlinRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("gremlin: encode request: %w", err)
	}
	frame := make([]byte, 0, 1+len(graphSONMimeType)+len(body))
	frame = append(frame, byte(len(graphSONMimeType)))
	frame = append(frame, graphSONMimeType...)
	frame = append(frame, body...)
	return c.ws.WriteMessage(websocket.BinaryMessage, frame)
}

// ctxErr prefers the context's error when the context ended the call.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

// gremlinPool bounds the number of concurrent websockets and reuses idle ones.
type gremlinPool struct {
	opts gremlinDialOptions
	sem  chan struct{}
	idle chan *gremlinConn
}

func newGremlinPool(opts gremlinDialOptions, size int) *gremlinPool {
	if size < 1 {
		size = 1
	}
	return &gremlinPool{
		opts: opts,
		sem:  make(chan struct{}, size),
		idle: make(chan *gremlinConn, size),
	}
}

func (p *gremlinPool) get(ctx context.Context) (*gremlinConn, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case c := <-p.idle:
		return c, nil
	default:
	}
	c, err := dialGremlin(ctx, p.opts)
	if err != nil {
		<-p.sem
		return nil, err
	}
	return c, nil
}

// put returns c to the pool, or closes it when broken.
func (p *gremlinPool) put(c *gremlinConn, broken bool) {
	defer func() { <-p.sem }()
	if broken {
		_ = c.Close()
		return
	}
	select {
	case p.idle <- c:
	default:
		_ = c.Close()
	}
}

func (p *gremlinPool) close() {
	for {
		select {
		case c := <-p.idle:
			_ = c.Close()
		default:
			return
		}
	}
}
