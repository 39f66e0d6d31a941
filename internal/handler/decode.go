// Package handler serves DCL decoding over a websocket.
package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rcarmo/go-dcl/internal/codec"
	"github.com/rcarmo/go-dcl/internal/config"
	"github.com/rcarmo/go-dcl/internal/convert"
	"github.com/rcarmo/go-dcl/internal/logging"
	"github.com/rcarmo/go-dcl/internal/raster"
)

const (
	webSocketReadBufferSize  = 8192
	webSocketWriteBufferSize = 8192 * 2

	writeWait = 10 * time.Second

	defaultFormat = raster.FormatPNG
)

var errTextMessage = errors.New("expected a binary message")

// errorReply is sent as a text message when a request cannot be decoded.
type errorReply struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Decoder upgrades requests to websockets and answers every binary DCL
// message with the encoded image.
type Decoder struct {
	upgrader       websocket.Upgrader
	allowedOrigins []string
	maxMessageSize int64
	opts           codec.Options
	log            *logging.Logger
}

// New returns a Decoder configured from cfg. A nil logger means the
// default logger.
func New(cfg *config.Config, log *logging.Logger) *Decoder {
	if log == nil {
		log = logging.Default()
	}
	if cfg == nil {
		cfg = config.Defaults()
	}

	d := &Decoder{
		allowedOrigins: cfg.Server.AllowedOrigins,
		maxMessageSize: cfg.Server.MaxMessageSize,
		opts:           codec.Options{StrictStreamEnd: cfg.Convert.StrictStreamEnd},
		log:            log,
	}
	d.upgrader = websocket.Upgrader{
		ReadBufferSize:  webSocketReadBufferSize,
		WriteBufferSize: webSocketWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isAllowedOrigin(r.Header.Get("Origin"), d.allowedOrigins)
		},
	}
	return d
}

func (d *Decoder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	format := defaultFormat
	if name := r.URL.Query().Get("format"); name != "" {
		f, err := raster.ParseFormat(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		format = f
	}

	wsConn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.log.Warn("upgrade websocket: %v", err)
		return
	}

	defer func() {
		if err = wsConn.Close(); err != nil {
			d.log.Debug("error closing websocket: %v", err)
		}
	}()

	wsConn.SetReadLimit(d.maxMessageSize)
	d.serve(wsConn, format)
}

func (d *Decoder) serve(wsConn *websocket.Conn, format raster.Format) {
	for {
		messageType, data, err := wsConn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				d.log.Warn("error reading message from ws: %v", err)
			}
			return
		}

		_ = wsConn.SetWriteDeadline(time.Now().Add(writeWait))

		if messageType != websocket.BinaryMessage {
			err = wsConn.WriteJSON(errorReply{Error: errTextMessage.Error(), Kind: "BadMessage"})
		} else if reply, derr := d.render(data, format); derr != nil {
			d.log.Info("decode failed: %v", derr)
			err = wsConn.WriteJSON(errorReply{Error: derr.Error(), Kind: codec.ErrorKind(derr)})
		} else {
			err = wsConn.WriteMessage(websocket.BinaryMessage, reply)
		}

		if err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				d.log.Warn("failed sending message to ws: %v", err)
			}
			return
		}
	}
}

// render decodes one DCL file, optionally zstd-wrapped, into an encoded image.
func (d *Decoder) render(data []byte, format raster.Format) ([]byte, error) {
	block, err := convert.Unwrap(data)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	pixels, err := codec.Decode(block, &d.opts)
	if err != nil {
		return nil, err
	}

	img, err := codec.ToImage(pixels)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := raster.Encode(&buf, img, format); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	d.log.Debug("decoded %d bytes to %s (%d bytes) in %s", len(data), format, buf.Len(), time.Since(start))
	return buf.Bytes(), nil
}

// isAllowedOrigin accepts requests without an Origin header (non-browser
// clients), localhost origins, and entries from the allow-list with or
// without a scheme. An empty list allows every origin.
func isAllowedOrigin(origin string, allowed []string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}

	normalized := strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://")
	normalized = strings.TrimSuffix(normalized, "/")

	if strings.HasPrefix(normalized, "localhost") || strings.HasPrefix(normalized, "127.0.0.1") {
		return true
	}

	for _, entry := range allowed {
		candidate := strings.TrimSuffix(strings.TrimSpace(entry), "/")
		if candidate == "" {
			continue
		}

		if candidate == origin || candidate == normalized {
			return true
		}

		if strings.TrimPrefix(candidate, "http://") == normalized || strings.TrimPrefix(candidate, "https://") == normalized {
			return true
		}
	}

	return false
}
