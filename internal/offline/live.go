package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const livePath = "/ws/alerts"

// LiveFeed subscribes to the server's live alert socket.
type LiveFeed struct {
	url         string
	dialer      *websocket.Dialer
	readTimeout time.Duration
	retry       time.Duration
	logger      *zap.Logger
}

// NewLiveFeed derives the socket address from the API base URL.
func NewLiveFeed(apiURL string, readTimeout, retry time.Duration, logger *zap.Logger) (*LiveFeed, error) {
	parsed, err := url.Parse(strings.TrimRight(apiURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported api url scheme %q", parsed.Scheme)
	}
	parsed.Path += livePath

	return &LiveFeed{
		url: parsed.String(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		readTimeout: readTimeout,
		retry:       retry,
		logger:      logger,
	}, nil
}

func (f *LiveFeed) URL() string { return f.url }

func (f *LiveFeed) Connect(ctx context.Context) (*LiveConn, error) {
	f.logger.Info("live connect start", zap.String("url", f.url))
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		f.logger.Warn("live connect failed", zap.String("url", f.url), zap.Error(err))
		return nil, err
	}
	f.logger.Info("live connect success", zap.String("url", f.url))

	c := &LiveConn{conn: conn, readTimeout: f.readTimeout, logger: f.logger}
	conn.SetPingHandler(c.answerPing)
	return c, nil
}

// Watch delivers every received alert to handle, reconnecting after a lost connection, until ctx
// is done.
func (f *LiveFeed) Watch(ctx context.Context, handle func(domain.Alert)) error {
	for {
		conn, err := f.Connect(ctx)
		if err == nil {
			err = f.consume(ctx, conn, handle)
		}
		if ctx.Err() != nil {
			return nil
		}
		f.logger.Warn("live feed interrupted, reconnecting", zap.Duration("retry", f.retry), zap.Error(err))

		timer := time.NewTimer(f.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (f *LiveFeed) consume(ctx context.Context, conn *LiveConn, handle func(domain.Alert)) error {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		alert, err := conn.Receive()
		if err != nil {
			return err
		}
		if alert != nil {
			handle(*alert)
		}
	}
}

// LiveConn is one open live socket. Pings from the server are answered while Receive runs.
type LiveConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	logger      *zap.Logger
}

func (c *LiveConn) answerPing(appData string) error {
	c.extendDeadline()
	err := c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	if err == websocket.ErrCloseSent {
		return nil
	}
	return err
}

func (c *LiveConn) extendDeadline() {
	if c.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
}

// Receive blocks for the next alert. Messages that are not alerts yield nil.
func (c *LiveConn) Receive() (*domain.Alert, error) {
	c.extendDeadline()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	alert, err := decodeAlert(data)
	if err != nil {
		c.logger.Debug("live message ignored", zap.Error(err))
		return nil, nil
	}
	return alert, nil
}

func (c *LiveConn) Close() error {
	return c.conn.Close()
}

func decodeAlert(data []byte) (*domain.Alert, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty message")
	}
	var alert domain.Alert
	if err := json.Unmarshal(trimmed, &alert); err != nil {
		return nil, fmt.Errorf("decode alert: %w", err)
	}
	if alert.ID == 0 {
		return nil, fmt.Errorf("message without alert id")
	}
	return &alert, nil
}
