package feed

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Aidin1998/feedrelay/pkg/errors"
)

const closeGracePeriod = time.Second

// Dialer opens websocket connections to a price feed
type Dialer struct {
	URL              string
	HandshakeTimeout time.Duration
	Header           http.Header
	Logger           *zap.Logger
}

// Client is a single feed connection. It is owned by one session and must
// not be read from concurrently.
type Client struct {
	conn   *websocket.Conn
	url    string
	logger *zap.Logger
}

// Dial establishes a websocket connection to the configured URL.
func (d *Dialer) Dial(ctx context.Context) (*Client, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	wsDialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	conn, resp, err := wsDialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, errors.ConnectionError.Explain("dial %s (status %d)", d.URL, status).Wrap(err)
	}
	logger.Debug("Connected to feed", zap.String("url", d.URL))

	return &Client{conn: conn, url: d.URL, logger: logger}, nil
}

// Subscribe sends the subscribe request for the given products and channels.
func (c *Client) Subscribe(ctx context.Context, sub Subscription) error {
	msg, err := sub.Message()
	if err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(dl)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return errors.ConnectionError.Explain("subscribe").Wrap(err)
	}
	c.logger.Debug("Subscribed",
		zap.Strings("product_ids", sub.ProductIDs),
		zap.Strings("channels", sub.Channels))
	return nil
}

// Next blocks until the next data frame arrives. Cancelling ctx or reaching its
// deadline aborts a blocked read and returns the context error.
func (c *Client) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline, hasDeadline := ctx.Deadline()
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, errors.ConnectionError.Explain("set read deadline").Wrap(err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.conn.ReadMessage()
	if err == nil {
		return data, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	var netErr net.Error
	if hasDeadline && errors.As(err, &netErr) && netErr.Timeout() && !time.Now().Before(deadline) {
		return nil, context.DeadlineExceeded
	}
	return nil, errors.ConnectionError.Explain("read from %s", c.url).Wrap(err)
}

// Close sends a close frame and releases the connection.
func (c *Client) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return c.conn.Close()
}
