// Package push receives the backend's event stream: a websocket carrying
// {message, payload} envelopes, decoded into job.Message values in
// delivery order.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teranos/scrapedash/errors"
	"github.com/teranos/scrapedash/job"
	"github.com/teranos/scrapedash/logger"
)

// Conn abstracts the websocket for testability.
// *websocket.Conn satisfies it; tests use a channel of raw frames.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens the push channel
type Dialer struct {
	URL              string
	HandshakeTimeout time.Duration
	Header           http.Header
}

// Dial connects to the events endpoint
func (d Dialer) Dial(ctx context.Context) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "failed to connect to %s (status %d)", d.URL, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "failed to connect to %s", d.URL)
	}
	return conn, nil
}

// Listen reads envelopes from conn until it fails or ctx ends, passing
// each decoded message to handle in arrival order. Undecodable frames are
// logged and skipped. The returned error wraps ErrChannelClosed, or is
// ctx.Err() when the caller stopped listening.
func Listen(ctx context.Context, conn Conn, handle func(job.Message), log *zap.SugaredLogger) error {
	if log == nil {
		log = logger.ComponentLogger("push")
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			conn.Close()
			log.Infow("Push channel closed", logger.FieldError, err)
			return errors.Wrap(errors.ErrChannelClosed, err.Error())
		}

		// Only transport errors end the loop; a frame that is not an envelope is dropped
		var env job.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			log.Warnw("Dropping undecodable push frame",
				logger.FieldBytes, len(frame),
				logger.FieldError, err,
			)
			continue
		}

		msg, err := env.Decode()
		if err != nil {
			log.Warnw("Dropping malformed push message",
				logger.FieldMessage, env.Message,
				logger.FieldError, err,
			)
			continue
		}

		log.Debugw("Push message",
			logger.FieldMessage, msg.Kind(),
			logger.FieldJobID, msg.JobID(),
		)
		handle(msg)
	}
}
