// Package listener subscribes to the live report stream of an adm300_api
// instance and reconnects with exponential backoff when the link drops.
package listener

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/NotCoffee418/adm300_monitor/pkg/sentence"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var ErrMaxRetries = errors.New("max connection retries reached")

type Options struct {
	TLS            bool
	MaxRetries     int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	// No frame for this long, pongs included, drops the connection.
	ReadTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:     10,
		BaseRetryDelay: 2 * time.Second,
		MaxRetryDelay:  60 * time.Second,
		ReadTimeout:    60 * time.Second,
	}
}

type ReportHandler func(report sentence.ParsedReport)

// Listen connects to host and calls handle for every report until ctx is
// cancelled (nil error) or MaxRetries consecutive dials fail.
func Listen(ctx context.Context, host string, opts Options, handle ReportHandler, log *logrus.Logger) error {
	defaults := DefaultOptions()
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaults.MaxRetries
	}
	if opts.BaseRetryDelay <= 0 {
		opts.BaseRetryDelay = defaults.BaseRetryDelay
	}
	if opts.MaxRetryDelay <= 0 {
		opts.MaxRetryDelay = defaults.MaxRetryDelay
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaults.ReadTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	if opts.TLS {
		u.Scheme = "wss"
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	retryCount := 0
	for {
		if retryCount > 0 {
			retryDelay := backoff(retryCount, opts.BaseRetryDelay, opts.MaxRetryDelay)
			log.Infof("Retrying connection in %v... (attempt %d/%d)", retryDelay, retryCount+1, opts.MaxRetries)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil
			}
		}

		log.Infof("Connecting to %s", u.String())
		c, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warnf("Connection failed: %v", err)
			retryCount++
			if retryCount >= opts.MaxRetries {
				log.Errorf("Max retries (%d) reached. Giving up.", opts.MaxRetries)
				return ErrMaxRetries
			}
			continue
		}

		log.Info("Connected! Accepting ADM-300 reports.")
		retryCount = 0

		broken := handleConnection(ctx, c, opts.ReadTimeout, handle, log)
		c.Close()
		if !broken {
			return nil
		}
		log.Warn("Connection lost, will retry...")
		retryCount = 1
	}
}

func backoff(retryCount int, base, max time.Duration) time.Duration {
	if retryCount > 16 {
		return max
	}
	delay := time.Duration(1<<(retryCount-1)) * base
	if delay > max {
		delay = max
	}
	return delay
}

// handleConnection returns true when the connection broke and false on a
// requested shutdown.
func handleConnection(ctx context.Context, c *websocket.Conn, readTimeout time.Duration, handle ReportHandler, log *logrus.Logger) bool {
	done := make(chan struct{})

	c.SetReadDeadline(time.Now().Add(readTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warnf("WebSocket error: %v", err)
				} else {
					log.Infof("Connection closed: %v", err)
				}
				return
			}
			c.SetReadDeadline(time.Now().Add(readTimeout))

			if messageType != websocket.TextMessage {
				log.Debugf("Ignoring websocket message of type %d", messageType)
				continue
			}
			report := sentence.ReportFromJsonBytes(message)
			if report == nil {
				log.Warnf("Failed to parse report: %s", string(message))
				continue
			}
			handle(*report)
		}
	}()

	ticker := time.NewTicker(readTimeout / 3)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return true
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warnf("Failed to send ping: %v", err)
			}
		case <-ctx.Done():
			log.Info("Shutting down listener, closing connection...")
			err := c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			if err != nil {
				log.Warnf("Error sending close message: %v", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return false
		}
	}
}
