package comms

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fakeyudi/scopecomms/internal/clock"
	"github.com/fakeyudi/scopecomms/internal/config"
	"github.com/fakeyudi/scopecomms/internal/transport"
)

type options struct {
	address        string
	dialer         transport.Dialer
	clock          clock.Clock
	logger         *log.Logger
	registerer     prometheus.Registerer
	flushThreshold int
	maxBuffered    int
	connectTimeout time.Duration
	reconnectDelay time.Duration
	writeTimeout   time.Duration
	editQueue      int
}

func defaultOptions() options {
	o := options{editQueue: 64}
	applyConfig(&o, config.Defaults())
	return o
}

func applyConfig(o *options, cfg config.Config) {
	o.address = cfg.Address
	o.flushThreshold = cfg.FlushThreshold
	o.maxBuffered = cfg.MaxBuffered
	o.connectTimeout = cfg.ConnectTimeout()
	o.reconnectDelay = cfg.ReconnectDelay()
	o.writeTimeout = cfg.WriteTimeout()
}

func (o *options) validate() error {
	switch {
	case o.flushThreshold <= 0:
		return fmt.Errorf("flush threshold must be positive, got %d", o.flushThreshold)
	case o.maxBuffered < o.flushThreshold:
		return fmt.Errorf("max buffered (%d) is below the flush threshold (%d)", o.maxBuffered, o.flushThreshold)
	case o.connectTimeout <= 0 || o.writeTimeout <= 0:
		return fmt.Errorf("connect and write timeouts must be positive")
	case o.reconnectDelay < 0:
		return fmt.Errorf("reconnect delay must not be negative")
	case o.editQueue <= 0:
		return fmt.Errorf("edit queue must be positive")
	}
	return nil
}

// Option configures a Session.
type Option func(*options)

// WithConfig applies address, timeouts and buffer sizes from cfg.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { applyConfig(o, cfg) }
}

// WithAddress sets the server address; see transport.ParseAddress.
func WithAddress(addr string) Option {
	return func(o *options) { o.address = addr }
}

// WithDialer overrides address parsing with an explicit dialer.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the session's metrics. Without it they are
// collected but not exported.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// WithFlushThreshold sets the buffered size that triggers an automatic flush.
func WithFlushThreshold(n int) Option {
	return func(o *options) { o.flushThreshold = n }
}

// WithMaxBuffered caps the outbound buffer.
func WithMaxBuffered(n int) Option {
	return func(o *options) { o.maxBuffered = n }
}

func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

func WithReconnectDelay(d time.Duration) Option {
	return func(o *options) { o.reconnectDelay = d }
}

// WithWriteTimeout bounds every transport write, including the final flush
// in Shutdown.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}
