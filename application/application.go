// Package application wires transports, serializer, handshake and sessions
// into ready-to-use servers and clients.
//
// Every participant must register the same packet types in the same order.
// Compare [packet.Registry.Fingerprint] out of band when in doubt.
package application

import (
	"context"
	"log/slog"
	"neptunium/application/client"
	"neptunium/application/server"
	"neptunium/protocol/packet"
	"neptunium/protocol/serial"
	"neptunium/transport"
	"neptunium/transport/tcp"
	"neptunium/transport/ws"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// BindMode selects the interface a server listens on.
type BindMode uint8

const (
	// BindLocal accepts loopback connections only.
	BindLocal BindMode = iota
	// BindAny accepts connections on every interface.
	BindAny
)

func (m BindMode) Host() string {
	if m == BindAny {
		return "0.0.0.0"
	}
	return "127.0.0.1"
}

func (m BindMode) String() string {
	if m == BindAny {
		return "any"
	}
	return "local"
}

// ParseBindMode accepts "local" and "any".
func ParseBindMode(s string) (BindMode, error) {
	switch s {
	case "local", "":
		return BindLocal, nil
	case "any":
		return BindAny, nil
	}
	return 0, errors.Errorf("unknown bind mode %q", s)
}

const (
	NetworkTCP = "tcp"
	NetworkWS  = "ws"
)

type Config struct {
	// Network is NetworkTCP or NetworkWS. Empty means NetworkTCP.
	Network string
	// Path is the WebSocket endpoint path.
	Path string

	DialTimeout time.Duration

	Logger *slog.Logger
	Clock  clock.Clock

	Serial serial.Options
	Server server.Options
	Client client.Options
}

func (c Config) withDefaults() Config {
	if c.Network == "" {
		c.Network = NetworkTCP
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// CreateServer listens on port and starts serving.
// Port zero picks a free port, see [server.Server.Addr].
func CreateServer(
	mode BindMode,
	port uint16,
	credential string,
	packets *packet.Registry,
	handlers *server.Handlers,
	cfg Config,
) (*server.Server, error) {
	cfg = cfg.withDefaults()

	var (
		l   transport.ConnListener
		err error
	)
	switch cfg.Network {
	case NetworkTCP:
		l, err = tcp.Listen(tcp.NewAddr(mode.Host(), port))
	case NetworkWS:
		l, err = ws.Listen(hostPort(mode.Host(), port), cfg.Path)
	default:
		return nil, errors.Errorf("unknown network %q", cfg.Network)
	}
	if err != nil {
		return nil, err
	}

	opts := cfg.Server
	opts.Credential = credential

	srv := server.New(l, serial.New(packets, cfg.Serial), handlers, cfg.Logger, cfg.Clock, opts)
	srv.Start()

	cfg.Logger.Info("listening", "addr", l.Addr().String(), "network", cfg.Network, "bind", mode.String())

	return srv, nil
}

// Connect dials host:port and authenticates with credential.
func Connect(
	ctx context.Context,
	host string,
	port uint16,
	credential string,
	packets *packet.Registry,
	handlers *client.Handlers,
	cfg Config,
) (*client.Client, error) {
	cfg = cfg.withDefaults()

	var dialer transport.ConnDialer
	switch cfg.Network {
	case NetworkTCP:
		dialer = tcp.Dialer{Timeout: cfg.DialTimeout}
	case NetworkWS:
		dialer = ws.Dialer{Path: cfg.Path}
		if cfg.DialTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
			defer cancel()
		}
	default:
		return nil, errors.Errorf("unknown network %q", cfg.Network)
	}

	return client.Connect(
		ctx, dialer, tcp.NewAddr(host, port), credential,
		serial.New(packets, cfg.Serial), handlers, cfg.Logger, cfg.Client,
	)
}

// SplitAddr returns host and port of a listening address such as
// [server.Server.Addr].
func SplitAddr(addr transport.Addr) (host string, port uint16, err error) {
	hostport := addr.String()
	if a, ok := addr.(ws.Addr); ok {
		u, err := url.Parse(a.URL)
		if err != nil {
			return "", 0, errors.Wrapf(err, "parsing %s", a)
		}
		hostport = u.Host
	}

	host, p, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, errors.Wrapf(err, "splitting %s", addr)
	}

	n, err := strconv.ParseUint(p, 10, 16)
	if err != nil {
		return "", 0, errors.Wrapf(err, "parsing port of %s", addr)
	}
	return host, uint16(n), nil
}

func hostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10))
}
