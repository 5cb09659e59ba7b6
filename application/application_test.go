package application

import (
	"context"
	"io"
	"log/slog"
	"math"
	"neptunium/application/client"
	"neptunium/application/server"
	"neptunium/lib/diag"
	"neptunium/lib/metrics"
	"neptunium/protocol"
	"neptunium/protocol/field"
	"neptunium/protocol/packet"
	"neptunium/session"
	"neptunium/transport/ws"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

type shout struct {
	Words []string
	Loud  bool
}

func (s *shout) Fields() []field.Field {
	return []field.Field{field.New(0, &s.Words), field.New(1, &s.Loud)}
}

func newPackets() *packet.Registry {
	reg := packet.NewRegistry()
	packet.MustRegister[shout](reg)
	return reg
}

func TestBindMode(t *testing.T) {
	assert.Equal(t, "127.0.0.1", BindLocal.Host())
	assert.Equal(t, "0.0.0.0", BindAny.Host())

	m, err := ParseBindMode("any")
	require.NoError(t, err)
	assert.Equal(t, BindAny, m)

	m, err = ParseBindMode("")
	require.NoError(t, err)
	assert.Equal(t, BindLocal, m)

	_, err = ParseBindMode("everywhere")
	assert.Error(t, err)
}

func TestSplitAddr(t *testing.T) {
	host, port, err := SplitAddr(ws.Addr{URL: "ws://127.0.0.1:8080/chat"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.EqualValues(t, 8080, port)
}

type ApplicationTestSuite struct {
	suite.Suite

	network string
}

func TestApplicationOverTCP(t *testing.T) {
	suite.Run(t, &ApplicationTestSuite{network: NetworkTCP})
}

func TestApplicationOverWebSocket(t *testing.T) {
	suite.Run(t, &ApplicationTestSuite{network: NetworkWS})
}

func (s *ApplicationTestSuite) config() Config {
	return Config{
		Network: s.network,
		Path:    "/neptunium",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})),
	}
}

func (s *ApplicationTestSuite) TestRoundTrip() {
	defer goleak.VerifyNone(s.T(), goleak.IgnoreCurrent())

	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.Config{Registry: reg})

	handlers := server.NewHandlers(diag.Discard)
	s.Require().NoError(server.Handle(handlers, func(sess *session.Session, p *shout) error {
		return sess.Send(&shout{Words: append(p.Words, "back"), Loud: !p.Loud})
	}))

	cfg := s.config()
	cfg.Server.Metrics = m
	srv, err := CreateServer(BindLocal, 0, "p1", newPackets(), handlers, cfg)
	s.Require().NoError(err)
	defer srv.Close()

	_, port, err := SplitAddr(srv.Addr())
	s.Require().NoError(err)

	received := make(chan *shout, 1)
	clientHandlers := client.NewHandlers(diag.Discard)
	s.Require().NoError(client.HandlePacket(clientHandlers, func(p *shout) error {
		received <- p
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Connect(ctx, "127.0.0.1", port, "p1", newPackets(), clientHandlers, s.config())
	s.Require().NoError(err)
	defer func() {
		c.Close()
		c.Wait()
	}()

	s.Require().NoError(c.Send(&shout{Words: []string{"hello"}}))

	select {
	case got := <-received:
		s.Equal(&shout{Words: []string{"hello", "back"}, Loud: true}, got)
	case <-ctx.Done():
		s.FailNow("no reply")
	}

	expected := `
# HELP neptunium_sessions_active Number of authenticated sessions
# TYPE neptunium_sessions_active gauge
neptunium_sessions_active 1
`
	s.NoError(testutil.GatherAndCompare(reg, strings.NewReader(expected), "neptunium_sessions_active"))
}

func (s *ApplicationTestSuite) TestWrongCredential() {
	defer goleak.VerifyNone(s.T(), goleak.IgnoreCurrent())

	srv, err := CreateServer(BindLocal, 0, "secret", newPackets(), nil, s.config())
	s.Require().NoError(err)
	defer srv.Close()

	_, port, err := SplitAddr(srv.Addr())
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = Connect(ctx, "127.0.0.1", port, "wrong", newPackets(), nil, s.config())
	s.ErrorIs(err, protocol.ErrAuthFailure)
}

func (s *ApplicationTestSuite) TestUnknownNetwork() {
	cfg := s.config()
	cfg.Network = "carrier-pigeon"

	_, err := CreateServer(BindLocal, 0, "", newPackets(), nil, cfg)
	s.Error(err)

	_, err = Connect(context.Background(), "127.0.0.1", 1, "", newPackets(), nil, cfg)
	s.Error(err)
}
