package session

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"neptunium/lib/diag"
	"neptunium/protocol"
	"neptunium/protocol/field"
	"neptunium/protocol/frame"
	"neptunium/protocol/packet"
	"neptunium/protocol/serial"
	"neptunium/transport"
	"neptunium/transport/framed"
	"neptunium/transport/pipe"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

type note struct{ Text string }

func (n *note) Fields() []field.Field { return []field.Field{field.New(0, &n.Text)} }

type unregistered struct{}

func (*unregistered) Fields() []field.Field { return nil }

type peer struct {
	raw  transport.Conn
	conn *framed.Conn
}

type RegistryTestSuite struct {
	suite.Suite

	ser   *serial.Serializer
	reg   *Registry
	peers []peer
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (s *RegistryTestSuite) SetupTest() {
	packets := packet.NewRegistry()
	packet.MustRegister[note](packets)
	packets.Seal()

	s.ser = serial.New(packets, serial.Options{})
	s.reg = NewRegistry(s.ser, slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})), Options{})
	s.peers = nil
}

func (s *RegistryTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	// Peers go first so writers holding unread frames give up.
	for _, p := range s.peers {
		p.raw.Close()
		p.conn.Close()
		p.conn.Wait()
	}
}

func (s *RegistryTestSuite) newConn() (*framed.Conn, transport.Conn) {
	n := len(s.peers)
	c1, c2 := pipe.Pipe(fmt.Sprintf("server-%d", n), fmt.Sprintf("client-%d", n), clock.New())
	conn := framed.New(c1, slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})))
	s.peers = append(s.peers, peer{raw: c2, conn: conn})
	return conn, c2
}

func (s *RegistryTestSuite) readNote(raw transport.Conn) *note {
	payload, err := frame.NewReader(raw).Read()
	s.Require().NoError(err)
	p, err := s.ser.Unmarshal(payload)
	s.Require().NoError(err)
	n, ok := p.(*note)
	s.Require().True(ok)
	return n
}

func (s *RegistryTestSuite) TestCreateAssignsSequentialIDs() {
	c1, _ := s.newConn()
	c2, _ := s.newConn()

	s1 := s.reg.Create(c1)
	s2 := s.reg.Create(c2)

	s.EqualValues(0, s1.ID())
	s.EqualValues(1, s2.ID())
	s.True(s1.Authenticated())

	got, ok := s.reg.ByID(1)
	s.Require().True(ok)
	s.Same(s2, got)

	got, ok = s.reg.ByConn(c1)
	s.Require().True(ok)
	s.Same(s1, got)

	s.Equal(2, s.reg.Len())
}

func (s *RegistryTestSuite) TestIDsAreNotReused() {
	c1, _ := s.newConn()
	c2, _ := s.newConn()

	s1 := s.reg.Create(c1)
	s.True(s.reg.Remove(s1))

	s2 := s.reg.Create(c2)
	s.EqualValues(1, s2.ID())
}

func (s *RegistryTestSuite) TestConcurrentCreate() {
	const n = 32

	conns := make([]*framed.Conn, n)
	for i := range conns {
		conns[i], _ = s.newConn()
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.reg.Create(c)
		}()
	}
	wg.Wait()

	snapshot := s.reg.Snapshot()
	s.Require().Len(snapshot, n)
	for i, sess := range snapshot {
		s.EqualValues(i, sess.ID())
	}
}

func (s *RegistryTestSuite) TestRemoveIsIdempotent() {
	c, _ := s.newConn()
	sess := s.reg.Create(c)

	var calls int
	s.reg.OnDisconnect(func(*Session) { calls++ })

	s.True(s.reg.Remove(sess))
	s.False(s.reg.Remove(sess))
	s.Equal(1, calls)
	s.False(sess.Authenticated())

	_, ok := s.reg.ByID(sess.ID())
	s.False(ok)

	select {
	case <-sess.Done():
	default:
		s.Fail("connection not closed on remove")
	}
}

func (s *RegistryTestSuite) TestNotificationOrder() {
	c, _ := s.newConn()

	var events []string
	s.reg.OnConnect(func(sess *Session) { events = append(events, "connect") })
	s.reg.OnDisconnect(func(sess *Session) {
		_, stillThere := s.reg.ByID(sess.ID())
		s.False(stillThere, "session must be removed before listeners run")
		events = append(events, "listener")
	})

	sess := s.reg.Create(c)
	sess.OnDisconnect(func(*Session) { events = append(events, "hook") })

	s.reg.Connected(sess)
	s.reg.Remove(sess)

	s.Equal([]string{"connect", "listener", "hook"}, events)
}

func (s *RegistryTestSuite) TestListenerMayUseRegistry() {
	leaving, _ := s.newConn()
	staying, raw := s.newConn()

	var left []*Session
	s.reg.OnDisconnect(func(sess *Session) {
		left = s.reg.Snapshot()
		s.NoError(s.reg.Broadcast(&note{Text: fmt.Sprintf("%d left", sess.ID())}))
	})

	gone := s.reg.Create(leaving)
	other := s.reg.Create(staying)

	s.True(s.reg.Remove(gone))
	s.Equal([]*Session{other}, left)
	s.Equal("0 left", s.readNote(raw).Text)
}

func (s *RegistryTestSuite) TestListenerPanicIsReported() {
	var reported []error
	s.reg = NewRegistry(s.ser, slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})), Options{
		Sink: diag.SinkFunc(func(err error, _ string) { reported = append(reported, err) }),
	})

	c, _ := s.newConn()
	s.reg.OnDisconnect(func(*Session) { panic("listener bug") })

	var hookRan bool
	sess := s.reg.Create(c)
	sess.OnDisconnect(func(*Session) { hookRan = true })

	s.True(s.reg.Remove(sess))
	s.True(hookRan)
	s.Require().Len(reported, 1)
	s.ErrorIs(reported[0], protocol.ErrHandlerFailure)
}

func (s *RegistryTestSuite) TestSend() {
	c, raw := s.newConn()
	sess := s.reg.Create(c)

	s.Require().NoError(sess.Send(&note{Text: "hello"}))
	s.Equal("hello", s.readNote(raw).Text)

	s.ErrorIs(sess.Send(&unregistered{}), protocol.ErrProtocolViolation)
}

func (s *RegistryTestSuite) TestBroadcastWhileDisconnecting() {
	const n = 4

	raws := make([]transport.Conn, n)
	sessions := make([]*Session, n)
	for i := 0; i < n; i++ {
		var c *framed.Conn
		c, raws[i] = s.newConn()
		sessions[i] = s.reg.Create(c)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.reg.Remove(sessions[0])
	}()
	go func() {
		defer wg.Done()
		s.NoError(s.reg.Broadcast(&note{Text: "all"}))
	}()
	wg.Wait()

	for i := 1; i < n; i++ {
		s.Equal("all", s.readNote(raws[i]).Text)
	}
	s.Equal(n-1, s.reg.Len())
}

func (s *RegistryTestSuite) TestBroadcastUnregistered() {
	c, _ := s.newConn()
	s.reg.Create(c)

	s.ErrorIs(s.reg.Broadcast(&unregistered{}), protocol.ErrProtocolViolation)
}

func (s *RegistryTestSuite) TestValues() {
	c, _ := s.newConn()
	sess := s.reg.Create(c)

	_, ok := sess.Value("nick")
	s.False(ok)

	sess.SetValue("nick", "ada")
	v, ok := sess.Value("nick")
	s.True(ok)
	s.Equal("ada", v)
}
