package dispatch

import (
	"neptunium/lib/diag"
	"neptunium/protocol"
	"neptunium/protocol/field"
	"neptunium/protocol/packet"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type chat struct{ Text string }

func (c *chat) Fields() []field.Field { return []field.Field{field.New(0, &c.Text)} }

type move struct{ X, Y int32 }

func (m *move) Fields() []field.Field {
	return []field.Field{field.New(0, &m.X), field.New(1, &m.Y)}
}

type DispatchTestSuite struct {
	suite.Suite

	reported []error
	table    *Table[string]
}

func TestDispatchTestSuite(t *testing.T) {
	suite.Run(t, new(DispatchTestSuite))
}

func (s *DispatchTestSuite) SetupTest() {
	s.reported = nil
	s.table = NewTable[string](diag.SinkFunc(func(err error, _ string) {
		s.reported = append(s.reported, err)
	}))
}

func (s *DispatchTestSuite) TestDispatchPassesOrigin() {
	var origin, text string
	s.Require().NoError(Handle(s.table, func(o string, p *chat) error {
		origin, text = o, p.Text
		return nil
	}))

	s.True(s.handled("alice", &chat{Text: "hi"}))
	s.Equal("alice", origin)
	s.Equal("hi", text)
	s.Empty(s.reported)
}

func (s *DispatchTestSuite) TestHandlePacketIgnoresOrigin() {
	var got *move
	s.Require().NoError(HandlePacket(s.table, func(p *move) error {
		got = p
		return nil
	}))

	s.True(s.handled("", &move{X: 1, Y: 2}))
	s.Equal(&move{X: 1, Y: 2}, got)
}

func (s *DispatchTestSuite) TestDuplicateKeepsOriginal() {
	var calls []string
	s.Require().NoError(HandlePacket(s.table, func(*chat) error {
		calls = append(calls, "first")
		return nil
	}))

	err := HandlePacket(s.table, func(*chat) error {
		calls = append(calls, "second")
		return nil
	})
	s.ErrorIs(err, protocol.ErrConfiguration)

	s.table.Dispatch("", &chat{})
	s.Equal([]string{"first"}, calls)
}

func (s *DispatchTestSuite) handled(origin string, p packet.Packet) bool {
	ok, _ := s.table.Dispatch(origin, p)
	return ok
}

func (s *DispatchTestSuite) TestMissingHandlerIsIgnored() {
	s.False(s.handled("", &chat{}))
	s.False(s.handled("", &packet.AuthFinish{}))
	s.Empty(s.reported)
}

func (s *DispatchTestSuite) TestErrorIsReported() {
	boom := errors.New("boom")
	s.Require().NoError(HandlePacket(s.table, func(*chat) error {
		return boom
	}))

	handled, err := s.table.Dispatch("", &chat{})
	s.True(handled)
	s.ErrorIs(err, boom)
	s.Require().Len(s.reported, 1)
	s.ErrorIs(s.reported[0], protocol.ErrHandlerFailure)
	s.ErrorIs(s.reported[0], boom)
	s.Contains(s.reported[0].Error(), "boom")
}

func (s *DispatchTestSuite) TestPanicIsRecovered() {
	s.Require().NoError(HandlePacket(s.table, func(*chat) error {
		panic("handler bug")
	}))

	var err error
	s.NotPanics(func() { _, err = s.table.Dispatch("", &chat{}) })
	s.Require().Len(s.reported, 1)
	s.ErrorIs(s.reported[0], protocol.ErrHandlerFailure)
	s.ErrorIs(err, protocol.ErrHandlerFailure)
}

func (s *DispatchTestSuite) TestSeal() {
	s.table.Seal()

	err := HandlePacket(s.table, func(*chat) error { return nil })
	s.ErrorIs(err, protocol.ErrConfiguration)
	s.False(s.table.Has(typeOf[*chat]()))
}

func (s *DispatchTestSuite) TestNilHandler() {
	s.ErrorIs(s.table.Register(typeOf[*chat](), nil), protocol.ErrConfiguration)
}
