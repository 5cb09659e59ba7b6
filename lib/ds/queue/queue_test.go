package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
)

type QueueTestSuite struct {
	suite.Suite

	Queue   Queue[int]
	samples []int
}

func (s *QueueTestSuite) SetupTest() {
	s.samples = []int{1, 2, 3}
}

func (s *QueueTestSuite) TestEnqueueDequeue() {
	for _, v := range s.samples {
		s.Queue.Enqueue(v)
	}

	s.Equal(uint(len(s.samples)), s.Queue.Len())

	for _, expected := range s.samples {
		actual, err := s.Queue.Dequeue()
		s.NoError(err)
		s.Equal(expected, actual)
	}

	_, err := s.Queue.Dequeue()
	s.ErrorIs(err, ErrQueueEmpty)
}

func (s *QueueTestSuite) TestPeek() {
	s.Queue.Enqueue(s.samples[0])
	s.Queue.Enqueue(s.samples[1])

	peeked, err := s.Queue.Peek()
	s.NoError(err)
	s.Equal(s.samples[0], peeked)

	s.Equal(uint(2), s.Queue.Len())
}

func (s *QueueTestSuite) TestEmpty() {
	_, err := s.Queue.Peek()
	s.ErrorIs(err, ErrQueueEmpty)
}

type RingTestSuite struct{ QueueTestSuite }

func TestRingTestSuite(t *testing.T) {
	suite.Run(t, new(RingTestSuite))
}

func (s *RingTestSuite) SetupTest() {
	s.QueueTestSuite.SetupTest()
	s.Queue = NewRing[int](1)
}

type BlockingTestSuite struct {
	suite.Suite

	q *Blocking[int]
}

func TestBlockingTestSuite(t *testing.T) {
	suite.Run(t, new(BlockingTestSuite))
}

func (s *BlockingTestSuite) SetupTest() {
	s.q = NewBlocking[int](NewRing[int](4))
}

func (s *BlockingTestSuite) TestFIFOAcrossGoroutines() {
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			s.True(s.q.Push(i))
		}
	}()

	for i := 0; i < n; i++ {
		v, err := s.q.Pop(nil)
		s.Require().NoError(err)
		s.Require().Equal(i, v)
	}
	wg.Wait()
}

func (s *BlockingTestSuite) TestCloseWakesConsumer() {
	done := make(chan error)
	go func() {
		_, err := s.q.Pop(nil)
		done <- err
	}()

	s.q.Close()
	s.ErrorIs(<-done, ErrQueueClosed)

	s.False(s.q.Push(1))
	s.q.Close()
}

func (s *BlockingTestSuite) TestCloseDrainsQueued() {
	s.True(s.q.Push(1))
	s.True(s.q.Push(2))
	s.q.Close()
	s.False(s.q.Push(3))

	for _, want := range []int{1, 2} {
		v, err := s.q.Pop(nil)
		s.Require().NoError(err)
		s.Equal(want, v)
	}

	_, err := s.q.Pop(nil)
	s.ErrorIs(err, ErrQueueClosed)
}

func (s *BlockingTestSuite) TestLen() {
	s.True(s.q.Push(1))
	s.True(s.q.Push(2))
	s.Equal(uint(2), s.q.Len())

	v, err := s.q.Pop(nil)
	s.NoError(err)
	s.Equal(1, v)
	s.Equal(uint(1), s.q.Len())
}

func (s *BlockingTestSuite) TestCancel() {
	cancel := make(chan struct{})
	close(cancel)

	_, err := s.q.Pop(cancel)
	s.ErrorIs(err, ErrQueueClosed)
}
