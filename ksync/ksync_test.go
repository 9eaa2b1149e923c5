package ksync

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type fakeThread struct {
	id   int
	wake chan struct{}
	gone bool
}

// fakeSched runs one goroutine at a time off a FIFO ready queue.
type fakeSched struct {
	cur   *fakeThread
	ready []*fakeThread
	done  chan struct{}
	next  int
	log   []string
}

func newFakeSched() *fakeSched {
	return &fakeSched{done: make(chan struct{})}
}

func (s *fakeSched) Current() Waiter {
	if s.cur == nil {
		return nil
	}
	return s.cur
}

func (s *fakeSched) Block() {
	cur := s.cur
	s.done <- struct{}{}
	<-cur.wake
}

func (s *fakeSched) Wakeup(w Waiter) bool {
	t := w.(*fakeThread)
	if t.gone {
		return false
	}
	s.ready = append(s.ready, t)
	return true
}

func (s *fakeSched) spawn(body func()) *fakeThread {
	t := &fakeThread{id: s.next, wake: make(chan struct{})}
	s.next++
	go func() {
		<-t.wake
		body()
		s.done <- struct{}{}
	}()
	s.ready = append(s.ready, t)
	return t
}

func (s *fakeSched) run() {
	for len(s.ready) > 0 {
		t := s.ready[0]
		s.ready = s.ready[1:]
		s.cur = t
		t.wake <- struct{}{}
		<-s.done
		s.cur = nil
	}
}

func (s *fakeSched) logf(format string, a ...interface{}) {
	s.log = append(s.log, fmt.Sprintf(format, a...))
}

type SyncSuite struct {
	suite.Suite
	s *fakeSched
}

func (suite *SyncSuite) SetupTest() {
	suite.s = newFakeSched()
}

func TestSyncSuite(t *testing.T) {
	suite.Run(t, new(SyncSuite))
}

func (suite *SyncSuite) TestMutexHandoff() {
	s := suite.s
	m := NewMutex(s)
	m.Lock() // uncontended: no current thread needed
	for i := 0; i < 3; i++ {
		i := i
		s.spawn(func() {
			m.Lock()
			s.logf("got %d", i)
			m.Unlock()
		})
	}
	s.spawn(func() {
		s.logf("release")
		m.Unlock()
	})
	s.run()
	suite.Equal([]string{"release", "got 0", "got 1", "got 2"}, s.log)
	suite.False(m.Locked())
	suite.Equal(0, m.Waiters())
}

func (suite *SyncSuite) TestMutexSkipsDeadWaiter() {
	s := suite.s
	m := NewMutex(s)
	m.Lock()
	dead := s.spawn(func() {
		m.Lock()
		s.logf("dead thread ran")
	})
	s.spawn(func() {
		m.Lock()
		s.logf("got lock")
		m.Unlock()
	})
	s.spawn(func() {
		dead.gone = true
		m.Unlock()
	})
	s.run()
	suite.Equal([]string{"got lock"}, s.log)
	suite.False(m.Locked())
}

func (suite *SyncSuite) TestSemaphoreFIFO() {
	s := suite.s
	sem := NewSemaphore(s, 0)
	for i := 0; i < 2; i++ {
		i := i
		s.spawn(func() {
			sem.Down()
			s.logf("down %d", i)
		})
	}
	s.spawn(func() {
		suite.Equal(int64(-2), sem.Count())
		sem.Up()
		sem.Up()
		s.logf("up")
	})
	s.run()
	suite.Equal([]string{"up", "down 0", "down 1"}, s.log)
	suite.Equal(int64(0), sem.Count())
}

func (suite *SyncSuite) TestSemaphoreSkipsDeadWaiter() {
	s := suite.s
	sem := NewSemaphore(s, 0)
	dead := s.spawn(func() {
		sem.Down()
		s.logf("dead thread ran")
	})
	s.spawn(func() {
		sem.Down()
		s.logf("down")
	})
	s.spawn(func() {
		dead.gone = true
		sem.Up()
	})
	s.run()
	suite.Equal([]string{"down"}, s.log)
	suite.Equal(int64(0), sem.Count())
}

func (suite *SyncSuite) TestCondvar() {
	s := suite.s
	m := NewMutex(s)
	c := NewCondvar(s)
	ready := false
	s.spawn(func() {
		m.Lock()
		for !ready {
			c.Wait(m)
		}
		s.logf("consumer")
		m.Unlock()
	})
	s.spawn(func() {
		m.Lock()
		ready = true
		c.Signal()
		s.logf("producer")
		m.Unlock()
	})
	s.run()
	suite.Equal([]string{"producer", "consumer"}, s.log)
	suite.Equal(0, c.Waiters())
}

func (suite *SyncSuite) TestWaitNoLock() {
	s := suite.s
	c := NewCondvar(s)
	s.spawn(func() {
		c.WaitNoLock()
		s.logf("woken")
	})
	s.spawn(func() {
		s.logf("broadcast")
		c.Broadcast()
	})
	s.run()
	suite.Equal([]string{"broadcast", "woken"}, s.log)
}

func (suite *SyncSuite) TestSignalSkipsDeadWaiter() {
	s := suite.s
	c := NewCondvar(s)
	dead := s.spawn(func() {
		c.WaitNoLock()
		s.logf("dead thread ran")
	})
	s.spawn(func() {
		c.WaitNoLock()
		s.logf("woken")
	})
	s.spawn(func() {
		dead.gone = true
		c.Signal()
	})
	s.run()
	suite.Equal([]string{"woken"}, s.log)
	suite.Equal(0, c.Waiters())
}

func TestMisuse(t *testing.T) {
	assert := assert.New(t)
	s := newFakeSched()
	m := NewMutex(s)
	assert.Panics(func() { m.Unlock() })
	m.Lock()
	assert.Panics(func() { m.Lock() }, "contended with no current thread")
}
