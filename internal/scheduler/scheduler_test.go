package scheduler

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestService_Add(t *testing.T) {
	s := NewService(testLogger())
	require.NoError(t, s.Add(EveryFiveMinutes, "ping", func() {}))
	require.NoError(t, s.Add(EveryTenMinutes, "gc", func() {}))
	assert.Error(t, s.Add("not a schedule", "bad", func() {}))
	assert.Equal(t, 2, s.Len())
}

func TestService_RunsAndRecovers(t *testing.T) {
	s := NewService(testLogger())
	ran := make(chan struct{}, 4)
	require.NoError(t, s.Add("* * * * * *", "panics", func() { panic("boom") }))
	require.NoError(t, s.Add("* * * * * *", "works", func() { ran <- struct{}{} }))

	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}
