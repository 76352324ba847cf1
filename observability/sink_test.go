package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	ev := NewEvent("s1", "list_appointments", "allowed", "", 12*time.Millisecond, 0)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, "allowed", ev.Outcome)
	assert.False(t, ev.At.IsZero())
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.Emit(NewEvent("s1", "t", "allowed", "", 0, 0))
	m.Emit(NewEvent("s1", "t", "allowed", "", 0, 0))
	m.Emit(NewEvent("s2", "t", "rejected", "rate_limited", 0, 1))
	m.Emit(NewEvent("s3", "t", "blocked", "session_blocked", 0, 3))

	sum := m.Summary()
	assert.Equal(t, int64(4), sum.Total)
	assert.Equal(t, int64(2), sum.Outcomes["allowed"])
	assert.Equal(t, int64(1), sum.Outcomes["rejected"])
	assert.Equal(t, int64(1), sum.Outcomes["blocked"])
}

func TestMetrics_Concurrent(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				m.Emit(NewEvent("s", "t", "allowed", "", 0, 0))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), m.Summary().Total)
}

func TestMultiSink(t *testing.T) {
	a := &CaptureSink{}
	b := &CaptureSink{}
	multi := MultiSink{a, b}

	multi.Emit(NewEvent("s1", "t", "allowed", "", 0, 0))

	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
}

func TestMaskPII(t *testing.T) {
	in := "contato ana@example.com, tel (11) 98765-4321, cpf 123.456.789-01, nascida 1990-04-12"
	out := MaskPII(in)

	assert.NotContains(t, out, "ana@example.com")
	assert.NotContains(t, out, "98765-4321")
	assert.NotContains(t, out, "123.456.789-01")
	assert.NotContains(t, out, "1990-04-12")
	assert.Contains(t, out, "[EMAIL]")
	assert.Contains(t, out, "[PHONE]")
	assert.Contains(t, out, "[DOCUMENT]")
	assert.Contains(t, out, "[DATE]")
}
