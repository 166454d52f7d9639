package pantilt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPort struct {
	writes []string
	err    error
	closed bool
}

func (m *mockPort) Read(p []byte) (int, error) { return 0, nil }

func (m *mockPort) Write(p []byte) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.writes = append(m.writes, string(p))
	return len(p), nil
}

func (m *mockPort) Close() error {
	m.closed = true
	return nil
}

// newTestController returns a controller with a fake clock the test can
// advance by reassigning *now.
func newTestController(port *mockPort) (*Controller, *time.Time) {
	c := NewController(port, Config{SettleTime: 2 * time.Second})
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestMoveToWritesCommand(t *testing.T) {
	port := &mockPort{}
	c, _ := newTestController(port)

	require.NoError(t, c.MoveTo(90))
	require.Equal(t, []string{"pan 90\n"}, port.writes)
	assert.Equal(t, 90, c.Current())
}

func TestMoveToSamePositionIsNoOp(t *testing.T) {
	port := &mockPort{}
	c, now := newTestController(port)

	require.NoError(t, c.MoveTo(90))
	*now = now.Add(3 * time.Second)
	require.True(t, c.Settled())

	// Repeating the position must not restart the settle window.
	require.NoError(t, c.MoveTo(90))
	assert.Len(t, port.writes, 1)
	assert.True(t, c.Settled())
}

func TestMoveToRejectsOutOfRange(t *testing.T) {
	c, _ := newTestController(&mockPort{})
	assert.Error(t, c.MoveTo(-10))
	assert.Error(t, c.MoveTo(270))
}

func TestMoveToSurfacesWriteError(t *testing.T) {
	port := &mockPort{err: errors.New("port unplugged")}
	c, _ := newTestController(port)

	err := c.MoveTo(90)
	require.Error(t, err)
	assert.Equal(t, -1, c.Current())
}

func TestNextCyclesViewAngles(t *testing.T) {
	port := &mockPort{}
	c, _ := newTestController(port)

	for _, want := range []int{0, 90, 180, 0} {
		require.NoError(t, c.Next())
		assert.Equal(t, want, c.Current())
	}
}

func TestSettle(t *testing.T) {
	port := &mockPort{}
	c, now := newTestController(port)

	assert.False(t, c.Settled(), "unmoved rig is not settled")
	assert.Zero(t, c.SettleRemaining())

	require.NoError(t, c.MoveTo(90))
	assert.False(t, c.Settled())
	assert.Equal(t, 2*time.Second, c.SettleRemaining())

	*now = now.Add(1500 * time.Millisecond)
	assert.False(t, c.Settled())
	assert.Equal(t, 500*time.Millisecond, c.SettleRemaining())

	*now = now.Add(time.Second)
	assert.True(t, c.Settled())
	assert.Zero(t, c.SettleRemaining())
}

func TestCloseParksAndClosesPort(t *testing.T) {
	port := &mockPort{}
	c, _ := newTestController(port)
	require.NoError(t, c.MoveTo(180))

	require.NoError(t, c.Close())
	assert.True(t, port.closed)
	assert.Equal(t, "pan 0\n", port.writes[len(port.writes)-1])
}
