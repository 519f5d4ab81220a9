package serialmux

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/swim.report/internal/dispatch"
	"github.com/banshee-data/swim.report/internal/race"
	"github.com/banshee-data/swim.report/internal/timeutil"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestReplayPort_ReadsOneBytePerCallWithDelay(t *testing.T) {
	path := writeTemp(t, "serial_log.bin", []byte("abc"))
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	port, err := OpenReplay(path, ReplayOptions{ByteDelay: 2 * time.Millisecond, Clock: clock})
	require.NoError(t, err)
	defer port.Close()

	buf := make([]byte, 16)
	var got []byte
	for {
		n, err := port.Read(buf)
		got = append(got, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.LessOrEqual(t, n, 1)
	}
	assert.Equal(t, "abc", string(got))
	assert.Len(t, clock.Sleeps(), 3)

	_, err = port.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestReplayPort_CloseIsIdempotent(t *testing.T) {
	path := writeTemp(t, "serial_log.bin", []byte("a"))
	port, err := OpenReplay(path, ReplayOptions{})
	require.NoError(t, err)
	require.NoError(t, port.Close())
	assert.NoError(t, port.Close())

	_, err = port.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestReplayPort_MissingFile(t *testing.T) {
	_, err := OpenReplay(filepath.Join(t.TempDir(), "nope.bin"), ReplayOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReplayPort_FollowPicksUpAppendedData(t *testing.T) {
	path := writeTemp(t, "live.bin", []byte("a"))
	port, err := OpenReplay(path, ReplayOptions{Follow: true, WaitTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	defer port.Close()

	buf := make([]byte, 1)
	n, err := port.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = port.Read(buf)
	require.NoError(t, err, "follow mode must not report EOF")
	assert.Equal(t, 0, n)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("b"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		n, err := port.Read(buf)
		return err == nil && n == 1 && buf[0] == 'b'
	}, 2*time.Second, time.Millisecond)
}

func TestReplayPort_DrivesMonitorToEOF(t *testing.T) {
	var data []byte
	data = append(data, frame(padTo("0.0", 9))...)
	data = append(data, frame(padTo("Girls 50 Back", 30))...)
	path := writeTemp(t, "serial_log.bin", data)

	port, err := OpenReplay(path, ReplayOptions{})
	require.NoError(t, err)

	d := dispatch.New(dispatch.Options{})
	sub := d.Subscribe()
	mux := NewSerialMux(port, Config{Source: "replay", Classifier: testClassifier(), Dispatcher: d})
	require.NoError(t, mux.Monitor(context.Background()))

	first := <-sub.Updates()
	second := <-sub.Updates()
	assert.Equal(t, race.KindClockTick, first.Kind)
	assert.True(t, first.Delta.Reset)
	assert.Equal(t, race.KindEventNameUpdate, second.Kind)
	assert.Equal(t, "replay", second.Source)
}

func TestCaptureWriter_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial_log.bin")
	for _, chunk := range []string{"one", "two"} {
		w, err := OpenCapture(path)
		require.NoError(t, err)
		n, err := w.Write([]byte(chunk))
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, int64(3), w.Bytes())
		require.NoError(t, w.Close())
	}
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "onetwo", string(got))
}
