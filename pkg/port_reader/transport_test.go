package port_reader

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timeoutPort returns io.EOF whenever its buffer is empty, the way a serial
// port does when its inter-character timeout expires.
type timeoutPort struct {
	mu      sync.Mutex
	rx      bytes.Buffer
	tx      bytes.Buffer
	readErr error
	closed  int
}

func (p *timeoutPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		return 0, p.readErr
	}
	if p.rx.Len() == 0 {
		return 0, io.EOF
	}
	return p.rx.Read(b)
}

func (p *timeoutPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tx.Write(b)
}

func (p *timeoutPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func TestLineTransport_ReadLine(t *testing.T) {
	port := &timeoutPort{}
	port.rx.WriteString("\x01\r\n" + validSentence + "\r\npartial")
	transport := NewLineTransport(port)

	line, err := transport.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "\x01\r\n", line)

	line, err = transport.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, validSentence+"\r\n", line)

	// Timeout with a partial line hands up what arrived.
	line, err = transport.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "partial", line)

	// Timeout with nothing pending is an empty read, not an error.
	line, err = transport.ReadLine()
	require.NoError(t, err)
	assert.Empty(t, line)
}

func TestLineTransport_LongLineIsCut(t *testing.T) {
	port := &timeoutPort{}
	port.rx.WriteString(strings.Repeat("x", maxLineLength+10) + "\n")
	transport := NewLineTransport(port)

	line, err := transport.ReadLine()
	require.NoError(t, err)
	assert.Len(t, line, maxLineLength)

	line, err = transport.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 10)+"\n", line)
}

func TestLineTransport_ReadError(t *testing.T) {
	port := &timeoutPort{readErr: errors.New("input/output error")}
	transport := NewLineTransport(port)

	line, err := transport.ReadLine()
	assert.EqualError(t, err, "input/output error")
	assert.Empty(t, line)
}

func TestLineTransport_ReadErrorDropsPartialLine(t *testing.T) {
	port := &failingAfterPort{data: []byte("11a010-1 25"), err: errors.New("input/output error")}
	transport := NewLineTransport(port)

	line, err := transport.ReadLine()
	assert.EqualError(t, err, "input/output error")
	assert.Empty(t, line)
}

// failingAfterPort hands out data once and then fails every read.
type failingAfterPort struct {
	data []byte
	err  error
}

func (p *failingAfterPort) Read(b []byte) (int, error) {
	if len(p.data) == 0 {
		return 0, p.err
	}
	n := copy(b, p.data)
	p.data = p.data[n:]
	return n, nil
}

func (p *failingAfterPort) Write(b []byte) (int, error) { return len(b), nil }
func (p *failingAfterPort) Close() error                { return nil }

func TestLineTransport_WriteAndClose(t *testing.T) {
	port := &timeoutPort{}
	transport := NewLineTransport(port)

	n, err := transport.Write(frameCommand(CmdClearDose))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "\r\ne}\r\n", port.tx.String())

	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())
	assert.Equal(t, 1, port.closed)
}

func TestOpenSerial_MissingDevice(t *testing.T) {
	_, err := OpenSerial(SerialConfig{Device: "/dev/does-not-exist-adm300", Baudrate: 300, ReadTimeout: 100 * time.Millisecond})

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, "open", transportErr.Op)
}

func TestOpenSerial_Pty(t *testing.T) {
	master, slave, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	t.Cleanup(func() { master.Close(); slave.Close() })

	transport, err := OpenSerial(SerialConfig{Device: slave.Name(), Baudrate: 300, ReadTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { transport.Close() })

	// Quiet line: the read times out empty.
	start := time.Now()
	line, err := transport.ReadLine()
	require.NoError(t, err)
	assert.Empty(t, line)
	assert.Less(t, time.Since(start), 2*time.Second)

	_, err = master.Write([]byte(validSentence + "\r\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		line, err = transport.ReadLine()
		return err == nil && line != ""
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, validSentence+"\r\n", line)

	// Commands reach the device unaltered.
	_, err = transport.Write(frameCommand(CmdStartMonitoring))
	require.NoError(t, err)

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 6)
		n, _ := io.ReadFull(master, buf)
		got <- string(buf[:n])
	}()
	select {
	case msg := <-got:
		assert.Equal(t, "\r\nU}\r\n", msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for command on the device side")
	}
}
