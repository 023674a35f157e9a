package port_reader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
)

// Lines longer than this are cut and handed up as they are.
const maxLineLength = 256

type lineTransport struct {
	port      io.ReadWriteCloser
	reader    *bufio.Reader
	closeOnce sync.Once
	closeErr  error
}

// NewLineTransport wraps a port whose Read returns io.EOF once its read
// timeout expires with nothing received.
func NewLineTransport(port io.ReadWriteCloser) Transport {
	return &lineTransport{
		port:   port,
		reader: bufio.NewReader(port),
	}
}

// OpenSerial opens the port 8N1. The read timeout is applied as the
// inter-character timeout so a quiet line yields an empty read.
func OpenSerial(cfg SerialConfig) (Transport, error) {
	// The driver works in tenths of a second.
	timeout := cfg.ReadTimeout.Round(100 * time.Millisecond)
	if timeout < 100*time.Millisecond {
		timeout = 100 * time.Millisecond
	}

	options := serial.OpenOptions{
		PortName:              cfg.Device,
		BaudRate:              cfg.Baudrate,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: uint(timeout / time.Millisecond),
		MinimumReadSize:       0,
	}

	port, err := serial.Open(options)
	if err != nil {
		return nil, &TransportError{Op: "open", Err: fmt.Errorf("%s: %w", cfg.Device, err)}
	}

	return NewLineTransport(port), nil
}

func (t *lineTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

// ReadLine returns a line including its terminator, whatever arrived before
// the timeout, or an empty string. Bytes read before a failure are dropped.
func (t *lineTransport) ReadLine() (string, error) {
	var line []byte
	for len(line) < maxLineLength {
		b, err := t.reader.ReadByte()
		if errors.Is(err, io.EOF) {
			return string(line), nil
		}
		if err != nil {
			return "", err
		}
		line = append(line, b)
		if b == '\n' {
			break
		}
	}
	return string(line), nil
}

func (t *lineTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.port.Close()
	})
	return t.closeErr
}
