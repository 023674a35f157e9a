package port_reader

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NotCoffee418/adm300_monitor/pkg/sentence"
	"github.com/sirupsen/logrus"
)

// Transport is the byte stream to the instrument.
// ReadLine returns an empty string when nothing arrived within the read timeout.
// On error the returned line is always empty; a partial line is discarded.
type Transport interface {
	Write(p []byte) (int, error)
	ReadLine() (string, error)
	Close() error
}

type SerialConfig struct {
	Device      string
	Baudrate    uint
	ReadTimeout time.Duration
}

type Options struct {
	// Pause between worker iterations.
	LoopInterval time.Duration
	// Pause after a failed read before trying again.
	ErrorBackoff time.Duration
	// Maximum number of pending commands, 0 for no limit.
	QueueCapacity int
}

func DefaultOptions() Options {
	return Options{
		LoopInterval: 10 * time.Millisecond,
		ErrorBackoff: time.Second,
	}
}

type (
	RawCallback     func(line string)
	ParsedCallback  func(report sentence.ParsedReport)
	PowerOnCallback func()
	ErrorCallback   func(err error)
)

type sessionState uint32

const (
	stateIdle sessionState = iota
	stateRunning
	stateStopped
)

// Session owns one ADM-300 serial connection and its worker goroutine.
// A stopped session cannot be started again.
type Session struct {
	transport Transport
	opts      Options
	log       *logrus.Logger
	queue     *commandQueue

	state  atomic.Uint32
	stopCh chan struct{}
	done   chan struct{}

	gotPowerOn  atomic.Bool
	gotSentence atomic.Bool

	reportMutex sync.RWMutex
	lastReport  sentence.ParsedReport
	lastRawLine string

	callbackMutex sync.RWMutex
	rawCb         RawCallback
	parsedCb      ParsedCallback
	powerOnCb     PowerOnCallback
	errorCb       ErrorCallback
}

var (
	ErrQueueFull      = errors.New("command queue full")
	ErrNotSupported   = errors.New("command not supported")
	ErrAlreadyRunning = errors.New("session already running")
	ErrSessionStopped = errors.New("session stopped")
)

// TransportError wraps a failure of the underlying serial channel.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("serial %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError carries a line that could not be decoded into a valid report.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
