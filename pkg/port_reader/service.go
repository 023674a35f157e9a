package port_reader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NotCoffee418/adm300_monitor/pkg/sentence"
	"github.com/sirupsen/logrus"
)

// Sent by the instrument on its own line when it powers up.
const PowerOnMarker byte = 0x01

// Initialize a new session on an already open transport.
func NewSession(transport Transport, opts Options, log *logrus.Logger) *Session {
	defaults := DefaultOptions()
	if opts.LoopInterval <= 0 {
		opts.LoopInterval = defaults.LoopInterval
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = defaults.ErrorBackoff
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Session{
		transport:  transport,
		opts:       opts,
		log:        log,
		queue:      newCommandQueue(opts.QueueCapacity),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		lastReport: sentence.Invalid(),
	}
}

// Open the serial port and build a session on it.
func Open(cfg SerialConfig, opts Options, log *logrus.Logger) (*Session, error) {
	transport, err := OpenSerial(cfg)
	if err != nil {
		return nil, err
	}
	session := NewSession(transport, opts, log)
	session.log.Infof("Connected to ADM-300 on %s at %d baud", cfg.Device, cfg.Baudrate)
	return session, nil
}

// Start spins up the worker goroutine.
func (s *Session) Start() error {
	if !s.state.CompareAndSwap(uint32(stateIdle), uint32(stateRunning)) {
		if sessionState(s.state.Load()) == stateRunning {
			return ErrAlreadyRunning
		}
		return ErrSessionStopped
	}

	go s.run()
	return nil
}

// Stop flags the worker to exit after its current iteration. It does not
// wait; use Done or Close for that.
func (s *Session) Stop() {
	prev := sessionState(s.state.Swap(uint32(stateStopped)))
	switch prev {
	case stateIdle:
		close(s.stopCh)
		close(s.done)
	case stateRunning:
		close(s.stopCh)
		s.log.Info("Stop signal sent to ADM-300 session")
	}
}

// Done is closed once the worker has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close stops the worker, waits for it and closes the transport.
func (s *Session) Close() error {
	s.Stop()
	<-s.done
	if err := s.transport.Close(); err != nil {
		return &TransportError{Op: "close", Err: err}
	}
	s.log.Info("Disconnected from ADM-300")
	return nil
}

func (s *Session) Running() bool {
	return sessionState(s.state.Load()) == stateRunning
}

func (s *Session) run() {
	defer close(s.done)

	for s.Running() {
		pause := s.iterate()

		select {
		case <-time.After(pause):
		case <-s.stopCh:
		}
	}
}

// iterate runs one write/read/dispatch step and returns how long to pause.
func (s *Session) iterate() time.Duration {
	if cmd, ok := s.queue.pop(); ok {
		if _, err := s.transport.Write(cmd); err != nil {
			s.reportError(&TransportError{Op: "write", Err: err})
		} else {
			s.log.Debugf("Sent command %q", cmd)
		}
	}

	line, err := s.transport.ReadLine()
	if err != nil {
		s.reportError(&TransportError{Op: "read", Err: err})
		return s.opts.ErrorBackoff
	}

	s.dispatch(line)
	return s.opts.LoopInterval
}

func (s *Session) dispatch(line string) {
	trimmed := strings.TrimRight(line, "\r\n")
	if trimmed == "" {
		return
	}

	if len(trimmed) == 1 && trimmed[0] == PowerOnMarker && !s.gotPowerOn.Load() {
		s.gotPowerOn.Store(true)
		s.log.Info("ADM-300 powered on")
		s.safeCall("power-on", s.powerOnCallback())
		return
	}

	s.log.Debugf("Received line %q", line)

	s.reportMutex.Lock()
	s.lastRawLine = line
	s.reportMutex.Unlock()
	rawCb := s.rawCallback()
	s.safeCall("raw", func() { rawCb(line) })

	report, err := sentence.Decode(line)

	s.reportMutex.Lock()
	s.lastReport = report
	s.reportMutex.Unlock()
	if report.Valid {
		s.gotSentence.Store(true)
	}

	parsedCb := s.parsedCallback()
	s.safeCall("parsed", func() { parsedCb(report) })

	if err != nil {
		s.reportError(&DecodeError{Line: line, Err: err})
	}
}

// safeCall runs a user callback, turning a panic into a reported error.
func (s *Session) safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.reportError(fmt.Errorf("%s callback panicked: %v", name, r))
		}
	}()
	fn()
}

func (s *Session) reportError(err error) {
	s.log.Warnf("ADM-300 session: %v", err)

	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("Error callback panicked: %v", r)
		}
	}()
	s.errorCallback()(err)
}

func (s *Session) sendCommand(body string) error {
	if err := s.queue.push(frameCommand(body)); err != nil {
		return fmt.Errorf("queue command %q: %w", body, err)
	}
	s.log.Debugf("Queued command %q", body)
	return nil
}

// Start acquiring readings from the ADM-300.
func (s *Session) StartMonitoring() error {
	return s.sendCommand(CmdStartMonitoring)
}

// Stop acquiring readings from the ADM-300.
func (s *Session) StopMonitoring() error {
	return s.sendCommand(CmdStopMonitoring)
}

func (s *Session) ClearAccumulatedDose() error {
	return s.sendCommand(CmdClearDose)
}

// Clear active alarms on the ADM-300.
func (s *Session) AcknowledgeAlarm() error {
	return s.sendCommand(CmdAlarmAck)
}

// SetDoseAlarmThreshold is not supported and never queues anything.
func (s *Session) SetDoseAlarmThreshold(threshold float64) error {
	return fmt.Errorf("set dose alarm threshold to %g: %w", threshold, ErrNotSupported)
}

// SetRateAlarmThreshold is not supported and never queues anything.
func (s *Session) SetRateAlarmThreshold(threshold float64) error {
	return fmt.Errorf("set rate alarm threshold to %g: %w", threshold, ErrNotSupported)
}

// PendingCommands is the number of queued commands not yet written.
func (s *Session) PendingCommands() int {
	return s.queue.len()
}

// AwaitActivity blocks until the meter has powered on or sent a valid
// sentence, polling every interval.
func (s *Session) AwaitActivity(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if s.GotPowerOn() || s.GotSentence() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrSessionStopped
		case <-ticker.C:
		}
	}
}

// AwaitFlush blocks until every queued command was written or ctx ends.
func (s *Session) AwaitFlush(ctx context.Context) error {
	for s.PendingCommands() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrSessionStopped
		case <-time.After(s.opts.LoopInterval):
		}
	}
	return nil
}

func (s *Session) GotPowerOn() bool {
	return s.gotPowerOn.Load()
}

// GotSentence reports whether at least one valid sentence was decoded.
func (s *Session) GotSentence() bool {
	return s.gotSentence.Load()
}

// LastParsedReport returns the result of the most recent decode, which may
// be invalid.
func (s *Session) LastParsedReport() sentence.ParsedReport {
	s.reportMutex.RLock()
	defer s.reportMutex.RUnlock()
	return s.lastReport
}

func (s *Session) LastRawLine() string {
	s.reportMutex.RLock()
	defer s.reportMutex.RUnlock()
	return s.lastRawLine
}

// Callback setters replace any earlier registration. nil restores the no-op.

func (s *Session) SetRawCallback(cb RawCallback) {
	s.callbackMutex.Lock()
	defer s.callbackMutex.Unlock()
	s.rawCb = cb
}

func (s *Session) SetParsedCallback(cb ParsedCallback) {
	s.callbackMutex.Lock()
	defer s.callbackMutex.Unlock()
	s.parsedCb = cb
}

func (s *Session) SetPowerOnCallback(cb PowerOnCallback) {
	s.callbackMutex.Lock()
	defer s.callbackMutex.Unlock()
	s.powerOnCb = cb
}

func (s *Session) SetErrorCallback(cb ErrorCallback) {
	s.callbackMutex.Lock()
	defer s.callbackMutex.Unlock()
	s.errorCb = cb
}

func (s *Session) rawCallback() RawCallback {
	s.callbackMutex.RLock()
	defer s.callbackMutex.RUnlock()
	if s.rawCb == nil {
		return func(string) {}
	}
	return s.rawCb
}

func (s *Session) parsedCallback() ParsedCallback {
	s.callbackMutex.RLock()
	defer s.callbackMutex.RUnlock()
	if s.parsedCb == nil {
		return func(sentence.ParsedReport) {}
	}
	return s.parsedCb
}

func (s *Session) powerOnCallback() PowerOnCallback {
	s.callbackMutex.RLock()
	defer s.callbackMutex.RUnlock()
	if s.powerOnCb == nil {
		return func() {}
	}
	return s.powerOnCb
}

func (s *Session) errorCallback() ErrorCallback {
	s.callbackMutex.RLock()
	defer s.callbackMutex.RUnlock()
	if s.errorCb == nil {
		return func(error) {}
	}
	return s.errorCb
}
