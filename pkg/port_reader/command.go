package port_reader

import "sync"

// Commands are framed as prefix + body + tail.
const (
	cmdPrefix = "\r\n"
	cmdTail   = "}\r\n"

	CmdStartMonitoring = "U"
	CmdStopMonitoring  = "X"
	CmdClearDose       = "e"
	CmdAlarmAck        = "g"

	// Threshold commands are sent as 11....###SE / 22....###SE. The digit
	// encoding is not known, so neither is ever assembled.
	CmdRateAlarmSet = "11"
	CmdDoseAlarmSet = "22"
)

func frameCommand(body string) []byte {
	return []byte(cmdPrefix + body + cmdTail)
}

// commandQueue is a FIFO whose push and pop never block.
type commandQueue struct {
	mu       sync.Mutex
	items    [][]byte
	capacity int
}

func newCommandQueue(capacity int) *commandQueue {
	return &commandQueue{capacity: capacity}
}

func (q *commandQueue) push(cmd []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return ErrQueueFull
	}
	q.items = append(q.items, cmd)
	return nil
}

func (q *commandQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	cmd := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return cmd, true
}

func (q *commandQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
