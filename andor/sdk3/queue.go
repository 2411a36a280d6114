package sdk3

import "time"

// queueCount tracks how many buffers are on the SDK's queue.  AT_WaitBuffer
// with nothing queued waits on memory the SDK no longer owns
type queueCount int

func (q *queueCount) add() { *q++ }

func (q *queueCount) reset() { *q = 0 }

// wait calls fcn only if a buffer is queued, and counts the buffer as
// returned when fcn succeeds
func (q *queueCount) wait(timeout time.Duration, fcn func(time.Duration) ([]byte, error)) ([]byte, error) {
	if *q <= 0 {
		return nil, ErrBufferNotOnQueue
	}
	raw, err := fcn(timeout)
	if err == nil {
		*q--
	}
	return raw, err
}
