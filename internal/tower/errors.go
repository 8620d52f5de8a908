package tower

import "errors"

var (
	// ErrBusy is returned when a scan is already queued or bound to a
	// waiting caller.
	ErrBusy = errors.New("scan already pending")
	// ErrTimeout is returned by ScanBlocking when its deadline passes first.
	ErrTimeout = errors.New("timed out waiting for tower scan")
	// ErrStale is returned when the cached signal is too old or was never set.
	ErrStale = errors.New("signal sample is stale")
	// ErrNotReady is delivered to blocking callers when the modem was not
	// registered at scan time. The last completed snapshot is left as is.
	ErrNotReady = errors.New("modem not registered on a network")
	// ErrCancelled is delivered to a blocking caller whose request was
	// withdrawn by CancelScan.
	ErrCancelled = errors.New("tower scan request cancelled")
	// ErrClosed is returned once the scanner has stopped.
	ErrClosed = errors.New("scanner closed")
)
