package wifi

import "errors"

var (
	ErrNotSupported      = errors.New("not supported")
	ErrNotFound          = errors.New("not found")
	ErrNotAvailable      = errors.New("not available")
	ErrOperationFailed   = errors.New("operation failed")
	ErrWirelessDisabled  = errors.New("wireless is disabled")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnsupportedDriver = errors.New("driver is unsupported")
	ErrNotAssociated     = errors.New("not associated")
	ErrCancelTimeout     = errors.New("timed out waiting for activation to stop")

	// ErrScanNotReady is returned by a Driver when the card has not finished
	// compiling its scan results yet. Callers may retry after a short pause.
	ErrScanNotReady = errors.New("scan results not ready")
)
