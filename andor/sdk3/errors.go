package sdk3

import (
	"errors"
	"fmt"
)

var (
	// ErrBufferNotOnQueue is generated before a catastrophic side effect is triggered
	ErrBufferNotOnQueue = errors.New("no buffer placed on queue, this error saves you from memory corruption")

	// ErrNoSDK is returned in place of a camera by builds without the andor tag
	ErrNoSDK = errors.New("built without Andor SDK3 support, rebuild with -tags andor or run with Mock: true")

	// ErrNoCamera is returned by Discover when only simulator cameras are present
	ErrNoCamera = errors.New("no physical camera found")

	// ErrCodes is a map of error codes (ints) to error strings
	ErrCodes = map[DRVError]string{
		0:  "AT_SUCCESS",
		1:  "AT_ERR_NOT_INITIALISED",
		2:  "AT_ERR_NOT_IMPLEMENTED",
		3:  "AT_ERR_READONLY",
		4:  "AT_ERR_NOT_READABLE",
		5:  "AT_ERR_NOT_WRITABLE",
		6:  "AT_ERR_OUT_OF_RANGE",
		7:  "AT_ERR_INDEX_NOT_AVAILABLE",
		8:  "AT_ERR_INDEX_NOT_IMPLEMENTED",
		9:  "AT_ERR_EXCEEDED_MAX_STRING_LENGTH",
		10: "AT_ERR_CONNECTION",
		11: "AT_ERR_NO_DATA",
		12: "AT_ERR_INVALID_HANDLE",
		13: "AT_ERR_TIMED_OUT",
		14: "AT_ERR_BUFFER_FULL",
		15: "AT_ERR_INVALID_SIZE",
		16: "AT_ERR_INVALID_ALIGNMENT",
		17: "AT_ERR_COMM",
		18: "AT_ERR_STRING_NOT_AVAILABLE",
		19: "AT_ERR_STRING_NOT_IMPLEMENTED",
		20: "AT_ERR_NULL_FEATURE",
		21: "AT_ERR_NULL_HANDLE",
		22: "AT_ERR_NULL_IMPLEMENTED_VAR",
		23: "AT_ERR_NULL_READABLE_VAR",
		24: "AT_ERR_NULL_READONLY_VAR",
		25: "AT_ERR_NULL_WRITABLE_VAR",
		26: "AT_ERR_NULL_MIN_VALUE",
		27: "AT_ERR_NULL_MAX_VALUE",
		28: "AT_ERR_NULL_VALUE",
		29: "AT_ERR_NULL_STRING",
		30: "AT_ERR_NULL_COUNT_VAR",
		31: "AT_ERR_NULL_IS_AVAILABLE_VAR",
		32: "AT_ERR_NULL_MAX_STRING_LENGTH",
		33: "AT_ERR_NULL_EV_CALLBACK",
		34: "AT_ERR_NULL_QUEUE_PTR",
		35: "AT_ERR_NULL_WAIT_PTR",
		36: "AT_ERR_NULL_PTR_SIZE",
		37: "AT_ERR_NO_MEMORY",
		38: "AT_ERR_DEVICE_IN_USE",
		39: "AT_ERR_DEVICE_NOT_FOUND",

		100: "AT_ERR_HARDWARE_OVERFLOW",
	}
)

// the codes the rest of the package refers to by name
const (
	errNotImplemented DRVError = 2
	errNotWritable    DRVError = 5
	errOutOfRange     DRVError = 6
	errIndexNotAvail  DRVError = 7
	errNoData         DRVError = 11
	errTimedOut       DRVError = 13
	errInvalidSize    DRVError = 15
	errDeviceNotFound DRVError = 39
)

// DRVError represents a driver error
type DRVError int

func (e DRVError) Error() string {
	if s, ok := ErrCodes[e]; ok {
		return fmt.Sprintf("%d - %s", e, s)
	}
	return fmt.Sprintf("%d - UNKNOWN_ERROR_CODE", int(e))
}

// Timeout is true when the code means no buffer was completed within a wait
func (e DRVError) Timeout() bool {
	return e == errTimedOut || e == errNoData
}

// Error returns nil on beneign error codes or returns an error object on non-beneign ones
func Error(code int) error {
	if code == 0 {
		return nil
	}
	return DRVError(code)
}

// enrich prefixes an SDK error with the call or feature that produced it,
// keeping the DRVError available to errors.As
func enrich(err error, ctx string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", ctx, err)
}
