//go:build andor

package sdk3

/*
#cgo CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -latcore
#include <stdlib.h>
#include <stdint.h>
#include <atcore.h>

// the SDK requires queued buffers to be 8-byte aligned
static AT_U8* align8(void* p) {
	return (AT_U8*)(((uintptr_t)p + 7) & ~(uintptr_t)7);
}
*/
import "C"
import (
	"time"
	"unsafe"

	cwch "github.com/lordadamson/cgo.wchar"
)

const (
	// LengthOfUndefinedBuffers is how large a buffer to allocate for a Wchar
	// string when we have no way of knowing ahead of time how big it is
	// it is measured in Wchars
	LengthOfUndefinedBuffers = 255
)

func boolToAT(b bool) C.AT_BOOL {
	if b {
		return C.AT_TRUE
	}
	return C.AT_FALSE
}

// withFeature converts feature to a wide string and hands it to call,
// converting the return code to an error enriched with the feature name
func withFeature(feature string, call func(*C.AT_WC) C.int) error {
	cstr, err := cwch.FromGoString(feature)
	if err != nil {
		return err
	}
	return enrich(Error(int(call((*C.AT_WC)(cstr.Pointer())))), feature)
}

// InitializeLibrary calls the function of the same name in the Andor SDK
func InitializeLibrary() error {
	return enrich(Error(int(C.AT_InitialiseLibrary())), "AT_InitialiseLibrary")
}

// FinalizeLibrary calls the function of the same name in the Andor SDK
func FinalizeLibrary() {
	C.AT_FinaliseLibrary()
}

// DeviceCount returns the number of devices (cameras) found by the SDK
// InitializeLibrary must be called first
func DeviceCount() (int, error) {
	return GetInt(int(C.AT_HANDLE_SYSTEM), "DeviceCount")
}

// SoftwareVersion returns the software (SDK) version
// InitializeLibrary must be called first
func SoftwareVersion() (string, error) {
	return GetString(int(C.AT_HANDLE_SYSTEM), "SoftwareVersion")
}

// SetInt sets an integer
func SetInt(handle int, feature string, val int64) error {
	return withFeature(feature, func(f *C.AT_WC) C.int {
		return C.AT_SetInt(C.AT_H(handle), f, C.AT_64(val))
	})
}

// GetInt gets an integer
func GetInt(handle int, feature string) (int, error) {
	var out C.AT_64
	err := withFeature(feature, func(f *C.AT_WC) C.int {
		return C.AT_GetInt(C.AT_H(handle), f, &out)
	})
	return int(out), err
}

// SetFloat sets a floating point value
func SetFloat(handle int, feature string, val float64) error {
	return withFeature(feature, func(f *C.AT_WC) C.int {
		return C.AT_SetFloat(C.AT_H(handle), f, C.double(val))
	})
}

// GetFloat gets a floating point value
func GetFloat(handle int, feature string) (float64, error) {
	var out C.double
	err := withFeature(feature, func(f *C.AT_WC) C.int {
		return C.AT_GetFloat(C.AT_H(handle), f, &out)
	})
	return float64(out), err
}

// SetBool sets a boolean feature
func SetBool(handle int, feature string, val bool) error {
	return withFeature(feature, func(f *C.AT_WC) C.int {
		return C.AT_SetBool(C.AT_H(handle), f, boolToAT(val))
	})
}

// GetBool gets the value of a boolean feature
func GetBool(handle int, feature string) (bool, error) {
	var out C.AT_BOOL
	err := withFeature(feature, func(f *C.AT_WC) C.int {
		return C.AT_GetBool(C.AT_H(handle), f, &out)
	})
	return out == C.AT_TRUE, err
}

// SetString sets the value of a string
func SetString(handle int, feature, val string) error {
	vstr, err := cwch.FromGoString(val)
	if err != nil {
		return err
	}
	return withFeature(feature, func(f *C.AT_WC) C.int {
		return C.AT_SetString(C.AT_H(handle), f, (*C.AT_WC)(vstr.Pointer()))
	})
}

// GetString returns the string value of a feature.  The buffer is sized
// with AT_GetStringMaxLength so callers never allocate wide strings.
func GetString(handle int, feature string) (string, error) {
	var size C.int
	err := withFeature(feature, func(f *C.AT_WC) C.int {
		return C.AT_GetStringMaxLength(C.AT_H(handle), f, &size)
	})
	if err != nil {
		return "", err
	}
	out := cwch.NewWcharString(int(size))
	err = withFeature(feature, func(f *C.AT_WC) C.int {
		return C.AT_GetString(C.AT_H(handle), f, (*C.AT_WC)(out.Pointer()), size)
	})
	if err != nil {
		return "", err
	}
	return out.GoString()
}

// SetEnumString sets the value of a feature to a string that is a valid member
// of the backing enum
func SetEnumString(handle int, feature, val string) error {
	vstr, err := cwch.FromGoString(val)
	if err != nil {
		return err
	}
	return withFeature(feature, func(f *C.AT_WC) C.int {
		return C.AT_SetEnumString(C.AT_H(handle), f, (*C.AT_WC)(vstr.Pointer()))
	})
}

// GetEnumString gets the name of the currently selected option of an enum
func GetEnumString(handle int, feature string) (string, error) {
	var idx C.int
	err := withFeature(feature, func(f *C.AT_WC) C.int {
		return C.AT_GetEnumIndex(C.AT_H(handle), f, &idx)
	})
	if err != nil {
		return "", err
	}
	// no way to know the length ahead of time
	out := cwch.NewWcharString(LengthOfUndefinedBuffers)
	err = withFeature(feature, func(f *C.AT_WC) C.int {
		return C.AT_GetEnumStringByIndex(C.AT_H(handle), f, idx, (*C.AT_WC)(out.Pointer()), C.int(LengthOfUndefinedBuffers))
	})
	if err != nil {
		return "", err
	}
	return out.GoString()
}

// IssueCommand sends a command to the SDK
func IssueCommand(handle int, feature string) error {
	return withFeature(feature, func(f *C.AT_WC) C.int {
		return C.AT_Command(C.AT_H(handle), f)
	})
}

// buffer is a block of C memory handed to the SDK for readout.  Go memory
// cannot be retained by C past the call that receives it, so the SDK
// queue is fed from malloc.
type buffer struct {
	head unsafe.Pointer
	ptr  *C.AT_U8
	size int
}

func allocBuffer(nbytes int) buffer {
	head := C.malloc(C.size_t(nbytes + 8))
	return buffer{head: head, ptr: C.align8(head), size: nbytes}
}

func (b buffer) free() {
	C.free(b.head)
}

func queueBuffer(handle int, b buffer) error {
	return enrich(Error(int(C.AT_QueueBuffer(C.AT_H(handle), b.ptr, C.int(b.size)))), "AT_QueueBuffer")
}

// waitBuffer waits for the SDK to fill a queued buffer and copies it into Go memory
func waitBuffer(handle int, timeout time.Duration) ([]byte, error) {
	var (
		ptr  *C.AT_U8
		size C.int
	)
	tout := C.uint(timeout.Milliseconds())
	err := Error(int(C.AT_WaitBuffer(C.AT_H(handle), &ptr, &size, tout)))
	if err != nil {
		return nil, enrich(err, "AT_WaitBuffer")
	}
	return C.GoBytes(unsafe.Pointer(ptr), size), nil
}

func flush(handle int) error {
	return enrich(Error(int(C.AT_Flush(C.AT_H(handle)))), "AT_Flush")
}

func open(idx int) (int, error) {
	var hndl C.AT_H
	err := enrich(Error(int(C.AT_Open(C.int(idx), &hndl))), "AT_Open")
	return int(hndl), err
}

func closeHandle(handle int) error {
	return enrich(Error(int(C.AT_Close(C.AT_H(handle)))), "AT_Close")
}
