package native

import "errors"

// Package errors for the HAL backend.
var (
	// ErrNilDevice is returned when the backend is created without a device.
	ErrNilDevice = errors.New("native: HAL device is nil")

	// ErrNilQueue is returned when the backend is created without a queue.
	ErrNilQueue = errors.New("native: HAL queue is nil")

	// ErrClosed is returned for operations on a closed backend.
	ErrClosed = errors.New("native: backend closed")

	// ErrUnsupportedStage is returned for graphics pipelines with hull,
	// domain or geometry shaders, which the HAL cannot express.
	ErrUnsupportedStage = errors.New("native: unsupported shader stage")

	// ErrUnknownBuffer is returned when a slice refers to a buffer the
	// backend did not allocate.
	ErrUnknownBuffer = errors.New("native: unknown buffer")

	// ErrOutOfRange is returned when a command addresses bytes past the
	// end of its buffer.
	ErrOutOfRange = errors.New("native: range exceeds buffer size")

	// ErrForeignRecording is returned when Submit receives a recording
	// that was not opened by the same backend.
	ErrForeignRecording = errors.New("native: recording belongs to another backend")

	// ErrRecordingSubmitted is returned when recording into or submitting a
	// recording that has already been submitted.
	ErrRecordingSubmitted = errors.New("native: recording already submitted")

	// ErrGPUTimeout is returned when outstanding work does not complete in time.
	ErrGPUTimeout = errors.New("native: GPU timeout")
)
