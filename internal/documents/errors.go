package documents

import "errors"

var (
	// ErrUnsupported indicates a file type the engine cannot read.
	ErrUnsupported = errors.New("unsupported file type")
	// ErrUnknownEngine indicates an engine name that is not registered.
	ErrUnknownEngine = errors.New("unknown processing engine")
	// ErrAlreadyRunning indicates the file is already queued or being processed.
	ErrAlreadyRunning = errors.New("processing already running")
	// ErrQueueFull indicates the worker queue cannot take another job.
	ErrQueueFull = errors.New("processing queue is full")
	// ErrNotReady indicates text was requested before processing finished.
	ErrNotReady = errors.New("processing not finished")
	// ErrNotProcessed indicates no extracted text exists for the file.
	ErrNotProcessed = errors.New("file has not been processed")
)
