package option

import (
	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/logging"
)

// ProgressCallback receives the overall extraction progress as a percentage of the image length.
// It is only called when the percentage increases.
type ProgressCallback func(percent int)

// ExtractionProgressCallback receives per file progress during extraction.
type ExtractionProgressCallback func(
	currentFilename string,
	bytesTransferred int64,
	totalBytes int64,
	currentFileNumber int,
	totalFileCount int,
)

type OpenOptions struct {
	ChunkSize                  int
	ComputeDigests             bool
	PreserveTimes              bool
	ProgressCallback           ProgressCallback
	ExtractionProgressCallback ExtractionProgressCallback
	Logger                     *logging.Logger
}

type OpenOption func(*OpenOptions)

// DefaultOpenOptions returns the options used when none are supplied.
func DefaultOpenOptions() *OpenOptions {
	return &OpenOptions{
		ChunkSize: consts.UDF_EXTRACT_CHUNK_SIZE,
		Logger:    logging.DefaultLogger(),
	}
}

// Apply builds OpenOptions from the defaults and opts.
func Apply(opts ...OpenOption) *OpenOptions {
	o := DefaultOpenOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = consts.UDF_EXTRACT_CHUNK_SIZE
	}
	if o.Logger == nil {
		o.Logger = logging.DefaultLogger()
	}
	return o
}

// WithProgress sets a callback that receives the overall extraction percentage.
func WithProgress(callback ProgressCallback) OpenOption {
	return func(o *OpenOptions) {
		o.ProgressCallback = callback
	}
}

// WithExtractionProgress sets a progress callback function that will be called with progress updates.
// Parameters:
// - currentFilename: The path of the file currently being extracted.
// - bytesTransferred: The number of bytes written so far for the current file.
// - totalBytes: The size of the current file.
// - currentFileNumber: The index of the current file being processed.
// - totalFileCount: The total number of files to be processed.
func WithExtractionProgress(callback ExtractionProgressCallback) OpenOption {
	return func(o *OpenOptions) {
		o.ExtractionProgressCallback = callback
	}
}

// WithChunkSize sets the number of bytes copied per read during extraction.
func WithChunkSize(size int) OpenOption {
	return func(o *OpenOptions) {
		o.ChunkSize = size
	}
}

// WithDigests enables BLAKE3 digests of every extracted file.
func WithDigests(enabled bool) OpenOption {
	return func(o *OpenOptions) {
		o.ComputeDigests = enabled
	}
}

// WithPreserveTimes applies the recorded access and modification times to extracted files.
func WithPreserveTimes(enabled bool) OpenOption {
	return func(o *OpenOptions) {
		o.PreserveTimes = enabled
	}
}

func WithLogger(logger *logging.Logger) OpenOption {
	return func(o *OpenOptions) {
		o.Logger = logger
	}
}
