package udfkit

import (
	"errors"
	"fmt"

	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/bgrewell/udf-kit/pkg/udf"
)

// ErrNotUDF is returned by Open for images that do not hold a valid UDF file system.
var ErrNotUDF = errors.New("not a valid UDF image")

// Open opens an existing UDF image file and parses its file systems.
func Open(location string, opts ...option.OpenOption) (*udf.UDF, error) {
	image := udf.New(location, opts...)
	ok, err := image.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", location, ErrNotUDF)
	}
	return image, nil
}
