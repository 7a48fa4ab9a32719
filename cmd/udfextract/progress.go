package main

import (
	"fmt"
	"os"
	"time"

	"github.com/bgrewell/udf-kit/pkg/helpers"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/theckman/yacspin"
	"golang.org/x/term"
)

// progressMessage formats the spinner message for a file, truncating the file name to fit width columns.
func progressMessage(filename string, transferred, total int64, number, count, width, overall int) string {
	percent := 100.0
	if total > 0 {
		percent = float64(transferred) / float64(total) * 100
	}

	// Define fixed parts of the message
	fixedPart := fmt.Sprintf(" [%d/%d] ", number, count)
	suffixPart := fmt.Sprintf(" - %.2f%% (%d%%)", percent, overall)

	// Calculate available space for the filename
	availableSpace := width - len(fixedPart) - len(suffixPart) - 6
	if availableSpace < 10 {
		availableSpace = 10
	}

	return fixedPart + helpers.TruncateLeft(filename, availableSpace) + suffixPart
}

// tracker feeds extraction progress into the spinner.
type tracker struct {
	spinner *yacspin.Spinner
	overall int
}

// Overall returns a ProgressCallback recording the image wide percentage.
func (t *tracker) Overall() option.ProgressCallback {
	return func(percent int) {
		t.overall = percent
	}
}

// PerFile returns an ExtractionProgressCallback that updates the spinner's message.
func (t *tracker) PerFile() option.ExtractionProgressCallback {
	return func(
		currentFilename string,
		bytesTransferred int64,
		totalBytes int64,
		currentFileNumber int,
		totalFileCount int,
	) {
		if t.spinner == nil {
			return
		}
		// Fetch terminal width
		width, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil {
			width = 80
		}
		t.spinner.Message(progressMessage(currentFilename, bytesTransferred, totalBytes,
			currentFileNumber, totalFileCount, width, t.overall))
	}
}

// InitializeSpinner sets up and starts the yacspin spinner.
func InitializeSpinner() (*yacspin.Spinner, error) {
	settings := yacspin.Config{
		Frequency:         100 * time.Millisecond,
		ShowCursor:        false,
		SpinnerAtEnd:      false,
		CharSet:           yacspin.CharSets[14],
		Colors:            []string{"fgHiCyan"},
		StopColors:        []string{"fgHiGreen"},
		StopFailColors:    []string{"fgHiRed"},
		StopFailCharacter: "✗",
		StopCharacter:     "✓",
	}

	spinner, err := yacspin.New(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create spinner: %w", err)
	}
	if err := spinner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start spinner: %w", err)
	}
	return spinner, nil
}
