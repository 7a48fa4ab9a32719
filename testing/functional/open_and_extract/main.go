package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bgrewell/usage"

	udfkit "github.com/bgrewell/udf-kit"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
)

func main() {

	u := usage.NewUsage(
		usage.WithApplicationName("open_and_extract"),
		usage.WithApplicationDescription("open_and_extract is a functional testing application that is part of udf-kit and is designed to verify that the open, parse and extraction logic of udf-kit is working as expected against real images."),
	)
	help := u.AddBooleanOption("h", "help", false, "Display this help message", "", nil)
	rm := u.AddBooleanOption("rm", "remove-output", true, "Remove the extracted files after running the tests", "", nil)
	input := u.AddArgument(1, "input", "The input UDF image to run the tests against", "")
	parsed := u.Parse()

	if !parsed {
		u.PrintError(fmt.Errorf("failed to parse arguments"))
		os.Exit(1)
	}

	if *help {
		u.PrintUsage()
		os.Exit(0)
	}

	if input == nil || *input == "" {
		u.PrintError(fmt.Errorf("location of the input image <input> must be provided"))
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.NewSimpleLogger(os.Stderr, logging.LEVEL_TRACE, true))
	i, err := udfkit.Open(*input,
		option.WithLogger(logger),
		option.WithDigests(true))
	if err != nil {
		fmt.Printf("Failed to open image: %s\n", err)
		os.Exit(1)
	}

	// Extract into a random temporary directory
	out, err := os.MkdirTemp("", "open_and_extract_test_*")
	if err != nil {
		fmt.Printf("Failed to create temporary directory: %s\n", err)
		os.Exit(1)
	}

	if *rm {
		defer os.RemoveAll(out)
	} else {
		fmt.Printf("Output directory: %s\n", out)
	}

	report, err := i.ExtractFiles(context.Background(), out, nil)
	if err != nil {
		fmt.Printf("Failed to extract image: %s\n", err)
		os.Exit(1)
	}
	if !report.Completed {
		fmt.Printf("Extraction did not complete\n")
		os.Exit(1)
	}

	// Verify that every extracted file still hashes to the digest computed while streaming it
	mismatched, err := report.Verify(out)
	if err != nil {
		fmt.Printf("Failed to verify extracted files: %s\n", err)
		os.Exit(1)
	}
	if len(mismatched) > 0 {
		fmt.Printf("Extracted files do not match their digests:\n")
		for _, p := range mismatched {
			fmt.Printf("  %s\n", p)
		}
		os.Exit(1)
	}

	if report.Bytes != i.Root().Size() {
		fmt.Printf("Extracted %d bytes, image records %d bytes (%d files skipped)\n",
			report.Bytes, i.Root().Size(), len(report.Skipped))
		os.Exit(1)
	}

	fmt.Printf("Extracted and verified %d files in %d directories\n", report.Files, report.Directories)
}
