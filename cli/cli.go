// Package cli provides the command-line interface for stamping PDF files.
package cli

import (
	"fmt"
	"io"
	"os"
)

// Version information
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// osExit is a variable for os.Exit to allow testing
var osExit = os.Exit

// Output streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Run executes the CLI with the given arguments.
// This is the main entry point for the CLI.
func Run(args []string) {
	if len(args) < 2 {
		Usage()
		osExit(1)
		return
	}

	command := args[1]

	switch command {
	case "stamp":
		StampCommand(args)
	case "sample":
		SampleCommand(args)
	case "inspect":
		InspectCommand(args)
	case "version":
		VersionCommand()
	case "help", "-h", "--help":
		Usage()
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		Usage()
		osExit(1)
	}
}

// fail reports err and exits with status 1.
func fail(err error) {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	osExit(1)
}

// Usage prints the CLI usage information.
func Usage() {
	name := programName()
	fmt.Fprintf(stdout, "pdfstamp - mark PDF pages as electronically signed\n\n")
	fmt.Fprintf(stdout, "Usage: %s <command> [options] <args>\n\n", name)
	fmt.Fprintln(stdout, "Commands:")
	fmt.Fprintln(stdout, "  stamp    Stamp every page and append signature certificate pages")
	fmt.Fprintln(stdout, "  sample   Write a plain multi-page PDF to try the stamper on")
	fmt.Fprintln(stdout, "  inspect  Show the pages and content streams of a PDF file")
	fmt.Fprintln(stdout, "  version  Show version information")
	fmt.Fprintln(stdout, "  help     Show this help message")
	fmt.Fprintln(stdout, "")
	fmt.Fprintf(stdout, "Use '%s <command> -h' for command-specific help\n", name)
	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "Examples:")
	fmt.Fprintf(stdout, "  %s sample -pages 3 sample.pdf\n", name)
	fmt.Fprintf(stdout, "  %s stamp -n 16 sample.pdf stamped.pdf\n", name)
	fmt.Fprintf(stdout, "  %s stamp -config pdfstamp.yaml\n", name)
	fmt.Fprintf(stdout, "  %s inspect -json stamped.pdf\n", name)
}

// VersionCommand prints version information.
func VersionCommand() {
	fmt.Fprintf(stdout, "pdfstamp version %s\n", Version)
	fmt.Fprintf(stdout, "Build time: %s\n", BuildTime)
}

func programName() string {
	if len(os.Args) > 0 {
		return os.Args[0]
	}
	return "pdfstamp"
}
