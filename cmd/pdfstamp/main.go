// Command pdfstamp marks every page of a PDF as electronically signed and
// appends pages of numbered signature certificates.
//
// Usage:
//
//	pdfstamp <command> [options] <args>
//
// Commands:
//
//	stamp    Stamp every page and append signature certificate pages
//	sample   Write a plain multi-page PDF to try the stamper on
//	inspect  Show the pages and content streams of a PDF file
//	version  Show version information
//	help     Show help message
//
// Examples:
//
//	# Stamp with 16 certificates, 10 per page
//	pdfstamp stamp input.pdf output.pdf
//
//	# Settings from a file, flags take precedence
//	pdfstamp stamp -config pdfstamp.yaml -n 25
//
//	# Check what was appended
//	pdfstamp inspect -json output.pdf
package main

import (
	"os"

	"github.com/georgepadayatti/pdfstamp/cli"
)

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/pdfstamp
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cli.Version = version
	cli.BuildTime = buildTime

	cli.Run(os.Args)
}
