package cli

import (
	"errors"
	"flag"
	"fmt"

	"github.com/georgepadayatti/pdfstamp/pdf/layout"
	"github.com/georgepadayatti/pdfstamp/stamp"
)

// SampleCommand implements the 'sample' command.
func SampleCommand(args []string) {
	if err := runSample(args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail(err)
	}
}

func runSample(args []string) error {
	fs := flag.NewFlagSet("sample", flag.ContinueOnError)
	fs.SetOutput(stderr)
	pages := fs.Int("pages", 3, "Number of pages")
	size := fs.String("page-size", "A4", "Page size, e.g. A4 or letter-landscape")
	xrefStream := fs.Bool("xref-stream", false, "Write a cross-reference stream instead of a table")
	encrypt := fs.String("encrypt", "", "Encrypt with an empty user password: rc4, aes128 or aes256")
	owner := fs.String("owner-password", "", "Owner password for -encrypt")
	fs.Usage = func() {
		fmt.Fprintf(stdout, "Usage: %s sample [options] <output.pdf>\n\n", programName())
		fmt.Fprintln(stdout, "Write a plain multi-page PDF to try the stamper on.")
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Options:")
		fs.SetOutput(stdout)
		fs.PrintDefaults()
		fs.SetOutput(stderr)
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected one output file")
	}

	pageSize, err := layout.ParsePageSize(*size)
	if err != nil {
		return err
	}
	data, err := stamp.SampleDocument(stamp.SampleOptions{
		Pages:         *pages,
		PageSize:      pageSize,
		XRefStream:    *xrefStream,
		Encryption:    *encrypt,
		OwnerPassword: *owner,
	})
	if err != nil {
		return err
	}
	out := fs.Arg(0)
	if err := stamp.WriteFileAtomic(out, data); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %d-page sample: %s\n", *pages, out)
	return nil
}
