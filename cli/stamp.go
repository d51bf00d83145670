package cli

import (
	"errors"
	"flag"
	"fmt"

	"github.com/georgepadayatti/pdfstamp/config"
	"github.com/georgepadayatti/pdfstamp/stamp"
)

// StampOptions contains options for the stamp command.
type StampOptions struct {
	ConfigFile string
	Signatures int
	Capacity   int
	Columns    int
	Font       string
	BoldFont   string
	Document   string
	Mode       string
	PageSize   string
}

func stampFlags(opts *StampOptions) *flag.FlagSet {
	d := config.Default()
	fs := flag.NewFlagSet("stamp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.ConfigFile, "config", "", "YAML configuration file")
	fs.IntVar(&opts.Signatures, "n", d.Signatures, "Number of signature certificates")
	fs.IntVar(&opts.Capacity, "capacity", d.Certificates.PerPage, "Certificates per appended page")
	fs.IntVar(&opts.Columns, "columns", d.Certificates.Columns, "Certificates per row")
	fs.StringVar(&opts.Font, "font", "", "TrueType font for regular text (default Go Regular)")
	fs.StringVar(&opts.BoldFont, "bold-font", "", "TrueType font for bold text (default Go Bold)")
	fs.StringVar(&opts.Document, "document", "", "Document number shown on the badge (default derived from the input)")
	fs.StringVar(&opts.Mode, "mode", d.Mode, "What to add: all, badge or certificates")
	fs.StringVar(&opts.PageSize, "page-size", d.Page.Size, "Size of appended pages, e.g. A4 or letter-landscape")

	fs.Usage = func() {
		name := programName()
		fmt.Fprintf(stdout, "Usage: %s stamp [options] <input.pdf> <output.pdf>\n\n", name)
		fmt.Fprintln(stdout, "Stamp every page with the signed-document badge and append pages of")
		fmt.Fprintln(stdout, "numbered signature certificates.")
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Arguments:")
		fmt.Fprintln(stdout, "  input.pdf   PDF file to stamp (or 'input' in the config file)")
		fmt.Fprintln(stdout, "  output.pdf  Output file (or 'output' in the config file)")
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Options:")
		fs.SetOutput(stdout)
		fs.PrintDefaults()
		fs.SetOutput(stderr)
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Examples:")
		fmt.Fprintf(stdout, "  %s stamp input.pdf output.pdf\n", name)
		fmt.Fprintf(stdout, "  %s stamp -n 25 -capacity 12 -columns 3 input.pdf output.pdf\n", name)
		fmt.Fprintf(stdout, "  %s stamp -config pdfstamp.yaml -mode badge\n", name)
	}
	return fs
}

// StampCommand implements the 'stamp' command.
func StampCommand(args []string) {
	if err := runStamp(args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail(err)
	}
}

func runStamp(args []string) error {
	var opts StampOptions
	fs := stampFlags(&opts)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := stampConfig(fs, &opts)
	if err != nil {
		return err
	}
	if err := cfg.RequireFiles(); err != nil {
		fs.Usage()
		return err
	}

	transformOpts, err := cfg.StampOptions()
	if err != nil {
		return err
	}
	logger, closer, err := NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()
	transformOpts.Logger = logger

	result, err := stamp.TransformFile(cfg.Input, cfg.Output, transformOpts)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Stamped %d pages and appended %d certificate pages (document %s): %s\n",
		result.PagesStamped, result.CertificatePages, result.DocumentNumber, cfg.Output)
	return nil
}

// stampConfig loads the config file, if any, and applies the flags that
// were set explicitly and the positional paths on top of it.
func stampConfig(fs *flag.FlagSet, opts *StampOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigFile != "" {
		loaded, err := config.LoadConfig(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "n":
			cfg.Signatures = opts.Signatures
		case "capacity":
			cfg.Certificates.PerPage = opts.Capacity
		case "columns":
			cfg.Certificates.Columns = opts.Columns
		case "font":
			cfg.Fonts.Regular = opts.Font
		case "bold-font":
			cfg.Fonts.Bold = opts.BoldFont
		case "document":
			cfg.Document.Number = opts.Document
		case "mode":
			cfg.Mode = opts.Mode
		case "page-size":
			cfg.Page.Size = opts.PageSize
		}
	})

	if fs.NArg() > 0 {
		cfg.Input = fs.Arg(0)
	}
	if fs.NArg() > 1 {
		cfg.Output = fs.Arg(1)
	}
	if fs.NArg() > 2 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args()[2:])
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
