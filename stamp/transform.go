package stamp

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/blake2b"

	"github.com/georgepadayatti/pdfstamp/pdf/fonts"
	"github.com/georgepadayatti/pdfstamp/pdf/reader"
	"github.com/georgepadayatti/pdfstamp/pdf/writer"
)

// Mode selects which parts of the transform run.
type Mode string

const (
	ModeAll          Mode = "all"
	ModeBadge        Mode = "badge"
	ModeCertificates Mode = "certificates"
)

// ParseMode parses a mode name. The empty string means ModeAll.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAll, nil
	case ModeAll, ModeBadge, ModeCertificates:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidOptions, s)
	}
}

func (m Mode) badge() bool        { return m == ModeAll || m == ModeBadge }
func (m Mode) certificates() bool { return m == ModeAll || m == ModeCertificates }

// Options configures Transform.
type Options struct {
	Mode         Mode
	Badge        *Badge
	Certificates CertificateOptions

	// RegularFont defaults to Go Regular. BoldFont defaults to Go Bold
	// when RegularFont is nil too; otherwise a nil BoldFont is
	// simulated.
	RegularFont *fonts.TrueTypeFont
	BoldFont    *fonts.TrueTypeFont

	// DocumentNumber is shown on the badge. It takes precedence over
	// Badge.Document; when both are empty the number is derived from the
	// input bytes.
	DocumentNumber string

	Compress bool
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// DefaultOptions returns options for the full transform with the
// default badge and 16 certificates.
func DefaultOptions() *Options {
	return &Options{
		Mode:         ModeAll,
		Badge:        DefaultBadge(),
		Certificates: DefaultCertificateOptions(),
		Compress:     true,
	}
}

// Result reports what Transform did.
type Result struct {
	Output           []byte
	DocumentNumber   string
	OriginalPages    int
	PagesStamped     int
	CertificatePages int
	Blocks           []PlacedBlock
	// Encryption describes the input's security handler, empty when the
	// input is not encrypted. The update is encrypted the same way.
	Encryption string
}

// DocumentNumber derives a 10-digit number from the BLAKE2b-256 digest of
// data.
func DocumentNumber(data []byte) string {
	sum := blake2b.Sum256(data)
	return fmt.Sprintf("%010d", binary.BigEndian.Uint64(sum[:8])%10_000_000_000)
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (o *Options) loadFonts() (regular, bold *fonts.TrueTypeFont, err error) {
	regular, bold = o.RegularFont, o.BoldFont
	if regular == nil {
		if regular, err = fonts.GoRegular(); err != nil {
			return nil, nil, err
		}
		if bold == nil {
			if bold, err = fonts.GoBold(); err != nil {
				return nil, nil, err
			}
		}
	}
	return regular, bold, nil
}

// Transform stamps input and appends the certificate pages. The input
// bytes are kept unchanged as a prefix of Result.Output.
func Transform(input []byte, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	log := opts.logger()

	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	badge := new(Badge)
	*badge = *opts.badgeOrDefault()
	switch {
	case opts.DocumentNumber != "":
		badge.Document = opts.DocumentNumber
	case badge.Document == "":
		badge.Document = DocumentNumber(input)
	}

	var paginator *CertificatePaginator
	if mode.certificates() {
		if paginator, err = NewCertificatePaginator(opts.Certificates); err != nil {
			return nil, err
		}
	}
	if mode.badge() {
		if err := badge.Validate(); err != nil {
			return nil, err
		}
	}

	r, err := reader.New(input)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}
	log.Debug("parsed input", "pages", r.NumPages(), "objects", r.Size(), "version", r.Version)

	regular, bold, err := opts.loadFonts()
	if err != nil {
		return nil, fmt.Errorf("failed to load fonts: %w", err)
	}

	w := writer.NewIncrementalWriter(r)
	w.Compress = opts.Compress
	if opts.Clock != nil {
		w.Clock = opts.Clock
	}
	if mode.certificates() {
		w.PageBox = opts.Certificates.PageSize.MediaBox()
	}

	res := NewResources(w, regular, bold, opts.Compress)
	var texts []string
	if mode.badge() {
		texts = append(texts, badge.Lines()...)
	}
	if mode.certificates() {
		texts = append(texts, opts.Certificates.Texts()...)
	}
	if err := res.CheckCoverage(texts...); err != nil {
		return nil, err
	}
	if res.FakeBold() {
		log.Debug("no bold font, simulating bold", "font", regular.Name())
	}

	result := &Result{DocumentNumber: badge.Document, OriginalPages: r.NumPages()}
	if sec := r.Security(); sec != nil {
		result.Encryption = sec.Description()
		log.Warn("input is encrypted, ignoring its permissions",
			"encryption", result.Encryption, "permissions", fmt.Sprintf("%#x", uint32(sec.Permissions)))
	}

	if mode.badge() {
		n, err := NewPageStamper(badge).StampPages(w, res)
		if err != nil {
			return nil, err
		}
		result.PagesStamped = n
		log.Debug("stamped pages", "pages", n, "document", badge.Document)
	}

	if mode.certificates() {
		blocks, err := paginator.Paginate(w, res)
		if err != nil {
			return nil, err
		}
		result.Blocks = blocks
		result.CertificatePages = len(blocks)
		for _, b := range blocks {
			log.Debug("placed certificate block", "page", b.Page, "cells", len(b.Indices),
				"rows", b.Rows, "height", b.Height, "bottom", b.Block.Y)
		}
	}

	if err := res.Finish(); err != nil {
		return nil, err
	}
	if result.Output, err = w.Bytes(); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	log.Info("transformed document",
		"pages_stamped", result.PagesStamped,
		"certificate_pages", result.CertificatePages,
		"bytes_in", len(input),
		"bytes_out", len(result.Output))
	return result, nil
}

func (o *Options) badgeOrDefault() *Badge {
	if o.Badge != nil {
		return o.Badge
	}
	return DefaultBadge()
}

// TransformFile transforms the file at inPath and writes the result to
// outPath. The output is written to a temporary file in the same
// directory and renamed into place, so outPath is never left partial.
func TransformFile(inPath, outPath string, opts *Options) (*Result, error) {
	input, err := os.ReadFile(inPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	result, err := Transform(input, opts)
	if err != nil {
		return nil, err
	}
	if err := WriteFileAtomic(outPath, result.Output); err != nil {
		return nil, err
	}
	return result, nil
}

// WriteFileAtomic writes data to path through a temporary file and a
// rename.
func WriteFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync output file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set output file mode: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename output file: %w", err)
	}
	return nil
}
