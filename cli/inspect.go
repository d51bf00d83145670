package cli

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/georgepadayatti/pdfstamp/pdf/generic"
	"github.com/georgepadayatti/pdfstamp/pdf/metadata"
	"github.com/georgepadayatti/pdfstamp/pdf/reader"
)

// InspectOutput is the JSON-serializable summary of a PDF file.
type InspectOutput struct {
	File       string         `json:"file"`
	Version    string         `json:"version"`
	Objects    int            `json:"objects"`
	Updates    int            `json:"updates"`
	Encryption string         `json:"encryption,omitempty"`
	Title      string         `json:"title,omitempty"`
	Producer   string         `json:"producer,omitempty"`
	Created    *time.Time     `json:"created,omitempty"`
	Modified   *time.Time     `json:"modified,omitempty"`
	Pages      []*PageSummary `json:"pages"`
}

// PageSummary describes one page.
type PageSummary struct {
	Number         int        `json:"number"`
	MediaBox       [4]float64 `json:"media_box"`
	ContentStreams int        `json:"content_streams"`
	Fonts          []string   `json:"fonts,omitempty"`
}

// InspectCommand implements the 'inspect' command.
func InspectCommand(args []string) {
	if err := runInspect(args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail(err)
	}
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "Output the summary in JSON format")
	fs.Usage = func() {
		fmt.Fprintf(stdout, "Usage: %s inspect [options] <file.pdf>\n\n", programName())
		fmt.Fprintln(stdout, "Show the page count and the content streams of each page.")
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
		return errors.New("expected one PDF file")
	}

	output, err := inspectPDF(fs.Arg(0))
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(output)
	}
	outputInspectText(output)
	return nil
}

func inspectPDF(path string) (*InspectOutput, error) {
	r, err := reader.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}

	output := &InspectOutput{
		File:    path,
		Version: r.Version,
		Objects: r.Size() - 1,
		Updates: len(r.Sections()) - 1,
	}
	if sec := r.Security(); sec != nil {
		output.Encryption = sec.Description()
	}
	if ref := r.Trailer().GetInfo(); ref != nil {
		if info, err := r.ResolveDict(*ref); err == nil {
			meta := metadata.FromInfoDict(info)
			output.Title, output.Producer = meta.Title, meta.Producer
			output.Created, output.Modified = meta.Created, meta.LastModified
		}
	}
	for i, page := range r.Pages() {
		streams, err := contentStreamCount(r, page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		box := page.MediaBox
		summary := &PageSummary{
			Number:         i + 1,
			MediaBox:       [4]float64{box.LLX, box.LLY, box.URX, box.URY},
			ContentStreams: streams,
		}
		if page.Resources != nil {
			if fonts, err := r.ResolveDict(page.Resources.Get("Font")); err == nil && fonts != nil {
				summary.Fonts = fonts.Keys()
			}
		}
		output.Pages = append(output.Pages, summary)
	}
	return output, nil
}

func contentStreamCount(r *reader.Reader, page *reader.Page) (int, error) {
	contents, err := r.Resolve(page.Dict.Get("Contents"))
	if err != nil {
		return 0, err
	}
	switch v := contents.(type) {
	case nil, generic.NullObject:
		return 0, nil
	case generic.ArrayObject:
		return len(v), nil
	default:
		return 1, nil
	}
}

func outputInspectText(output *InspectOutput) {
	fmt.Fprintf(stdout, "File:     %s\n", output.File)
	fmt.Fprintf(stdout, "Version:  PDF-%s\n", output.Version)
	fmt.Fprintf(stdout, "Objects:  %d\n", output.Objects)
	fmt.Fprintf(stdout, "Updates:  %d\n", output.Updates)
	if output.Title != "" {
		fmt.Fprintf(stdout, "Title:    %s\n", output.Title)
	}
	if output.Producer != "" {
		fmt.Fprintf(stdout, "Producer: %s\n", output.Producer)
	}
	if output.Created != nil {
		fmt.Fprintf(stdout, "Created:  %s\n", output.Created.Format(time.RFC3339))
	}
	if output.Modified != nil {
		fmt.Fprintf(stdout, "Modified: %s\n", output.Modified.Format(time.RFC3339))
	}
	if output.Encryption != "" {
		fmt.Fprintf(stdout, "Security: %s\n", output.Encryption)
	}
	fmt.Fprintf(stdout, "Pages:    %d\n", len(output.Pages))
	for _, p := range output.Pages {
		fmt.Fprintf(stdout, "  Page %d: %d content stream(s), media box [%s %s %s %s]",
			p.Number, p.ContentStreams,
			generic.FormatNumber(p.MediaBox[0]), generic.FormatNumber(p.MediaBox[1]),
			generic.FormatNumber(p.MediaBox[2]), generic.FormatNumber(p.MediaBox[3]))
		if len(p.Fonts) > 0 {
			fmt.Fprintf(stdout, ", fonts %v", p.Fonts)
		}
		fmt.Fprintln(stdout)
	}
}
