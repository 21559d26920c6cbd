package output

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"reactor-balance/internal/cpuallocator"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var ErrUnknownFormat = errors.New("unknown output format")

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q (want text, json or yaml)", ErrUnknownFormat, s)
}

// WriteText renders one line per instance with that instance's ranges
// joined by commas, followed by a final line with every hyperthread
// sibling id in ascending order separated by single spaces.
func WriteText(w io.Writer, res *cpuallocator.Result) error {
	var b strings.Builder
	for _, inst := range res.Instances {
		b.WriteString(inst.RangeList())
		b.WriteByte('\n')
	}
	ids := make([]string, 0, len(res.HTSiblings))
	for _, id := range res.HTSiblings {
		ids = append(ids, strconv.Itoa(id))
	}
	b.WriteString(strings.Join(ids, " "))
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

// Write renders res in the requested format. The checksum is only part of
// the structured formats.
func Write(w io.Writer, format Format, res *cpuallocator.Result, checksum string) error {
	switch format {
	case FormatText, "":
		return WriteText(w, res)
	case FormatJSON:
		return WriteJSON(w, NewDocument(res, checksum))
	case FormatYAML:
		return WriteYAML(w, NewDocument(res, checksum))
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}
