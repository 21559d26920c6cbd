package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"reactor-balance/internal/cpuallocator"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func dualSocketResult() *cpuallocator.Result {
	return &cpuallocator.Result{
		Request: cpuallocator.Request{NumInstances: 2, ReactorsPerInstance: 3, Strategy: cpuallocator.StrategyInstance},
		Instances: []cpuallocator.Instance{
			{ID: 0, Slices: []cpuallocator.Slice{
				{SocketID: 0, Start: 0, End: 2, CPUs: []int{0, 1, 2}, HTSiblings: []int{56, 57, 58}},
			}},
			{ID: 1, Slices: []cpuallocator.Slice{
				{SocketID: 1, Start: 28, End: 30, CPUs: []int{28, 29, 30}, HTSiblings: []int{84, 85, 86}},
			}},
		},
		HTSiblings:  []int{56, 57, 58, 84, 85, 86},
		MaskWidth:   14,
		TruncatedAt: -1,
	}
}

func TestWriteText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  *cpuallocator.Result
		want string
	}{
		{
			name: "one slice per instance",
			res:  dualSocketResult(),
			want: "0-2\n28-30\n56 57 58 84 85 86\n",
		},
		{
			name: "slices joined in socket order",
			res: &cpuallocator.Result{
				Instances: []cpuallocator.Instance{
					{ID: 0, Slices: []cpuallocator.Slice{
						{SocketID: 0, Start: 0, End: 1, CPUs: []int{0, 1}},
						{SocketID: 1, Start: 28, End: 28, CPUs: []int{28}},
					}},
				},
				HTSiblings: []int{56, 57, 84},
			},
			want: "0-1,28-28\n56 57 84\n",
		},
		{
			name: "truncated instance keeps its line",
			res: &cpuallocator.Result{
				Instances: []cpuallocator.Instance{
					{ID: 0, Slices: []cpuallocator.Slice{{SocketID: 0, Start: 0, End: 1, CPUs: []int{0, 1}}}},
					{ID: 1},
				},
				HTSiblings: []int{16, 17},
			},
			want: "0-1\n\n16 17\n",
		},
		{
			name: "no siblings",
			res:  &cpuallocator.Result{},
			want: "\n",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			if err := WriteText(&buf, tt.res); err != nil {
				t.Fatalf("WriteText: %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Fatalf("WriteText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func wantDualSocketDocument() *Document {
	return &Document{
		Strategy: "osd",
		Reactors: 3,
		Checksum: "abc123",
		Instances: []InstanceDoc{
			{ID: 0, Ranges: []string{"0-2"}, CPUSet: "0-2", HTSet: "56-58", Mask: strings.Repeat("0", 26) + "07"},
			{ID: 1, Ranges: []string{"28-30"}, CPUSet: "28-30", HTSet: "84-86", Mask: strings.Repeat("0", 20) + "70" + strings.Repeat("0", 6)},
		},
		HTSiblings: "56-58,84-86",
	}
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, dualSocketResult(), "abc123"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got Document
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal: %v\n%s", err, buf.String())
	}
	if diff := cmp.Diff(wantDualSocketDocument(), &got); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteYAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Write(&buf, FormatYAML, dualSocketResult(), "abc123"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(buf.String(), "checksum: abc123") {
		t.Fatalf("expected checksum in yaml output:\n%s", buf.String())
	}

	var got Document
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("yaml.Unmarshal: %v\n%s", err, buf.String())
	}
	if diff := cmp.Diff(wantDualSocketDocument(), &got); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestNewDocumentTruncated(t *testing.T) {
	t.Parallel()

	res := &cpuallocator.Result{
		Request: cpuallocator.Request{NumInstances: 2, ReactorsPerInstance: 2, Strategy: cpuallocator.StrategySocket},
		Instances: []cpuallocator.Instance{
			{ID: 0, Slices: []cpuallocator.Slice{{SocketID: 0, Start: 0, End: 1, CPUs: []int{0, 1}, HTSiblings: []int{16, 17}}}},
			{ID: 1},
		},
		HTSiblings:  []int{16, 17},
		MaskWidth:   4,
		Masked:      true,
		Truncated:   true,
		TruncatedAt: 1,
	}

	doc := NewDocument(res, "")
	one := 1
	want := &Document{
		Strategy:    "socket",
		Reactors:    2,
		Masked:      true,
		Truncated:   true,
		TruncatedAt: &one,
		Instances: []InstanceDoc{
			{ID: 0, Ranges: []string{"0-1"}, CPUSet: "0-1", HTSet: "16-17", Mask: "00000003"},
			{ID: 1, Ranges: []string{}, CPUSet: ""},
		},
		HTSiblings: "16-17",
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatText},
		{in: "text", want: FormatText},
		{in: "JSON", want: FormatJSON},
		{in: " yaml ", want: FormatYAML},
		{in: "yml", want: FormatYAML},
		{in: "xml", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownFormat) {
				t.Fatalf("ParseFormat(%q) error = %v, want ErrUnknownFormat", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
