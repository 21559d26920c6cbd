package output

import (
	"encoding/json"
	"io"

	"reactor-balance/internal/cpuallocator"

	"gopkg.in/yaml.v3"
	"k8s.io/utils/cpuset"
)

// Document is the structured form of an allocation result. The per-instance
// cpuset strings can be pasted into a cephadm crush/cpuset spec as-is.
type Document struct {
	Strategy    string        `json:"strategy" yaml:"strategy"`
	Reactors    int           `json:"reactors" yaml:"reactors"`
	Checksum    string        `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	Masked      bool          `json:"masked" yaml:"masked"`
	Truncated   bool          `json:"truncated" yaml:"truncated"`
	TruncatedAt *int          `json:"truncated_at,omitempty" yaml:"truncated_at,omitempty"`
	Instances   []InstanceDoc `json:"instances" yaml:"instances"`
	HTSiblings  string        `json:"ht_siblings" yaml:"ht_siblings"`
}

type InstanceDoc struct {
	ID     int      `json:"id" yaml:"id"`
	Ranges []string `json:"ranges" yaml:"ranges"`
	CPUSet string   `json:"cpuset" yaml:"cpuset"`
	HTSet  string   `json:"ht_cpuset,omitempty" yaml:"ht_cpuset,omitempty"`
	Mask   string   `json:"taskset_mask,omitempty" yaml:"taskset_mask,omitempty"`
}

func NewDocument(res *cpuallocator.Result, checksum string) *Document {
	doc := &Document{
		Strategy:   string(res.Request.Strategy),
		Reactors:   res.Request.ReactorsPerInstance,
		Checksum:   checksum,
		Masked:     res.Masked,
		Truncated:  res.Truncated,
		Instances:  make([]InstanceDoc, 0, len(res.Instances)),
		HTSiblings: cpuset.New(res.HTSiblings...).String(),
	}
	if res.Truncated {
		at := res.TruncatedAt
		doc.TruncatedAt = &at
	}

	for _, inst := range res.Instances {
		d := InstanceDoc{
			ID:     inst.ID,
			Ranges: make([]string, 0, len(inst.Slices)),
			CPUSet: cpuset.New(inst.CPUs()...).String(),
			HTSet:  cpuset.New(inst.HTSiblings()...).String(),
		}
		for _, s := range inst.Slices {
			d.Ranges = append(d.Ranges, s.String())
		}
		if res.MaskWidth > 0 && len(inst.Slices) > 0 {
			if m, err := inst.Mask(res.MaskWidth); err == nil {
				d.Mask = m.Hex()
			}
		}
		doc.Instances = append(doc.Instances, d)
	}
	return doc
}

func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func WriteYAML(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
