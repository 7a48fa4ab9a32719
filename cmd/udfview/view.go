package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/bgrewell/udf-kit/pkg/filesystem"
	"github.com/bgrewell/udf-kit/pkg/systemarea"
	"github.com/bgrewell/udf-kit/pkg/udf"
)

type partitionView struct {
	Number uint16 `yaml:"number"`
	Start  uint32 `yaml:"start_sector"`
	Length uint32 `yaml:"sectors"`
	Volume int    `yaml:"volume"`
}

type volumeView struct {
	Identifier    string    `yaml:"identifier"`
	BlockSize     uint32    `yaml:"block_size"`
	RecordingTime time.Time `yaml:"recording_time,omitempty"`
	Partitions    []uint16  `yaml:"partitions"`
}

type entryView struct {
	Name     string       `yaml:"name"`
	Size     int64        `yaml:"size"`
	Dir      bool         `yaml:"dir,omitempty"`
	Skipped  bool         `yaml:"not_extractable,omitempty"`
	Children []*entryView `yaml:"children,omitempty"`
}

type imageView struct {
	Image       string          `yaml:"image"`
	Recognition []string        `yaml:"recognition,omitempty"`
	SystemArea  string          `yaml:"system_area,omitempty"`
	Volumes     []volumeView    `yaml:"volumes"`
	Partitions  []partitionView `yaml:"partitions"`
	Folders     int             `yaml:"folders"`
	Files       int             `yaml:"files"`
	Bytes       int64           `yaml:"bytes"`
	Tree        *entryView      `yaml:"tree,omitempty"`
}

// describe collects what udfview prints about an opened image.
func describe(image *udf.UDF, recognition []string, withTree bool) *imageView {
	v := &imageView{Image: image.Location(), Recognition: recognition}
	if sa, err := image.SystemArea(); err == nil {
		v.SystemArea = systemAreaSummary(sa)
	}
	for _, lv := range image.Volumes() {
		vv := volumeView{Identifier: lv.Identifier, BlockSize: lv.BlockSize}
		if lv.FileSet != nil {
			vv.RecordingTime = lv.FileSet.RecordingTime
		}
		for _, pm := range lv.PartitionMaps {
			vv.Partitions = append(vv.Partitions, pm.PartitionNumber)
		}
		v.Volumes = append(v.Volumes, vv)
	}
	for _, p := range image.Partitions() {
		v.Partitions = append(v.Partitions, partitionView{Number: p.Number, Start: p.Start, Length: p.Length, Volume: p.VolumeIndex})
	}

	root := image.Root()
	_ = root.Walk(func(r *filesystem.Record) error {
		switch {
		case r.IsRoot():
		case r.IsDir():
			v.Folders++
		case !r.IsSystem():
			v.Files++
		}
		return nil
	})
	v.Bytes = root.Size()
	if withTree {
		v.Tree = entry(root)
	}
	return v
}

func systemAreaSummary(sa *systemarea.SystemArea) string {
	switch {
	case sa.IsEmpty():
		return "empty"
	case sa.HasMBR():
		types := make([]string, 0, 4)
		for _, t := range sa.PartitionTypes() {
			types = append(types, fmt.Sprintf("0x%02X", t))
		}
		return fmt.Sprintf("master boot record, partitions [%s]", strings.Join(types, " "))
	default:
		return "contains data"
	}
}

func entry(r *filesystem.Record) *entryView {
	e := &entryView{Name: r.Name(), Size: r.Size(), Dir: r.IsDir(), Skipped: !r.Extractable()}
	if r.IsRoot() {
		e.Name = "/"
	}
	for _, child := range r.Children() {
		e.Children = append(e.Children, entry(child))
	}
	return e
}

// writeYAML encodes v as YAML.
func writeYAML(w io.Writer, v *imageView) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// writeText prints v for people, grouping large numbers.
func writeText(w io.Writer, v *imageView) {
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "Image:        %s\n", v.Image)
	if len(v.Recognition) > 0 {
		p.Fprintf(w, "Recognition:  %s\n", strings.Join(v.Recognition, " "))
	}
	if v.SystemArea != "" {
		p.Fprintf(w, "System area:  %s\n", v.SystemArea)
	}
	for i, lv := range v.Volumes {
		p.Fprintf(w, "Volume %d:     %s\n", i, lv.Identifier)
		p.Fprintf(w, "  Block size: %d\n", lv.BlockSize)
		if !lv.RecordingTime.IsZero() {
			p.Fprintf(w, "  Recorded:   %s\n", lv.RecordingTime.Format(time.RFC3339))
		}
	}
	for _, part := range v.Partitions {
		p.Fprintf(w, "Partition %d:  sector %d, %d sectors, volume %d\n", part.Number, part.Start, part.Length, part.Volume)
	}
	p.Fprintf(w, "Folders:      %d\n", v.Folders)
	p.Fprintf(w, "Files:        %d\n", v.Files)
	p.Fprintf(w, "Size:         %d bytes\n", v.Bytes)

	if v.Tree != nil {
		fmt.Fprintln(w)
		writeTree(w, p, v.Tree, "")
	}
}

func writeTree(w io.Writer, p *message.Printer, e *entryView, indent string) {
	name := e.Name
	if e.Dir && e.Name != "/" {
		name += "/"
	}
	line := fmt.Sprintf("%s%s", indent, name)
	if !e.Dir {
		line += p.Sprintf("  (%d bytes)", e.Size)
		if e.Skipped {
			line += "  [not extractable]"
		}
	}
	fmt.Fprintln(w, line)
	for _, child := range e.Children {
		writeTree(w, p, child, indent+"  ")
	}
}
