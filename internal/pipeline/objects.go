package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
)

// ObjectSummary aggregates the heap objects of one kind.
type ObjectSummary struct {
	Kind         string  `json:"kind" yaml:"kind"`
	Count        int     `json:"count" yaml:"count"`
	CountPercent float64 `json:"count_percent" yaml:"count_percent"`
	Size         uint64  `json:"size" yaml:"size"`
	SizePercent  float64 `json:"size_percent" yaml:"size_percent"`
	Cumulative   float64 `json:"cumulative_percent" yaml:"cumulative_percent"`
	Max          uint64  `json:"max" yaml:"max"`
	MaxAddress   uint64  `json:"max_address" yaml:"max_address"`
}

// HeapSummary is the per-kind breakdown of a heap dump, largest first.
type HeapSummary struct {
	Objects int             `json:"objects" yaml:"objects"`
	Kinds   int             `json:"kinds" yaml:"kinds"`
	Size    uint64          `json:"size" yaml:"size"`
	Skipped int             `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Rows    []ObjectSummary `json:"rows" yaml:"rows"`
}

// Totals renders the one-line summary shown above the table.
func (h *HeapSummary) Totals() string {
	return fmt.Sprintf("Total %d objects, %d types, Total size = %s (%d bytes)",
		h.Objects, h.Kinds, humanize.IBytes(h.Size), h.Size)
}

type dumpRecord struct {
	Address uint64 `json:"address"`
	Type    string `json:"type"`
	Size    uint64 `json:"size"`
}

// SummarizeHeap reads a line-oriented heap dump, one JSON object per line,
// and aggregates it by kind. Malformed lines are counted and skipped.
func SummarizeHeap(r io.Reader) (*HeapSummary, error) {
	byKind := make(map[string]*ObjectSummary)
	h := &HeapSummary{}

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			h.add(byKind, line)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading heap dump: %w", err)
		}
	}

	for _, row := range byKind {
		h.Rows = append(h.Rows, *row)
	}
	sort.Slice(h.Rows, func(i, j int) bool {
		if h.Rows[i].Size != h.Rows[j].Size {
			return h.Rows[i].Size > h.Rows[j].Size
		}
		return h.Rows[i].Kind < h.Rows[j].Kind
	})

	h.Kinds = len(h.Rows)
	var cumulative float64
	for i := range h.Rows {
		row := &h.Rows[i]
		if h.Objects > 0 {
			row.CountPercent = percent(uint64(row.Count), uint64(h.Objects))
		}
		if h.Size > 0 {
			row.SizePercent = percent(row.Size, h.Size)
		}
		cumulative += row.SizePercent
		row.Cumulative = cumulative
	}
	return h, nil
}

func (h *HeapSummary) add(byKind map[string]*ObjectSummary, line []byte) {
	var rec dumpRecord
	if err := json.Unmarshal(line, &rec); err != nil || rec.Type == "" {
		if len(bytes.TrimSpace(line)) > 0 {
			h.Skipped++
		}
		return
	}
	row, ok := byKind[rec.Type]
	if !ok {
		row = &ObjectSummary{Kind: rec.Type}
		byKind[rec.Type] = row
	}
	row.Count++
	row.Size += rec.Size
	if rec.Size > row.Max || row.Count == 1 {
		row.Max = rec.Size
		row.MaxAddress = rec.Address
	}
	h.Objects++
	h.Size += rec.Size
}

func percent(part, total uint64) float64 {
	return float64(part) / float64(total) * 100
}
