package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OCAP2/draw/internal/journal"
	"github.com/OCAP2/draw/internal/renderer/raster"
	"github.com/OCAP2/draw/pkg/core"
	"github.com/paulmach/orb/geojson"
	"github.com/tdewolff/minify/v2"
	minjson "github.com/tdewolff/minify/v2/json"
)

const jsonMIME = "application/json"

// Output file names inside the output directory.
const (
	ColdFile = "cold.geojson"
	HotFile  = "hot.geojson"
	AllFile  = "features.geojson"
)

// Writer serializes collections, optionally minified.
type Writer struct {
	dir    string
	minify *minify.M
}

// NewWriter writes into dir, creating it if needed.
func NewWriter(dir string, compact bool) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	w := &Writer{dir: dir}
	if compact {
		w.minify = minify.New()
		w.minify.AddFunc(jsonMIME, minjson.Minify)
	}
	return w, nil
}

// Collection writes fc to name and returns the path.
func (w *Writer) Collection(name string, fc *geojson.FeatureCollection) (string, error) {
	raw, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	if w.minify != nil {
		raw, err = w.minify.Bytes(jsonMIME, raw)
		if err != nil {
			return "", fmt.Errorf("minify %s: %w", name, err)
		}
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}

// Preview renders both buckets to a PNG or WebP file chosen by extension.
func Preview(path string, p core.Projector, width, height int, cold, hot *geojson.FeatureCollection) error {
	img := raster.Render(p, width, height, cold, hot)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	if err := raster.Encode(f, img, raster.FormatFromPath(path)); err != nil {
		f.Close()
		return fmt.Errorf("encode preview: %w", err)
	}
	return f.Close()
}

// Summary is the journal digest printed at the end of a run.
type Summary struct {
	Counts map[core.EventKind]int64
	Total  int
}

// Summarize reads the journal totals.
func Summarize(j *journal.Journal) (Summary, error) {
	counts, err := j.Counts()
	if err != nil {
		return Summary{}, err
	}
	all, err := j.All()
	if err != nil {
		return Summary{}, err
	}
	return Summary{Counts: counts, Total: len(all)}, nil
}
