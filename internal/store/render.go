package store

import (
	"github.com/OCAP2/draw/internal/feature"
	"github.com/OCAP2/draw/pkg/core"
	"github.com/paulmach/orb/geojson"
)

// Buckets is one render pass: plain features and selected features followed
// by their edit handles.
type Buckets struct {
	Cold *geojson.FeatureCollection
	Hot  *geojson.FeatureCollection
	// AnySelected drives the delete affordance.
	AnySelected bool
}

// Snapshot partitions the ready features into render buckets in id order.
// Every feature is annotated with its id so hit tests map back to the registry.
func (s *Store) Snapshot() Buckets {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := Buckets{
		Cold: geojson.NewFeatureCollection(),
		Hot:  geojson.NewFeatureCollection(),
	}

	for _, id := range s.idsLocked(feature.Feature.Ready) {
		f := s.features[id]
		gj := f.ToGeoJSON()
		gj.Properties[core.PropDrawID] = id
		gj.Properties[core.PropMeta] = core.MetaFeature

		if !f.Selected() {
			b.Cold.Append(gj)
			continue
		}

		b.AnySelected = true
		b.Hot.Append(gj)
		g := f.Coordinates()
		for _, gen := range s.cfg.Handles {
			for _, h := range gen(id, g) {
				b.Hot.Append(h)
			}
		}
	}

	return b
}

// Render pushes the current registry to the cold and hot sources. When either
// source is missing the push is skipped entirely.
func (s *Store) Render() {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	b := s.Snapshot()

	if s.controls != nil {
		s.controls.SetDeleteVisible(b.AnySelected)
	}

	cold, okCold := s.renderer.Source(s.cfg.ColdSource)
	hot, okHot := s.renderer.Source(s.cfg.HotSource)
	if !okCold || !okHot {
		s.countRender(true)
		s.logger.Debug("render skipped, source unavailable",
			"cold", s.cfg.ColdSource, "coldOK", okCold,
			"hot", s.cfg.HotSource, "hotOK", okHot)
		return
	}

	if err := cold.SetData(b.Cold); err != nil {
		s.logger.Warn("failed to push cold bucket", "source", s.cfg.ColdSource, "error", err)
	}
	if err := hot.SetData(b.Hot); err != nil {
		s.logger.Warn("failed to push hot bucket", "source", s.cfg.HotSource, "error", err)
	}
	s.countRender(false)
}
