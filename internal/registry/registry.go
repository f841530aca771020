// Package registry loads the model manifest: which ONNX models exist, where
// their assets live, what shapes they expect, and the label tables that map
// free-text challenge prompts onto canonical categories. When no manifest file
// is reachable the registry falls back to an embedded default carrying the
// stock model set.
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"tilepilot/internal/logging"
)

//go:embed manifest.json
var embeddedManifest []byte

// ModelSpec describes one runnable model asset.
type ModelSpec struct {
	Path      string   `json:"path"`
	InputSize [2]int   `json:"input_size,omitempty"` // width, height
	Inputs    []string `json:"inputs"`
	Outputs   []string `json:"outputs"`
	Classes   []string `json:"classes,omitempty"`
	VocabSize int      `json:"vocab_size,omitempty"`
	EmbedDim  int      `json:"embed_dim,omitempty"`
}

// AliasEntry maps one challenge prompt string to a canonical category.
// Entries are ordered: substring resolution takes the first match in file
// order, so the slice must never be converted to a map.
type AliasEntry struct {
	Prompt   string `json:"prompt"`
	Category string `json:"category"`
}

// Labels holds the prompt and label mapping tables.
type Labels struct {
	// DetectorAlias maps a category to the raw detector labels accepted for
	// it. Presence of a category here routes it to the detector path.
	DetectorAlias map[string][]string `json:"detector_alias"`

	// ClipLabels is the full set of categories the embedding paths know.
	ClipLabels []string `json:"clip_labels"`

	// ChallengeAlias resolves prompt text to categories, in table order.
	ChallengeAlias []AliasEntry `json:"challenge_alias"`

	// Thresholds carries calibrated per-category similarity cutoffs shipped
	// with the model bundle. Consulted only when calibration is opted into.
	Thresholds map[string]float64 `json:"thresholds"`
}

// Manifest is the full model bundle description.
type Manifest struct {
	Models map[string]ModelSpec `json:"models"`
	Labels Labels               `json:"labels"`
}

// Canonical model names used by the engine.
const (
	ModelDetector      = "detector"
	ModelTextEncoder   = "text_encoder"
	ModelVisionEncoder = "vision_encoder"
	ModelSegmenter     = "segmenter"
)

// Registry owns the current manifest and serves it to the engine. The
// manifest can be swapped atomically by the file watcher.
type Registry struct {
	mu       sync.RWMutex
	manifest Manifest
	baseDir  string // resolved against relative model paths
	path     string // manifest file path, "" when running on the embedded default
}

// Load reads the manifest at path. Any read or parse failure falls back to
// the embedded default rather than failing startup; the engine will still
// error per model if an asset is genuinely missing.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		logging.RegistryWarn("manifest unreachable at %s, using embedded default: %v", path, err)
		return r.loadEmbedded()
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		logging.RegistryWarn("manifest unparsable at %s, using embedded default: %v", path, err)
		return r.loadEmbedded()
	}
	if err := validate(m); err != nil {
		logging.RegistryWarn("manifest invalid at %s, using embedded default: %v", path, err)
		return r.loadEmbedded()
	}

	r.manifest = m
	r.baseDir = filepath.Dir(path)
	logging.Registry("manifest loaded from %s: %d models, %d alias entries",
		path, len(m.Models), len(m.Labels.ChallengeAlias))
	return r, nil
}

// LoadEmbedded returns a registry running purely on the embedded default.
func LoadEmbedded() (*Registry, error) {
	return (&Registry{}).loadEmbedded()
}

func (r *Registry) loadEmbedded() (*Registry, error) {
	var m Manifest
	if err := json.Unmarshal(embeddedManifest, &m); err != nil {
		// The embedded default is compiled in; failure here is a build defect.
		return nil, fmt.Errorf("embedded manifest corrupt: %w", err)
	}
	r.manifest = m
	r.baseDir = ""
	logging.Registry("embedded manifest active: %d models, %d alias entries",
		len(m.Models), len(m.Labels.ChallengeAlias))
	return r, nil
}

func validate(m Manifest) error {
	if len(m.Models) == 0 {
		return fmt.Errorf("no models declared")
	}
	for name, spec := range m.Models {
		if spec.Path == "" {
			return fmt.Errorf("model %s has no asset path", name)
		}
		if len(spec.Inputs) == 0 || len(spec.Outputs) == 0 {
			return fmt.Errorf("model %s missing tensor names", name)
		}
	}
	if len(m.Labels.ChallengeAlias) == 0 {
		return fmt.Errorf("empty challenge alias table")
	}
	return nil
}

// Manifest returns the current manifest snapshot.
func (r *Registry) Manifest() Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.manifest
}

// Model returns the spec for a named model.
func (r *Registry) Model(name string) (ModelSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.manifest.Models[name]
	if !ok {
		return ModelSpec{}, fmt.Errorf("model %q not in manifest", name)
	}
	return spec, nil
}

// ModelPath resolves a model's asset path against the manifest location.
func (r *Registry) ModelPath(name string) (string, error) {
	spec, err := r.Model(name)
	if err != nil {
		return "", err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.baseDir == "" || filepath.IsAbs(spec.Path) {
		return spec.Path, nil
	}
	return filepath.Join(r.baseDir, spec.Path), nil
}

// Labels returns the current label tables.
func (r *Registry) Labels() Labels {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.manifest.Labels
}

// IsDetectorCategory reports whether a category routes to the detector path.
func (r *Registry) IsDetectorCategory(category string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.manifest.Labels.DetectorAlias[category]
	return ok
}

// AllowedDetectorLabels returns the raw labels accepted for a category.
func (r *Registry) AllowedDetectorLabels(category string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.manifest.Labels.DetectorAlias[category]
}

// CalibratedThreshold returns the shipped similarity cutoff for a category,
// if one exists.
func (r *Registry) CalibratedThreshold(category string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.manifest.Labels.Thresholds[category]
	return v, ok
}

// ModelNames returns the declared model names, sorted for stable output.
func (r *Registry) ModelNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.manifest.Models))
	for name := range r.manifest.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// reload re-reads the manifest file and swaps it in atomically. Used by the
// watcher; keeps the old manifest on any failure.
func (r *Registry) reload() error {
	if r.path == "" {
		return fmt.Errorf("no manifest file to reload")
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if err := validate(m); err != nil {
		return err
	}
	r.mu.Lock()
	r.manifest = m
	r.baseDir = filepath.Dir(r.path)
	r.mu.Unlock()
	logging.Registry("manifest reloaded from %s", r.path)
	return nil
}
