package detectors

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// LinearModel is a logistic regression exported as coefficient arrays. It is
// the framework-agnostic exchange format the training pipeline emits; the
// only contract is that PredictProba is deterministic and lands in [0,1].
type LinearModel struct {
	Version string             `json:"version"`
	Bias    float64            `json:"bias"`
	Weights map[string]float64 `json:"weights"`
}

// PredictProba evaluates the model on an ordered feature vector. Features
// the model does not know carry zero weight.
func (m *LinearModel) PredictProba(vec FeatureVector) float64 {
	z := m.Bias
	for _, f := range vec {
		z += m.Weights[f.Name] * f.Value
	}
	return 1 / (1 + math.Exp(-z))
}

// Model artifact file names under the configured model directory.
const (
	phishingModelFile = "phishing.json"
	quishingModelFile = "quishing.json"
	collectModelFile  = "collect.json"
	malwareModelFile  = "malware.json"
)

// Registry holds the loaded model artifacts. Pointers are swapped atomically
// so in-flight requests observe a consistent model for their duration; a nil
// pointer means the detector runs in rule-only mode.
type Registry struct {
	phishing atomic.Pointer[LinearModel]
	quishing atomic.Pointer[LinearModel]
	collect  atomic.Pointer[LinearModel]
	malware  atomic.Pointer[LinearModel]
}

// LoadRegistry loads all four model artifacts from modelDir. A model that
// fails to load leaves its detector in rule-only mode rather than failing
// startup; the health endpoint reports the degradation.
func LoadRegistry(modelDir string) *Registry {
	r := &Registry{}
	r.Reload(modelDir)
	return r
}

// Reload re-reads all artifacts and swaps them in atomically. Readers see
// either the old or the new model, never a mix mid-request.
func (r *Registry) Reload(modelDir string) {
	r.phishing.Store(loadModel(modelDir, phishingModelFile))
	r.quishing.Store(loadModel(modelDir, quishingModelFile))
	r.collect.Store(loadModel(modelDir, collectModelFile))
	r.malware.Store(loadModel(modelDir, malwareModelFile))
}

func loadModel(modelDir, name string) *LinearModel {
	path := filepath.Join(modelDir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("model", name).Msg("Model artifact not loadable, detector degrades to rule-only mode")
		return nil
	}

	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		log.Warn().Err(err).Str("model", name).Msg("Model artifact malformed, detector degrades to rule-only mode")
		return nil
	}

	log.Info().Str("model", name).Str("version", m.Version).Msg("Model loaded")
	return &m
}

// Loaded reports which detectors have a model artifact available.
func (r *Registry) Loaded() map[string]bool {
	return map[string]bool{
		"phishing": r.phishing.Load() != nil,
		"quishing": r.quishing.Load() != nil,
		"collect":  r.collect.Load() != nil,
		"malware":  r.malware.Load() != nil,
	}
}

// AllLoaded reports whether every detector has its model.
func (r *Registry) AllLoaded() bool {
	for _, ok := range r.Loaded() {
		if !ok {
			return false
		}
	}
	return true
}

// String summarizes load state for logs.
func (r *Registry) String() string {
	return fmt.Sprintf("models=%v", r.Loaded())
}
