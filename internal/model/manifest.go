// Package model persists trained vocabularies as artifact directories and
// loads them back into ready-to-use segmenters.
//
// An artifact directory holds the vocabulary file, an optional merges.txt and
// a manifest.yaml recording the tokenizer settings, the normalization policy,
// training statistics and checksums of every other file.
package model

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/example/go-wordpiece/internal/text"
	"github.com/example/go-wordpiece/internal/trainer"
)

const (
	// ManifestFile is the manifest name inside an artifact directory.
	ManifestFile = "manifest.yaml"
	// MergesFile is the optional merge log inside an artifact directory.
	MergesFile = "merges.txt"

	manifestVersion = 1
)

// Manifest describes an artifact directory.
type Manifest struct {
	Version    int            `yaml:"version"`
	Generated  string         `yaml:"generated"`
	Tokenizer  Settings       `yaml:"tokenizer"`
	Policy     text.Policy    `yaml:"normalization"`
	Vocabulary VocabularyInfo `yaml:"vocabulary"`
	Training   *TrainingStats `yaml:"training,omitempty"`
	Files      []ArtifactFile `yaml:"files"`
}

// Settings configure the segmenter built from an artifact.
type Settings struct {
	UnkToken             string   `yaml:"unk_token"`
	ContinuationPrefix   string   `yaml:"continuation_prefix"`
	MaxInputCharsPerWord int      `yaml:"max_input_chars_per_word"`
	SpecialTokens        []string `yaml:"special_tokens,omitempty"`
}

type VocabularyInfo struct {
	File        string `yaml:"file"`
	Format      string `yaml:"format"`
	Size        int    `yaml:"size"`
	Fingerprint string `yaml:"fingerprint"`
}

// TrainingStats summarize the run that produced the vocabulary.
type TrainingStats struct {
	VocabSize    int  `yaml:"vocab_size"`
	MinFrequency int  `yaml:"min_frequency"`
	Words        int  `yaml:"words"`
	Occurrences  int  `yaml:"occurrences"`
	Alphabet     int  `yaml:"alphabet"`
	Merges       int  `yaml:"merges"`
	Truncated    bool `yaml:"truncated"`
	Exhausted    bool `yaml:"exhausted"`
}

type ArtifactFile struct {
	Filename string `yaml:"filename"`
	SHA256   string `yaml:"sha256"`
}

// NewTrainingStats summarizes res for a corpus of words distinct words and
// occurrences total occurrences.
func NewTrainingStats(res *trainer.Result, cfg trainer.Config, words, occurrences int) *TrainingStats {
	return &TrainingStats{
		VocabSize:    cfg.VocabSize,
		MinFrequency: cfg.MinFrequency,
		Words:        words,
		Occurrences:  occurrences,
		Alphabet:     res.Alphabet,
		Merges:       len(res.Merges),
		Truncated:    res.Truncated,
		Exhausted:    res.Exhausted,
	}
}

// File returns the checksum record for name.
func (m Manifest) File(name string) (ArtifactFile, bool) {
	for _, f := range m.Files {
		if f.Filename == name {
			return f, true
		}
	}
	return ArtifactFile{}, false
}

// ReadManifest loads dir/manifest.yaml.
func ReadManifest(dir string) (Manifest, error) {
	path := filepath.Join(dir, ManifestFile)

	b, err := os.ReadFile(path) //nolint:gosec // G304: artifact dir comes from trusted configuration.
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	if m.Version != manifestVersion {
		return Manifest{}, fmt.Errorf("manifest %s: unsupported version %d", path, m.Version)
	}
	if m.Vocabulary.File == "" {
		return Manifest{}, fmt.Errorf("manifest %s: vocabulary file is not set", path)
	}

	return m, nil
}

func writeManifest(dir string, m Manifest) error {
	b, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, ManifestFile), b)
}
