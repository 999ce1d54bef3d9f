package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/example/go-wordpiece/internal/text"
	"github.com/example/go-wordpiece/internal/tokenizer"
	"github.com/example/go-wordpiece/internal/trainer"
	"github.com/example/go-wordpiece/internal/vocab"
)

// Artifact is everything Save persists.
type Artifact struct {
	Vocabulary *vocab.Vocabulary
	Format     vocab.Format
	Settings   Settings
	Policy     text.Policy
	// Merges is written to merges.txt when non-empty.
	Merges   []trainer.Merge
	Training *TrainingStats
}

// Save writes a into dir, creating the directory if needed, and returns the
// manifest it wrote. Existing artifact files are replaced.
func Save(dir string, a Artifact) (Manifest, error) {
	if a.Vocabulary == nil || a.Vocabulary.Len() == 0 {
		return Manifest{}, errors.New("artifact has no vocabulary")
	}
	if a.Format == "" {
		a.Format = vocab.FormatText
	}
	a.Settings = a.Settings.withDefaults()

	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // artifacts are meant to be shared.
		return Manifest{}, fmt.Errorf("create artifact dir: %w", err)
	}

	m := Manifest{
		Version:   manifestVersion,
		Generated: time.Now().UTC().Format(time.RFC3339),
		Tokenizer: a.Settings,
		Policy:    a.Policy,
		Vocabulary: VocabularyInfo{
			File:        a.Format.FileName(),
			Format:      string(a.Format),
			Size:        a.Vocabulary.Len(),
			Fingerprint: formatFingerprint(a.Vocabulary.Fingerprint()),
		},
		Training: a.Training,
	}

	var buf bytes.Buffer
	if err := vocab.Write(&buf, a.Vocabulary, a.Format, a.Settings.vocabSettings()); err != nil {
		return Manifest{}, err
	}
	if err := writeFileAtomic(filepath.Join(dir, m.Vocabulary.File), buf.Bytes()); err != nil {
		return Manifest{}, err
	}
	m.Files = append(m.Files, ArtifactFile{Filename: m.Vocabulary.File, SHA256: sha256Hex(buf.Bytes())})

	mergesPath := filepath.Join(dir, MergesFile)
	if len(a.Merges) > 0 {
		buf.Reset()
		if err := WriteMerges(&buf, a.Merges); err != nil {
			return Manifest{}, err
		}
		if err := writeFileAtomic(mergesPath, buf.Bytes()); err != nil {
			return Manifest{}, err
		}
		m.Files = append(m.Files, ArtifactFile{Filename: MergesFile, SHA256: sha256Hex(buf.Bytes())})
	} else if err := os.Remove(mergesPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Manifest{}, fmt.Errorf("remove stale merges: %w", err)
	}

	if err := writeManifest(dir, m); err != nil {
		return Manifest{}, err
	}

	return m, nil
}

// LoadOptions adjust Load.
type LoadOptions struct {
	// Policy, when set, must equal the policy recorded at training time.
	Policy *text.Policy
	// Settings override non-zero segmenter settings from the artifact.
	Settings Settings
	// Format selects the format of a bare vocabulary file. Empty infers it
	// from the file name.
	Format vocab.Format
}

// Loaded is a ready-to-use artifact.
type Loaded struct {
	Manifest   Manifest
	Vocabulary *vocab.Vocabulary
	Tokenizer  *tokenizer.WordPiece
	// Bare is set when path was a vocabulary file without a manifest.
	Bare bool
}

// Load opens an artifact directory, or a bare vocabulary file, and builds
// its segmenter. Vocabulary errors match vocab.ErrVocabularyLoad; a policy
// differing from the recorded one matches text.ErrPolicyMismatch.
func Load(path string, opts LoadOptions) (*Loaded, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &vocab.LoadError{Path: path, Err: err}
	}

	var (
		m    Manifest
		bare = !fi.IsDir()
		vf   = path
		f    = opts.Format
	)

	if bare {
		if f == "" {
			f = vocab.FormatFromPath(path)
		}
		m = Manifest{Version: manifestVersion, Vocabulary: VocabularyInfo{File: filepath.Base(path), Format: string(f)}}
		if opts.Policy != nil {
			m.Policy = *opts.Policy
		}
	} else {
		m, err = ReadManifest(path)
		if err != nil {
			return nil, &vocab.LoadError{Path: path, Err: err}
		}
		if opts.Policy != nil {
			if err := opts.Policy.Check(m.Policy); err != nil {
				return nil, err
			}
		}
		vf = filepath.Join(path, m.Vocabulary.File)
		f, err = vocab.ParseFormat(m.Vocabulary.Format)
		if err != nil {
			return nil, &vocab.LoadError{Path: path, Err: err}
		}
	}

	v, fileSettings, err := vocab.LoadFormat(vf, f)
	if err != nil {
		return nil, err
	}

	settings := m.Tokenizer.merge(Settings{
		UnkToken:             fileSettings.UnkToken,
		ContinuationPrefix:   fileSettings.ContinuationPrefix,
		MaxInputCharsPerWord: fileSettings.MaxInputCharsPerWord,
	}).merge(opts.Settings).withDefaults()
	m.Tokenizer = settings
	m.Vocabulary.Size = v.Len()
	m.Vocabulary.Fingerprint = formatFingerprint(v.Fingerprint())

	wp, err := tokenizer.NewWordPiece(v,
		tokenizer.WithUnkToken(settings.UnkToken),
		tokenizer.WithContinuationPrefix(settings.ContinuationPrefix),
		tokenizer.WithMaxInputCharsPerWord(settings.MaxInputCharsPerWord),
		tokenizer.WithSpecialTokens(settings.SpecialTokens...),
		tokenizer.WithPolicy(m.Policy),
	)
	if err != nil {
		return nil, fmt.Errorf("build tokenizer: %w", err)
	}

	return &Loaded{Manifest: m, Vocabulary: v, Tokenizer: wp, Bare: bare}, nil
}

// merge returns s with every non-zero field of o applied on top.
func (s Settings) merge(o Settings) Settings {
	if o.UnkToken != "" {
		s.UnkToken = o.UnkToken
	}
	if o.ContinuationPrefix != "" {
		s.ContinuationPrefix = o.ContinuationPrefix
	}
	if o.MaxInputCharsPerWord > 0 {
		s.MaxInputCharsPerWord = o.MaxInputCharsPerWord
	}
	if len(o.SpecialTokens) > 0 {
		s.SpecialTokens = o.SpecialTokens
	}
	return s
}

func (s Settings) withDefaults() Settings {
	return Settings{
		UnkToken:             tokenizer.DefaultUnkToken,
		ContinuationPrefix:   vocab.DefaultContinuationPrefix,
		MaxInputCharsPerWord: tokenizer.DefaultMaxInputCharsPerWord,
	}.merge(s)
}

func (s Settings) vocabSettings() vocab.Settings {
	return vocab.Settings{
		UnkToken:             s.UnkToken,
		ContinuationPrefix:   s.ContinuationPrefix,
		MaxInputCharsPerWord: s.MaxInputCharsPerWord,
	}
}

func formatFingerprint(fp uint64) string {
	return fmt.Sprintf("%016x", fp)
}

// ParseFingerprint parses a manifest fingerprint.
func ParseFingerprint(s string) (uint64, error) {
	return strconv.ParseUint(s, 16, 64)
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // artifacts are meant to be shared.
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("move %s into place: %w", filepath.Base(path), err)
	}
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: artifact dir comes from trusted configuration.
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
