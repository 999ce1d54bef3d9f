package vocab

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrVocabularyLoad is matched by every error returned while reading a
// persisted vocabulary.
var ErrVocabularyLoad = errors.New("vocabulary load failed")

// LoadError describes a missing or corrupt persisted vocabulary.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load vocabulary: %v", e.Err)
	}
	return fmt.Sprintf("load vocabulary %q: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrVocabularyLoad) match any LoadError.
func (e *LoadError) Is(target error) bool { return target == ErrVocabularyLoad }

// Format identifies a vocabulary file layout.
type Format string

const (
	// FormatText is one symbol per line (BERT vocab.txt).
	FormatText Format = "text"
	// FormatJSON is a JSON array of symbols in id order.
	FormatJSON Format = "json"
	// FormatHuggingFace is a tokenizer.json with a WordPiece model section.
	FormatHuggingFace Format = "huggingface"
)

// ParseFormat validates a format name. An empty name selects FormatText.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "", "txt", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatHuggingFace, "hf":
		return FormatHuggingFace, nil
	default:
		return "", fmt.Errorf("invalid vocabulary format %q (expected %s|%s|%s)", raw, FormatText, FormatJSON, FormatHuggingFace)
	}
}

// FormatFromPath infers the format from a file name: tokenizer.json is
// HuggingFace, any other .json is FormatJSON, everything else FormatText.
func FormatFromPath(path string) Format {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case base == "tokenizer.json":
		return FormatHuggingFace
	case strings.HasSuffix(base, ".json"):
		return FormatJSON
	default:
		return FormatText
	}
}

// FileName returns the conventional file name for a format.
func (f Format) FileName() string {
	switch f {
	case FormatJSON:
		return "vocab.json"
	case FormatHuggingFace:
		return "tokenizer.json"
	default:
		return "vocab.txt"
	}
}

// Settings are the segmenter parameters carried by formats that can store
// them (HuggingFace). Zero fields mean "not present".
type Settings struct {
	UnkToken             string
	ContinuationPrefix   string
	MaxInputCharsPerWord int
}

// Write serializes v in the given format.
func Write(w io.Writer, v *Vocabulary, f Format, s Settings) error {
	switch f {
	case FormatText:
		return writeText(w, v)
	case FormatJSON:
		return writeJSON(w, v)
	case FormatHuggingFace:
		return writeHuggingFace(w, v, s)
	default:
		return fmt.Errorf("unsupported vocabulary format %q", f)
	}
}

// Read parses a vocabulary in the given format. Errors are *LoadError.
func Read(r io.Reader, f Format) (*Vocabulary, Settings, error) {
	var (
		v   *Vocabulary
		s   Settings
		err error
	)
	switch f {
	case FormatText:
		v, err = readText(r)
	case FormatJSON:
		v, err = readJSON(r)
	case FormatHuggingFace:
		v, s, err = readHuggingFace(r)
	default:
		err = fmt.Errorf("unsupported vocabulary format %q", f)
	}
	if err != nil {
		return nil, Settings{}, &LoadError{Err: err}
	}
	return v, s, nil
}

// Save writes v to path, creating or truncating the file.
func Save(path string, v *Vocabulary, f Format, s Settings) error {
	var buf bytes.Buffer
	if err := Write(&buf, v, f, s); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil { //nolint:gosec // vocab files are meant to be world readable.
		return fmt.Errorf("write vocabulary %q: %w", path, err)
	}
	return nil
}

// Load reads a vocabulary file; the format is inferred from its name.
func Load(path string) (*Vocabulary, Settings, error) {
	return LoadFormat(path, FormatFromPath(path))
}

// LoadFormat reads a vocabulary file in an explicit format.
func LoadFormat(path string, f Format) (*Vocabulary, Settings, error) {
	fh, err := os.Open(path) //nolint:gosec // G304: path comes from trusted configuration.
	if err != nil {
		return nil, Settings{}, &LoadError{Path: path, Err: err}
	}
	defer func() { _ = fh.Close() }()

	v, s, err := Read(fh, f)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
		}
		return nil, Settings{}, err
	}
	return v, s, nil
}

func writeText(w io.Writer, v *Vocabulary) error {
	bw := bufio.NewWriter(w)
	for _, t := range v.tokens {
		if _, err := bw.WriteString(t); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func readText(r io.Reader) (*Vocabulary, error) {
	v := New(1024)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	line := 0
	for sc.Scan() {
		line++
		tok := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(tok) == "" {
			return nil, fmt.Errorf("line %d: empty symbol", line)
		}
		if !v.Add(tok) {
			return nil, fmt.Errorf("line %d: duplicate symbol %q", line, tok)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if v.Len() == 0 {
		return nil, errors.New("vocabulary is empty")
	}
	return v, nil
}

func writeJSON(w io.Writer, v *Vocabulary) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v.tokens)
}

func readJSON(r io.Reader) (*Vocabulary, error) {
	var tokens []string
	if err := json.NewDecoder(r).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("parse json vocabulary: %w", err)
	}
	return fromList(tokens)
}

func fromList(tokens []string) (*Vocabulary, error) {
	if len(tokens) == 0 {
		return nil, errors.New("vocabulary is empty")
	}
	v := New(len(tokens))
	for i, t := range tokens {
		if t == "" {
			return nil, fmt.Errorf("entry %d: empty symbol", i)
		}
		if !v.Add(t) {
			return nil, fmt.Errorf("entry %d: duplicate symbol %q", i, t)
		}
	}
	return v, nil
}

// hfTokenizer is the subset of a HuggingFace tokenizer.json needed for a
// WordPiece model.
type hfTokenizer struct {
	Version string  `json:"version"`
	Model   hfModel `json:"model"`
}

type hfModel struct {
	Type                    string           `json:"type"`
	UnkToken                string           `json:"unk_token,omitempty"`
	ContinuingSubwordPrefix string           `json:"continuing_subword_prefix,omitempty"`
	MaxInputCharsPerWord    int              `json:"max_input_chars_per_word,omitempty"`
	Vocab                   map[string]int32 `json:"vocab"`
}

func writeHuggingFace(w io.Writer, v *Vocabulary, s Settings) error {
	doc := hfTokenizer{
		Version: "1.0",
		Model: hfModel{
			Type:                    "WordPiece",
			UnkToken:                s.UnkToken,
			ContinuingSubwordPrefix: s.ContinuationPrefix,
			MaxInputCharsPerWord:    s.MaxInputCharsPerWord,
			Vocab:                   v.index,
		},
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func readHuggingFace(r io.Reader) (*Vocabulary, Settings, error) {
	var doc hfTokenizer
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, Settings{}, fmt.Errorf("parse tokenizer.json: %w", err)
	}
	if doc.Model.Type != "WordPiece" {
		return nil, Settings{}, fmt.Errorf("tokenizer.json model type %q is not WordPiece", doc.Model.Type)
	}

	type entry struct {
		tok string
		id  int32
	}
	entries := make([]entry, 0, len(doc.Model.Vocab))
	for tok, id := range doc.Model.Vocab {
		entries = append(entries, entry{tok, id})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	tokens := make([]string, len(entries))
	for i, e := range entries {
		if int(e.id) != i {
			return nil, Settings{}, fmt.Errorf("vocab ids are not contiguous: %q has id %d at position %d", e.tok, e.id, i)
		}
		tokens[i] = e.tok
	}

	v, err := fromList(tokens)
	if err != nil {
		return nil, Settings{}, err
	}
	return v, Settings{
		UnkToken:             doc.Model.UnkToken,
		ContinuationPrefix:   doc.Model.ContinuingSubwordPrefix,
		MaxInputCharsPerWord: doc.Model.MaxInputCharsPerWord,
	}, nil
}
