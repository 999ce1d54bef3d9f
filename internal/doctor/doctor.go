// Package doctor provides preflight checks of a wordpiece artifact and the
// files it is trained from.
package doctor

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/example/go-wordpiece/internal/model"
	"github.com/example/go-wordpiece/internal/text"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// ProbeFunc checks a running service and returns an error if it is unhealthy.
type ProbeFunc func() error

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// ArtifactDir is the artifact directory to inspect. Empty skips the
	// artifact checks.
	ArtifactDir string
	// Policy, when set, must equal the normalization policy recorded in the
	// artifact. Nil accepts the recorded policy.
	Policy *text.Policy
	// Settings override the segmenter settings stored in the artifact.
	Settings model.Settings
	// CorpusFiles are checked to exist and be non-empty.
	CorpusFiles []string
	// Probe checks a running server; nil skips the check.
	Probe ProbeFunc
	// ProbeAddr labels the server check.
	ProbeAddr string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- artifact ---------------------------------------------------------
	if cfg.ArtifactDir == "" {
		fmt.Fprintf(w, "%s artifact: skipped\n", PassMark)
	} else {
		checkArtifact(cfg, w, &res)
	}

	// ---- corpus files -----------------------------------------------------
	for _, path := range cfg.CorpusFiles {
		fi, err := os.Stat(path)
		switch {
		case err != nil:
			res.fail(fmt.Sprintf("corpus file %q: %v", path, err))
			fmt.Fprintf(w, "%s corpus file %s: not found\n", FailMark, path)
		case fi.IsDir():
			res.fail(fmt.Sprintf("corpus file %q: is a directory", path))
			fmt.Fprintf(w, "%s corpus file %s: is a directory\n", FailMark, path)
		case fi.Size() == 0:
			res.fail(fmt.Sprintf("corpus file %q: empty", path))
			fmt.Fprintf(w, "%s corpus file %s: empty\n", FailMark, path)
		default:
			fmt.Fprintf(w, "%s corpus file: %s (%d bytes)\n", PassMark, path, fi.Size())
		}
	}

	// ---- server -----------------------------------------------------------
	if cfg.Probe != nil {
		if err := cfg.Probe(); err != nil {
			res.fail(fmt.Sprintf("server %s: %v", cfg.ProbeAddr, err))
			fmt.Fprintf(w, "%s server %s: %v\n", FailMark, cfg.ProbeAddr, err)
		} else {
			fmt.Fprintf(w, "%s server: %s healthy\n", PassMark, cfg.ProbeAddr)
		}
	}

	return res
}

// checkArtifact validates the manifest, checksums, merges and that the
// segmenter can be built with the configured policy.
func checkArtifact(cfg Config, w io.Writer, res *Result) {
	dir := cfg.ArtifactDir

	m, err := model.ReadManifest(dir)
	if err != nil {
		res.fail(fmt.Sprintf("artifact manifest: %v", err))
		fmt.Fprintf(w, "%s artifact manifest: %v\n", FailMark, err)
		return
	}
	fmt.Fprintf(w, "%s artifact manifest: %s (%s, %d symbols)\n",
		PassMark, m.Vocabulary.File, m.Vocabulary.Format, m.Vocabulary.Size)

	if _, err := model.Verify(dir, model.VerifyOptions{}); err != nil {
		res.fail(fmt.Sprintf("artifact checksums: %v", err))
		fmt.Fprintf(w, "%s artifact checksums: %v\n", FailMark, err)
	} else {
		fmt.Fprintf(w, "%s artifact checksums: fingerprint %s\n", PassMark, m.Vocabulary.Fingerprint)
	}

	merges, err := model.LoadMerges(dir, m.Tokenizer.ContinuationPrefix)
	switch {
	case err != nil:
		res.fail(fmt.Sprintf("merges: %v", err))
		fmt.Fprintf(w, "%s merges: %v\n", FailMark, err)
	case merges == nil:
		fmt.Fprintf(w, "%s merges: none recorded\n", PassMark)
	case m.Training != nil && len(merges) != m.Training.Merges:
		msg := fmt.Sprintf("merges: %d recorded, training performed %d", len(merges), m.Training.Merges)
		res.fail(msg)
		fmt.Fprintf(w, "%s %s\n", FailMark, msg)
	default:
		fmt.Fprintf(w, "%s merges: %d\n", PassMark, len(merges))
	}

	loaded, err := model.Load(dir, model.LoadOptions{Policy: cfg.Policy, Settings: cfg.Settings})
	switch {
	case errors.Is(err, text.ErrPolicyMismatch):
		res.fail(fmt.Sprintf("normalization: %v", err))
		fmt.Fprintf(w, "%s normalization: %v\n", FailMark, err)
		return
	case err != nil:
		res.fail(fmt.Sprintf("tokenizer: %v", err))
		fmt.Fprintf(w, "%s tokenizer: %v\n", FailMark, err)
		return
	}
	fmt.Fprintf(w, "%s normalization: %s\n", PassMark, m.Policy)

	unk := loaded.Manifest.Tokenizer.UnkToken
	if loaded.Tokenizer.UnkToken() < 0 {
		res.fail(fmt.Sprintf("tokenizer: unknown token %q is not in the vocabulary", unk))
		fmt.Fprintf(w, "%s tokenizer: unknown token %q missing\n", FailMark, unk)
		return
	}
	fmt.Fprintf(w, "%s tokenizer: unknown token %q (id %d)\n", PassMark, unk, loaded.Tokenizer.UnkToken())
}
