package model

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/example/go-wordpiece/internal/vocab"
)

// ErrChecksumMismatch is returned by Verify when a file or the vocabulary
// fingerprint differs from the manifest.
var ErrChecksumMismatch = errors.New("checksum mismatch")

type VerifyOptions struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Verify re-hashes every file listed in dir's manifest and re-fingerprints
// the vocabulary. Each check prints PASS or FAIL; any failure is returned
// wrapped in ErrChecksumMismatch.
func Verify(dir string, opts VerifyOptions) (Manifest, error) {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	m, err := ReadManifest(dir)
	if err != nil {
		return Manifest{}, err
	}

	var failures []string

	for _, f := range m.Files {
		actual, err := fileSHA256(filepath.Join(dir, f.Filename))
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "FAIL %s: %v\n", f.Filename, err)
			failures = append(failures, f.Filename)
			continue
		}
		if !strings.EqualFold(actual, f.SHA256) {
			_, _ = fmt.Fprintf(opts.Stderr, "FAIL %s: expected sha256 %s got %s\n", f.Filename, f.SHA256, actual)
			failures = append(failures, f.Filename)
			continue
		}
		_, _ = fmt.Fprintf(opts.Stdout, "PASS %s\n", f.Filename)
	}

	if _, ok := m.File(m.Vocabulary.File); !ok {
		_, _ = fmt.Fprintf(opts.Stderr, "FAIL %s: not listed in manifest\n", m.Vocabulary.File)
		failures = append(failures, m.Vocabulary.File)
	}

	f, err := vocab.ParseFormat(m.Vocabulary.Format)
	if err != nil {
		return m, err
	}
	v, _, err := vocab.LoadFormat(filepath.Join(dir, m.Vocabulary.File), f)
	switch {
	case err != nil:
		_, _ = fmt.Fprintf(opts.Stderr, "FAIL fingerprint: %v\n", err)
		failures = append(failures, "fingerprint")
	case formatFingerprint(v.Fingerprint()) != m.Vocabulary.Fingerprint || v.Len() != m.Vocabulary.Size:
		_, _ = fmt.Fprintf(opts.Stderr, "FAIL fingerprint: expected %s (%d symbols) got %s (%d symbols)\n",
			m.Vocabulary.Fingerprint, m.Vocabulary.Size, formatFingerprint(v.Fingerprint()), v.Len())
		failures = append(failures, "fingerprint")
	default:
		_, _ = fmt.Fprintf(opts.Stdout, "PASS fingerprint %s\n", m.Vocabulary.Fingerprint)
	}

	if len(failures) > 0 {
		return m, fmt.Errorf("%w: %d check(s) failed: %s", ErrChecksumMismatch, len(failures), strings.Join(failures, ", "))
	}

	return m, nil
}
