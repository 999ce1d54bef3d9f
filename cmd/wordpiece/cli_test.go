package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-wordpiece/internal/model"
	"github.com/example/go-wordpiece/internal/testutil"
)

// runCLI executes the root command with args and returns stdout and the
// command error.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd()

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--log-level", "error"}, args...))

	err := root.Execute()
	if errOut.Len() > 0 {
		t.Logf("stderr: %s", errOut.String())
	}

	return out.String(), err
}

// trainArtifact trains the small corpus with the BERT specials into a temp
// artifact directory.
func trainArtifact(t *testing.T) (dir, corpusPath string) {
	t.Helper()

	t.Chdir(t.TempDir())

	corpusPath = testutil.WriteCorpus(t, t.TempDir(), testutil.SmallCorpus)
	dir = filepath.Join(t.TempDir(), "artifact")

	out, err := runCLI(t, "", "train", "--paths-artifact-dir", dir, "--vocab-size", "25", "--min-frequency", "2", corpusPath)
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	if !strings.Contains(out, "25 symbols") {
		t.Fatalf("train output = %q", out)
	}

	return dir, corpusPath
}

// ---------------------------------------------------------------------------
// train
// ---------------------------------------------------------------------------

func TestTrain_WritesArtifact(t *testing.T) {
	dir, _ := trainArtifact(t)

	for _, name := range []string{"vocab.txt", model.MergesFile, model.ManifestFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "vocab.txt"))
	if err != nil {
		t.Fatalf("read vocab: %v", err)
	}
	testutil.AssertValidVocabFile(t, data, 25)

	m, err := model.ReadManifest(dir)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}

	if m.Training == nil || m.Training.Merges != 9 || m.Training.Alphabet != 11 {
		t.Errorf("training stats = %+v", m.Training)
	}

	if got := strings.Join(m.Tokenizer.SpecialTokens, " "); got != "[PAD] [UNK] [CLS] [SEP] [MASK]" {
		t.Errorf("special tokens = %q", got)
	}
}

func TestTrain_WithoutMerges(t *testing.T) {
	t.Chdir(t.TempDir())

	corpusPath := testutil.WriteCorpus(t, t.TempDir(), testutil.SmallCorpus)
	dir := filepath.Join(t.TempDir(), "artifact")

	if _, err := runCLI(t, "", "train", "--paths-artifact-dir", dir, "--vocab-size", "25", "--save-merges=false", corpusPath); err != nil {
		t.Fatalf("train: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, model.MergesFile)); !os.IsNotExist(err) {
		t.Errorf("merges.txt should not exist, stat err = %v", err)
	}
}

func TestTrain_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	empty := testutil.WriteFile(t, filepath.Join(t.TempDir(), "empty.txt"), " \n\n")
	dir := filepath.Join(t.TempDir(), "artifact")

	tests := []struct {
		name string
		args []string
	}{
		{"no corpus", []string{"train", "--paths-artifact-dir", dir}},
		{"missing file", []string{"train", "--paths-artifact-dir", dir, "/nonexistent/corpus.txt"}},
		{"empty corpus", []string{"train", "--paths-artifact-dir", dir, empty}},
		{"vocab size too small", []string{"train", "--paths-artifact-dir", dir, "--vocab-size", "3", empty}},
		{"bad format", []string{"train", "--paths-artifact-dir", dir, "--vocab-format", "xml", empty}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCLI(t, "", tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// tokenize / encode / decode
// ---------------------------------------------------------------------------

func TestTokenize_Text(t *testing.T) {
	dir, _ := trainArtifact(t)

	out, err := runCLI(t, "", "tokenize", "--paths-artifact-dir", dir, "--text", "Lowest newer xyz")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	got := strings.Fields(out)
	if strings.Join(got, " ") != "lo ##w ##est ne ##wer [UNK]" {
		t.Fatalf("tokens = %q", got)
	}

	testutil.AssertSegmentsWord(t, "lowest", got[:3], "##", "[UNK]")
	testutil.AssertSegmentsWord(t, "newer", got[3:5], "##", "[UNK]")
}

func TestTokenize_StdinJSON(t *testing.T) {
	dir, _ := trainArtifact(t)

	out, err := runCLI(t, "widest\n\nxyz\n", "tokenize", "--paths-artifact-dir", dir, "--json")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 JSON lines, got %q", out)
	}

	var first, second tokenizeLine
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if strings.Join(first.Tokens, " ") != "widest" || len(first.IDs) != 1 {
		t.Errorf("first = %+v", first)
	}
	if len(second.IDs) != 1 || second.IDs[0] != 1 {
		t.Errorf("second = %+v; want the [UNK] id 1", second)
	}
}

func TestTokenize_EmptyStdinFails(t *testing.T) {
	dir, _ := trainArtifact(t)

	if _, err := runCLI(t, "  \n", "tokenize", "--paths-artifact-dir", dir); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestTokenize_PolicyMismatchFails(t *testing.T) {
	dir, _ := trainArtifact(t)

	_, err := runCLI(t, "", "tokenize", "--paths-artifact-dir", dir, "--strip-accents", "--text", "low")
	if err == nil || !strings.Contains(err.Error(), "normalization policy mismatch") {
		t.Errorf("err = %v; want policy mismatch", err)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	dir, _ := trainArtifact(t)

	out, err := runCLI(t, "", "encode", "--paths-artifact-dir", dir, "--text", "lowest newest")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	ids := strings.Fields(out)
	if len(ids) != 6 {
		t.Fatalf("ids = %q; want 6", ids)
	}

	out, err = runCLI(t, "", append([]string{"decode", "--paths-artifact-dir", dir}, ids...)...)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got := strings.TrimSpace(out); got != "lowest newest" {
		t.Errorf("decoded = %q", got)
	}
}

func TestDecode_OutOfRangeFails(t *testing.T) {
	dir, _ := trainArtifact(t)

	if _, err := runCLI(t, "", "decode", "--paths-artifact-dir", dir, "999"); err == nil {
		t.Error("expected error for out-of-range id")
	}
}

// ---------------------------------------------------------------------------
// vocab
// ---------------------------------------------------------------------------

func TestVocabVerify(t *testing.T) {
	dir, _ := trainArtifact(t)

	out, err := runCLI(t, "", "vocab", "verify", dir)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	for _, want := range []string{"PASS vocab.txt", "PASS merges.txt", "PASS fingerprint", "artifact ok: 25 symbols"} {
		if !strings.Contains(out, want) {
			t.Errorf("verify output missing %q:\n%s", want, out)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "vocab.txt"), []byte("[UNK]\nx\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, "", "vocab", "verify", dir); err == nil {
		t.Error("expected verify to fail after tampering")
	}
}

func TestVocabInspect(t *testing.T) {
	dir, _ := trainArtifact(t)

	out, err := runCLI(t, "", "vocab", "inspect", "--paths-artifact-dir", dir, "--limit", "3", "--merges")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}

	for _, want := range []string{"size:          25", "normalization: lowercase", "     0  [PAD]", "merge    1  ##i + ##d -> ##id"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}

	if strings.Contains(out, "     3  ") {
		t.Errorf("inspect should stop after 3 symbols:\n%s", out)
	}
}

func TestVocabConvert_ThenTokenizeBareFile(t *testing.T) {
	dir, _ := trainArtifact(t)
	out := filepath.Join(t.TempDir(), "tokenizer.json")

	if _, err := runCLI(t, "", "vocab", "convert", "--paths-artifact-dir", dir, "--to", "huggingface", "--out", out); err != nil {
		t.Fatalf("convert: %v", err)
	}

	got, err := runCLI(t, "", "tokenize", "--artifact", out, "--text", "lowest")
	if err != nil {
		t.Fatalf("tokenize bare file: %v", err)
	}

	if strings.TrimSpace(got) != "lo ##w ##est" {
		t.Errorf("tokens = %q", got)
	}
}

func TestVocabConvert_RequiresOut(t *testing.T) {
	dir, _ := trainArtifact(t)

	if _, err := runCLI(t, "", "vocab", "convert", "--paths-artifact-dir", dir); err == nil {
		t.Error("expected error without --out")
	}
}

// ---------------------------------------------------------------------------
// doctor / bench / health
// ---------------------------------------------------------------------------

func TestDoctor_Passes(t *testing.T) {
	dir, corpusPath := trainArtifact(t)

	out, err := runCLI(t, "", "doctor", "--paths-artifact-dir", dir, "--paths-corpus", corpusPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}

	if !strings.Contains(out, "doctor checks passed") {
		t.Errorf("doctor output:\n%s", out)
	}
}

func TestDoctor_FailsOnMissingArtifact(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := runCLI(t, "", "doctor", "--paths-artifact-dir", filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatalf("expected doctor failure:\n%s", out)
	}
}

func TestBench_JSON(t *testing.T) {
	dir, corpusPath := trainArtifact(t)

	out, err := runCLI(t, "", "bench", "--paths-artifact-dir", dir, "--input", corpusPath, "--runs", "2", "--format", "json", "--cached")
	if err != nil {
		t.Fatalf("bench: %v", err)
	}

	var report struct {
		Runs []struct {
			Words  int `json:"words"`
			Tokens int `json:"tokens"`
		} `json:"runs"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("bench JSON: %v\n%s", err, out)
	}

	if len(report.Runs) != 2 || report.Runs[0].Words != 16 {
		t.Errorf("report = %+v", report)
	}
}

func TestBench_Errors(t *testing.T) {
	dir, _ := trainArtifact(t)

	tests := [][]string{
		{"bench", "--paths-artifact-dir", dir},
		{"bench", "--paths-artifact-dir", dir, "--text", "low", "--runs", "0"},
		{"bench", "--paths-artifact-dir", dir, "--text", "low", "--format", "xml"},
		{"bench", "--paths-artifact-dir", dir, "--text", "low", "--min-throughput", "1e15"},
	}

	for _, args := range tests {
		if _, err := runCLI(t, "", args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestHealth_Unreachable(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := runCLI(t, "", "health", "--addr", "127.0.0.1:1", "--timeout", "1s"); err == nil {
		t.Error("expected error for unreachable server")
	}
}
