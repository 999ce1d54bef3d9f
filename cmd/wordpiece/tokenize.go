package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	textpkg "github.com/example/go-wordpiece/internal/text"
)

// tokenizeLine is one line of --json output.
type tokenizeLine struct {
	Tokens []string `json:"tokens"`
	IDs    []int32  `json:"ids,omitempty"`
}

func newTokenizeCmd() *cobra.Command {
	var (
		text     string
		artifact string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "tokenize",
		Short: "Segment text into WordPiece tokens",
		Long:  "Tokenize prints the tokens of every input line, space separated.\nInput is --text or, when empty, stdin.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			loaded, err := loadArtifact(cfg, artifact)
			if err != nil {
				return err
			}

			return eachLine(text, cmd.InOrStdin(), func(line string) error {
				tokens := loaded.Tokenizer.Tokenize(line)
				if !asJSON {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(tokens, " "))
					return err
				}
				ids, err := loaded.Tokenizer.IDs(tokens)
				if err != nil {
					return err
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(tokenizeLine{Tokens: tokens, IDs: ids})
			})
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to tokenize (if empty, read from stdin)")
	cmd.Flags().StringVar(&artifact, "artifact", "", "Artifact directory or vocabulary file (overrides --paths-artifact-dir)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print tokens and ids as JSON lines")

	return cmd
}

func newEncodeCmd() *cobra.Command {
	var (
		text     string
		artifact string
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Convert text to vocabulary ids",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			loaded, err := loadArtifact(cfg, artifact)
			if err != nil {
				return err
			}

			return eachLine(text, cmd.InOrStdin(), func(line string) error {
				ids, err := loaded.Tokenizer.Encode(line)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), formatIDs(ids))
				return err
			})
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to encode (if empty, read from stdin)")
	cmd.Flags().StringVar(&artifact, "artifact", "", "Artifact directory or vocabulary file (overrides --paths-artifact-dir)")

	return cmd
}

func newDecodeCmd() *cobra.Command {
	var artifact string

	cmd := &cobra.Command{
		Use:   "decode <id>...",
		Short: "Convert vocabulary ids back to text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			loaded, err := loadArtifact(cfg, artifact)
			if err != nil {
				return err
			}

			out, err := loaded.Tokenizer.Decode(ids)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().StringVar(&artifact, "artifact", "", "Artifact directory or vocabulary file (overrides --paths-artifact-dir)")

	return cmd
}

// eachLine calls fn for text, or for every non-blank line of r when text is
// empty.
func eachLine(text string, r io.Reader, fn func(string) error) error {
	if strings.TrimSpace(text) != "" {
		return fn(text)
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	seen := false
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		seen = true
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	if !seen {
		return textpkg.ErrEmptyText
	}
	return nil
}

// parseIDs accepts ids as separate arguments or comma separated.
func parseIDs(args []string) ([]int32, error) {
	var ids []int32
	for _, arg := range args {
		for _, field := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }) {
			n, err := strconv.ParseInt(field, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid id %q: %w", field, err)
			}
			ids = append(ids, int32(n))
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("no ids given")
	}
	return ids, nil
}

func formatIDs(ids []int32) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, " ")
}
