package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokcompress/internal/shard"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func writeShard(t *testing.T, dir string) (string, []int) {
	t.Helper()
	tokens := make([]int, 0, 600)
	for i := 0; len(tokens) < 600; i++ {
		if i%25 == 0 {
			tokens = append(tokens, 99)
			continue
		}
		tokens = append(tokens, []int{5, 6, 7, 8, 5, 6, 1}[i%7])
	}
	path := filepath.Join(dir, "fineweb_val_000000.bin")
	require.NoError(t, shard.WriteShardFile(path, shard.NewHeader(0), tokens))
	return path, tokens
}

var smallFlags = []string{
	"--initial-vocab-size", "100",
	"--max-codebook-size", "16",
	"--max-subtokens", "4",
	"--max-out-seq-length", "32",
	"--eot-token-id", "99",
}

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
		assert.NotEmpty(t, c.Short, c.Name())
	}
	for _, want := range []string{"compress", "decode", "inspect", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestCompressDecodeInspect(t *testing.T) {
	src, tokens := writeShard(t, t.TempDir())
	outDir := t.TempDir()
	metrics := filepath.Join(t.TempDir(), "tokcompress.prom")

	args := append([]string{"compress", "--out-dir", outDir, "--metrics-out", metrics, "--log-format", "json"}, smallFlags...)
	stdout, stderr, err := execute(t, append(args, src)...)
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "600 tokens")
	assert.Contains(t, stderr, "shard compressed")

	compressed, codebooks := shard.OutputPaths(src, outDir)
	_, err = os.Stat(compressed)
	require.NoError(t, err)

	body, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tokcompress_input_tokens_total 600")

	restored := filepath.Join(t.TempDir(), "restored.bin")
	stdout, _, err = execute(t, "decode", compressed, codebooks, restored)
	require.NoError(t, err)
	assert.Contains(t, stdout, "600 tokens")

	s, err := shard.ReadShardFile(restored)
	require.NoError(t, err)
	assert.Equal(t, tokens, s.Tokens)

	stdout, _, err = execute(t, "inspect", "--codebooks", codebooks, compressed)
	require.NoError(t, err)
	assert.Contains(t, stdout, "compressed")
	assert.Contains(t, stdout, "source_tokens")
	assert.Contains(t, stdout, "codebook_entries")

	stdout, _, err = execute(t, "inspect", src)
	require.NoError(t, err)
	assert.Contains(t, stdout, "false")
	assert.NotContains(t, stdout, "windows")
}

func TestCompress_ConfigFileAndFlags(t *testing.T) {
	src, _ := writeShard(t, t.TempDir())
	outDir := t.TempDir()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
compress:
  initial_vocab_size: 100
  max_codebook_size: 16
  max_subtokens: 4
  max_out_seq_length: 32
  eot_token_id: 99
shard:
  out_dir: `+outDir+`
logging:
  level: warn
`), 0o600))

	// flag wins over the file
	stdout, stderr, err := execute(t, "compress", "--config", cfgPath, "--max-subtokens", "2", src)
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "600 tokens")
	assert.NotContains(t, stderr, "shard compressed", "info is below the configured level")

	compressed, _ := shard.OutputPaths(src, outDir)
	s, err := shard.ReadShardFile(compressed)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Header.MaxSubtokens())
}

func TestCompress_Errors(t *testing.T) {
	_, _, err := execute(t, "compress")
	assert.Error(t, err, "needs a file")

	src, _ := writeShard(t, t.TempDir())
	_, _, err = execute(t, append([]string{"compress", "--max-subtokens", "1"}, src)...)
	assert.ErrorContains(t, err, "invalid flags")

	// default vocab of 50257 plus 1024 codes fits; 65000 + 1024 does not
	_, _, err = execute(t, "compress", "--initial-vocab-size", "65000", "--eot-token-id", "0", src)
	assert.ErrorContains(t, err, "uint16")

	_, _, err = execute(t, "inspect", filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "tokcompress dev")
}
