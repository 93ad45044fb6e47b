package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimspotter/internal/api"
	"claimspotter/internal/model"
)

type rawJSON struct {
	Label int    `json:"label"`
	Text  string `json:"text"`
}

func writeFixture(t *testing.T) (dir, configPath string) {
	t.Helper()
	dir = t.TempDir()

	var train, eval []rawJSON
	for i := 0; i < 6; i++ {
		train = append(train,
			rawJSON{Label: 1, Text: fmt.Sprintf("The deficit grew by %d percent last year.", i+2)},
			rawJSON{Label: -1, Text: fmt.Sprintf("Thank you all %d times.", i+1)},
		)
	}
	eval = append(eval, train[:4]...)
	for name, v := range map[string][]rawJSON{"train.json": train, "eval.json": eval} {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), b, 0o644))
	}

	yaml := fmt.Sprintf(`data:
  raw_data_path: %[1]s/train.json
  raw_eval_path: %[1]s/eval.json
  processed_data_path: %[1]s/processed.gob
  tokenizer_type: hashing
  hashing_buckets: 64
  num_classes: 2
model:
  max_len: 10
  embedding_dim: 4
  rnn_cell_size: 3
  keep_prob_emb: 1
  keep_prob_lstm: 1
  train_embeddings: false
  learning_rate: 0.05
train:
  max_steps: 2
  batch_size: 4
  stat_print_interval: 1
  model_save_interval: 5
  output_dir: %[1]s/out
log:
  level: error
`, dir)
	configPath = filepath.Join(dir, "claimspotter.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o644))
	return dir, configPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTrainThenScore(t *testing.T) {
	dir, cfgPath := writeFixture(t)

	_, err := run(t, "--config", cfgPath, "train")
	require.NoError(t, err)

	outDir := filepath.Join(dir, "out")
	latest, err := model.LatestCheckpoint(outDir)
	require.NoError(t, err)
	assert.Equal(t, model.CheckpointPath(outDir, 2), latest)

	prom, err := os.ReadFile(filepath.Join(outDir, metricsFile))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "claimspotter_epoch_loss")
	assert.Contains(t, string(prom), "claimspotter_checkpoints_saved_total 1")

	_, err = os.Stat(filepath.Join(dir, "processed_hashing.gob"))
	assert.NoError(t, err)

	out, err := run(t, "--config", cfgPath, "score", "The deficit grew by 9 percent last year. Thank you.")
	require.NoError(t, err)
	var results []api.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Len(t, r.Scores, 2)
		assert.NotEmpty(t, r.Result)
	}

	out, err = run(t, "--config", cfgPath, "score", "--whole", "One. Two.")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Len(t, results, 1)
}

func TestScore_NoCheckpoint(t *testing.T) {
	_, cfgPath := writeFixture(t)
	_, err := run(t, "--config", cfgPath, "score", "anything")
	assert.Error(t, err)
}

func TestScore_NoInput(t *testing.T) {
	_, cfgPath := writeFixture(t)
	_, err := run(t, "--config", cfgPath, "score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to score")
}

func TestVocab(t *testing.T) {
	dir, cfgPath := writeFixture(t)

	out, err := run(t, "--config", cfgPath, "vocab", "--top", "3")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "The\t6") || strings.HasPrefix(lines[0], "Thank\t6"), lines[0])

	out, err = run(t, "--config", cfgPath, "vocab", "--input", filepath.Join(dir, "eval.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "deficit\t2\n")
}

func TestBadConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "vocab")
	assert.Error(t, err)
}
