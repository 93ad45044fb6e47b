package model

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"claimspotter/internal/store"
)

const checkpointPrefix = "cb.ckpt-"

type tensorRecord struct {
	Name  string
	Shape []int
	Data  []float32
}

type checkpoint struct {
	Epoch   int
	Tensors []tensorRecord
}

// CheckpointPath returns the file a checkpoint for epoch is written to.
func CheckpointPath(dir string, epoch int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d", checkpointPrefix, epoch))
}

func (m *Model) allParams() []*param {
	return append(append([]*param(nil), m.params.list...), m.emb)
}

// Save writes every parameter, embedding table included, to dir keyed by
// epoch and returns the file path.
func (m *Model) Save(dir string, epoch int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ck := checkpoint{Epoch: epoch}
	for _, p := range m.allParams() {
		ck.Tensors = append(ck.Tensors, tensorRecord{
			Name:  p.name,
			Shape: append([]int(nil), p.t.Shape()...),
			Data:  append([]float32(nil), p.data()...),
		})
	}
	path := CheckpointPath(dir, epoch)
	if err := store.WriteFile(path, ck); err != nil {
		return "", errors.Wrap(err, "model: save checkpoint")
	}
	m.logger.Info("saved checkpoint", zap.String("path", path), zap.Int("epoch", epoch))
	return path, nil
}

// Restore loads the checkpoint at path. Every parameter must be present
// with its current shape; nothing is modified otherwise.
func (m *Model) Restore(path string) error {
	var ck checkpoint
	if err := store.ReadFile(path, &ck); err != nil {
		return errors.Wrap(err, "model: restore checkpoint")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byName := make(map[string]tensorRecord, len(ck.Tensors))
	for _, r := range ck.Tensors {
		byName[r.Name] = r
	}
	params := m.allParams()
	for _, p := range params {
		r, ok := byName[p.name]
		if !ok {
			return errors.Wrapf(ErrShapeMismatch, "checkpoint %s lacks %s", path, p.name)
		}
		if !sameShape(r.Shape, p.t.Shape()) || len(r.Data) != len(p.data()) {
			return errors.Wrapf(ErrShapeMismatch, "%s: checkpoint %v, model %v", p.name, r.Shape, p.t.Shape())
		}
	}
	for _, p := range params {
		copy(p.data(), byName[p.name].Data)
	}
	m.logger.Info("restored checkpoint", zap.String("path", path), zap.Int("epoch", ck.Epoch))
	return nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// LatestCheckpoint returns the checkpoint in dir with the highest epoch.
func LatestCheckpoint(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, checkpointPrefix+"*"))
	if err != nil {
		return "", errors.Wrap(err, "model: list checkpoints")
	}
	best, bestEpoch := "", -1
	for _, path := range matches {
		epoch, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(path), checkpointPrefix))
		if err != nil {
			continue
		}
		if epoch > bestEpoch {
			best, bestEpoch = path, epoch
		}
	}
	if best == "" {
		return "", errors.Wrapf(ErrNoCheckpoint, "in %s", dir)
	}
	return best, nil
}
