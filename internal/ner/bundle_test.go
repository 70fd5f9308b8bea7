package ner

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadBundle_Descriptor(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "model.onnx", "onnx")
	writeFile(t, dir, BundleFile, "labels: [O, B-PER, I-PER]\nmax_tokens: 64\nlower_case: true\n")

	b, err := LoadBundle(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"O", "B-PER", "I-PER"}, b.Labels)
	assert.Equal(t, 64, b.MaxTokens)
	assert.True(t, b.LowerCase)
	assert.Equal(t, "logits", b.Output)
	assert.Equal(t, 1, b.Sessions)
	assert.Equal(t, filepath.Join(dir, "vocab.txt"), b.VocabPath())
	assert.False(t, b.UsesTokenTypes())
}

func TestLoadBundle_LabelsFromConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "model.onnx", "onnx")
	writeFile(t, dir, "config.json", `{"id2label":{"0":"O","2":"I-LOC","1":"B-LOC"},"type_vocab_size":2}`)

	b, err := LoadBundle(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"O", "B-LOC", "I-LOC"}, b.Labels)
	assert.True(t, b.UsesTokenTypes())
	assert.Equal(t, defaultMaxTokens, b.MaxTokens)
}

func TestLoadBundle_PrefersInt8(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "model.onnx", "onnx")
	writeFile(t, dir, "model.int8.onnx", "onnx")
	writeFile(t, dir, BundleFile, "labels: [O]\n")

	b, err := LoadBundle(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "model.int8.onnx"), b.ModelPath())
}

func TestLoadBundle_Errors(t *testing.T) {
	_, err := LoadBundle("")
	assert.Error(t, err)

	dir := t.TempDir()
	writeFile(t, dir, BundleFile, "labels: [O]\n")
	_, err = LoadBundle(dir)
	assert.ErrorContains(t, err, "ner model missing")

	dir = t.TempDir()
	writeFile(t, dir, "model.onnx", "onnx")
	_, err = LoadBundle(dir)
	assert.ErrorContains(t, err, "declares no labels")
}

func TestVerifyManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "model.onnx", "onnx-bytes")
	sum := sha256.Sum256([]byte("onnx-bytes"))

	writeFile(t, dir, "manifest.json", `{"files":[{"path":"model.onnx","sha256":"`+hex.EncodeToString(sum[:])+`","size":10}]}`)
	assert.NoError(t, VerifyManifest(dir))

	writeFile(t, dir, "manifest.json", `{"files":[{"path":"model.onnx","sha256":"00"}]}`)
	assert.ErrorContains(t, VerifyManifest(dir), "sha256 mismatch")

	writeFile(t, dir, "manifest.json", `{"files":[{"path":"../escape"}]}`)
	assert.ErrorContains(t, VerifyManifest(dir), "escapes bundle")

	assert.NoError(t, VerifyManifest(t.TempDir()))
}
