package ner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// BundleFile is the descriptor expected at the root of a model bundle.
const BundleFile = "ner.yaml"

const (
	defaultMaxTokens = 128
	defaultOutput    = "logits"
)

// Bundle describes an exported token-classification model on disk.
type Bundle struct {
	Dir          string   `yaml:"-"`
	Model        string   `yaml:"model"`
	Vocab        string   `yaml:"vocab"`
	Labels       []string `yaml:"labels"`
	MaxTokens    int      `yaml:"max_tokens"`
	LowerCase    bool     `yaml:"lower_case"`
	TokenTypeIDs *bool    `yaml:"token_type_ids"`
	Output       string   `yaml:"output"`
	Sessions     int      `yaml:"sessions"`
	IntraThreads int      `yaml:"intra_threads"`
	InterThreads int      `yaml:"inter_threads"`
}

// LoadBundle reads dir/ner.yaml, fills defaults and resolves labels from
// config.json or label_map.json when the descriptor lists none.
func LoadBundle(dir string) (*Bundle, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("ner bundle dir is empty")
	}
	b := &Bundle{}
	data, err := os.ReadFile(filepath.Join(dir, BundleFile))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, b); err != nil {
			return nil, fmt.Errorf("decode %s: %w", BundleFile, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", BundleFile, err)
	}
	b.Dir = dir
	b.applyDefaults()

	if len(b.Labels) == 0 {
		meta, err := loadModelMeta(dir)
		if err != nil {
			return nil, err
		}
		b.Labels = meta.labels
		if b.TokenTypeIDs == nil {
			b.TokenTypeIDs = &meta.tokenTypes
		}
	}
	if len(b.Labels) == 0 {
		return nil, fmt.Errorf("ner bundle %s declares no labels", dir)
	}
	if _, err := os.Stat(b.ModelPath()); err != nil {
		return nil, fmt.Errorf("ner model missing: %w", err)
	}
	if err := VerifyManifest(dir); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bundle) applyDefaults() {
	if b.Model == "" {
		b.Model = "model.onnx"
	}
	if b.Vocab == "" {
		b.Vocab = "vocab.txt"
	}
	if b.MaxTokens <= 0 {
		b.MaxTokens = defaultMaxTokens
	}
	if b.Output == "" {
		b.Output = defaultOutput
	}
	if b.Sessions <= 0 {
		b.Sessions = 1
	}
}

// ModelPath prefers an int8 quantised export next to the configured model.
func (b *Bundle) ModelPath() string {
	model := filepath.Join(b.Dir, filepath.FromSlash(b.Model))
	int8Path := filepath.Join(filepath.Dir(model), "model.int8.onnx")
	if _, err := os.Stat(int8Path); err == nil {
		return int8Path
	}
	return model
}

func (b *Bundle) VocabPath() string {
	return filepath.Join(b.Dir, filepath.FromSlash(b.Vocab))
}

func (b *Bundle) UsesTokenTypes() bool {
	return b.TokenTypeIDs != nil && *b.TokenTypeIDs
}

type modelMeta struct {
	labels     []string
	tokenTypes bool
}

func loadModelMeta(dir string) (modelMeta, error) {
	var meta modelMeta
	if data, err := os.ReadFile(filepath.Join(dir, "config.json")); err == nil {
		var cfg struct {
			ID2Label      map[string]string `json:"id2label"`
			TypeVocabSize int               `json:"type_vocab_size"`
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return meta, fmt.Errorf("decode config.json: %w", err)
		}
		meta.labels = labelsFromIDMap(cfg.ID2Label)
		meta.tokenTypes = cfg.TypeVocabSize > 0
	}
	if data, err := os.ReadFile(filepath.Join(dir, "label_map.json")); err == nil {
		var list []string
		if err := json.Unmarshal(data, &list); err == nil && len(list) > 0 {
			meta.labels = list
		} else {
			var idMap map[string]string
			if err := json.Unmarshal(data, &idMap); err == nil {
				meta.labels = labelsFromIDMap(idMap)
			}
		}
	}
	return meta, nil
}

func labelsFromIDMap(id2label map[string]string) []string {
	maxID := -1
	ids := make(map[int]string, len(id2label))
	for k, v := range id2label {
		id, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || id < 0 {
			continue
		}
		ids[id] = v
		maxID = max(maxID, id)
	}
	if maxID < 0 {
		return nil
	}
	labels := make([]string, maxID+1)
	for i := range labels {
		labels[i] = "O"
	}
	for id, lbl := range ids {
		labels[id] = lbl
	}
	return labels
}

type manifestFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// VerifyManifest checks every file listed in dir/manifest.json against its
// recorded size and sha256. A bundle without a manifest passes.
func VerifyManifest(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var manifest struct {
		Files []manifestFile `json:"files"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	for _, f := range manifest.Files {
		local := filepath.Join(root, filepath.FromSlash(f.Path))
		if !strings.HasPrefix(local, root+string(filepath.Separator)) {
			return fmt.Errorf("manifest path %s escapes bundle", f.Path)
		}
		if err := verifyFile(local, f); err != nil {
			return err
		}
	}
	return nil
}

func verifyFile(path string, f manifestFile) error {
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer fh.Close()
	h := sha256.New()
	n, err := io.Copy(h, fh)
	if err != nil {
		return fmt.Errorf("hash %s: %w", f.Path, err)
	}
	if f.Size > 0 && n != f.Size {
		return fmt.Errorf("size mismatch for %s: expected %d got %d", f.Path, f.Size, n)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if f.SHA256 != "" && !strings.EqualFold(sum, f.SHA256) {
		return fmt.Errorf("sha256 mismatch for %s: expected %s got %s", f.Path, f.SHA256, sum)
	}
	return nil
}
