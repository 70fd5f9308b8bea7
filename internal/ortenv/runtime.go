// Package ortenv initialises the process-wide ONNX Runtime environment
// shared by the entity recognizer and the face detector.
package ortenv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// EnvLibraryPath overrides shared library discovery.
const EnvLibraryPath = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// ErrLibraryNotFound is returned when no onnxruntime shared library exists
// in any probed location.
var ErrLibraryNotFound = errors.New("onnxruntime shared library not found; set " + EnvLibraryPath + " or install the runtime")

var mu sync.Mutex

// Init loads the onnxruntime library and initialises the environment once.
// hint is a file or directory checked before the standard locations.
func Init(hint string) error {
	mu.Lock()
	defer mu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	lib := ResolveLibrary(hint)
	if lib == "" {
		return ErrLibraryNotFound
	}
	ort.SetSharedLibraryPath(lib)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

// Shutdown tears down the environment if it was initialised.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// ResolveLibrary returns the first onnxruntime shared library found. The
// environment variable wins, then hint, then common install locations.
func ResolveLibrary(hint string) string {
	if env := strings.TrimSpace(os.Getenv(EnvLibraryPath)); env != "" {
		return env
	}
	hint = strings.TrimSpace(hint)
	if hint != "" {
		if info, err := os.Stat(hint); err == nil && !info.IsDir() {
			return hint
		}
	}

	names := []string{
		"libonnxruntime.so",
		"onnxruntime.so",
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"onnxruntime.dll",
	}
	var dirs []string
	if hint != "" {
		dirs = append(dirs, hint, filepath.Join(hint, "lib"))
	}
	dirs = append(dirs, ".", "/opt/homebrew/lib", "/usr/local/lib", "/usr/lib")

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

// Output returns the name and dimensions of the model output called name,
// or of the only output when name is empty.
func Output(modelPath, name string) (string, []int64, error) {
	_, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return "", nil, err
	}
	if len(outputs) == 0 {
		return "", nil, fmt.Errorf("model %s has no outputs", modelPath)
	}
	for _, out := range outputs {
		if name != "" && strings.EqualFold(out.Name, name) {
			return out.Name, out.Dimensions, nil
		}
	}
	if name == "" && len(outputs) == 1 {
		return outputs[0].Name, outputs[0].Dimensions, nil
	}
	return "", nil, fmt.Errorf("model %s has no output %q", modelPath, name)
}

// Inputs returns the input names of a model.
func Inputs(modelPath string) ([]string, error) {
	inputs, _, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(inputs))
	for i, in := range inputs {
		names[i] = in.Name
	}
	return names, nil
}

// SessionOptions returns options tuned for CPU inference. The caller owns
// and must destroy the result.
func SessionOptions(intraThreads, interThreads int) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("set graph optimization: %w", err)
	}
	if intraThreads > 0 {
		if err := opts.SetIntraOpNumThreads(intraThreads); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("set intra threads: %w", err)
		}
	}
	if interThreads > 0 {
		if err := opts.SetInterOpNumThreads(interThreads); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("set inter threads: %w", err)
		}
	}
	return opts, nil
}
