package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/lbastigk/Nebulite-sub003/internal/compiler"
	"github.com/lbastigk/Nebulite-sub003/internal/config"
	"github.com/lbastigk/Nebulite-sub003/internal/dispatch"
	"github.com/lbastigk/Nebulite-sub003/internal/engine"
	"github.com/lbastigk/Nebulite-sub003/internal/entity"
	"github.com/lbastigk/Nebulite-sub003/internal/world"
)

// LoadError represents an error that occurred while loading a world.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadWorld checks dir and compiles the CUE world in it. Every failure is
// a *LoadError.
func LoadWorld(dir string) (*compiler.World, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("world directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing world directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := compiler.FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	w, err := compiler.LoadWorld(dir)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return w, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
// Validation codes E101-E105 come from the compiler package.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeScanError    = "E002" // Directory scan error
	ErrCodeNoFiles      = "E003" // No CUE files found
	ErrCodeLoadFailed   = "E004" // CUE load failed
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeBuildFailed  = "E006" // CUE build failed
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeInvalidWorld = "E008" // global or entity template malformed
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "load":
		return ErrCodeLoadFailed
	case field == "cue":
		return ErrCodeBuildFailed
	case field == compiler.FieldGlobal,
		strings.HasPrefix(field, compiler.FieldEntity):
		return ErrCodeInvalidWorld
	default:
		return ErrCodeGeneric
	}
}

// newCommands returns the command table rules reach through the call
// operator.
func newCommands() *dispatch.Table {
	t := dispatch.NewStandardTable()
	entity.RegisterCommands(t)
	return t
}

// buildContainer creates a container for w under the given tuning.
func buildContainer(w *compiler.World, cfg config.Config, gen engine.RunIDGenerator) *world.Container {
	opts := append(cfg.EngineOptions(),
		engine.WithDispatcher(newCommands()),
		engine.WithRunIDGenerator(gen),
	)
	sim := engine.New(w.Global, entity.NewArena(), opts...)
	c := world.New(sim, cfg.WorldOptions()...)
	for _, sp := range w.Entities {
		c.Insert(entity.New(sp.Doc))
	}
	return c
}
