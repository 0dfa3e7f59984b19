package manifest

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/openweft/weft/pkg/engine"
)

// Loader parses and validates CUE component manifests.
type Loader struct {
	ctx       *cue.Context
	schemas   *SchemaRegistry
	validator *validator.Validate
	logger    zerolog.Logger
	watcher   *fsnotify.Watcher
}

// NewLoader creates a new manifest loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		ctx:       cuecontext.New(),
		schemas:   NewSchemaRegistry(),
		validator: validator.New(),
		logger:    logger.With().Str("component", "manifest").Logger(),
	}
}

// Bootstrap loads manifest sources and registers every declared
// component on the registry. It fails when the manifest carries
// validation errors, leaving the registry untouched in that case.
func (l *Loader) Bootstrap(ctx context.Context, sources []string, reg *engine.Registry) (*ParsedManifest, error) {
	parsed, err := l.Load(ctx, sources)
	if err != nil {
		return nil, err
	}

	if err := parsed.Apply(reg); err != nil {
		return parsed, err
	}

	l.logger.Info().
		Int("components", len(parsed.Components)).
		Int("sources", len(parsed.SourceFiles)).
		Msg("Manifest applied to registry")

	return parsed, nil
}

// Load parses CUE manifests from the given file or directory sources.
// Parse and validation problems are collected into the returned
// manifest's Errors; the error return covers source-level failures
// such as unreadable paths.
func (l *Loader) Load(ctx context.Context, sources []string) (*ParsedManifest, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var cueValue cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		if info.IsDir() {
			val, files, errs := l.loadDirectory(source)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
			}
			if val.Exists() {
				cueValue = unifyInto(cueValue, val)
			}
			sourceFiles = append(sourceFiles, files...)
		} else {
			val, errs := l.loadFile(source)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
			}
			if val.Exists() {
				cueValue = unifyInto(cueValue, val)
			}
			sourceFiles = append(sourceFiles, source)
		}
	}

	if len(parseErrors) > 0 {
		return &ParsedManifest{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	if err := cueValue.Err(); err != nil {
		return &ParsedManifest{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      l.convertCUEErrors(err),
		}, nil
	}

	parsed := l.extractManifest(ctx, cueValue, sourceFiles)

	l.logger.Debug().
		Int("components", len(parsed.Components)).
		Int("errors", len(parsed.Errors)).
		Int("sources", len(sourceFiles)).
		Msg("Manifest parsed")

	return parsed, nil
}

// ParseInline parses inline CUE manifest content.
func (l *Loader) ParseInline(ctx context.Context, content string) (*ParsedManifest, error) {
	val := l.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		return &ParsedManifest{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      l.convertCUEErrors(err),
		}, nil
	}

	return l.extractManifest(ctx, val, []string{"inline"}), nil
}

// Schemas returns the schema registry backing this loader.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// unifyInto unifies val into acc, starting acc off when it is empty.
func unifyInto(acc, val cue.Value) cue.Value {
	if acc.Exists() {
		return acc.Unify(val)
	}
	return val
}

// loadDirectory loads a directory as a CUE package.
func (l *Loader) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	buildInstances := load.Instances([]string{dir}, nil)
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File:     dir,
			Message:  "no CUE files found",
			Severity: "error",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, l.convertCUEErrors(inst.Err)
	}

	val := l.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, l.convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	return val, files, nil
}

// loadFile loads a single CUE file.
func (l *Loader) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	val := l.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, l.convertCUEErrors(err)
	}

	return val, nil
}

// extractManifest extracts the manifest from a CUE value. Components
// may be declared as a map keyed by ID or as a list; the map form may
// omit the id field, in which case the key supplies it.
func (l *Loader) extractManifest(ctx context.Context, val cue.Value, sourceFiles []string) *ParsedManifest {
	parsed := &ParsedManifest{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
	}

	metadataVal := val.LookupPath(cue.ParsePath("metadata"))
	if metadataVal.Exists() {
		var metadata Metadata
		if err := metadataVal.Decode(&metadata); err != nil {
			parsed.Errors = append(parsed.Errors, ValidationError{
				Path:     "metadata",
				Message:  fmt.Sprintf("failed to decode metadata: %v", err),
				Severity: "error",
			})
		} else {
			parsed.Metadata = metadata
		}
	}

	componentsVal := val.LookupPath(cue.ParsePath("components"))
	if !componentsVal.Exists() {
		return parsed
	}

	switch componentsVal.Kind() {
	case cue.StructKind:
		iter, err := componentsVal.Fields(cue.All())
		if err != nil {
			parsed.Errors = append(parsed.Errors, ValidationError{
				Path:     "components",
				Message:  fmt.Sprintf("failed to iterate components: %v", err),
				Severity: "error",
			})
			return parsed
		}
		for iter.Next() {
			key := selectorLabel(iter.Selector())
			component, err := l.extractComponent(ctx, key, iter.Value())
			if err != nil {
				parsed.Errors = append(parsed.Errors, ValidationError{
					Path:     fmt.Sprintf("components.%s", key),
					Message:  err.Error(),
					Severity: "error",
				})
				continue
			}
			parsed.Components = append(parsed.Components, component)
		}

	case cue.ListKind:
		list, err := componentsVal.List()
		if err != nil {
			parsed.Errors = append(parsed.Errors, ValidationError{
				Path:     "components",
				Message:  fmt.Sprintf("failed to list components: %v", err),
				Severity: "error",
			})
			return parsed
		}
		idx := 0
		for list.Next() {
			component, err := l.extractComponent(ctx, "", list.Value())
			if err != nil {
				parsed.Errors = append(parsed.Errors, ValidationError{
					Path:     fmt.Sprintf("components[%d]", idx),
					Message:  err.Error(),
					Severity: "error",
				})
			} else {
				parsed.Components = append(parsed.Components, component)
			}
			idx++
		}

	default:
		parsed.Errors = append(parsed.Errors, ValidationError{
			Path:     "components",
			Message:  fmt.Sprintf("components must be a struct or list, got %s", componentsVal.Kind()),
			Severity: "error",
		})
	}

	return parsed
}

// extractComponent decodes and validates a single component
// declaration. The map key supplies the ID when the value omits it.
func (l *Loader) extractComponent(ctx context.Context, id string, val cue.Value) (ComponentConfig, error) {
	var component ComponentConfig

	if err := val.Decode(&component); err != nil {
		return component, fmt.Errorf("failed to decode component: %w", err)
	}

	if component.ID == "" && id != "" {
		component.ID = id
	}

	// Struct tags catch missing fields; the CUE schema adds the ID
	// character constraints.
	if err := l.validator.Struct(component); err != nil {
		return component, fmt.Errorf("validation failed: %w", err)
	}
	if err := l.schemas.ValidateComponent(ctx, component); err != nil {
		return component, err
	}

	return component, nil
}

// selectorLabel renders a field selector as a plain label, stripping
// the quotes CUE adds around non-identifier keys.
func selectorLabel(sel cue.Selector) string {
	label := sel.String()
	if unquoted, err := strconv.Unquote(label); err == nil {
		return unquoted
	}
	return label
}

// convertCUEErrors converts CUE errors to a ValidationError slice.
func (l *Loader) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	errs := errors.Errors(err)
	for _, e := range errs {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}
