package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/oakmere/addrmatch/internal/stage"
)

// LoadMode controls how errors are handled during stage loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// stageSchema constrains externally authored stage files. Names follow the
// same identifier rule the Go constructors enforce, so a stage loaded from
// CUE is interchangeable with one built in code.
const stageSchema = `
#Name: =~"^[a-z][a-z0-9_]*$"

#Fragment: {
	name: #Name
	sql:  string & !=""
}

#Stage: {
	description?: string
	tags?: [...string]
	depends_on?: [...#Name]
	checkpoint?: bool
	output?:     #Name
	fragments: [...#Fragment]
	emits?: {[string]: [...string]}
}

stage?: close({[#Name]: #Stage})
`

// LoadResult contains the results of loading stage definitions from a
// directory.
type LoadResult struct {
	Stages    []stage.Stage
	CUEValue  cue.Value // the raw unified value, for additional processing
	FileCount int       // number of CUE files found
}

// LoadError represents an error that occurred during stage loading.
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

// LoadStages loads stage definitions from every CUE file in a directory and
// constructs validated stages from them.
// If mode is LoadModeFailFast, returns on the first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadStages(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("stage directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing stage directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(stageSchema, cue.Filename("stage_schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("compiling stage schema: %v", err)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("stage files do not satisfy the schema: %v", err)}}
	}

	result := &LoadResult{
		CUEValue:  unified,
		FileCount: len(cueFiles),
	}

	stagesVal := unified.LookupPath(cue.ParsePath("stage"))
	if !stagesVal.Exists() {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no stage definitions found"})
		return result, errs
	}

	iter, iterErr := stagesVal.Fields()
	if iterErr != nil {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating stages: %v", iterErr)})
		return result, errs
	}
	for iter.Next() {
		s, compileErr := compileStage(iter.Label(), iter.Value())
		if compileErr != nil {
			errs = append(errs, compileErr)
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Stages = append(result.Stages, s)
	}

	if len(result.Stages) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no stage definitions found"})
	}
	return result, errs
}

// stageFile mirrors the CUE #Stage shape for decoding.
type stageFile struct {
	Description string              `json:"description"`
	Tags        []string            `json:"tags"`
	DependsOn   []string            `json:"depends_on"`
	Checkpoint  bool                `json:"checkpoint"`
	Output      string              `json:"output"`
	Fragments   []fragmentFile      `json:"fragments"`
	Emits       map[string][]string `json:"emits"`
}

type fragmentFile struct {
	Name string `json:"name"`
	SQL  string `json:"sql"`
}

// compileStage decodes one stage value and runs it through the same
// constructor validation Go-defined stages get.
func compileStage(name string, v cue.Value) (stage.Stage, *LoadError) {
	var sf stageFile
	if err := v.Decode(&sf); err != nil {
		return stage.Stage{}, &LoadError{
			Code:    ErrCodeStageDecode,
			Message: fmt.Sprintf("stage %q: %v", name, err),
			Pos:     v.Pos(),
		}
	}

	fragments := make([]stage.Fragment, len(sf.Fragments))
	for i, f := range sf.Fragments {
		fragments[i] = stage.Fragment{Name: f.Name, SQL: f.SQL}
	}

	opts := []stage.Option{stage.WithMeta(stage.Meta{
		Description: sf.Description,
		Tags:        sf.Tags,
		DependsOn:   sf.DependsOn,
		Emits:       sf.Emits,
	})}
	if sf.Output != "" {
		opts = append(opts, stage.WithOutput(sf.Output))
	}
	if sf.Checkpoint {
		opts = append(opts, stage.WithCheckpoint())
	}

	s, err := stage.New(name, fragments, opts...)
	if err != nil {
		return stage.Stage{}, &LoadError{
			Code:    ErrCodeStageInvalid,
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return s, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// Error code constants, unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeSchema      = "E007" // Stage files violate the schema

	// Stage validation errors
	ErrCodeStageDecode  = "E101" // Stage value does not decode
	ErrCodeStageInvalid = "E102" // Stage constructor validation failed

	// Pipeline and execution errors
	ErrCodePlan      = "E201" // Pipeline resolution/assembly failed
	ErrCodeExecution = "E202" // Engine execution failed
)
