package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rulescript/internal/ir"
)

// LoadMode controls how errors are handled during ruleset loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the results of loading a ruleset from a directory.
type LoadResult struct {
	Ruleset   ir.Ruleset
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred during ruleset loading.
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

// Load error codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeRecord      = "E010" // record declaration did not compile
	ErrCodeRule        = "E011" // rule declaration did not compile
	ErrCodeFacts       = "E012" // facts list did not compile
)

// LoadRuleset loads the CUE package in dir and compiles its record,
// rule and facts declarations. Records are returned with inherited
// fields flattened in.
//
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadRuleset(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing rules directory: %v", err)}}
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

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}
	errs = CompileValue(value, &result.Ruleset, mode)
	if len(errs) > 0 && mode == LoadModeFailFast {
		return result, errs
	}

	if len(result.Ruleset.Records) == 0 && len(result.Ruleset.Rules) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no records or rules found"})
	}
	return result, errs
}

// CompileValue compiles the record, rule and facts declarations of a
// built CUE value into rs.
func CompileValue(value cue.Value, rs *ir.Ruleset, mode LoadMode) []error {
	var errs []error
	fail := func(err error) bool {
		errs = append(errs, err)
		return mode == LoadModeFailFast
	}

	if recordsVal := value.LookupPath(cue.ParsePath("record")); recordsVal.Exists() {
		iter, err := recordsVal.Fields()
		if err != nil {
			if fail(&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating records: %v", err)}) {
				return errs
			}
		} else {
			for iter.Next() {
				rt, err := CompileRecord(iter.Value())
				if err != nil {
					if fail(convertCompileError(err, ErrCodeRecord, "record."+iter.Label())) {
						return errs
					}
					continue
				}
				rs.Records = append(rs.Records, *rt)
			}
		}
	}
	if err := FlattenRecords(rs.Records); err != nil {
		if fail(&LoadError{Code: ErrCodeRecord, Message: err.Error()}) {
			return errs
		}
	}

	if rulesVal := value.LookupPath(cue.ParsePath("rule")); rulesVal.Exists() {
		iter, err := rulesVal.Fields()
		if err != nil {
			if fail(&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating rules: %v", err)}) {
				return errs
			}
		} else {
			for iter.Next() {
				rule, err := CompileRule(iter.Value())
				if err != nil {
					if fail(convertCompileError(err, ErrCodeRule, "rule."+iter.Label())) {
						return errs
					}
					continue
				}
				rs.Rules = append(rs.Rules, *rule)
			}
		}
	}

	if factsVal := value.LookupPath(cue.ParsePath("facts")); factsVal.Exists() {
		seeds, err := CompileFacts(factsVal)
		if err != nil {
			fail(convertCompileError(err, ErrCodeFacts, "facts"))
			return errs
		}
		rs.Facts = seeds
	}
	return errs
}

// FlattenRecords copies inherited fields into each record that extends
// another, parents' fields first. A field redeclared by the child keeps
// the child's type at the parent's position.
func FlattenRecords(records []ir.RecordType) error {
	byName := make(map[string]int, len(records))
	for i, rt := range records {
		byName[rt.Name] = i
	}
	done := make(map[string]bool, len(records))
	visiting := make(map[string]bool)

	var flatten func(i int) error
	flatten = func(i int) error {
		rt := &records[i]
		if done[rt.Name] || rt.Extends == "" {
			done[rt.Name] = true
			return nil
		}
		if visiting[rt.Name] {
			return fmt.Errorf("record %q extends itself", rt.Name)
		}
		p, ok := byName[rt.Extends]
		if !ok {
			return fmt.Errorf("record %q extends unknown record %q", rt.Name, rt.Extends)
		}
		visiting[rt.Name] = true
		if err := flatten(p); err != nil {
			return err
		}
		visiting[rt.Name] = false

		own := make(map[string]ir.FieldDef, len(rt.Fields))
		for _, fd := range rt.Fields {
			own[fd.Name] = fd
		}
		var fields []ir.FieldDef
		for _, fd := range records[p].Fields {
			if mine, ok := own[fd.Name]; ok {
				fd = mine
				delete(own, fd.Name)
			}
			fields = append(fields, fd)
		}
		for _, fd := range rt.Fields {
			if _, ok := own[fd.Name]; ok {
				fields = append(fields, fd)
			}
		}
		rt.Fields = fields
		done[rt.Name] = true
		return nil
	}

	for i := range records {
		if err := flatten(i); err != nil {
			return err
		}
	}
	return nil
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

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, code, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    code,
			Message: fmt.Sprintf("%s: %s: %s", context, compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    code,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Compile loads the rule package in dir and validates it. Load errors
// stop at the first one; validation errors are returned together as a
// *multierror.Error.
func Compile(dir string) (*ir.Ruleset, error) {
	result, errs := LoadRuleset(dir, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	if err := ValidateRuleset(result.Ruleset); err != nil {
		return nil, err
	}
	return &result.Ruleset, nil
}
