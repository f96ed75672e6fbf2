package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/quarrylane/praxis/internal/record"
)

// Load compiles all *.cue files in dir into a Registry.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// Each file contributes entries under a top-level "entities" struct:
//
//	entities: client: {
//		fields: {
//			name:   {type: "string", required: true}
//			status: {type: "enum", values: ["active", "inactive"], default: "active"}
//		}
//		children: ["engagement"]
//	}
//
// Files are processed in sorted filename order so entity declaration
// order is stable across platforms.
func Load(dir string) (*Registry, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, fmt.Errorf("glob schema dir: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .cue files in %s", dir)
	}
	sort.Strings(paths)

	ctx := cuecontext.New()
	var specs []*EntitySpec

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		v := ctx.CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return nil, formatCUEError(err)
		}

		fileSpecs, err := compileEntities(v)
		if err != nil {
			return nil, err
		}
		specs = append(specs, fileSpecs...)
	}

	return NewRegistry(specs)
}

// compileEntities parses the "entities" struct of one CUE document.
func compileEntities(v cue.Value) ([]*EntitySpec, error) {
	entVal := v.LookupPath(cue.ParsePath("entities"))
	if !entVal.Exists() {
		return nil, &CompileError{
			Field:   "entities",
			Message: "top-level entities struct is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := entVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []*EntitySpec
	for iter.Next() {
		spec, err := compileEntity(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// compileEntity parses a single entity struct into an EntitySpec.
func compileEntity(name string, v cue.Value) (*EntitySpec, error) {
	spec := &EntitySpec{Name: name}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{
			Field:   name + ".fields",
			Message: "at least one field is required",
			Pos:     v.Pos(),
		}
	}

	fieldIter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for fieldIter.Next() {
		f, err := compileField(name, fieldIter.Label(), fieldIter.Value())
		if err != nil {
			return nil, err
		}
		spec.Fields = append(spec.Fields, f)
	}
	if len(spec.Fields) == 0 {
		return nil, &CompileError{
			Field:   name + ".fields",
			Message: "at least one field is required",
			Pos:     fieldsVal.Pos(),
		}
	}

	parentVal := v.LookupPath(cue.ParsePath("parent"))
	if parentVal.Exists() {
		entity, err := stringAt(parentVal, "entity")
		if err != nil {
			return nil, err
		}
		field, err := stringAt(parentVal, "field")
		if err != nil {
			return nil, err
		}
		spec.Parent = &Parent{Entity: entity, Field: field}
	}

	spec.Children, err = stringListAt(v, "children")
	if err != nil {
		return nil, err
	}

	stageFieldVal := v.LookupPath(cue.ParsePath("stage_field"))
	if stageFieldVal.Exists() {
		spec.StageField, err = stageFieldVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
	}
	spec.Stages, err = stringListAt(v, "stages")
	if err != nil {
		return nil, err
	}

	recVal := v.LookupPath(cue.ParsePath("recreation"))
	if recVal.Exists() {
		policy := &RecreationPolicy{}
		enabledVal := recVal.LookupPath(cue.ParsePath("enabled"))
		if enabledVal.Exists() {
			policy.Enabled, err = enabledVal.Bool()
			if err != nil {
				return nil, formatCUEError(err)
			}
		}
		intervals, err := stringListAt(recVal, "intervals")
		if err != nil {
			return nil, err
		}
		for _, iv := range intervals {
			policy.Intervals = append(policy.Intervals, Interval(iv))
		}
		afVal := recVal.LookupPath(cue.ParsePath("attachments_field"))
		if afVal.Exists() {
			policy.AttachmentsField, err = afVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
		}
		spec.Recreation = policy
	}

	return spec, nil
}

// compileField parses one field declaration.
func compileField(entity, key string, v cue.Value) (Field, error) {
	f := Field{Key: key}

	typeStr, err := stringAt(v, "type")
	if err != nil {
		return f, err
	}
	f.Type = FieldType(typeStr)
	if !knownTypes[f.Type] {
		return f, &CompileError{
			Field:   fmt.Sprintf("%s.fields.%s.type", entity, key),
			Message: fmt.Sprintf("unknown field type %q", typeStr),
			Pos:     v.Pos(),
		}
	}

	reqVal := v.LookupPath(cue.ParsePath("required"))
	if reqVal.Exists() {
		f.Required, err = reqVal.Bool()
		if err != nil {
			return f, formatCUEError(err)
		}
	}

	resetVal := v.LookupPath(cue.ParsePath("reset"))
	if resetVal.Exists() {
		f.ResetOnRecreate, err = resetVal.Bool()
		if err != nil {
			return f, formatCUEError(err)
		}
	}

	f.Values, err = stringListAt(v, "values")
	if err != nil {
		return f, err
	}

	targetVal := v.LookupPath(cue.ParsePath("target"))
	if targetVal.Exists() {
		f.Target, err = targetVal.String()
		if err != nil {
			return f, formatCUEError(err)
		}
	}

	defVal := v.LookupPath(cue.ParsePath("default"))
	if defVal.Exists() {
		f.Default, err = compileDefault(entity, key, f.Type, defVal)
		if err != nil {
			return f, err
		}
	}

	return f, nil
}

// compileDefault parses a default literal into the field's value type.
func compileDefault(entity, key string, t FieldType, v cue.Value) (record.Value, error) {
	badDefault := func(msg string) error {
		return &CompileError{
			Field:   fmt.Sprintf("%s.fields.%s.default", entity, key),
			Message: msg,
			Pos:     v.Pos(),
		}
	}

	switch t {
	case TypeString, TypeEnum, TypeReference:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return record.String(s), nil
	case TypeInt, TypeTimestamp:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return record.Int(n), nil
	case TypeDecimal:
		s, err := v.String()
		if err != nil {
			return nil, badDefault("decimal defaults are written as strings, e.g. \"0.00\"")
		}
		d, err := record.NewDecimal(s)
		if err != nil {
			return nil, badDefault(err.Error())
		}
		return d, nil
	case TypeBool:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return record.Bool(b), nil
	case TypeList:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		list := record.List{}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, badDefault("list defaults must contain strings")
			}
			list = append(list, record.String(s))
		}
		return list, nil
	default:
		return nil, badDefault(fmt.Sprintf("defaults are not supported for type %q", t))
	}
}

func stringAt(v cue.Value, path string) (string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return "", &CompileError{
			Field:   path,
			Message: path + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func stringListAt(v cue.Value, path string) ([]string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a schema compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
