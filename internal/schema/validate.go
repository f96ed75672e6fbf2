package schema

import "fmt"

// validateRegistry runs cross-entity checks after all specs are
// compiled. Any failure here is startup-fatal.
func validateRegistry(r *Registry) error {
	for _, name := range r.order {
		s := r.specs[name]

		for i := range s.Fields {
			f := &s.Fields[i]
			if !knownTypes[f.Type] {
				return fmt.Errorf("entity %q field %q: unknown type %q", name, f.Key, f.Type)
			}
			if f.Type == TypeEnum && len(f.Values) == 0 {
				return fmt.Errorf("entity %q field %q: enum without values", name, f.Key)
			}
			if f.Type == TypeReference {
				if f.Target == "" {
					return fmt.Errorf("entity %q field %q: reference without target", name, f.Key)
				}
				if _, ok := r.specs[f.Target]; !ok {
					return fmt.Errorf("entity %q field %q: reference target %q is not registered", name, f.Key, f.Target)
				}
			}
		}

		if s.Parent != nil {
			parent, ok := r.specs[s.Parent.Entity]
			if !ok {
				return fmt.Errorf("entity %q: parent %q is not registered", name, s.Parent.Entity)
			}
			pf := s.Field(s.Parent.Field)
			if pf == nil {
				return fmt.Errorf("entity %q: parent field %q is not declared", name, s.Parent.Field)
			}
			if pf.Type != TypeReference || pf.Target != s.Parent.Entity {
				return fmt.Errorf("entity %q: parent field %q must be a reference to %q", name, s.Parent.Field, s.Parent.Entity)
			}
			if !contains(parent.Children, name) {
				return fmt.Errorf("entity %q: parent %q does not declare it as a child", name, s.Parent.Entity)
			}
		}

		for _, child := range s.Children {
			cs, ok := r.specs[child]
			if !ok {
				return fmt.Errorf("entity %q: child %q is not registered", name, child)
			}
			if cs.Parent == nil || cs.Parent.Entity != name {
				return fmt.Errorf("entity %q: child %q does not declare it as parent", name, child)
			}
		}

		if s.StageField != "" {
			sf := s.Field(s.StageField)
			if sf == nil {
				return fmt.Errorf("entity %q: stage field %q is not declared", name, s.StageField)
			}
			if sf.Type != TypeEnum {
				return fmt.Errorf("entity %q: stage field %q must be an enum", name, s.StageField)
			}
			if len(s.Stages) == 0 {
				return fmt.Errorf("entity %q: stage field without stages", name)
			}
			for _, stage := range s.Stages {
				if !contains(sf.Values, stage) {
					return fmt.Errorf("entity %q: stage %q is not a member of enum field %q", name, stage, s.StageField)
				}
			}
		} else if len(s.Stages) > 0 {
			return fmt.Errorf("entity %q: stages declared without a stage field", name)
		}

		if s.Recreation != nil && s.Recreation.Enabled {
			if len(s.Recreation.Intervals) == 0 {
				return fmt.Errorf("entity %q: recreation enabled without intervals", name)
			}
			for _, iv := range s.Recreation.Intervals {
				switch iv {
				case IntervalOnce, IntervalMonthly, IntervalYearly:
				default:
					return fmt.Errorf("entity %q: unknown recreation interval %q", name, iv)
				}
			}
			if af := s.Recreation.AttachmentsField; af != "" {
				f := s.Field(af)
				if f == nil || f.Type != TypeBool {
					return fmt.Errorf("entity %q: attachments field %q must be a declared bool field", name, af)
				}
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
