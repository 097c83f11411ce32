package project

import (
	"errors"
	"fmt"
)

// Validate checks the structural rules that must hold before any remote call
// is made. It returns the first violation found.
func Validate(plan *Plan) error {
	if plan == nil {
		return NewValidationError("", "plan is nil", ErrMissingName)
	}
	if plan.ActionWrapPackage != "" && (plan.Bucket != nil || plan.Flags.WebLocal != "") {
		return NewValidationError("actionWrapPackage", "action wrapping cannot be combined with a bucket or local web directory", ErrConflictingWebTarget)
	}
	if plan.Bucket != nil && plan.Flags.WebLocal != "" {
		return NewValidationError("bucket", "a bucket cannot be combined with a local web directory", ErrConflictingWebTarget)
	}

	seen := make(map[string]bool, len(plan.Packages))
	for _, pkg := range plan.Packages {
		field := fmt.Sprintf("packages[%s]", pkg.Name)
		if pkg.Name == "" {
			return NewValidationError("packages", "package name is required", ErrMissingName)
		}
		if seen[pkg.Name] {
			return NewValidationError(field, "package declared more than once", ErrDuplicateName)
		}
		seen[pkg.Name] = true
		if err := validateActions(field, pkg); err != nil {
			return err
		}
	}
	return nil
}

func validateActions(pkgField string, pkg Package) error {
	seen := make(map[string]bool, len(pkg.Actions))
	for _, action := range pkg.Actions {
		field := fmt.Sprintf("%s.actions[%s]", pkgField, action.Name)
		if action.Name == "" {
			return NewValidationError(pkgField+".actions", "action name is required", ErrMissingName)
		}
		if seen[action.Name] {
			return NewValidationError(field, "action declared more than once", ErrDuplicateName)
		}
		seen[action.Name] = true
		if err := CheckSequence(action); err != nil {
			return NewValidationError(field, err.Error(), ErrIllegalSequence)
		}
		for _, trigger := range action.Triggers {
			if err := checkTrigger(trigger); err != nil {
				return NewValidationError(fmt.Sprintf("%s.triggers[%s]", field, trigger.Name), err.Error(), ErrInvalidTrigger)
			}
		}
	}
	return nil
}

// CheckSequence rejects a sequence action that also carries attributes only
// meaningful for code actions. Non-sequence actions always pass.
func CheckSequence(action Action) error {
	if !action.IsSequence() {
		return nil
	}
	if action.Runtime != "" || action.Binary || action.Main != "" || action.Docker != "" {
		return errors.New("an action cannot be a sequence and also have the runtime, binary, or main attributes")
	}
	return nil
}

// CheckDefaultPackage rejects parameters, environment or annotations attached
// to the default package, including project-level ones that would be merged
// into it.
func CheckDefaultPackage(plan *Plan, pkg Package) error {
	if !pkg.IsDefault() {
		return nil
	}
	for _, m := range []map[string]any{plan.Parameters, plan.Environment, pkg.Parameters, pkg.Environment, pkg.Annotations} {
		if len(m) > 0 {
			return ErrDefaultPackageParams
		}
	}
	return nil
}

func checkTrigger(trigger Trigger) error {
	if trigger.Name == "" {
		return errors.New("trigger name is required")
	}
	if trigger.SourceType != SourceTypeScheduler {
		return fmt.Errorf("unsupported trigger source type %q", trigger.SourceType)
	}
	if trigger.Cron == "" {
		return errors.New("scheduler triggers require a cron expression")
	}
	return nil
}
