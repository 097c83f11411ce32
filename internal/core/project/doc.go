// Package project models a fully resolved deployment plan: packages, actions,
// web resources, sequences and trigger bindings, ready to be pushed to a
// namespace.
//
// This is part of the functional core. Parsing and validation are pure; the
// engine consumes a validated Plan and never mutates its packages.
//
//	plan, err := project.Parse(data)
//	if err != nil {
//	    return err
//	}
//	if err := project.Validate(plan); err != nil {
//	    return err
//	}
package project
