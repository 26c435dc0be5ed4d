// Package task defines the unit of work the pipe dispatches indirect
// objects to: a filter (only inspects matching objects) or a mutator
// (rewrites them), optionally chained to child tasks. Grounded on
// original_source/src/PDTask.c's PDTaskResult enum and parent/child
// unload semantics.
package task

import "github.com/benoitkugler/pdfpipe/object"

// Result reports what a task wants the pipe to do next with the object it
// was just handed.
type Result uint8

const (
	// Done means the task is finished with this object but stays
	// registered for future objects.
	Done Result = iota
	// SkipRest tells the pipe not to run any remaining tasks registered
	// for this same object.
	SkipRest
	// Unload tells the pipe to deregister this task (and its children, if
	// any) after this invocation.
	Unload
	// Failure signals a fatal error; the pipe aborts the mutation.
	Failure
)

// Func is the callback a Task wraps: given the object (already filter-
// matched, if the task has a filter), it returns what the pipe should do
// next.
type Func func(obj *object.Indirect) (Result, error)

// Filter decides whether a task's Func should run at all for a given
// object: dictionary key presence, type name, object-stream membership,
// etc.
type Filter func(obj *object.Indirect) bool

// Task is one registered unit of work. Tasks form a tree: a parent task
// that matches can chain into children that fire only once the parent has
// run, mirroring PDTask's nested-task chaining.
type Task struct {
	Name     string
	Filter   Filter
	Run      Func
	Children []*Task
}

// New creates an unconditional task (no filter: always runs).
func New(name string, run Func) *Task {
	return &Task{Name: name, Run: run}
}

// NewFiltered creates a task that only runs when filter(obj) is true.
func NewFiltered(name string, filter Filter, run Func) *Task {
	return &Task{Name: name, Filter: filter, Run: run}
}

// Chain registers a child task that fires immediately after t, only for
// objects t itself matched and ran against.
func (t *Task) Chain(child *Task) *Task {
	t.Children = append(t.Children, child)
	return t
}

// Matches reports whether t applies to obj.
func (t *Task) Matches(obj *object.Indirect) bool {
	return t.Filter == nil || t.Filter(obj)
}

// Dispatch runs t (and, if it doesn't signal SkipRest/Unload/Failure, its
// children) against obj, returning the aggregate result the pipe should
// act on.
func Dispatch(t *Task, obj *object.Indirect) (Result, error) {
	if !t.Matches(obj) {
		return Done, nil
	}
	res, err := t.Run(obj)
	if err != nil {
		return Failure, err
	}
	if res == SkipRest || res == Unload || res == Failure {
		return res, nil
	}
	for _, child := range t.Children {
		childRes, err := Dispatch(child, obj)
		if err != nil {
			return Failure, err
		}
		if childRes == Failure {
			return Failure, nil
		}
		if childRes == SkipRest {
			break
		}
	}
	return res, nil
}

// KeyFilter returns a Filter matching objects whose dictionary has key
// present (e.g. "/Type").
func KeyFilter(key string) Filter {
	return func(obj *object.Indirect) bool {
		_, ok := obj.GetDictionaryEntry(key)
		return ok
	}
}

// TypeFilter returns a Filter matching objects whose /Type name equals
// value.
func TypeFilter(value string) Filter {
	return func(obj *object.Indirect) bool {
		v, ok := obj.GetDictionaryEntry("Type")
		if !ok {
			return false
		}
		n, ok := v.(object.Name)
		return ok && string(n) == value
	}
}
