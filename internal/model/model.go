// Package model defines core data structures for railscope.
package model

import "sort"

// DeclKind indicates which kind of source unit a declaration came from.
type DeclKind string

const (
	ControllerKind DeclKind = "controller"
	ConcernKind    DeclKind = "concern"
	HelperKind     DeclKind = "helper"
)

// ActionKind identifies the callback registration that produced an ActionHook.
type ActionKind string

const (
	BeforeAction ActionKind = "before_action"
	AroundAction ActionKind = "around_action"
	RescueFrom   ActionKind = "rescue_from"
)

// Custom returns the ActionKind for a hook registered under a non-standard
// macro name such as after_action.
func Custom(name string) ActionKind {
	return ActionKind(name)
}

// IsCustom reports whether k is not one of the three standard hooks.
func (k ActionKind) IsCustom() bool {
	switch k {
	case BeforeAction, AroundAction, RescueFrom:
		return false
	}
	return true
}

// ActionHook is a before/around/rescue registration naming another method.
type ActionHook struct {
	Kind   ActionKind
	Target string
}

// Header is a single header access. Value is empty for reads.
type Header struct {
	Key   string
	Value string
}

// MethodCall is an outgoing call with its rendered argument list.
type MethodCall struct {
	Name string
	Args []string
}

// StringSet is an unordered set of strings.
type StringSet map[string]struct{}

// NewStringSet returns a set holding items.
func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

// Add inserts item into the set.
func (s StringSet) Add(item string) {
	s[item] = struct{}{}
}

// Has reports whether item is in the set.
func (s StringSet) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Union adds every item of other to s.
func (s StringSet) Union(other StringSet) {
	for item := range other {
		s[item] = struct{}{}
	}
}

// Clone returns a shallow copy of the set.
func (s StringSet) Clone() StringSet {
	c := make(StringSet, len(s))
	c.Union(s)
	return c
}

// Sorted returns the items in lexical order.
func (s StringSet) Sorted() []string {
	items := make([]string, 0, len(s))
	for item := range s {
		items = append(items, item)
	}
	sort.Strings(items)
	return items
}

// MethodProfile holds the facts recovered from one method body.
type MethodProfile struct {
	Name              string
	Args              []string
	Params            StringSet
	Headers           []Header
	InstanceVariables StringSet
	// LocalVariableReads counts re-reads of locals that were assigned first.
	LocalVariableReads map[string]int
	MethodCalls        []MethodCall
	// Renders is reserved; the analyzer does not populate it.
	Renders []string
}

// NewMethodProfile returns an empty profile with initialised collections.
func NewMethodProfile(name string, args []string) *MethodProfile {
	return &MethodProfile{
		Name:               name,
		Args:               args,
		Params:             StringSet{},
		InstanceVariables:  StringSet{},
		LocalVariableReads: map[string]int{},
	}
}

// Declaration is a Controller, Concern or HelperModule.
type Declaration interface {
	QualifiedName() string
	Kind() DeclKind
	MethodList() []MethodProfile
}

// Controller is a class-like declaration grouping HTTP endpoints.
type Controller struct {
	Name        string
	Parent      string
	Methods     []MethodProfile
	ActionHooks []ActionHook
	Includes    []string
	// Module is the enclosing module path, empty when there is none.
	Module string
}

func (c *Controller) QualifiedName() string       { return Qualify(c.Module, c.Name) }
func (c *Controller) Kind() DeclKind              { return ControllerKind }
func (c *Controller) MethodList() []MethodProfile { return c.Methods }

// Concern is a mixin that contributes methods and action hooks.
type Concern struct {
	Name        string
	Methods     []MethodProfile
	ActionHooks []ActionHook
}

func (c *Concern) QualifiedName() string       { return c.Name }
func (c *Concern) Kind() DeclKind              { return ConcernKind }
func (c *Concern) MethodList() []MethodProfile { return c.Methods }

// HelperModule is a mixin that contributes methods only.
type HelperModule struct {
	Name    string
	Methods []MethodProfile
}

func (h *HelperModule) QualifiedName() string       { return h.Name }
func (h *HelperModule) Kind() DeclKind              { return HelperKind }
func (h *HelperModule) MethodList() []MethodProfile { return h.Methods }

// Qualify joins a module path and a name with "::".
func Qualify(module, name string) string {
	switch {
	case module == "":
		return name
	case name == "":
		return module
	}
	return module + "::" + name
}

// Dependency is an edge in the declaration graph: Source inherits from or
// includes Target.
type Dependency struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Kind   string `json:"kind" yaml:"kind"`
}

// DeclarationInfo summarises one registered declaration for the report.
type DeclarationInfo struct {
	Name    string   `json:"name" yaml:"name"`
	Kind    DeclKind `json:"kind" yaml:"kind"`
	Methods int      `json:"methods" yaml:"methods"`
	Rank    float64  `json:"rank" yaml:"rank"`
}

// EndpointReport is the resolved interface of one routed action.
type EndpointReport struct {
	Request           string   `json:"request" yaml:"request"`
	Controller        string   `json:"controller" yaml:"controller"`
	Action            string   `json:"action" yaml:"action"`
	Params            []string `json:"params" yaml:"params"`
	Headers           []string `json:"headers,omitempty" yaml:"headers,omitempty"`
	InstanceVariables []string `json:"instance_variables,omitempty" yaml:"instance_variables,omitempty"`
	Response          []string `json:"response,omitempty" yaml:"response,omitempty"`
	Error             string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failure is a file that could not be classified, or a declaration that
// could not be resolved.
type Failure struct {
	File    string `json:"file" yaml:"file"`
	Line    int    `json:"line,omitempty" yaml:"line,omitempty"`
	Message string `json:"message" yaml:"message"`
}

// AppMap is the complete analysis of one application.
type AppMap struct {
	App          string            `json:"app" yaml:"app"`
	FilesScanned int               `json:"files_scanned" yaml:"files_scanned"`
	FilesFailed  int               `json:"files_failed" yaml:"files_failed"`
	Endpoints    []EndpointReport  `json:"endpoints" yaml:"endpoints"`
	Declarations []DeclarationInfo `json:"declarations" yaml:"declarations"`
	Dependencies []Dependency      `json:"dependencies" yaml:"dependencies"`
	Failures     []Failure         `json:"failures,omitempty" yaml:"failures,omitempty"`
	Warnings     []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}
