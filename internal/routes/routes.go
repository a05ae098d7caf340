// Package routes reads the route table printed by `rails routes`.
package routes

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/phobologic/railscope/internal/views"
)

// Method is an HTTP request method.
type Method string

const (
	Get     Method = "GET"
	Post    Method = "POST"
	Put     Method = "PUT"
	Patch   Method = "PATCH"
	Delete  Method = "DELETE"
	Options Method = "OPTIONS"
)

// ParseMethod converts a verb column entry to a Method.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToUpper(s)); m {
	case Get, Post, Put, Patch, Delete, Options:
		return m, nil
	}
	return "", fmt.Errorf("unknown request method %q", s)
}

// Request is one routed endpoint.
type Request struct {
	Method Method
	Prefix string
	URI    string
	// Controller is the route's controller path, e.g. "admin/users".
	Controller string
	Action     string
}

// ControllerName returns the qualified Ruby class name for the route's
// controller: "admin/users" becomes "Admin::UsersController".
func (r Request) ControllerName() string {
	parts := strings.Split(r.Controller, "/")
	for i, p := range parts {
		parts[i] = strcase.ToCamel(p)
	}
	return strings.Join(parts, "::") + "Controller"
}

// ID identifies the request in reports and errors. Requests without a
// route are named by controller#action.
func (r Request) ID() string {
	if r.Method == "" {
		return r.Controller + "#" + r.Action
	}
	return string(r.Method) + " " + r.URI
}

// ControllerPath is the inverse of ControllerName:
// "Admin::UsersController" becomes "admin/users".
func ControllerPath(className string) string {
	parts := strings.Split(strings.TrimSuffix(className, "Controller"), "::")
	for i, p := range parts {
		parts[i] = digitRe.ReplaceAllString(strcase.ToSnake(p), "$1")
	}
	return strings.Join(parts, "/")
}

// ForAction builds an unrouted request for controller#action.
func ForAction(className, action string) Request {
	return Request{Controller: ControllerPath(className), Action: action}
}

func (r Request) String() string { return r.ID() }

// View returns the template rendered for the request's action.
func (r Request) View(ix views.Index) (*views.View, bool) {
	return ix.Lookup(r.Controller, r.Action)
}

var (
	// controller#action, as printed in the last column.
	targetRe = regexp.MustCompile(`^([a-z0-9_]+(?:/[a-z0-9_]+)*)#([A-Za-z0-9_]+[!?]?)$`)
	formatRe = regexp.MustCompile(`\(\.:format\)$`)
	// strcase splits digits off ("v_1"); Rails keeps them attached.
	digitRe = regexp.MustCompile(`_([0-9])`)
)

// ParseError reports a malformed route line.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("routes line %d: %v: %s", e.Line, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse reads `rails routes` output. Lines that do not route to a
// controller action (headers, engine mounts, redirects) are skipped. A
// verb cell such as GET|POST yields one request per verb.
func Parse(r io.Reader) ([]Request, error) {
	var out []Request
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "Prefix ") || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		target := -1
		for i, f := range fields {
			if targetRe.MatchString(f) {
				target = i
				break
			}
		}
		if target < 2 {
			continue
		}

		m := targetRe.FindStringSubmatch(fields[target])
		uri := formatRe.ReplaceAllString(fields[target-1], "")
		prefix := ""
		if target >= 3 {
			prefix = fields[target-3]
		}

		for _, verb := range strings.Split(fields[target-2], "|") {
			method, err := ParseMethod(verb)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Text: line, Err: err}
			}
			out = append(out, Request{
				Method:     method,
				Prefix:     prefix,
				URI:        uri,
				Controller: m[1],
				Action:     m[2],
			})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading routes: %w", err)
	}
	return out, nil
}

// ParseFile reads a saved route table.
func ParseFile(path string) ([]Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reqs, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reqs, nil
}
