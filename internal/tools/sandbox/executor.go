// Package sandbox runs tool bodies in a restricted Go interpreter.
//
// A tool body is a Go source file in package main declaring
//
//	func Execute(args map[string]any, caps *host.Capabilities) (any, error)
//
// It may import a whitelisted set of standard-library packages and
// "charlotte/host". The interpreter has no filesystem, no environment and
// no access to os, net, syscall, unsafe or reflect.
package sandbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/tools/sandbox/host"
)

// DefaultPackages are the standard-library packages a tool body may import.
var DefaultPackages = []string{
	"bytes",
	"encoding/base64",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"regexp",
	"slices",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
	"unicode/utf8",
}

// forbiddenPackages can never be allowed, with or without their subpackages.
var forbiddenPackages = []string{
	"debug",
	"embed",
	"io/fs",
	"io/ioutil",
	"log/syslog",
	"net",
	"os",
	"path/filepath",
	"plugin",
	"reflect",
	"runtime",
	"syscall",
	"unsafe",
}

func isForbidden(path string) bool {
	for _, f := range forbiddenPackages {
		if path == f || strings.HasPrefix(path, f+"/") {
			return true
		}
	}
	return false
}

// ExecuteFunc is the signature a tool body must declare as Execute.
type ExecuteFunc = func(args map[string]any, caps *host.Capabilities) (any, error)

// Config configures an Executor.
type Config struct {
	// Timeout bounds a single run.
	Timeout time.Duration

	// Packages overrides DefaultPackages.
	Packages []string

	// CacheSize caps the number of compiled bodies kept.
	CacheSize int
}

// Option configures an Executor.
type Option func(*Config)

// WithTimeout sets the per-run deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithPackages sets the importable standard-library packages.
func WithPackages(pkgs []string) Option {
	return func(c *Config) { c.Packages = pkgs }
}

// WithCacheSize sets the compiled-program cache size.
func WithCacheSize(n int) Option {
	return func(c *Config) { c.CacheSize = n }
}

// program is a checked tool body. Every run compiles it into a fresh
// interpreter so a cancelled run can be stopped without affecting others.
type program struct {
	src string
	// runnerAt is the offset just past the package clause.
	runnerAt int
}

// Executor compiles and runs tool bodies.
type Executor struct {
	cfg     Config
	allowed map[string]bool
	symbols interp.Exports
	deps    host.Dependencies
	logger  *slog.Logger

	mu       sync.Mutex
	programs map[string]*program
	order    []string
}

// NewExecutor creates an executor whose tool bodies see deps through
// host.Capabilities.
func NewExecutor(deps host.Dependencies, opts ...Option) (*Executor, error) {
	cfg := Config{
		Timeout:   10 * time.Second,
		Packages:  DefaultPackages,
		CacheSize: 128,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("sandbox: timeout must be positive")
	}
	if len(cfg.Packages) == 0 {
		cfg.Packages = DefaultPackages
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1
	}

	allowed := make(map[string]bool, len(cfg.Packages))
	for _, pkg := range cfg.Packages {
		if isForbidden(pkg) {
			return nil, fmt.Errorf("sandbox: package %q cannot be allowed", pkg)
		}
		allowed[pkg] = true
	}
	symbols := interp.Exports{}
	for key, syms := range stdlib.Symbols {
		// Keys are "importpath/name" except ".", which holds type mappings
		// rather than a package.
		if key == "." {
			symbols[key] = syms
			continue
		}
		if i := strings.LastIndex(key, "/"); i > 0 && allowed[key[:i]] {
			symbols[key] = syms
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	deps.Logger = logger
	return &Executor{
		cfg:      cfg,
		allowed:  allowed,
		symbols:  symbols,
		deps:     deps,
		logger:   logger.With("component", "sandbox"),
		programs: make(map[string]*program),
	}, nil
}

// Check compiles body without running it. Errors are errdefs.ErrInvalid.
func (e *Executor) Check(body string) error {
	_, err := e.program(body)
	return err
}

// Run executes body's Execute function with args. Compile errors, errors
// returned by the body, panics and timeouts are all reported as
// errdefs.ErrSandboxFault. A run that outlives its deadline is interrupted.
func (e *Executor) Run(ctx context.Context, tool, body string, args map[string]any) (any, error) {
	prog, err := e.program(body)
	if err != nil {
		return nil, errdefs.Sandbox(tool, err)
	}
	if args == nil {
		args = map[string]any{}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	caps := host.New(ctx, tool, e.deps)

	var (
		value  any
		runErr error
		output syncBuffer
	)
	call := interp.Exports{
		callPath + "/" + callName: {
			"Args":   reflect.ValueOf(func() map[string]any { return args }),
			"Caps":   reflect.ValueOf(func() *host.Capabilities { return caps }),
			"Return": reflect.ValueOf(func(v any, err error) { value, runErr = v, err }),
		},
	}
	i, err := e.interpreter(&output, call)
	if err != nil {
		return nil, errdefs.Sandbox(tool, err)
	}
	if _, err := i.Eval(prog.withRunner()); err != nil {
		return nil, errdefs.Sandbox(tool, fmt.Errorf("compile: %w", err))
	}

	_, err = i.EvalWithContext(ctx, "main."+runnerFunc+"()")
	e.logOutput(ctx, tool, &output)
	var p interp.Panic
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, errdefs.Sandbox(tool, fmt.Errorf("execution stopped after %s: %w", e.cfg.Timeout, ctx.Err()))
	case errors.As(err, &p):
		return nil, errdefs.Sandbox(tool, fmt.Errorf("panic: %v", p.Value))
	case err != nil:
		return nil, errdefs.Sandbox(tool, err)
	case runErr != nil:
		return nil, errdefs.Sandbox(tool, runErr)
	}
	return value, nil
}

const (
	callPath   = "charlotte/call"
	callName   = "sandboxcall"
	runnerFunc = "sandboxRun"
)

// withRunner returns the source with an entry point that feeds the run's
// arguments to Execute and hands its results back through sandboxcall.
func (p *program) withRunner() string {
	var b strings.Builder
	b.WriteString(p.src[:p.runnerAt])
	b.WriteString("\n\nimport " + callName + " " + strconv.Quote(callPath) + "\n")
	b.WriteString(p.src[p.runnerAt:])
	b.WriteString("\n\nfunc " + runnerFunc + "() {\n\tv, err := Execute(" + callName + ".Args(), " + callName + ".Caps())\n\t" + callName + ".Return(v, err)\n}\n")
	return b.String()
}

func (e *Executor) logOutput(ctx context.Context, tool string, output *syncBuffer) {
	if out := output.drain(); out != "" {
		e.logger.DebugContext(ctx, "tool output", "tool", tool, "output", out)
	}
}

func bodyKey(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

func (e *Executor) program(body string) (*program, error) {
	key := bodyKey(body)
	e.mu.Lock()
	if p, ok := e.programs[key]; ok {
		e.mu.Unlock()
		return p, nil
	}
	e.mu.Unlock()

	p, err := e.compile(body)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.programs[key]; ok {
		return existing, nil
	}
	for len(e.order) >= e.cfg.CacheSize {
		delete(e.programs, e.order[0])
		e.order = e.order[1:]
	}
	e.programs[key] = p
	e.order = append(e.order, key)
	return p, nil
}

func (e *Executor) interpreter(output *syncBuffer, extra ...interp.Exports) (*interp.Interpreter, error) {
	i := interp.New(interp.Options{
		Stdin:                strings.NewReader(""),
		Stdout:               output,
		Stderr:               output,
		Env:                  []string{},
		SourcecodeFilesystem: emptyFS{},
	})
	if err := i.Use(e.symbols); err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}
	if err := i.Use(host.Symbols); err != nil {
		return nil, fmt.Errorf("load host package: %w", err)
	}
	for _, x := range extra {
		if err := i.Use(x); err != nil {
			return nil, fmt.Errorf("load call package: %w", err)
		}
	}
	return i, nil
}

// compile checks body and verifies that it declares Execute with the
// expected signature.
func (e *Executor) compile(body string) (*program, error) {
	p, err := e.checkSource(body)
	if err != nil {
		return nil, err
	}

	i, err := e.interpreter(&syncBuffer{})
	if err != nil {
		return nil, err
	}
	if _, err := i.Eval(p.src); err != nil {
		return nil, errdefs.Invalid("tool body does not compile: %v", err)
	}
	v, err := i.Eval("main.Execute")
	if err != nil {
		return nil, errdefs.Invalid("tool body must declare func Execute(args map[string]any, caps *host.Capabilities) (any, error)")
	}
	if _, ok := v.Interface().(ExecuteFunc); !ok {
		return nil, errdefs.Invalid("Execute has signature %s, want func(map[string]any, *host.Capabilities) (any, error)", v.Type())
	}
	return p, nil
}

// checkSource parses body, adding a package clause when it has none, and
// rejects imports outside the allowed set.
func (e *Executor) checkSource(body string) (*program, error) {
	if strings.TrimSpace(body) == "" {
		return nil, errdefs.Invalid("tool body is empty")
	}
	src := body
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "tool.go", src, parser.ImportsOnly)
	if err != nil {
		src = "package main\n\n" + body
		file, err = parser.ParseFile(fset, "tool.go", src, parser.ImportsOnly)
		if err != nil {
			return nil, errdefs.Invalid("tool body does not parse: %v", err)
		}
	}
	if file.Name.Name != "main" {
		return nil, errdefs.Invalid("tool body must be package main, not %s", file.Name.Name)
	}
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return nil, errdefs.Invalid("bad import %s", imp.Path.Value)
		}
		switch {
		case path == host.ImportPath || e.allowed[path]:
		case isForbidden(path):
			return nil, errdefs.Invalid("import %q is not permitted in tool bodies", path)
		default:
			return nil, errdefs.Invalid("import %q is not available in tool bodies", path)
		}
	}
	return &program{src: src, runnerAt: fset.Position(file.Name.End()).Offset}, nil
}

// emptyFS is the interpreter's source filesystem: nothing to import from.
type emptyFS struct{}

func (emptyFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) drain() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	b.buf.Reset()
	return s
}
