// Package sandbox runs a project's scripts headlessly to surface console
// output and runtime errors without a browser. Each preview refresh gets a
// fresh Context with its own JavaScript runtime; nothing leaks from one run
// into the next. The runtime sees a small browser-shaped environment, the
// same console bridge and GameKit runtime a real preview gets, and a wall
// clock budget that interrupts runaway scripts.
package sandbox

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"

	"gamesmith/studio/internal/logging"
	"gamesmith/studio/internal/project"
)

// DefaultBudget bounds one diagnostics pass.
const DefaultBudget = 3 * time.Second

// Event is one validated console message from the running project.
type Event struct {
	Type    string  `json:"type"`
	Payload Payload `json:"payload"`
}

type Payload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

var validLevels = map[string]bool{"log": true, "info": true, "warn": true, "error": true}

// Options configures a Context. OnEvent is invoked on the runtime goroutine;
// receivers must not block.
type Options struct {
	Budget  time.Duration
	OnEvent func(Event)
	Logger  *slog.Logger
}

type Context struct {
	loop    *eventloop.EventLoop
	vm      *goja.Runtime
	budget  time.Duration
	onEvent func(Event)
	logger  *slog.Logger

	timer    *time.Timer
	stopOnce sync.Once
	done     chan struct{}
}

var errHalted = errors.New("sandbox halted")

// NewContext builds an isolated runtime. The caller must Close it; a Context
// is single use and serves exactly one Run.
func NewContext(opts Options) *Context {
	if opts.Budget <= 0 {
		opts.Budget = DefaultBudget
	}
	if opts.OnEvent == nil {
		opts.OnEvent = func(Event) {}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	registry := require.NewRegistry(require.WithLoader(func(path string) ([]byte, error) {
		return nil, errors.New("module loading is disabled")
	}))
	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(registry),
		eventloop.EnableConsole(false),
	)

	c := &Context{
		loop:    loop,
		budget:  opts.Budget,
		onEvent: opts.OnEvent,
		logger:  opts.Logger,
		done:    make(chan struct{}),
	}

	loop.Start()
	ready := make(chan struct{})
	loop.RunOnLoop(func(vm *goja.Runtime) {
		c.vm = vm
		c.bind(vm)
		close(ready)
	})
	<-ready

	return c
}

// bind installs the console sink the prelude routes through. Everything
// arriving here is checked before it becomes an Event: unknown levels and
// non-string messages are dropped, not repaired.
func (c *Context) bind(vm *goja.Runtime) {
	vm.Set("__consoleSink", func(level string, message goja.Value) {
		if !validLevels[level] {
			c.logger.Warn("sandbox.event_dropped", "reason", "invalid_level", "level", level)
			return
		}
		text, ok := exportString(message)
		if !ok {
			c.logger.Warn("sandbox.event_dropped", "reason", "non_string_message", "level", level)
			return
		}
		c.onEvent(Event{Type: "console", Payload: Payload{Type: level, Message: text}})
	})
}

func exportString(v goja.Value) (string, bool) {
	if v == nil {
		return "", false
	}
	s, ok := v.Export().(string)
	return s, ok
}

// Run executes the project's scripts in document order. It returns once the
// scripts are scheduled; console events arrive asynchronously until the
// budget expires or the Context is closed.
func (c *Context) Run(entry string, files map[string]string) error {
	doc := parseEntry(entry)

	c.timer = time.AfterFunc(c.budget, func() {
		c.logger.Debug("sandbox.budget_expired", "budget_ms", c.budget.Milliseconds())
		c.halt()
	})

	ok := c.loop.RunOnLoop(func(vm *goja.Runtime) {
		c.execute(vm, doc, files)
	})
	if !ok {
		return errors.New("sandbox context is closed")
	}
	return nil
}

func (c *Context) execute(vm *goja.Runtime, doc entryDocument, files map[string]string) {
	norm := make(map[string]string, len(files))
	for p, content := range files {
		norm[project.NormalizePath(p)] = content
	}

	if _, err := vm.RunProgram(preludeProgram); err != nil {
		c.logger.Error("sandbox.prelude_failed", "error", err.Error())
		return
	}

	assets := vm.NewObject()
	for p := range norm {
		assets.Set(p, p)
	}
	vm.Set("__GAMESMITH_ASSETS__", assets)

	if _, err := vm.RunProgram(interceptorProgram); err != nil {
		c.logger.Error("sandbox.interceptor_failed", "error", err.Error())
		return
	}
	if _, err := vm.RunProgram(gamekitProgram); err != nil {
		c.logger.Error("sandbox.gamekit_failed", "error", err.Error())
		return
	}

	link := newLinker(vm, norm, doc.importMap)
	for _, script := range doc.scripts {
		if script.externalURL != "" {
			c.emitInfo("skipped external script " + script.externalURL)
			continue
		}
		if !c.runScript(vm, link, script) {
			return
		}
	}
}

// runScript evaluates one script and reports failures as console errors.
// Returns false only when the runtime was interrupted, which ends the pass.
func (c *Context) runScript(vm *goja.Runtime, link *linker, script docScript) bool {
	name := script.src
	if name == "" {
		name = "inline script"
	}

	var err error
	switch script.kind {
	case scriptModule:
		err = c.runModule(link, script)
	default:
		code := script.code
		if script.src != "" {
			var ok bool
			code, ok = link.files[script.src]
			if !ok {
				c.emitError("Cannot load script '" + script.src + "'")
				return true
			}
		}
		_, err = vm.RunScript(name, code)
	}
	if err == nil {
		return true
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return false
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		c.emitError(exception.String())
		return true
	}
	c.emitError(name + ": " + err.Error())
	return true
}

func (c *Context) runModule(link *linker, script docScript) error {
	entry := link.entry(script)

	switch verdict, spec := link.scan(entry); verdict {
	case treeExternal:
		c.emitInfo("module imports external package '" + spec + "'; skipped in headless run")
		return nil
	case treeUnresolved:
		c.emitError("Cannot resolve module '" + spec + "'")
		return nil
	}

	_, err := link.load(entry)
	return err
}

func (c *Context) emitInfo(message string) {
	c.onEvent(Event{Type: "console", Payload: Payload{Type: "info", Message: message}})
}

func (c *Context) emitError(message string) {
	c.onEvent(Event{Type: "console", Payload: Payload{Type: "error", Message: message}})
}

// halt interrupts running code and stops the loop. Used by both the budget
// timer and Close, exactly once.
func (c *Context) halt() {
	c.stopOnce.Do(func() {
		if c.timer != nil {
			c.timer.Stop()
		}
		if c.vm != nil {
			c.vm.Interrupt(errHalted)
		}
		c.loop.Stop()
		close(c.done)
	})
}

// Close tears the runtime down. Safe to call more than once and after the
// budget already ended the pass.
func (c *Context) Close() {
	c.halt()
}

// Done closes when the pass has ended, by budget, by Close, or both.
func (c *Context) Done() <-chan struct{} {
	return c.done
}
