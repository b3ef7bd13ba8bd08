package script

import (
	"context"
	"strings"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// JSEvaluator runs classic scripts in a goja runtime. Every script of one
// document shares the runtime, so globals declared by one script are visible
// to the next. The only host objects are document.write, document.writeln and
// console.log.
type JSEvaluator struct {
	vm  *goja.Runtime
	doc Document
	log logrus.FieldLogger
}

func NewJSEvaluator(log logrus.FieldLogger) *JSEvaluator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &JSEvaluator{log: log}
}

func (e *JSEvaluator) runtime() (*goja.Runtime, error) {
	if e.vm != nil {
		return e.vm, nil
	}
	vm := goja.New()
	document := vm.NewObject()
	if err := document.Set("write", e.write("")); err != nil {
		return nil, errors.Wrap(err, "binding document.write")
	}
	if err := document.Set("writeln", e.write("\n")); err != nil {
		return nil, errors.Wrap(err, "binding document.writeln")
	}
	if err := vm.Set("document", document); err != nil {
		return nil, errors.Wrap(err, "binding document")
	}
	console := vm.NewObject()
	if err := console.Set("log", func(call goja.FunctionCall) goja.Value {
		e.log.WithField("message", joinArguments(call)).Debug("console.log")
		return goja.Undefined()
	}); err != nil {
		return nil, errors.Wrap(err, "binding console.log")
	}
	if err := vm.Set("console", console); err != nil {
		return nil, errors.Wrap(err, "binding console")
	}
	e.vm = vm
	return vm, nil
}

// write joins its arguments the way document.write does and hands the text to
// the document the running script belongs to.
func (e *JSEvaluator) write(suffix string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if e.doc != nil {
			e.doc.Write(joinArguments(call) + suffix)
		}
		return goja.Undefined()
	}
}

func joinArguments(call goja.FunctionCall) string {
	var sb strings.Builder
	for _, arg := range call.Arguments {
		sb.WriteString(arg.String())
	}
	return sb.String()
}

// Evaluate runs source with document bound to doc. Cancelling ctx interrupts
// a running script.
func (e *JSEvaluator) Evaluate(ctx context.Context, source string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "evaluating script")
	}
	vm, err := e.runtime()
	if err != nil {
		return err
	}

	prev := e.doc
	e.doc = doc
	defer func() { e.doc = prev }()

	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	if _, err := vm.RunString(source); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			vm.ClearInterrupt()
			return errors.Wrap(ctx.Err(), "evaluating script")
		}
		return errors.Wrap(err, "evaluating script")
	}
	return nil
}
