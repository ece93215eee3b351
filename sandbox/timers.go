package sandbox

import (
	"github.com/dop251/goja"
)

type timerKind int

const (
	kindTimeout timerKind = iota
	kindInterval
)

func (p *Page) installTimers(vm *goja.Runtime) {
	_ = vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		return p.setTimer(vm, call, "setTimeout", kindTimeout)
	})
	_ = vm.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		return p.setTimer(vm, call, "setInterval", kindInterval)
	})
	clearFn := func(call goja.FunctionCall) goja.Value {
		p.clearTimer(uint64(call.Argument(0).ToInteger()))
		return goja.Undefined()
	}
	_ = vm.Set("clearTimeout", clearFn)
	_ = vm.Set("clearInterval", clearFn)

	_ = vm.Set("queueMicrotask", func(call goja.FunctionCall) goja.Value {
		fn := requireFunc(vm, call, "queueMicrotask")
		gen := p.gen
		err := p.js.QueueMicrotask(func() {
			if p.gen == gen {
				p.call(vm, fn)
			}
		})
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	})
}

func requireFunc(vm *goja.Runtime, call goja.FunctionCall, name string) goja.Callable {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(vm.NewTypeError(name + " requires a function as first argument"))
	}
	return fn
}

func (p *Page) setTimer(vm *goja.Runtime, call goja.FunctionCall, name string, kind timerKind) goja.Value {
	fn := requireFunc(vm, call, name)

	// Negative delays are clamped to 0.
	delayMs := max(int(call.Argument(1).ToInteger()), 0)
	gen := p.gen

	var id uint64
	fire := func() {
		if p.gen != gen {
			return
		}
		if kind != kindInterval {
			delete(p.timers, id)
		}
		p.call(vm, fn)
	}

	var err error
	if kind == kindInterval {
		id, err = p.js.SetInterval(fire, delayMs)
	} else {
		id, err = p.js.SetTimeout(fire, delayMs)
	}
	if err != nil {
		panic(vm.NewGoError(err))
	}
	p.timers[id] = kind

	return vm.ToValue(float64(id))
}

// clearTimer cancels a timer. Unknown ids are ignored.
func (p *Page) clearTimer(id uint64) {
	kind, ok := p.timers[id]
	if !ok {
		return
	}
	delete(p.timers, id)
	if kind == kindInterval {
		_ = p.js.ClearInterval(id)
		return
	}
	_ = p.js.ClearTimeout(id)
}

func (p *Page) clearTimers() {
	for id := range p.timers {
		p.clearTimer(id)
	}
}

// PendingTimers returns the number of scheduled timers.
func (p *Page) PendingTimers() int {
	return len(p.timers)
}
