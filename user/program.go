// Package user is the library user programs are written against: program
// images, the registry the hart decodes entry stubs through, and Env, a
// thread's view of the machine with its system call wrappers.
package user

import (
	"debug/elf"
	"fmt"
	"sort"
	"strings"

	"github.com/mit-pdos/ezos/elfimg"
	"github.com/mit-pdos/ezos/mm"
	"github.com/mit-pdos/ezos/riscv"
	"github.com/mit-pdos/ezos/trap"
	"github.com/mit-pdos/ezos/util"
)

// TextBase is where every program's text segment is loaded.
const TextBase uint64 = 0x10000

// Func is user code. Its result is the thread's exit code.
type Func func(e *Env) int

// Program is a user program: main plus named functions that threads and
// forked children start in.
type Program struct {
	Name  string
	Main  Func
	Funcs map[string]Func
}

// symbols lists the text layout: main first, then the other functions by
// name.
func (p *Program) symbols() []string {
	names := make([]string, 0, len(p.Funcs))
	for n := range p.Funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return append([]string{"main"}, names...)
}

func (p *Program) lookup(name string) (Func, bool) {
	if name == "main" {
		return p.Main, p.Main != nil
	}
	f, ok := p.Funcs[name]
	return f, ok
}

// FuncAddr is the address of name's entry stub.
func (p *Program) FuncAddr(name string) uint64 {
	for i, n := range p.symbols() {
		if n == name {
			return TextBase + uint64(i)*riscv.StubSize
		}
	}
	panic(fmt.Sprintf("%s: no function %q", p.Name, name))
}

func (p *Program) textSize() uint64 {
	return uint64(len(p.symbols())) * riscv.StubSize
}

// DataAddr is the program's page of zeroed read-write data.
func (p *Program) DataAddr() uint64 {
	return util.RoundUp(TextBase+p.textSize(), mm.PageSize) * mm.PageSize
}

// Image builds p's executable: a read-execute text segment of stubs and one
// read-write data page.
func Image(p *Program) []byte {
	var text []byte
	for _, n := range p.symbols() {
		text = append(text, riscv.EncodeStub(p.Name+"."+n)...)
	}
	return elfimg.Build(TextBase, []elfimg.Segment{
		{Vaddr: TextBase, Flags: elf.PF_R | elf.PF_X, Data: text},
		{Vaddr: p.DataAddr(), Flags: elf.PF_R | elf.PF_W, Memsz: mm.PageSize},
	})
}

// Registry maps stub names to program code.
type Registry struct {
	progs map[string]*Program
}

func NewRegistry(progs ...*Program) *Registry {
	r := &Registry{progs: make(map[string]*Program)}
	for _, p := range progs {
		r.Add(p)
	}
	return r
}

func (r *Registry) Add(p *Program) {
	if _, ok := r.progs[p.Name]; ok {
		panic(fmt.Sprintf("registry: duplicate program %s", p.Name))
	}
	r.progs[p.Name] = p
}

func (r *Registry) Program(name string) (*Program, bool) {
	p, ok := r.progs[name]
	return p, ok
}

// Programs returns the registered programs by name.
func (r *Registry) Programs() []*Program {
	ps := make([]*Program, 0, len(r.progs))
	for _, p := range r.progs {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
	return ps
}

// Lookup resolves "program.function" to code that runs the function as
// the current thread and exits with its result.
func (r *Registry) Lookup(sym string) (func(*trap.Machine), bool) {
	i := strings.LastIndexByte(sym, '.')
	if i < 0 {
		return nil, false
	}
	p, ok := r.progs[sym[:i]]
	if !ok {
		return nil, false
	}
	name := sym[i+1:]
	f, ok := p.lookup(name)
	if !ok {
		return nil, false
	}
	return func(m *trap.Machine) {
		e := newEnv(m, p, p.FuncAddr(name))
		e.Exit(f(e))
	}, true
}
