package osc

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// reservedChars may not appear in an address a method is registered under.
const reservedChars = "*?,[]{}# "

// Method is an interface for OSC Methods. A returned error is reported by the
// server and does not stop dispatch to other matching methods.
type Method interface {
	HandleMessage(msg *Message, from *Sender) error
}

// MethodFunc implements the Method interface. Type definition for an OSC Method function.
type MethodFunc func(msg *Message, from *Sender) error

// HandleMessage calls itself with the given OSC Message. Implements the Method interface.
func (f MethodFunc) HandleMessage(msg *Message, from *Sender) error {
	return f(msg, from)
}

type registration struct {
	method Method
}

// key identifies the method for de-duplication. Pointers and scalars compare by
// value; everything else is only equal to its own registration.
func (r *registration) key() interface{} {
	switch reflect.TypeOf(r.method).Kind() {
	case reflect.Ptr, reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return r.method
	}
	return r
}

// addressNode is one literal address part. Children are owned by their parent;
// order keeps child names in insertion order so matching is deterministic.
type addressNode struct {
	children map[string]*addressNode
	order    []string
	methods  []*registration
}

func (n *addressNode) child(name string) *addressNode {
	if c, ok := n.children[name]; ok {
		return c
	}
	if n.children == nil {
		n.children = make(map[string]*addressNode)
	}
	c := &addressNode{}
	n.children[name] = c
	n.order = append(n.order, name)
	return c
}

func (n *addressNode) removeChild(name string) {
	delete(n.children, name)
	for i, o := range n.order {
		if o == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

func (n *addressNode) empty() bool {
	return len(n.methods) == 0 && len(n.children) == 0
}

// AddressSpace holds the OSC methods of a server, organised as a tree of
// address parts. The zero value is ready to use and it is safe for concurrent use.
type AddressSpace struct {
	mu   sync.RWMutex
	root addressNode
}

// NewAddressSpace returns an empty AddressSpace.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{}
}

// validAddress checks that addr is absolute, with no empty parts.
func validAddress(addr string) error {
	if addr == "" || addr[0] != '/' {
		return fmt.Errorf("%w: %q must start with '/'", ErrInvalidAddress, addr)
	}
	if strings.IndexByte(addr, 0) >= 0 {
		return fmt.Errorf("%w: %q contains a NUL byte", ErrInvalidAddress, addr)
	}
	return nil
}

// splitLiteral validates a registration target and returns its parts.
func splitLiteral(addr string) ([]string, error) {
	if err := validAddress(addr); err != nil {
		return nil, err
	}
	if strings.ContainsAny(addr, reservedChars) {
		return nil, fmt.Errorf("%w: %q may not contain any characters in %q", ErrInvalidAddress, addr, reservedChars)
	}
	parts := strings.Split(addr[1:], "/")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: %q has an empty part", ErrInvalidAddress, addr)
		}
	}
	return parts, nil
}

// ValidateAddress reports whether addr can have methods registered at it: it
// must be absolute, with no empty parts and none of the pattern characters.
func ValidateAddress(addr string) error {
	_, err := splitLiteral(addr)
	return err
}

// AddMethod adds a new OSC Method for the given OSC Address. Several methods
// may share an address; they are called in the order they were added.
func (s *AddressSpace) AddMethod(addr string, method Method) error {
	if method == nil {
		return fmt.Errorf("osc: nil method for %s", addr)
	}
	parts, err := splitLiteral(addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := &s.root
	for _, p := range parts {
		n = n.child(p)
	}
	n.methods = append(n.methods, &registration{method: method})
	return nil
}

// AddMethodFunc allows you to just pass a MethodFunc.
func (s *AddressSpace) AddMethodFunc(addr string, method MethodFunc) error {
	if method == nil {
		return fmt.Errorf("osc: nil method for %s", addr)
	}
	return s.AddMethod(addr, method)
}

// RemoveMethod removes every method registered at addr and prunes the parts
// of the tree left empty. It reports whether anything was removed.
func (s *AddressSpace) RemoveMethod(addr string) bool {
	parts, err := splitLiteral(addr)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := make([]*addressNode, 0, len(parts)+1)
	n := &s.root
	path = append(path, n)
	for _, p := range parts {
		c, ok := n.children[p]
		if !ok {
			return false
		}
		n = c
		path = append(path, n)
	}
	if len(n.methods) == 0 {
		return false
	}
	n.methods = nil

	for i := len(parts) - 1; i >= 0; i-- {
		if !path[i+1].empty() {
			break
		}
		path[i].removeChild(parts[i])
	}
	return true
}

// Find returns the methods registered at exactly addr, without pattern matching.
func (s *AddressSpace) Find(addr string) []Method {
	parts, err := splitLiteral(addr)
	if err != nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := &s.root
	for _, p := range parts {
		c, ok := n.children[p]
		if !ok {
			return nil
		}
		n = c
	}
	return methodsOf(n.methods)
}

// Match returns the methods whose address matches the OSC address pattern,
// in the order they were first found. No match is not an error.
func (s *AddressSpace) Match(pattern string) ([]Method, error) {
	segs, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ms matchSet
	s.root.match(segs, &ms)
	return ms.methods, nil
}

type matchSet struct {
	seen    map[interface{}]struct{}
	methods []Method
}

func (ms *matchSet) add(regs []*registration) {
	for _, r := range regs {
		k := r.key()
		if _, dup := ms.seen[k]; dup {
			continue
		}
		if ms.seen == nil {
			ms.seen = make(map[interface{}]struct{})
		}
		ms.seen[k] = struct{}{}
		ms.methods = append(ms.methods, r.method)
	}
}

func (n *addressNode) match(segs []segment, ms *matchSet) {
	if len(segs) == 0 {
		ms.add(n.methods)
		return
	}
	seg, rest := segs[0], segs[1:]
	if seg.re == nil {
		if c, ok := n.children[seg.literal]; ok {
			c.match(rest, ms)
		}
		return
	}
	for _, name := range n.order {
		if seg.match(name) {
			n.children[name].match(rest, ms)
		}
	}
}

// Walk calls fn for every address that has methods, depth first, in the order
// the addresses were created. The tree must not be modified from fn.
// Walk stops at the first error fn returns.
func (s *AddressSpace) Walk(fn func(addr string, methods []Method) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.root.walk("", fn)
}

func (n *addressNode) walk(prefix string, fn func(string, []Method) error) error {
	if len(n.methods) > 0 {
		if err := fn(prefix, methodsOf(n.methods)); err != nil {
			return err
		}
	}
	for _, name := range n.order {
		if err := n.children[name].walk(prefix+"/"+name, fn); err != nil {
			return err
		}
	}
	return nil
}

func methodsOf(regs []*registration) []Method {
	if len(regs) == 0 {
		return nil
	}
	out := make([]Method, len(regs))
	for i, r := range regs {
		out[i] = r.method
	}
	return out
}
