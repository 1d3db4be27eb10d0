package concurrency

import (
	"iter"
	"strconv"
)

// Scope is a value owned by the single goroutine it is handed to.
type Scope[S any] struct {
	Value *S
	name  string
}

func (s *Scope[S]) Name() string {
	return s.name
}

// Scopes keep the order they were named in.
type Scopes[S any] struct {
	ordered []*Scope[S]
	byName  map[string]*Scope[S]
}

// GenerateScopeIds names n scopes prefix-0 up to prefix-(n-1).
func GenerateScopeIds(prefix string, n int) []string {
	ids := make([]string, max(n, 0))
	for i := range ids {
		ids[i] = prefix + "-" + strconv.Itoa(i)
	}
	return ids
}

// NewScopes creates one value per distinct name.
func NewScopes[S any](names []string, createScope func() *S) *Scopes[S] {
	scopes := &Scopes[S]{
		ordered: make([]*Scope[S], 0, len(names)),
		byName:  make(map[string]*Scope[S], len(names)),
	}
	for _, name := range names {
		if _, found := scopes.byName[name]; found {
			continue
		}
		scope := &Scope[S]{Value: createScope(), name: name}
		scopes.ordered = append(scopes.ordered, scope)
		scopes.byName[name] = scope
	}
	return scopes
}

func (s *Scopes[S]) Len() int {
	return len(s.ordered)
}

func (s *Scopes[S]) Get(name string) (*Scope[S], bool) {
	scope, found := s.byName[name]
	return scope, found
}

func (s *Scopes[S]) ForEachScope() iter.Seq2[string, *Scope[S]] {
	return func(yield func(string, *Scope[S]) bool) {
		for _, scope := range s.ordered {
			if !yield(scope.name, scope) {
				return
			}
		}
	}
}
