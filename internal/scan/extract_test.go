package scan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cerberusindex/cerberus/internal/store"
)

func parseAndExtract(t *testing.T, source, language, path string) *Record {
	t.Helper()
	p := NewParser()
	defer p.Close()

	tree, err := p.Parse(context.Background(), []byte(source), language)
	require.NoError(t, err)
	return Extract(tree, path)
}

func findSymbol(rec *Record, name string) *store.Symbol {
	for _, sym := range rec.FileRecord.Symbols {
		if sym.Name == name {
			return sym
		}
	}
	return nil
}

func TestExtractPythonFunction(t *testing.T) {
	source := `import os


def hello(name):
    """Say hello."""
    return "hello " + name
`
	rec := parseAndExtract(t, source, LangPython, "app.py")

	sym := findSymbol(rec, "hello")
	require.NotNil(t, sym)
	assert.Equal(t, store.SymbolFunction, sym.Type)
	assert.Equal(t, 4, sym.StartLine)
	assert.Equal(t, 6, sym.EndLine)
	assert.True(t, len(sym.Signature) >= 9 && sym.Signature[:9] == "def hello", sym.Signature)
	assert.Equal(t, "Say hello.", sym.Docstring)
	assert.Empty(t, sym.ParentClass)
}

func TestExtractPythonClassAndMethods(t *testing.T) {
	source := `class Animal:
    def speak(self):
        pass


class Dog(Animal):
    """A dog."""

    def speak(self):
        self.bark()

    def bark(self):
        pass
`
	rec := parseAndExtract(t, source, LangPython, "zoo.py")

	dog := findSymbol(rec, "Dog")
	require.NotNil(t, dog)
	assert.Equal(t, store.SymbolClass, dog.Type)
	assert.Equal(t, "A dog.", dog.Docstring)

	var methods []*store.Symbol
	for _, sym := range rec.FileRecord.Symbols {
		if sym.Type == store.SymbolMethod && sym.ParentClass == "Dog" {
			methods = append(methods, sym)
		}
	}
	require.Len(t, methods, 2)

	// Inheritance edge Dog -> Animal, unresolved target file.
	require.Len(t, rec.References, 1)
	ref := rec.References[0]
	assert.Equal(t, store.RefInherits, ref.ReferenceType)
	assert.Equal(t, "Dog", ref.SourceSymbol)
	require.NotNil(t, ref.TargetSymbol)
	assert.Equal(t, "Animal", *ref.TargetSymbol)
	assert.Nil(t, ref.TargetFile)

	// self.bark() resolves its receiver type in-extraction.
	var selfCall *store.MethodCall
	for _, mc := range rec.FileRecord.MethodCalls {
		if mc.Method == "bark" {
			selfCall = mc
		}
	}
	require.NotNil(t, selfCall)
	require.NotNil(t, selfCall.ReceiverType)
	assert.Equal(t, "Dog", *selfCall.ReceiverType)
}

func TestExtractPythonImportsAndCalls(t *testing.T) {
	source := `import os.path
from collections import OrderedDict, defaultdict

d = OrderedDict()
os.remove("x")
print(len(d))
`
	rec := parseAndExtract(t, source, LangPython, "main.py")

	require.Len(t, rec.FileRecord.Imports, 2)
	assert.Equal(t, "os.path", rec.FileRecord.Imports[0].ImportedModule)
	assert.Equal(t, "collections", rec.FileRecord.Imports[1].ImportedModule)
	assert.ElementsMatch(t, []string{"OrderedDict", "defaultdict"}, rec.FileRecord.Imports[1].ImportedSymbols)

	var callees []string
	for _, c := range rec.FileRecord.Calls {
		callees = append(callees, c.Callee)
	}
	assert.Contains(t, callees, "print")
	assert.Contains(t, callees, "len")
	assert.Contains(t, callees, "OrderedDict")

	var receivers []string
	for _, mc := range rec.FileRecord.MethodCalls {
		receivers = append(receivers, mc.Receiver+"."+mc.Method)
	}
	assert.Contains(t, receivers, "os.remove")

	// d = OrderedDict() is an instantiation binding.
	require.NotEmpty(t, rec.FileRecord.TypeInfos)
	assert.Equal(t, "d", rec.FileRecord.TypeInfos[0].Variable)
	assert.Equal(t, "OrderedDict", rec.FileRecord.TypeInfos[0].TypeName)

	// Module-level assignment is a variable symbol.
	d := findSymbol(rec, "d")
	require.NotNil(t, d)
	assert.Equal(t, store.SymbolVariable, d.Type)
}

func TestExtractPythonAnnotation(t *testing.T) {
	source := `from typing import Optional

count: int = 0
`
	rec := parseAndExtract(t, source, LangPython, "m.py")
	require.NotEmpty(t, rec.FileRecord.TypeInfos)
	assert.Equal(t, "count", rec.FileRecord.TypeInfos[0].Variable)
	assert.Equal(t, "int", rec.FileRecord.TypeInfos[0].TypeName)
}

func TestExtractGo(t *testing.T) {
	source := `package server

import (
	"fmt"
)

type Handler struct {
	Base
	name string
}

type Speaker interface {
	Speak() string
}

func New(name string) *Handler {
	h := NewHandler(name)
	return h
}

func (h *Handler) Speak() string {
	fmt.Println(h.name)
	return h.format()
}
`
	rec := parseAndExtract(t, source, LangGo, "server/handler.go")

	handler := findSymbol(rec, "Handler")
	require.NotNil(t, handler)
	assert.Equal(t, store.SymbolClass, handler.Type)

	speaker := findSymbol(rec, "Speaker")
	require.NotNil(t, speaker)
	assert.Equal(t, store.SymbolInterface, speaker.Type)

	speak := findSymbol(rec, "Speak")
	require.NotNil(t, speak)
	assert.Equal(t, store.SymbolMethod, speak.Type)
	assert.Equal(t, "Handler", speak.ParentClass)

	newFn := findSymbol(rec, "New")
	require.NotNil(t, newFn)
	assert.Equal(t, store.SymbolFunction, newFn.Type)

	require.Len(t, rec.FileRecord.Imports, 1)
	assert.Equal(t, "fmt", rec.FileRecord.Imports[0].ImportedModule)

	// Embedded Base field becomes an inheritance edge.
	require.NotEmpty(t, rec.References)
	assert.Equal(t, "Handler", rec.References[0].SourceSymbol)
	assert.Equal(t, "Base", *rec.References[0].TargetSymbol)
}

func TestExtractJavaScript(t *testing.T) {
	source := `import { greet } from "./greet";

class Dog extends Animal {
  bark() {
    return greet("woof");
  }
}

const shout = (s) => s.toUpperCase();

function main() {
  const d = new Dog();
  d.bark();
}
`
	rec := parseAndExtract(t, source, LangJavaScript, "dog.js")

	dog := findSymbol(rec, "Dog")
	require.NotNil(t, dog)
	assert.Equal(t, store.SymbolClass, dog.Type)

	bark := findSymbol(rec, "bark")
	require.NotNil(t, bark)
	assert.Equal(t, store.SymbolMethod, bark.Type)
	assert.Equal(t, "Dog", bark.ParentClass)

	shout := findSymbol(rec, "shout")
	require.NotNil(t, shout)
	assert.Equal(t, store.SymbolFunction, shout.Type)

	require.NotEmpty(t, rec.References)
	assert.Equal(t, "Animal", *rec.References[0].TargetSymbol)

	require.Len(t, rec.FileRecord.Imports, 1)
	assert.Equal(t, "./greet", rec.FileRecord.Imports[0].ImportedModule)
	assert.Contains(t, rec.FileRecord.Imports[0].ImportedSymbols, "greet")
}

func TestSymbolsSortedByLine(t *testing.T) {
	source := `def b():
    pass


def a():
    pass
`
	rec := parseAndExtract(t, source, LangPython, "s.py")
	require.Len(t, rec.FileRecord.Symbols, 2)
	assert.Equal(t, "b", rec.FileRecord.Symbols[0].Name)
	assert.Equal(t, "a", rec.FileRecord.Symbols[1].Name)
	for _, sym := range rec.FileRecord.Symbols {
		assert.LessOrEqual(t, sym.StartLine, sym.EndLine)
	}
}
