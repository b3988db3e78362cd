package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alok/autoflake/pkg/parser"
	"github.com/Alok/autoflake/pkg/scope"
)

func graph(t *testing.T, src string) *scope.Graph {
	t.Helper()
	p := parser.New()
	defer p.Close()

	result, err := p.Parse(context.Background(), []byte(src))
	require.NoError(t, err)
	return scope.Build(result)
}

// deadNames lists the names of dead bindings with their tags.
func deadNames(res *Result) map[string]Tag {
	out := make(map[string]Tag, len(res.Dead))
	for _, d := range res.Dead {
		out[d.Name] = d.Tag
	}
	return out
}

func variables() Options {
	opts := DefaultOptions()
	opts.RemoveVariables = true
	return opts
}

func TestResolve_Imports(t *testing.T) {
	tests := []struct {
		name string
		src  string
		opts Options
		want map[string]Tag
	}{
		{
			name: "unused and used",
			src:  "import os\nimport sys\n\nprint(sys.argv)\n",
			opts: DefaultOptions(),
			want: map[string]Tag{"os": TagUnusedImport},
		},
		{
			name: "partially used multi import",
			src:  "import os, sys\nsys.exit()\n",
			opts: DefaultOptions(),
			want: map[string]Tag{"os": TagPartialImport},
		},
		{
			name: "both dead in one statement",
			src:  "from a import b, c\n",
			opts: DefaultOptions(),
			want: map[string]Tag{"b": TagUnusedImport, "c": TagUnusedImport},
		},
		{
			name: "shadowed by function local",
			src:  "import os\n\ndef f():\n    os = 5\n    return os\n",
			opts: DefaultOptions(),
			want: map[string]Tag{"os": TagUnusedImport},
		},
		{
			name: "used from a function defined before the import",
			src:  "def f():\n    return os.getcwd()\nimport os\n",
			opts: DefaultOptions(),
			want: map[string]Tag{},
		},
		{
			name: "rebinding at module level hides the import",
			src:  "import os\nos = 1\nprint(os)\n",
			opts: DefaultOptions(),
			want: map[string]Tag{"os": TagUnusedImport},
		},
		{
			name: "conditional rebinding keeps the import",
			src:  "import os\nif x:\n    os = None\nprint(os)\n",
			opts: DefaultOptions(),
			want: map[string]Tag{},
		},
		{
			name: "loop carried use",
			src:  "for i in range(3):\n    if i:\n        print(json)\n    import json\n",
			opts: DefaultOptions(),
			want: map[string]Tag{},
		},
		{
			name: "method skips class scope",
			src:  "import x\nclass A:\n    x = 1\n    def m(self):\n        return x\n",
			opts: DefaultOptions(),
			want: map[string]Tag{},
		},
		{
			name: "class body reads the module",
			src:  "import x\nclass A:\n    y = x\n",
			opts: DefaultOptions(),
			want: map[string]Tag{},
		},
		{
			name: "dotted import and top level name",
			src:  "import os.path\nimport os\nos.getcwd()\n",
			opts: DefaultOptions(),
			want: map[string]Tag{},
		},
		{
			name: "future imports stay",
			src:  "from __future__ import annotations\n",
			opts: DefaultOptions(),
			want: map[string]Tag{},
		},
		{
			name: "class level imports stay",
			src:  "class A:\n    import os\n",
			opts: DefaultOptions(),
			want: map[string]Tag{},
		},
		{
			name: "function level import",
			src:  "def f():\n    import os\n    return 1\n",
			opts: DefaultOptions(),
			want: map[string]Tag{"os": TagUnusedImport},
		},
		{
			name: "string annotation",
			src:  "from typing import Thing\ndef f(a: 'Thing'):\n    pass\n",
			opts: DefaultOptions(),
			want: map[string]Tag{},
		},
		{
			name: "type comment",
			src:  "from typing import List\nx = []  # type: List[int]\n",
			opts: DefaultOptions(),
			want: map[string]Tag{},
		},
		{
			name: "decorator",
			src:  "import functools\n@functools.wraps(f)\ndef g():\n    pass\n",
			opts: DefaultOptions(),
			want: map[string]Tag{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(graph(t, tt.src), tt.opts)
			assert.Equal(t, tt.want, deadNames(res))
		})
	}
}

func TestResolve_Guarded(t *testing.T) {
	src := "try:\n    import json\nexcept ImportError:\n    json = None\n"
	g := graph(t, src)

	assert.Empty(t, Resolve(g, DefaultOptions()).Dead)

	opts := DefaultOptions()
	opts.RemoveGuardedImports = true
	assert.Equal(t, map[string]Tag{"json": TagUnusedImport}, deadNames(Resolve(g, opts)))
}

func TestResolve_All(t *testing.T) {
	g := graph(t, "from foo import bar\n__all__ = [\"bar\"]\n")

	assert.Empty(t, Resolve(g, DefaultOptions()).Dead)

	opts := DefaultOptions()
	opts.AllIsUsage = false
	assert.Equal(t, map[string]Tag{"bar": TagUnusedImport}, deadNames(Resolve(g, opts)))
}

func TestResolve_StarImport(t *testing.T) {
	aggressive := DefaultOptions()
	aggressive.StarImportsDead = true

	tests := []struct {
		name string
		src  string
		opts Options
		dead bool
	}{
		{"default keeps star imports", "from os import *\n", DefaultOptions(), false},
		{"unresolved name may come from the star", "from os import *\nprint(getcwd())\n", aggressive, false},
		{"only builtins unresolved", "from os import *\nprint(len([]))\n", aggressive, true},
		{"function scope star is left alone", "def f():\n    from os import *\n", aggressive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(graph(t, tt.src), tt.opts)
			if tt.dead {
				assert.Equal(t, map[string]Tag{"*": TagUnusedStarImport}, deadNames(res))
			} else {
				assert.Empty(t, res.Dead)
			}
		})
	}
}

func TestResolve_Unresolved(t *testing.T) {
	res := Resolve(graph(t, "import os\nprint(missing, os)\n"), DefaultOptions())

	assert.True(t, res.Unresolved["missing"])
	assert.True(t, res.Unresolved["print"])
	assert.False(t, res.Unresolved["os"])
}

func TestResolve_Variables(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want map[string]Tag
	}{
		{
			name: "unused local",
			src:  "def f():\n    x = 1\n",
			want: map[string]Tag{"x": TagUnusedVariable},
		},
		{
			name: "used local",
			src:  "def f():\n    x = 1\n    return x\n",
			want: map[string]Tag{},
		},
		{
			name: "module level variables stay",
			src:  "x = 1\n",
			want: map[string]Tag{},
		},
		{
			name: "tuple targets stay",
			src:  "def f():\n    a, b = g()\n",
			want: map[string]Tag{},
		},
		{
			name: "chained targets stay",
			src:  "def f():\n    a = b = 1\n",
			want: map[string]Tag{},
		},
		{
			name: "read by a nested function",
			src:  "def f():\n    x = 1\n    def g():\n        return x\n    return g\n",
			want: map[string]Tag{},
		},
		{
			name: "framework variable",
			src:  "def f():\n    __tracebackhide__ = True\n",
			want: map[string]Tag{},
		},
		{
			name: "augmented assignment reads the name",
			src:  "def f():\n    x = 1\n    x += 1\n",
			want: map[string]Tag{},
		},
		{
			name: "unused exception target",
			src:  "try:\n    pass\nexcept ValueError as e:\n    pass\n",
			want: map[string]Tag{"e": TagUnusedVariable},
		},
		{
			name: "used exception target",
			src:  "try:\n    pass\nexcept ValueError as e:\n    print(e)\n",
			want: map[string]Tag{},
		},
		{
			name: "global declaration",
			src:  "import os\ndef f():\n    global os\n    os = 1\n",
			want: map[string]Tag{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(graph(t, tt.src), variables())
			assert.Equal(t, tt.want, deadNames(res))
		})
	}
}

func TestResolve_VariablesOff(t *testing.T) {
	res := Resolve(graph(t, "def f():\n    x = 1\n"), DefaultOptions())
	assert.Empty(t, res.Dead)
}

func TestResolve_Escape(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"eval", "import os\ndef f():\n    x = 1\n    return eval('x + os.sep')\n"},
		{"locals", "def f():\n    x = 1\n    return locals()\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(graph(t, tt.src), variables())
			assert.Empty(t, res.Dead)
		})
	}
}

func TestResolve_ImportFilter(t *testing.T) {
	opts := DefaultOptions()
	opts.ImportFilter = func(module string) bool { return module == "os" }

	res := Resolve(graph(t, "import os\nimport requests\n"), opts)
	assert.Equal(t, map[string]Tag{"os": TagUnusedImport}, deadNames(res))
}

func TestResolve_KeepModuleImports(t *testing.T) {
	opts := DefaultOptions()
	opts.KeepModuleImports = true

	res := Resolve(graph(t, "import os\ndef f():\n    import sys\n"), opts)
	assert.Equal(t, map[string]Tag{"sys": TagUnusedImport}, deadNames(res))
}

func TestResult_IsUsed(t *testing.T) {
	g := graph(t, "import os\nimport sys\nsys.exit()\n")
	res := Resolve(g, DefaultOptions())

	assert.False(t, res.IsUsed(0))
	assert.True(t, res.IsUsed(1))
	assert.False(t, res.IsUsed(-1))
	assert.False(t, res.IsUsed(42))
}
