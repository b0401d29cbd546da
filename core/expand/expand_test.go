package expand

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpibz/wbash/core/scratch"
)

type fakeRunner struct {
	outputs map[string]string
	calls   []string
}

func (f *fakeRunner) RunSubstitution(_ context.Context, cmd string, depth int) (string, int, error) {
	f.calls = append(f.calls, cmd)
	out, ok := f.outputs[cmd]
	if !ok {
		return "", 1, nil
	}
	return out, 0, nil
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *scratch.Dir) {
	t.Helper()
	dir := scratch.NewDir(afero.NewMemMapFs(), "scratch", "test0000")
	opts.Scratch = dir
	return New(opts), dir
}

func TestBraceExpansion(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"list":           {"echo {a,b,c}", "echo a b c"},
		"cartesian":      {"echo {a,b}{1,2}", "echo a1 a2 b1 b2"},
		"nested":         {"echo {a,b{1,2}}", "echo a b1 b2"},
		"prefix_suffix":  {"echo pre{X,Y}post", "echo preXpost preYpost"},
		"numeric_range":  {"echo {1..5}", "echo 1 2 3 4 5"},
		"reverse_range":  {"echo {5..1}", "echo 5 4 3 2 1"},
		"zero_padded":    {"echo {05..10}", "echo 05 06 07 08 09 10"},
		"stepped_range":  {"echo {1..10..2}", "echo 1 3 5 7 9"},
		"alpha_range":    {"echo {a..e}", "echo a b c d e"},
		"single_literal": {"echo {abc}", "echo {abc}"},
		"quoted_single":  {"echo '{a,b}'", "echo '{a,b}'"},
		"param_form":     {"echo ${a,b}", "echo ${a,b}"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.want, expandBraces(tc.in))
		})
	}
}

func TestParamExpansion(t *testing.T) {
	vars := NewVarContext([]string{"FOO=hello", "FILE=report.tar.gz"})
	vars.Set("NAME", "world")

	cases := map[string]struct {
		in   string
		want string
	}{
		"plain":           {"echo $FOO", "echo hello"},
		"braced":          {"echo ${FOO}", "echo hello"},
		"unset_empty":     {"echo $MISSING.", "echo ."},
		"default":         {"echo ${MISSING:-fallback}", "echo fallback"},
		"default_unused":  {"echo ${FOO:-fallback}", "echo hello"},
		"alternate":       {"echo ${FOO:+set}", "echo set"},
		"length":          {"echo ${#FOO}", "echo 5"},
		"strip_suffix":    {"echo ${FILE%%.*}", "echo report"},
		"strip_suffix_sh": {"echo ${FILE%.*}", "echo report.tar"},
		"strip_prefix":    {"echo ${FILE#*.}", "echo tar.gz"},
		"strip_prefix_lg": {"echo ${FILE##*.}", "echo gz"},
		"upper":           {"echo ${FOO^^}", "echo HELLO"},
		"upper_first":     {"echo ${FOO^}", "echo Hello"},
		"lower":           {"echo ${NAME,,}", "echo world"},
		"replace_first":   {"echo ${FOO/l/L}", "echo heLlo"},
		"replace_all":     {"echo ${FOO//l/L}", "echo heLLo"},
		"single_quoted":   {"echo '$FOO'", "echo '$FOO'"},
		"double_quoted":   {`echo "$FOO"`, `echo "hello"`},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			got, err := expandParams(tc.in, vars)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParamAssignDefault(t *testing.T) {
	vars := NewVarContext(nil)
	got, err := expandParams("echo ${COUNT:=3}", vars)
	require.NoError(t, err)
	assert.Equal(t, "echo 3", got)

	v, ok := vars.Get("COUNT")
	assert.True(t, ok)
	assert.Equal(t, "3", v)
}

func TestArithmetic(t *testing.T) {
	vars := NewVarContext(nil)
	vars.Set("x", "5")

	cases := map[string]struct {
		expr string
		want int64
	}{
		"precedence":  {"1+2*3", 7},
		"parens":      {"(1+2)*3", 9},
		"power":       {"2**10", 1024},
		"modulo":      {"7%3", 1},
		"unary":       {"-4+10", 6},
		"variable":    {"x+1", 6},
		"dollar_var":  {"$x*2", 10},
		"unset_zero":  {"y+1", 1},
		"hex":         {"0x10", 16},
		"comparison":  {"3 < 5", 1},
		"logical_and": {"1 && 0", 0},
		"not":         {"!0", 1},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			got, err := arithEval(tc.expr, vars)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("division_by_zero", func(t *testing.T) {
		_, err := arithEval("1/0", vars)
		assert.Error(t, err)
	})
}

func TestArithmeticRunsBeforeBraces(t *testing.T) {
	e, _ := newTestEngine(t, Options{})

	res, err := e.Expand(context.Background(), "echo $((1+2)){a,b}")
	require.NoError(t, err)
	assert.Equal(t, "echo 3a 3b", res.Text)
}

func TestAliasesAndTilde(t *testing.T) {
	e, _ := newTestEngine(t, Options{
		Aliases: map[string]string{"ll": "ls -l"},
		Home:    "/home/dev",
	})

	res, err := e.Expand(context.Background(), "ll ~/src")
	require.NoError(t, err)
	assert.Equal(t, "ls -l /home/dev/src", res.Text)
}

func TestAliasOnlyAtCommandPosition(t *testing.T) {
	e, _ := newTestEngine(t, Options{
		Aliases: map[string]string{"ll": "ls -l"},
	})

	res, err := e.Expand(context.Background(), "echo ll | ll")
	require.NoError(t, err)
	assert.Equal(t, "echo ll | ls -l", res.Text)
}

func TestCommandSubstitution(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"date":           "Mon Jan 1\n",
		"hostname":       "box",
		"echo a; echo b": "a\nb\n",
	}}
	e, _ := newTestEngine(t, Options{Runner: runner})

	t.Run("strips one trailing newline", func(t *testing.T) {
		res, err := e.Expand(context.Background(), "echo today is $(date)")
		require.NoError(t, err)
		assert.Equal(t, "echo today is Mon Jan 1", res.Text)
	})

	t.Run("backticks", func(t *testing.T) {
		res, err := e.Expand(context.Background(), "echo `hostname`")
		require.NoError(t, err)
		assert.Equal(t, "echo box", res.Text)
	})

	t.Run("failed inner command becomes empty", func(t *testing.T) {
		res, err := e.Expand(context.Background(), "echo [$(nope)]")
		require.NoError(t, err)
		assert.Equal(t, "echo []", res.Text)
	})

	t.Run("single quotes are opaque", func(t *testing.T) {
		res, err := e.Expand(context.Background(), "echo '$(date)'")
		require.NoError(t, err)
		assert.Equal(t, "echo '$(date)'", res.Text)
	})

	t.Run("inner chain stays one substitution", func(t *testing.T) {
		res, err := e.Expand(context.Background(), "echo $(echo a; echo b)")
		require.NoError(t, err)
		assert.Equal(t, "echo a\nb", res.Text)
	})
}

func TestSubstitutionOutputSplicesVerbatim(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"emit": "{a,b} $HOME\n",
	}}
	e, _ := newTestEngine(t, Options{Runner: runner, Home: "/home/dev"})

	res, err := e.Expand(context.Background(), "echo $(emit)")
	require.NoError(t, err)
	assert.Equal(t, "echo {a,b} $HOME", res.Text)
}

// reentrantRunner mimics the executor: the inner command goes back through
// the engine at the reported depth.
type reentrantRunner struct {
	e *Engine
}

func (r *reentrantRunner) RunSubstitution(ctx context.Context, cmd string, depth int) (string, int, error) {
	res, err := r.e.ExpandAt(ctx, cmd, depth)
	if err != nil {
		return "", 1, err
	}
	return res.Text, 0, nil
}

func TestSubstitutionDepthBound(t *testing.T) {
	runner := &reentrantRunner{}
	e, _ := newTestEngine(t, Options{Runner: runner, MaxDepth: 3})
	runner.e = e

	// Each expansion re-introduces the same substitution.
	_, err := e.Expand(context.Background(), "echo $(echo $(echo $(echo $(echo deep))))")
	assert.ErrorIs(t, err, ErrRecursionDepth)
}

func TestHeredoc(t *testing.T) {
	t.Run("body goes to a scratch file", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		dir := scratch.NewDir(fs, "scratch", "test0000")
		vars := NewVarContext(nil)
		vars.Set("NAME", "world")
		e := New(Options{Vars: vars, Scratch: dir})

		res, err := e.Expand(context.Background(), "cat << EOF\nhello $NAME\nEOF")
		require.NoError(t, err)
		assert.Equal(t, "cat < scratch/heredoc_test0000_1.tmp", res.Text)

		content, err := afero.ReadFile(fs, "scratch/heredoc_test0000_1.tmp")
		require.NoError(t, err)
		assert.Equal(t, "hello world\n", string(content))
	})

	t.Run("quoted delimiter keeps body literal", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		dir := scratch.NewDir(fs, "scratch", "test0000")
		e := New(Options{Scratch: dir})

		_, err := e.Expand(context.Background(), "cat << 'EOF'\nliteral $NAME\nEOF")
		require.NoError(t, err)

		content, err := afero.ReadFile(fs, "scratch/heredoc_test0000_1.tmp")
		require.NoError(t, err)
		assert.Equal(t, "literal $NAME\n", string(content))
	})

	t.Run("dash form strips leading tabs", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		dir := scratch.NewDir(fs, "scratch", "test0000")
		e := New(Options{Scratch: dir})

		_, err := e.Expand(context.Background(), "cat <<- EOF\n\tindented\n\tEOF")
		require.NoError(t, err)

		content, err := afero.ReadFile(fs, "scratch/heredoc_test0000_1.tmp")
		require.NoError(t, err)
		assert.Equal(t, "indented\n", string(content))
	})

	t.Run("body resolves substitutions", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		dir := scratch.NewDir(fs, "scratch", "test0000")
		runner := &fakeRunner{outputs: map[string]string{"date": "Mon Jan 1\n"}}
		e := New(Options{Runner: runner, Scratch: dir})

		_, err := e.Expand(context.Background(), "cat << EOF\nToday: $(date)\nTotal: $((2+3))\nEOF")
		require.NoError(t, err)

		content, err := afero.ReadFile(fs, "scratch/heredoc_test0000_1.tmp")
		require.NoError(t, err)
		assert.Equal(t, "Today: Mon Jan 1\nTotal: 5\n", string(content))
	})

	t.Run("unterminated is an error", func(t *testing.T) {
		e, _ := newTestEngine(t, Options{})
		_, err := e.Expand(context.Background(), "cat << EOF\nno terminator")
		assert.Error(t, err)
	})

	t.Run("here-string", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		dir := scratch.NewDir(fs, "scratch", "test0000")
		e := New(Options{Scratch: dir})

		res, err := e.Expand(context.Background(), "wc -l <<< hello")
		require.NoError(t, err)
		assert.Equal(t, "wc -l < scratch/heredoc_test0000_1.tmp", res.Text)

		content, err := afero.ReadFile(fs, "scratch/heredoc_test0000_1.tmp")
		require.NoError(t, err)
		assert.Equal(t, "hello\n", string(content))
	})
}

func TestProcessSubstitution(t *testing.T) {
	t.Run("input form runs now", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		dir := scratch.NewDir(fs, "scratch", "test0000")
		runner := &fakeRunner{outputs: map[string]string{
			"sort a.txt": "alpha\n",
			"sort b.txt": "beta\n",
		}}
		e := New(Options{Runner: runner, Scratch: dir})

		res, err := e.Expand(context.Background(), "diff <(sort a.txt) <(sort b.txt)")
		require.NoError(t, err)
		assert.Equal(t, "diff scratch/procsub_in_test0000_1.tmp scratch/procsub_in_test0000_2.tmp", res.Text)
		assert.Empty(t, res.PostCommands)

		content, err := afero.ReadFile(fs, "scratch/procsub_in_test0000_1.tmp")
		require.NoError(t, err)
		assert.Equal(t, "alpha\n", string(content))
	})

	t.Run("input form keeps every line", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		dir := scratch.NewDir(fs, "scratch", "test0000")
		runner := &fakeRunner{outputs: map[string]string{
			"seq 3": "1\n2\n3\n",
		}}
		e := New(Options{Runner: runner, Scratch: dir})

		_, err := e.Expand(context.Background(), "wc -l <(seq 3)")
		require.NoError(t, err)

		content, err := afero.ReadFile(fs, "scratch/procsub_in_test0000_1.tmp")
		require.NoError(t, err)
		assert.Equal(t, "1\n2\n3\n", string(content))
	})

	t.Run("output form defers the consumer", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		dir := scratch.NewDir(fs, "scratch", "test0000")
		e := New(Options{Runner: &fakeRunner{}, Scratch: dir})

		res, err := e.Expand(context.Background(), "echo hi > >(sort)")
		require.NoError(t, err)
		assert.Contains(t, res.Text, "scratch/procsub_out_test0000_1.tmp")
		require.Len(t, res.PostCommands, 1)
		assert.Equal(t, "sort < scratch/procsub_out_test0000_1.tmp", res.PostCommands[0])
	})
}

func TestControlStructuresSkipExpansion(t *testing.T) {
	e, _ := newTestEngine(t, Options{
		Aliases: map[string]string{"ll": "ls -l"},
	})

	in := "for i in {1..3}; do echo $i; done"
	res, err := e.Expand(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, res.Text)
}

func TestParseAssignment(t *testing.T) {
	cases := map[string]struct {
		in        string
		name, val string
		ok        bool
	}{
		"plain":            {"FOO=bar", "FOO", "bar", true},
		"quoted":           {`FOO="a b"`, "FOO", "a b", true},
		"empty_value":      {"FOO=", "FOO", "", true},
		"not_a_name":       {"3X=1", "", "", false},
		"command":          {"echo FOO=bar", "", "", false},
		"chain":            {"FOO=1; echo hi", "", "", false},
		"piped":            {"FOO=1 | cat", "", "", false},
		"anded":            {"FOO=1 && rm -r x", "", "", false},
		"quoted_separator": {`MSG="a; b"`, "MSG", "a; b", true},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			name, val, ok := ParseAssignment(tc.in)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.name, name)
				assert.Equal(t, tc.val, val)
			}
		})
	}
}

func TestAssignmentsApplyAcrossStatements(t *testing.T) {
	e, _ := newTestEngine(t, Options{})

	res, err := e.Expand(context.Background(), "X=5; echo $X")
	require.NoError(t, err)
	assert.Equal(t, "X=5; echo 5", res.Text)

	v, ok := e.Vars().Get("X")
	assert.True(t, ok)
	assert.Equal(t, "5", v)
}

func TestPipeSegmentAssignmentStaysLocal(t *testing.T) {
	e, _ := newTestEngine(t, Options{})

	_, err := e.Expand(context.Background(), "Y=2 | cat")
	require.NoError(t, err)

	_, ok := e.Vars().Get("Y")
	assert.False(t, ok)
}

func TestExpansionIsIdempotent(t *testing.T) {
	outputs := map[string]string{"date": "Mon Jan 1\n", "hostname": "box"}
	newEngine := func() *Engine {
		e, _ := newTestEngine(t, Options{
			Aliases: map[string]string{"ll": "ls -l"},
			Home:    "/home/dev",
			Vars:    NewVarContext([]string{"FOO=hello", "FILE=report.tar.gz"}),
			Runner:  &fakeRunner{outputs: outputs},
		})
		return e
	}

	inputs := []string{
		"echo {a,b}{1,2}",
		"echo {1..5}",
		"echo $FOO ${FILE%%.*}",
		"ll ~/src",
		"echo today is $(date)",
		"echo `hostname` $((2**8))",
		"X=5; echo $X",
		`echo '$FOO' "$(date)"`,
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			first, err := newEngine().Expand(context.Background(), in)
			require.NoError(t, err)

			second, err := newEngine().Expand(context.Background(), first.Text)
			require.NoError(t, err)
			assert.Equal(t, first.Text, second.Text)
		})
	}
}

func TestVarContextSnapshot(t *testing.T) {
	parent := NewVarContext([]string{"A=1"})
	parent.Set("B", "2")

	child := parent.Snapshot()
	child.Set("B", "changed")
	child.Set("C", "3")

	v, _ := parent.Get("B")
	assert.Equal(t, "2", v)
	_, ok := parent.Get("C")
	assert.False(t, ok)
}
