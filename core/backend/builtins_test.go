package backend

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runBuiltin(t *testing.T, argv []string, stdin string) (int, string, string) {
	t.Helper()
	fn, ok := Builtins[argv[0]]
	require.True(t, ok, "no builtin %q", argv[0])

	var stdout, stderr strings.Builder
	code := fn(Request{Backend: DirectMapping, Argv: argv, Dir: "/workspace"},
		strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestBuiltins(t *testing.T) {
	cases := []struct {
		name       string
		argv       []string
		stdin      string
		wantCode   int
		wantStdout string
	}{
		{"echo", []string{"echo", "hello", "world"}, "", 0, "hello world\n"},
		{"echo-n", []string{"echo", "-n", "hi"}, "", 0, "hi"},
		{"echo-e", []string{"echo", "-e", `a\tb`}, "", 0, "a\tb\n"},
		{"echo-empty", []string{"echo"}, "", 0, "\n"},
		{"true", []string{"true"}, "", 0, ""},
		{"false", []string{"false"}, "", 1, ""},
		{"pwd", []string{"pwd"}, "", 0, "/workspace\n"},
		{"basename", []string{"basename", "/a/b/c.txt"}, "", 0, "c.txt\n"},
		{"basename-suffix", []string{"basename", "/a/b/c.txt", ".txt"}, "", 0, "c\n"},
		{"dirname", []string{"dirname", "/a/b/c.txt"}, "", 0, "/a/b\n"},
		{"seq", []string{"seq", "3"}, "", 0, "1\n2\n3\n"},
		{"seq-range", []string{"seq", "2", "4"}, "", 0, "2\n3\n4\n"},
		{"seq-step", []string{"seq", "1", "2", "5"}, "", 0, "1\n3\n5\n"},
		{"seq-down", []string{"seq", "3", "-1", "1"}, "", 0, "3\n2\n1\n"},
		{"wc-l", []string{"wc", "-l"}, "a\nb\nc\n", 0, "3\n"},
		{"wc-default", []string{"wc"}, "one two\n", 0, "1 2 8\n"},
		{"wc-no-final-newline", []string{"wc", "-l"}, "a\nb", 0, "1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, stdout, _ := runBuiltin(t, tc.argv, tc.stdin)
			assert.Equal(t, tc.wantCode, code)
			assert.Equal(t, tc.wantStdout, stdout)
		})
	}
}

func TestBuiltinErrors(t *testing.T) {
	cases := []struct {
		name string
		argv []string
	}{
		{"basename-missing", []string{"basename"}},
		{"dirname-missing", []string{"dirname"}},
		{"seq-bad-operand", []string{"seq", "x"}},
		{"seq-zero-step", []string{"seq", "1", "0", "5"}},
		{"sleep-missing", []string{"sleep"}},
		{"sleep-bad-interval", []string{"sleep", "soon"}},
		{"wc-file-arg", []string{"wc", "notes.txt"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _, stderr := runBuiltin(t, tc.argv, "")
			assert.Equal(t, 1, code)
			assert.NotEmpty(t, stderr)
		})
	}
}

func TestBuiltinEnv(t *testing.T) {
	fn := Builtins["env"]
	var stdout strings.Builder
	code := fn(Request{Argv: []string{"env"}, Env: []string{"A=1", "B=2"}}, nil, &stdout, &stdout)
	assert.Equal(t, 0, code)
	assert.Equal(t, "A=1\nB=2\n", stdout.String())
}

func TestBuiltinYesIsBounded(t *testing.T) {
	code, stdout, _ := runBuiltin(t, []string{"yes", "ok"}, "")
	assert.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSuffix(stdout, "\n"), "\n")
	assert.Len(t, lines, 4096)
	assert.Equal(t, "ok", lines[0])
}
