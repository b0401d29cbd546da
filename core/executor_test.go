package core

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpibz/wbash/core/backend"
	"github.com/jpibz/wbash/core/backend/backendtest"
	"github.com/jpibz/wbash/core/config"
	"github.com/jpibz/wbash/core/sandbox"
)

func testInvoker(t *testing.T, fake *backendtest.Fake) *Invoker {
	t.Helper()
	cfg := &config.Configuration{
		Home:                 "/workspace",
		DefaultTimeoutSecs:   5,
		MaxSubstitutionDepth: 5,
		Aliases:              map[string]string{"ll": "ls -l"},
		Workspaces:           []config.Workspace{{Virtual: "/workspace", Host: "/srv/ws"}},
	}
	inv, err := NewInvoker(cfg, fake, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	// Keep every filesystem touch in memory.
	inv.hostFs = afero.NewMemMapFs()
	return inv
}

func invoke(t *testing.T, inv *Invoker, command string) Result {
	t.Helper()
	res, err := inv.Invoke(context.Background(), Invocation{Command: command})
	require.NoError(t, err)
	return res
}

func TestInvokeDirectBuiltin(t *testing.T) {
	fake := backendtest.NewFake()
	inv := testInvoker(t, fake)

	res := invoke(t, inv, "echo hello world")
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello world\n", res.Stdout)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, backend.DirectMapping, calls[0].Backend)
	assert.Equal(t, []string{"echo", "hello", "world"}, calls[0].Argv)
}

func TestInvokeExpandsAliases(t *testing.T) {
	fake := backendtest.NewFake()
	inv := testInvoker(t, fake)

	invoke(t, inv, "ll src")

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, backend.EmulatedScript, calls[0].Backend)
	assert.Equal(t, "Get-ChildItem -Path src", calls[0].Text)
}

func TestInvokeExpandsEnvironment(t *testing.T) {
	fake := backendtest.NewFake()
	inv := testInvoker(t, fake)

	res, err := inv.Invoke(context.Background(), Invocation{
		Command: "echo $NAME",
		Env:     []string{"NAME=world"},
	})
	require.NoError(t, err)
	assert.Equal(t, "world\n", res.Stdout)
}

func TestInvokeAssignmentOnly(t *testing.T) {
	fake := backendtest.NewFake()
	inv := testInvoker(t, fake)

	res := invoke(t, inv, "GREETING=hi")
	assert.Equal(t, 0, res.ExitCode)
	assert.Empty(t, res.Stdout)
	assert.Empty(t, fake.Calls())
}

func TestInvokeAssignmentThenCommand(t *testing.T) {
	fake := backendtest.NewFake()
	inv := testInvoker(t, fake)

	res := invoke(t, inv, "X=5; echo hi")
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hi\n", res.Stdout)
	require.Len(t, fake.Calls(), 1)
}

func TestInvokeAssignmentVisibleLaterInChain(t *testing.T) {
	fake := backendtest.NewFake()
	inv := testInvoker(t, fake)

	res := invoke(t, inv, "X=5; echo $X")
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "5\n", res.Stdout)
}

func TestInvokeChainSemantics(t *testing.T) {
	cases := []struct {
		name       string
		command    string
		wantCode   int
		wantStdout string
	}{
		{"and short-circuits", "false && echo yes", 1, ""},
		{"and continues", "true && echo yes", 0, "yes\n"},
		{"or recovers", "false || echo saved", 0, "saved\n"},
		{"or short-circuits", "echo first || echo second", 0, "first\n"},
		{"seq runs both", "echo a ; echo b", 0, "a\nb\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv := testInvoker(t, backendtest.NewFake())
			res := invoke(t, inv, tc.command)
			assert.Equal(t, tc.wantCode, res.ExitCode)
			assert.Equal(t, tc.wantStdout, res.Stdout)
		})
	}
}

func TestInvokePipeFeedsStdin(t *testing.T) {
	fake := backendtest.NewFake()
	inv := testInvoker(t, fake)

	res := invoke(t, inv, "seq 3 | wc -l")
	assert.Equal(t, "3\n", res.Stdout)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"seq", "3"}, calls[0].Argv)
	assert.Equal(t, "1\n2\n3\n", calls[1].Stdin)
}

func TestInvokeCommandSubstitution(t *testing.T) {
	fake := backendtest.NewFake()
	inv := testInvoker(t, fake)

	res := invoke(t, inv, "echo $(echo inner)")
	assert.Equal(t, "inner\n", res.Stdout)
	require.Len(t, fake.Calls(), 2)
}

func TestInvokeRewritesPaths(t *testing.T) {
	fake := backendtest.NewFake()
	fake.Outputs["Get-Content -Path /srv/ws/notes.txt"] = backend.Result{
		Stdout: "/srv/ws/notes.txt has 3 lines\n",
	}
	inv := testInvoker(t, fake)

	res := invoke(t, inv, "cat /workspace/notes.txt")
	assert.Equal(t, "/workspace/notes.txt has 3 lines\n", res.Stdout)
}

func TestInvokeCatalogPipelineRunsWhole(t *testing.T) {
	command := "find . -name '*.go' | xargs grep TODO"
	fake := backendtest.NewFake().WithPosixShell()
	fake.Outputs[command] = backend.Result{Stdout: "main.go:// TODO\n"}
	inv := testInvoker(t, fake)

	res := invoke(t, inv, command)
	assert.Equal(t, "main.go:// TODO\n", res.Stdout)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, backend.PosixPassthrough, calls[0].Backend)
	assert.Equal(t, command, calls[0].Text)
}

func TestInvokeSplitIsolatesShellStages(t *testing.T) {
	fake := backendtest.NewFake().WithPosixShell()
	fake.Outputs["grep 1"] = backend.Result{Stdout: "1\n"}
	inv := testInvoker(t, fake)

	res := invoke(t, inv, "seq 2 | grep 1")
	assert.Equal(t, "1\n", res.Stdout)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, backend.DirectMapping, calls[0].Backend)
	assert.Equal(t, backend.PosixPassthrough, calls[1].Backend)
	assert.Equal(t, "grep 1", calls[1].Text)
	assert.Equal(t, "1\n2\n", calls[1].Stdin)
}

func TestInvokeReselectsNativeToPosix(t *testing.T) {
	fake := backendtest.NewFake().WithNative("python").WithPosixShell()
	fake.Unavailable[backend.NativeBinary] = true
	fake.Outputs["python3 app.py"] = backend.Result{Stdout: "ok\n"}
	inv := testInvoker(t, fake)

	res := invoke(t, inv, "python3 app.py")
	assert.Equal(t, "ok\n", res.Stdout)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, backend.NativeBinary, calls[0].Backend)
	assert.Equal(t, []string{"python", "app.py"}, calls[0].Argv)
	assert.Equal(t, backend.PosixPassthrough, calls[1].Backend)
}

func TestInvokeReselectsDirectToEmulated(t *testing.T) {
	fake := backendtest.NewFake()
	fake.Unavailable[backend.DirectMapping] = true
	fake.Outputs["echo hi"] = backend.Result{Stdout: "hi\n"}
	inv := testInvoker(t, fake)

	res := invoke(t, inv, "echo hi")
	assert.Equal(t, "hi\n", res.Stdout)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, backend.DirectMapping, calls[0].Backend)
	assert.Equal(t, backend.EmulatedScript, calls[1].Backend)
}

func TestInvokeFallsBackToFullPassthrough(t *testing.T) {
	fake := backendtest.NewFake().WithPosixShell()
	fake.Unavailable[backend.EmulatedScript] = true
	fake.Outputs["ls src | wc -l"] = backend.Result{Stdout: "3\n"}
	inv := testInvoker(t, fake)

	res := invoke(t, inv, "ls src | wc -l")
	assert.Equal(t, "3\n", res.Stdout)

	calls := fake.Calls()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, backend.PosixPassthrough, last.Backend)
	assert.Equal(t, "ls src | wc -l", last.Text)
}

func TestInvokeRedirects(t *testing.T) {
	t.Run("stdout to file", func(t *testing.T) {
		inv := testInvoker(t, backendtest.NewFake())
		res := invoke(t, inv, "seq 2 > /workspace/out.txt")
		assert.Equal(t, 0, res.ExitCode)
		assert.Empty(t, res.Stdout)

		content, err := afero.ReadFile(inv.hostFs, "/srv/ws/out.txt")
		require.NoError(t, err)
		assert.Equal(t, "1\n2\n", string(content))
	})

	t.Run("append accumulates", func(t *testing.T) {
		inv := testInvoker(t, backendtest.NewFake())
		invoke(t, inv, "seq 2 >> /workspace/log.txt")
		invoke(t, inv, "seq 2 >> /workspace/log.txt")

		content, err := afero.ReadFile(inv.hostFs, "/srv/ws/log.txt")
		require.NoError(t, err)
		assert.Equal(t, "1\n2\n1\n2\n", string(content))
	})

	t.Run("file to stdin", func(t *testing.T) {
		inv := testInvoker(t, backendtest.NewFake())
		require.NoError(t, afero.WriteFile(inv.hostFs, "/srv/ws/in.txt", []byte("a\nb\n"), 0644))

		res := invoke(t, inv, "wc -l < /workspace/in.txt")
		assert.Equal(t, "2\n", res.Stdout)
	})

	t.Run("missing input file", func(t *testing.T) {
		inv := testInvoker(t, backendtest.NewFake())
		res := invoke(t, inv, "wc -l < /workspace/absent.txt")
		assert.Equal(t, 1, res.ExitCode)
		assert.Equal(t, "/workspace/absent.txt: no such file or directory\n", res.Stderr)
	})
}

func TestInvokeHeredocCleansScratch(t *testing.T) {
	fake := backendtest.NewFake()
	inv := testInvoker(t, fake)

	res := invoke(t, inv, "wc -l <<EOF\nalpha\nbeta\nEOF")
	assert.Equal(t, "2\n", res.Stdout)

	entries, err := afero.ReadDir(inv.hostFs, inv.scratchRoot)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files must not survive the call")
}

func TestInvokeRejectsSandboxedCommand(t *testing.T) {
	fake := backendtest.NewFake()
	inv := testInvoker(t, fake)

	_, err := inv.Invoke(context.Background(), Invocation{Command: "sudo ls"})
	var perr *sandbox.PolicyError
	require.ErrorAs(t, err, &perr)
	assert.Empty(t, fake.Calls())
}

func TestInvokeCanceledContext(t *testing.T) {
	inv := testInvoker(t, backendtest.NewFake())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inv.Invoke(ctx, Invocation{Command: "echo hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestExplain(t *testing.T) {
	inv := testInvoker(t, backendtest.NewFake().WithPosixShell())

	analysis, strat, err := inv.Explain(context.Background(), "sort data.txt | uniq")
	require.NoError(t, err)
	assert.Equal(t, "sort|uniq", analysis.Signature)
	assert.Equal(t, "full-passthrough", strat.Kind.String())
}

func TestResultRender(t *testing.T) {
	cases := []struct {
		name string
		res  Result
		want string
	}{
		{
			"stdout only",
			Result{ExitCode: 0, Stdout: "hello\n"},
			"Exit code: 0\nhello\n",
		},
		{
			"stderr section",
			Result{ExitCode: 1, Stdout: "partial\n", Stderr: "boom"},
			"Exit code: 1\npartial\n--- stderr ---\nboom\n",
		},
		{
			"empty streams",
			Result{ExitCode: 0},
			"Exit code: 0\n",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.res.Render())
		})
	}
}
