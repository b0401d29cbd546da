package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func windowsTranslator(t *testing.T) *Translator {
	t.Helper()
	tr, err := New([]Mapping{
		{Virtual: "/workspace", Host: `C:\workspace`},
		{Virtual: "/workspace/data", Host: `D:\data`},
		{Virtual: "/tmp", Host: `C:\Temp`},
	}, `\`)
	require.NoError(t, err)
	return tr
}

func TestNewRejectsRelativeVirtualRoot(t *testing.T) {
	_, err := New([]Mapping{{Virtual: "workspace", Host: `C:\workspace`}}, `\`)
	assert.Error(t, err)
}

func TestToHost(t *testing.T) {
	tr := windowsTranslator(t)
	cases := []struct {
		name    string
		virtual string
		want    string
		wantOK  bool
	}{
		{"root itself", "/workspace", `C:\workspace`, true},
		{"nested file", "/workspace/src/main.go", `C:\workspace\src\main.go`, true},
		{"longest prefix wins", "/workspace/data/x.csv", `D:\data\x.csv`, true},
		{"second root", "/tmp/scratch.txt", `C:\Temp\scratch.txt`, true},
		{"unmapped", "/etc/passwd", "/etc/passwd", false},
		{"prefix but not component", "/workspaces/other", "/workspaces/other", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tr.ToHost(tc.virtual)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantOK, ok)
		})
	}
}

func TestToVirtual(t *testing.T) {
	tr := windowsTranslator(t)
	cases := []struct {
		name   string
		host   string
		want   string
		wantOK bool
	}{
		{"root itself", `C:\workspace`, "/workspace", true},
		{"nested file", `C:\workspace\src\main.go`, "/workspace/src/main.go", true},
		{"nested root", `D:\data\x.csv`, "/workspace/data/x.csv", true},
		{"unmapped", `C:\Windows\System32`, `C:\Windows\System32`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tr.ToVirtual(tc.host)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantOK, ok)
		})
	}
}

func TestRewriteToHost(t *testing.T) {
	tr := windowsTranslator(t)
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"single path",
			"cat /workspace/readme.md",
			`cat C:\workspace\readme.md`,
		},
		{
			"two paths one line",
			"cp /workspace/a.txt /tmp/a.txt",
			`cp C:\workspace\a.txt C:\Temp\a.txt`,
		},
		{
			"quoted path",
			"grep foo '/workspace/notes.txt'",
			`grep foo 'C:\workspace\notes.txt'`,
		},
		{
			"redirect target",
			"echo hi >/workspace/out.log",
			`echo hi >C:\workspace\out.log`,
		},
		{
			"nested mapping wins",
			"ls /workspace/data/raw",
			`ls D:\data\raw`,
		},
		{
			"token boundary respected",
			"ls /workspaces",
			"ls /workspaces",
		},
		{
			"no paths",
			"echo hello",
			"echo hello",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tr.RewriteToHost(tc.in))
		})
	}
}

func TestRewriteToVirtual(t *testing.T) {
	tr := windowsTranslator(t)
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"listing lines",
			"C:\\workspace\\a.go\nC:\\workspace\\b.go\n",
			"/workspace/a.go\n/workspace/b.go\n",
		},
		{
			"embedded in message",
			`removed 'C:\Temp\x.tmp'`,
			"removed '/tmp/x.tmp'",
		},
		{
			"nested mapping",
			"D:\\data\\raw\\dump.csv\n",
			"/workspace/data/raw/dump.csv\n",
		},
		{
			"untouched output",
			"3 files changed\n",
			"3 files changed\n",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tr.RewriteToVirtual(tc.in))
		})
	}
}

func TestPosixHostSeparator(t *testing.T) {
	tr, err := New([]Mapping{{Virtual: "/workspace", Host: "/srv/jobs/42"}}, "/")
	require.NoError(t, err)

	got, ok := tr.ToHost("/workspace/run.sh")
	assert.True(t, ok)
	assert.Equal(t, "/srv/jobs/42/run.sh", got)

	assert.Equal(t, "/workspace/run.sh done\n", tr.RewriteToVirtual("/srv/jobs/42/run.sh done\n"))
}
