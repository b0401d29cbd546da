package sandbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	cases := []struct {
		name     string
		policy   Policy
		text     string
		wantRule string
	}{
		{
			name: "plain command passes",
			text: "ls -la src",
		},
		{
			name:     "blocked command",
			text:     "sudo apt install jq",
			wantRule: "privilege escalation",
		},
		{
			name:     "blocked by full path",
			text:     "/usr/bin/sudo whoami",
			wantRule: "privilege escalation",
		},
		{
			name:     "blocked behind and-chain",
			text:     "echo ok && shutdown -h now",
			wantRule: "host power control",
		},
		{
			name:     "blocked behind pipe",
			text:     "ps aux | kill -9 42",
			wantRule: "process control outside the sandbox",
		},
		{
			name: "blocked name as argument is fine",
			text: "echo sudo",
		},
		{
			name:     "network off by default",
			text:     "curl https://example.com",
			wantRule: "network access disabled",
		},
		{
			name:   "network opt-in",
			policy: Policy{AllowNetwork: true},
			text:   "curl https://example.com",
		},
		{
			name:   "extra blocked from configuration",
			policy: Policy{ExtraBlocked: []string{"docker"}},
			text:   "docker ps",
			// configured names all share one rule string
			wantRule: "blocked by configuration",
		},
		{
			name:   "contained absolute path",
			policy: Policy{AllowedRoots: []string{"/workspace"}},
			text:   "cat /workspace/notes.txt",
		},
		{
			name:     "escaping absolute path",
			policy:   Policy{AllowedRoots: []string{"/workspace"}},
			text:     "cat /etc/passwd",
			wantRule: "path escapes the workspace: /etc/passwd",
		},
		{
			name:   "relative path always fine",
			policy: Policy{AllowedRoots: []string{"/workspace"}},
			text:   "cat notes.txt",
		},
		{
			name:   "dev null allowed",
			policy: Policy{AllowedRoots: []string{"/workspace"}},
			text:   "grep -q foo /workspace/a.txt 2>/dev/null",
		},
		{
			name:     "recursive delete of root",
			text:     "rm -rf /",
			wantRule: "recursive deletion of /",
		},
		{
			name:     "recursive delete of everything",
			text:     "rm -r *",
			wantRule: "recursive deletion of *",
		},
		{
			name:     "recursive delete of parent",
			text:     "rm -rf ..",
			wantRule: "recursive deletion of ..",
		},
		{
			name: "recursive delete of subdirectory is fine",
			text: "rm -rf build/",
		},
		{
			name: "non-recursive delete is fine",
			text: "rm file.txt",
		},
		{
			name: "dangerous token after statement break is unrelated",
			text: "rm -r build && ls .",
		},
		{
			name:     "raw device access",
			text:     "cat /dev/sda",
			wantRule: "raw device access: /dev/sda",
		},
		{
			name: "unbalanced quotes fall back to fields",
			text: `echo "unterminated`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := New(tc.policy).Check(tc.text)
			if tc.wantRule == "" {
				assert.NoError(t, err)
				return
			}
			var perr *PolicyError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.wantRule, perr.Rule)
			assert.Equal(t, tc.text, perr.Command)
		})
	}
}

func TestPolicyErrorMessage(t *testing.T) {
	err := New(Policy{}).Check("sudo id")
	var perr *PolicyError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Error(), "rejected by sandbox policy")
	assert.Contains(t, perr.Error(), "privilege escalation")
}
