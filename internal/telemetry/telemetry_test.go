package telemetry

import "testing"

func TestScrubPII(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "linux home path",
			in:   "open /home/alice/.kandra/workspaces/foo: permission denied",
			want: "open /home/[user]/.kandra/workspaces/foo: permission denied",
		},
		{
			name: "macos home path",
			in:   "/Users/bob/repos/widget",
			want: "/Users/[user]/repos/widget",
		},
		{
			name: "windows home path",
			in:   `C:\Users\carol\repos\widget`,
			want: `C:\Users\[user]\repos\widget`,
		},
		{
			name: "anthropic api key",
			in:   "request failed with key sk-ant-REDACTED",
			want: "request failed with key sk-ant-api03-[REDACTED]",
		},
		{
			name: "email address",
			in:   "contact jane.doe@example.com for access",
			want: "contact [email] for access",
		},
		{
			name: "no PII",
			in:   "phase 2 step 3 failed: exit status 1",
			want: "phase 2 step 3 failed: exit status 1",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := scrubPII(tc.in); got != tc.want {
				t.Fatalf("scrubPII(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestScrubPIIMultiplePII(t *testing.T) {
	in := "user jane.doe@example.com in /home/jane/work used key sk-ant-REDACTED"
	want := "user [email] in /home/[user]/work used key sk-ant-api03-[REDACTED]"
	if got := scrubPII(in); got != want {
		t.Fatalf("scrubPII(%q) = %q, want %q", in, got, want)
	}
}

func TestInitWithoutDSNIsNoop(t *testing.T) {
	t.Setenv("SENTRY_DSN", "")
	cleanup := Init("test")
	cleanup()
}
