package sandbox

import "testing"

func TestValidateSandboxPathRejectsTraversal(t *testing.T) {
	cases := []string{"../etc/passwd", "a/../../b", "..", "foo/../../bar"}
	for _, c := range cases {
		if _, err := ValidateSandboxPath(c); err == nil {
			t.Errorf("ValidateSandboxPath(%q) = nil error, want traversal error", c)
		}
	}
}

func TestValidateSandboxPathRejectsEmpty(t *testing.T) {
	if _, err := ValidateSandboxPath(""); err == nil {
		t.Error("ValidateSandboxPath(\"\") = nil error, want error")
	}
}

func TestValidateSandboxPathCleansAndRoots(t *testing.T) {
	cases := map[string]string{
		"input.txt":        "/input.txt",
		"a/b/c.txt":        "/a/b/c.txt",
		"/already/rooted":  "/already/rooted",
		"./dot/prefixed":   "/dot/prefixed",
	}
	for in, want := range cases {
		got, err := ValidateSandboxPath(in)
		if err != nil {
			t.Fatalf("ValidateSandboxPath(%q) unexpected error: %v", in, err)
		}
		if got != want {
			t.Errorf("ValidateSandboxPath(%q) = %q, want %q", in, got, want)
		}
	}
}
