package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "v.mp4")
	if err := os.WriteFile(path, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAssembleRunInputsZeroGridDisablesMontage(t *testing.T) {
	input := writeTestVideo(t)

	tests := []struct {
		name string
		flag string
	}{
		{name: "columns zero", flag: "columns"},
		{name: "rows zero", flag: "rows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRunCmd()
			if err := cmd.Flags().Set(tt.flag, "0"); err != nil {
				t.Fatal(err)
			}
			files, opts, err := assembleRunInputs(cmd, []string{input})
			if err != nil {
				t.Fatalf("assembleRunInputs: %v", err)
			}
			if len(files) != 1 || files[0] != input {
				t.Errorf("files = %v, want [%s]", files, input)
			}
			switch tt.flag {
			case "columns":
				if opts.Columns != 0 {
					t.Errorf("Columns = %d, want 0", opts.Columns)
				}
			case "rows":
				if opts.Rows != 0 {
					t.Errorf("Rows = %d, want 0", opts.Rows)
				}
			}
		})
	}
}

func TestAssembleRunInputsRejectsNegativeGrid(t *testing.T) {
	input := writeTestVideo(t)

	for _, flag := range []string{"columns", "rows"} {
		t.Run(flag, func(t *testing.T) {
			cmd := newRunCmd()
			if err := cmd.Flags().Set(flag, "-1"); err != nil {
				t.Fatal(err)
			}
			_, _, err := assembleRunInputs(cmd, []string{input})
			if err == nil {
				t.Fatalf("negative --%s accepted", flag)
			}
			if !strings.Contains(err.Error(), "must not be negative") {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestAssembleRunInputsRejectsBadFormat(t *testing.T) {
	input := writeTestVideo(t)

	cmd := newRunCmd()
	if err := cmd.Flags().Set("format", "avif"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := assembleRunInputs(cmd, []string{input}); err == nil {
		t.Fatal("invalid --format accepted")
	}
}

func TestAssembleRunInputsRejectsMissingFile(t *testing.T) {
	cmd := newRunCmd()
	missing := filepath.Join(t.TempDir(), "nope.mp4")
	if _, _, err := assembleRunInputs(cmd, []string{missing}); err == nil {
		t.Fatal("missing input accepted")
	}
}
