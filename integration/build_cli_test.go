package integration_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildRelayFromRepositoryRoot(t *testing.T) {
	if _, lookErr := exec.LookPath("go"); lookErr != nil {
		t.Skip("go toolchain not available")
	}

	workingDirectory, workingDirectoryErr := os.Getwd()
	if workingDirectoryErr != nil {
		t.Fatalf("failed to get working directory: %v", workingDirectoryErr)
	}

	repositoryRoot := filepath.Dir(workingDirectory)
	temporaryBinaryPath := filepath.Join(t.TempDir(), "guiderelay")

	buildCommand := exec.Command("go", "build", "-o", temporaryBinaryPath, "./cmd/guiderelay")
	buildCommand.Dir = repositoryRoot

	commandOutput, buildErr := buildCommand.CombinedOutput()
	if buildErr != nil {
		t.Fatalf("go build failed: %v\n%s", buildErr, string(commandOutput))
	}

	helpOutput, helpErr := exec.Command(temporaryBinaryPath, "--help").CombinedOutput()
	if helpErr != nil {
		t.Fatalf("guiderelay --help failed: %v\n%s", helpErr, string(helpOutput))
	}
	for _, expected := range []string{"deliveries", "--config", "--port"} {
		if !strings.Contains(string(helpOutput), expected) {
			t.Fatalf("expected %q in help output:\n%s", expected, string(helpOutput))
		}
	}
}
