package github

import "strings"

// ciIndicators are the top-level files and directories that signal a
// configured CI/CD pipeline.
var ciIndicators = []string{
	".github",
	".gitlab-ci.yml",
	".travis.yml",
	"circle.yml",
	".circleci",
	"Jenkinsfile",
	".drone.yml",
	"azure-pipelines.yml",
}

var testIndicators = []string{
	"test",
	"tests",
	"__tests__",
	"spec",
	"specs",
	"test_",
	"tests_",
}

// DetectCIConfig reports whether the top-level file structure contains a
// known CI/CD configuration entry.
func DetectCIConfig(files []string) bool {
	for _, f := range files {
		for _, indicator := range ciIndicators {
			if f == indicator {
				return true
			}
		}
	}
	return false
}

// DetectTests reports whether any top-level entry looks like a test file or
// directory.
func DetectTests(files []string) bool {
	for _, f := range files {
		lower := strings.ToLower(f)
		for _, indicator := range testIndicators {
			if strings.Contains(lower, indicator) {
				return true
			}
		}
	}
	return false
}

// DetectContributing reports whether a CONTRIBUTING file is present.
func DetectContributing(files []string) bool {
	for _, f := range files {
		if strings.Contains(strings.ToLower(f), "contributing") {
			return true
		}
	}
	return false
}
