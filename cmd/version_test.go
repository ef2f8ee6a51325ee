package main

import "testing"

func TestVersionCommand(t *testing.T) {
	version = "1.2.3"
	testRunCommand(t, versionCmd(), cmdTest{
		args:        []string{"version"},
		expectedOut: []string{"1.2.3"},
	})
}
