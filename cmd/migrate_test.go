package main

import "testing"

func TestMigrateCommand(t *testing.T) {
	t.Setenv("SCRIPTYARD_DATA_PATH", t.TempDir())
	testRunCommand(t, migrateCmd(), cmdTest{
		args:        []string{"migrate"},
		expectedOut: []string{"migrations applied"},
	})
}
