package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootHasSubcommands(t *testing.T) {
	want := map[string]bool{"serve": false, "ingest": false, "ask": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)

	if err := versionCmd.RunE(versionCmd, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Tutor") {
		t.Errorf("version output: %q", buf.String())
	}
}

func TestIngestCommand_Flags(t *testing.T) {
	if ingestCmd.Flags().Lookup("clear") == nil {
		t.Error("ingest is missing the --clear flag")
	}
}

func TestAskCommand_Flags(t *testing.T) {
	if askCmd.Flags().Lookup("session") == nil {
		t.Error("ask is missing the --session flag")
	}
	if askCmd.Args == nil {
		t.Error("ask must require a question argument")
	}
}
