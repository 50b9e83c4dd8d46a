// Command skillsync runs the SkillSync server and its operator tools.
package main

import (
	"os"

	"github.com/okian/skillsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// The logger may not be initialized when config loading fails.
		os.Stderr.WriteString("skillsync: " + err.Error() + "\n")
		os.Exit(1)
	}
}
