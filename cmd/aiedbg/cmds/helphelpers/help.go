package helphelpers

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Prepare hides the root command flags that do not apply to cmd before its
// usage is printed. The flags stay on the root command so that
//
//	aiedbg --listen :3000 serve
//
// and
//
//	aiedbg serve --listen :3000
//
// parse the same way.
//
// Prepare is destructive, cmd can not be reused after it has been called.
func Prepare(cmd *cobra.Command) {
	switch cmd.Name() {
	case "aiedbg", "help", "version", "log", "backend":
		hideAllFlags(cmd)
	case "console":
		hideFlag(cmd, "accept-multiclient")
		hideFlag(cmd, "backend")
		hideFlag(cmd, "listen")
	case "serve":
		hideFlag(cmd, "init")
	}
}

func hideAllFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().VisitAll(func(flag *pflag.Flag) {
		flag.Hidden = true
	})
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		flag.Hidden = true
	})
}

func hideFlag(cmd *cobra.Command, name string) {
	if cmd == nil {
		return
	}
	flag := cmd.Flags().Lookup(name)
	if flag != nil {
		flag.Hidden = true
		return
	}
	hideFlag(cmd.Parent(), name)
}
