// Command hotupdate drives the hot-update lifecycle from the command line
// and serves the host bridge.
package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/hotupdate/cmd/hotupdate/commands"
	ferrors "git.home.luguber.info/inful/hotupdate/internal/foundation/errors"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Must(cli,
		kong.Name("hotupdate"),
		kong.Description("Stage, activate and roll back content updates"),
	)
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	global := &commands.Global{Logger: slog.Default()}
	if err := ctx.Run(global, cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, global.Logger).HandleError(err)
	}
}
