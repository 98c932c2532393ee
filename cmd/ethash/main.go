package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/simplechain-org/go-simplechain/log"
	"gopkg.in/urfave/cli.v1"
)

var app = cli.NewApp()

func init() {
	app.Name = "ethash"
	app.Usage = "ethash cache and dataset utility"
	app.Flags = []cli.Flag{verbosityFlag}
	app.Before = setupLogger
	app.Commands = []cli.Command{
		makeCacheCommand, makeDatasetCommand, seedHashCommand, sizesCommand,
	}
}

// ethash makecache 30000 ./ethash
// ethash makedag 30000 ./ethash
// ethash seedhash 30000
// ethash sizes --from=0 --to=16
func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogger(ctx *cli.Context) error {
	usecolor := isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("TERM") != "dumb"

	output := io.Writer(os.Stderr)
	if usecolor {
		output = colorable.NewColorableStderr()
	}
	glogger := log.NewGlogHandler(log.StreamHandler(output, log.TerminalFormat(usecolor)))
	glogger.Verbosity(log.Lvl(ctx.GlobalInt(verbosityFlag.Name)))
	log.Root().SetHandler(glogger)

	return nil
}
