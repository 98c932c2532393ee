package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/simplechain-org/ethash"
	"github.com/simplechain-org/go-simplechain/common"
	"gopkg.in/urfave/cli.v1"
)

var makeCacheCommand = cli.Command{
	Name:      "makecache",
	Usage:     "generate an ethash verification cache and store it to disk",
	ArgsUsage: "<blockNum> <outputDir>",
	Action: func(ctx *cli.Context) error {
		block, dir, err := blockAndDir(ctx)
		if err != nil {
			return err
		}
		ethash.MakeCache(block, dir)
		return nil
	},
}

var makeDatasetCommand = cli.Command{
	Name:      "makedag",
	Usage:     "generate an ethash mining dataset and store it to disk",
	ArgsUsage: "<blockNum> <outputDir>",
	Action: func(ctx *cli.Context) error {
		block, dir, err := blockAndDir(ctx)
		if err != nil {
			return err
		}
		ethash.MakeDataset(block, dir)
		return nil
	},
}

var seedHashCommand = cli.Command{
	Name:      "seedhash",
	Usage:     "print the epoch seed hash for a block number",
	ArgsUsage: "<blockNum>",
	Action: func(ctx *cli.Context) error {
		if len(ctx.Args()) != 1 {
			return fmt.Errorf("require a block number, usage: seedhash <blockNum>")
		}
		block, err := strconv.ParseUint(ctx.Args()[0], 0, 64)
		if err != nil {
			return fmt.Errorf("invalid block number: %v", err)
		}
		fmt.Println("0x" + common.Bytes2Hex(ethash.SeedHash(block)))
		return nil
	},
}

var sizesCommand = cli.Command{
	Name:  "sizes",
	Usage: "print cache and dataset sizes for a range of epochs",
	Flags: []cli.Flag{
		fromFlag, toFlag,
	},
	Action: func(ctx *cli.Context) error {
		from, to := ctx.Uint64(fromFlag.Name), ctx.Uint64(toFlag.Name)
		if from >= to {
			return fmt.Errorf("invalid epoch range [%d, %d)", from, to)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Epoch", "First Block", "Cache Bytes", "Cache Size", "Dataset Bytes", "Dataset Size"})
		for epoch := from; epoch < to; epoch++ {
			block := epoch * ethash.EpochLength
			csize, dsize := ethash.CacheSize(block), ethash.DatasetSize(block)
			table.Append([]string{
				strconv.FormatUint(epoch, 10),
				strconv.FormatUint(block, 10),
				strconv.FormatUint(csize, 10),
				common.StorageSize(csize).String(),
				strconv.FormatUint(dsize, 10),
				common.StorageSize(dsize).String(),
			})
		}
		table.Render()
		return nil
	},
}

func blockAndDir(ctx *cli.Context) (uint64, string, error) {
	if len(ctx.Args()) != 2 {
		return 0, "", fmt.Errorf("require a block number and an output dir, usage: %s <blockNum> <outputDir>", ctx.Command.Name)
	}
	block, err := strconv.ParseUint(ctx.Args()[0], 0, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid block number: %v", err)
	}
	return block, ctx.Args()[1], nil
}

var (
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "log verbosity (0=silent, 5=trace)",
		Value: 3,
	}

	fromFlag = cli.Uint64Flag{
		Name:  "from",
		Usage: "first epoch to include in the report",
	}

	toFlag = cli.Uint64Flag{
		Name:  "to",
		Usage: "epoch to stop the report at (exclusive)",
		Value: 16,
	}
)
