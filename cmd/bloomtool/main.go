// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/cfgstruct"
	"storj.io/common/fpath"
	"storj.io/common/process"
	"storj.io/redisbloom/bitset"
	"storj.io/redisbloom/bloomfilter"
	"storj.io/redisbloom/private/kvstore"
	"storj.io/redisbloom/private/kvstore/redis"
	"storj.io/redisbloom/private/kvstore/storelogger"
)

var (
	rootCmd = &cobra.Command{
		Use:   "bloomtool",
		Short: "Inspect and maintain bloom filters stored in redis",
	}
	setupCmd = &cobra.Command{
		Use:         "setup",
		Short:       "Create config files",
		RunE:        cmdSetup,
		Annotations: map[string]string{"type": "setup"},
	}
	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "Print the parameters derived from the configuration without connecting",
		Args:  cobra.NoArgs,
		RunE:  cmdPlan,
	}
	allocateCmd = &cobra.Command{
		Use:   "allocate",
		Short: "Allocate the full bit vector of the filter",
		Args:  cobra.NoArgs,
		RunE:  cmdAllocate,
	}
	addCmd = &cobra.Command{
		Use:   "add <element>...",
		Short: "Add elements to the filter",
		Args:  cobra.MinimumNArgs(1),
		RunE:  cmdAdd,
	}
	testCmd = &cobra.Command{
		Use:   "test <element>...",
		Short: "Test whether elements might have been added",
		Args:  cobra.MinimumNArgs(1),
		RunE:  cmdTest,
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print the state of the filter",
		Args:  cobra.NoArgs,
		RunE:  cmdStats,
	}
	exportCmd = &cobra.Command{
		Use:   "export <file>",
		Short: "Write the raw bit vector to a file",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdExport,
	}
	destroyCmd = &cobra.Command{
		Use:   "destroy",
		Short: "Delete the filter and its insertion counter",
		Args:  cobra.NoArgs,
		RunE:  cmdDestroy,
	}
	confDir string

	runCfg   Config
	setupCfg Config
)

// Config is the configuration of bloomtool.
type Config struct {
	Redis    redis.Config
	Filter   bloomfilter.Config
	Encoding string `help:"element encoding: string or int64" default:"string"`
	Debug    bool   `help:"log every command sent to redis" default:"false"`
}

func cmdSetup(cmd *cobra.Command, args []string) (err error) {
	setupDir, err := filepath.Abs(confDir)
	if err != nil {
		return err
	}

	valid, _ := fpath.IsValidSetupDir(setupDir)
	if !valid {
		return fmt.Errorf("bloomtool configuration already exists (%v)", setupDir)
	}

	err = os.MkdirAll(setupDir, 0700)
	if err != nil {
		return err
	}

	return process.SaveConfig(cmd, filepath.Join(setupDir, "config.yaml"))
}

func cmdPlan(cmd *cobra.Command, args []string) error {
	return printPlan(cmd.OutOrStdout(), runCfg.Filter)
}

func cmdAllocate(cmd *cobra.Command, args []string) error {
	return withTool(cmd, func(ctx context.Context, tool tool) error {
		if err := tool.Allocate(ctx); err != nil {
			return err
		}
		return tool.CheckCompatible(ctx)
	})
}

func cmdAdd(cmd *cobra.Command, args []string) error {
	return withTool(cmd, func(ctx context.Context, tool tool) error {
		added, err := tool.Add(ctx, args)
		if err != nil {
			return err
		}
		return printResults(cmd.OutOrStdout(), args, added, "added", "present")
	})
}

func cmdTest(cmd *cobra.Command, args []string) error {
	return withTool(cmd, func(ctx context.Context, tool tool) error {
		found, err := tool.Test(ctx, args)
		if err != nil {
			return err
		}
		return printResults(cmd.OutOrStdout(), args, found, "maybe", "absent")
	})
}

func cmdStats(cmd *cobra.Command, args []string) error {
	return withTool(cmd, func(ctx context.Context, tool tool) error {
		stats, err := tool.Stats(ctx)
		if err != nil {
			return err
		}
		return printStats(cmd.OutOrStdout(), stats)
	})
}

func cmdExport(cmd *cobra.Command, args []string) error {
	return withTool(cmd, func(ctx context.Context, tool tool) error {
		snapshot, err := tool.Snapshot(ctx)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], snapshot, 0644); err != nil {
			return errs.Wrap(err)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes, %d bits set\n", len(snapshot), snapshot.Count())
		return err
	})
}

func cmdDestroy(cmd *cobra.Command, args []string) error {
	return withTool(cmd, func(ctx context.Context, tool tool) error {
		return tool.Delete(ctx)
	})
}

// withTool connects to redis, opens the configured filter and runs fn.
func withTool(cmd *cobra.Command, fn func(ctx context.Context, tool tool) error) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	client, err := redis.Open(ctx, runCfg.Redis)
	if err != nil {
		return errs.New("Error connecting to redis: %+v", err)
	}
	defer func() { err = errs.Combine(err, client.Close()) }()

	var store kvstore.BitStore = client
	if runCfg.Debug {
		store = storelogger.New(log.Named("redis"), client)
	}

	tool, err := openTool(ctx, log, store, runCfg.Filter, Encoding(runCfg.Encoding))
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, tool.Close()) }()

	return fn(ctx, tool)
}

func printPlan(w io.Writer, config bloomfilter.Config) error {
	if config.ExpectedInsertions <= 0 {
		return bloomfilter.ErrConfig.New("expected insertions (%d) must be > 0", config.ExpectedInsertions)
	}
	if !(config.FalsePositiveProbability > 0 && config.FalsePositiveProbability < 1) {
		return bloomfilter.ErrConfig.New("false positive probability (%v) must be in (0, 1)", config.FalsePositiveProbability)
	}
	strategy, err := bloomfilter.ParseStrategy(config.Strategy)
	if err != nil {
		return err
	}

	bits := bloomfilter.OptimalNumOfBits(config.ExpectedInsertions, config.FalsePositiveProbability)
	k := bloomfilter.OptimalNumOfHashFunctions(config.ExpectedInsertions, bits)
	keys := bloomfilter.KeysFor(config.Name)

	_, err = fmt.Fprintf(w, "keys:           %s, %s\n"+
		"bits:           %d (%d bytes)\n"+
		"hash functions: %d\n"+
		"strategy:       %s\n"+
		"predicted fpp:  %g at %d insertions\n",
		keys.Bits, keys.Counts,
		bits, bitset.ByteLen(bits),
		k,
		strategy,
		bloomfilter.EstimateFalsePositiveRate(bits, k, config.ExpectedInsertions), config.ExpectedInsertions)
	return err
}

func printResults(w io.Writer, args []string, results []bool, yes, no string) error {
	for i, arg := range args {
		status := no
		if results[i] {
			status = yes
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", status, arg); err != nil {
			return err
		}
	}
	return nil
}

func printStats(w io.Writer, stats bloomfilter.Stats) error {
	_, err := fmt.Fprintf(w, "name:               %s\n"+
		"bits:               %d\n"+
		"hash functions:     %d\n"+
		"strategy:           %s\n"+
		"bits set:           %d\n"+
		"estimated elements: %d\n"+
		"insertion count:    %d\n"+
		"expected fpp:       %g\n",
		stats.Name,
		stats.BitSize,
		stats.NumHashFunctions,
		stats.Strategy,
		stats.BitsSet,
		stats.EstimatedElements,
		stats.InsertionCount,
		stats.ExpectedFpp)
	return err
}

func init() {
	defaultConfDir := fpath.ApplicationDir("storj", "bloomtool")
	cfgstruct.SetupFlag(zap.L(), rootCmd, &confDir, "config-dir", defaultConfDir, "main directory for bloomtool configuration")
	defaults := cfgstruct.DefaultsFlag(rootCmd)
	rootCmd.AddCommand(setupCmd)
	process.Bind(setupCmd, &setupCfg, defaults, cfgstruct.ConfDir(confDir), cfgstruct.SetupMode())
	for _, cmd := range []*cobra.Command{planCmd, allocateCmd, addCmd, testCmd, statsCmd, exportCmd, destroyCmd} {
		rootCmd.AddCommand(cmd)
		process.Bind(cmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	}
}

func main() {
	logger, _, _ := process.NewLogger("bloomtool")
	zap.ReplaceGlobals(logger)

	process.Exec(rootCmd)
}
