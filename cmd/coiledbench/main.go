// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command coiledbench benchmarks aggregate computations (count, mean,
// group-by-sum) over partitioned CSV dataframes, varying the number of
// partitions and whether the dataframe is persisted in executor memory.
//
// For example:
//
//	coiledbench run \
//		--data s3://my-bucket/taxi/2019-01.csv,s3://my-bucket/taxi/2019-02.csv \
//		--schema vendor:string,passengers:int64,fare:float64 \
//		--partitions 1,4,16 --ops count,mean,groupby-sum \
//		--column fare --key vendor --value fare \
//		--system ec2:instance=m5.2xlarge --machines 8 \
//		--out s3://my-bucket/reports/taxi.md
//
// Executor flags (--system, --parallelism, --machines, ...) are shared by
// all subcommands; use --system-help for a description of the
// supported systems.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/MrPowers/coiled"
	"github.com/MrPowers/coiled/bench"
	"github.com/MrPowers/coiled/benchcmd"
	"github.com/MrPowers/coiled/benchconfig"
	"github.com/MrPowers/coiled/benchflags"
	"github.com/MrPowers/coiled/dataframe"
	"github.com/MrPowers/coiled/report"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/spf13/cobra"
)

func init() {
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

func main() {
	var fl benchflags.Flags
	benchflags.RegisterFlags(flag.CommandLine, &fl, "")
	benchconfig.RegisterFlags()
	log.AddFlags()

	root := newRootCmd(&fl)
	if err := root.Execute(); err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
}

func newRootCmd(fl *benchflags.Flags) *cobra.Command {
	root := &cobra.Command{
		Use:   "coiledbench",
		Short: "Benchmark aggregate computations over partitioned dataframes",
		Long: `Coiledbench times count, mean and group-by-sum aggregates over
partitioned CSV dataframes, for a matrix of partition counts, with and
without persisting the dataframe in executor memory first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			// Mark the Go flag set parsed; its values were set by cobra.
			return flag.CommandLine.Parse(nil)
		},
	}
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	root.AddCommand(newRunCmd(fl), newScenariosCmd())
	return root
}

type matrixFlags struct {
	ops        string
	partitions string
	persist    string
}

func (m *matrixFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&m.ops, "ops", "count,mean,groupby-sum",
		"Comma-separated operations: count, mean, groupby-sum")
	flags.StringVar(&m.partitions, "partitions", "1,4,16",
		"Comma-separated partition counts")
	flags.StringVar(&m.persist, "persist", "both",
		"Persist frames before running: both, true, false")
}

func (m *matrixFlags) scenarios() ([]bench.Scenario, error) {
	ops, err := bench.ParseOps(m.ops)
	if err != nil {
		return nil, err
	}
	for _, op := range ops {
		if _, err := dataframe.Computation(op); err != nil {
			return nil, err
		}
	}
	partitions, err := bench.ParsePartitions(m.partitions)
	if err != nil {
		return nil, err
	}
	persist, err := bench.ParsePersist(m.persist)
	if err != nil {
		return nil, err
	}
	return bench.Matrix(ops, partitions, persist), nil
}

func newScenariosCmd() *cobra.Command {
	var matrix matrixFlags
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "Print the labels of the benchmark scenarios that run would execute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scenarios, err := matrix.scenarios()
			if err != nil {
				return err
			}
			for _, sc := range scenarios {
				fmt.Fprintln(cmd.OutOrStdout(), sc.Label())
			}
			return nil
		},
	}
	matrix.register(cmd)
	return cmd
}

type runConfig struct {
	matrix    matrixFlags
	data      []string
	schema    string
	noHeader  bool
	comma     string
	column    string
	key       string
	value     string
	out       string
	format    string
	keepGoing bool
	useConfig bool
}

func newRunCmd(fl *benchflags.Flags) *cobra.Command {
	var cfg runConfig
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark matrix and report timings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBenchmarks(cmd.Context(), fl, cfg)
		},
	}
	cfg.matrix.register(cmd)
	flags := cmd.Flags()
	flags.StringSliceVar(&cfg.data, "data", nil,
		"CSV files (local paths or s3:// URLs) backing the dataframe")
	flags.StringVar(&cfg.schema, "schema", "",
		"Dataframe schema as name:type,... (types: string, int64, float64)")
	flags.BoolVar(&cfg.noHeader, "no-header", false,
		"The CSV files have no header row")
	flags.StringVar(&cfg.comma, "comma", ",",
		"CSV field delimiter")
	flags.StringVar(&cfg.column, "column", "",
		"Column aggregated by mean")
	flags.StringVar(&cfg.key, "key", "",
		"Grouping column of groupby-sum")
	flags.StringVar(&cfg.value, "value", "",
		"Summed column of groupby-sum")
	flags.StringVar(&cfg.out, "out", "",
		"Write the report to this path (local or s3://)")
	flags.StringVar(&cfg.format, "format", "",
		"Report format: md, csv or json (default: from --out extension)")
	flags.BoolVar(&cfg.keepGoing, "keep-going", false,
		"Log and skip failed scenarios instead of aborting")
	flags.BoolVar(&cfg.useConfig, "use-config", false,
		"Configure the executor from the coiled config profile instead of --system")
	return cmd
}

func runBenchmarks(ctx context.Context, fl *benchflags.Flags, cfg runConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// Start the executor first: in bigmachine worker processes, this
	// does not return.
	var (
		env *benchcmd.Env
		err error
	)
	if cfg.useConfig {
		env = &benchcmd.Env{Executor: benchconfig.Executor(), Status: new(status.Status)}
		benchcmd.DisplayStatus(fl, env)
	} else if env, err = benchcmd.Init(ctx, fl); err != nil {
		return fmt.Errorf("start executor: %v", err)
	}
	defer env.Close()
	log.Printf("executor: %s", env.Executor.Name())

	if len(cfg.data) == 0 {
		return fmt.Errorf("at least one data file must be specified via --data")
	}
	schema, err := dataframe.ParseSchema(cfg.schema)
	if err != nil {
		return fmt.Errorf("parse schema: %v", err)
	}
	scenarios, err := cfg.matrix.scenarios()
	if err != nil {
		return err
	}
	format := report.Markdown
	if cfg.format != "" {
		if format, err = report.ParseFormat(cfg.format); err != nil {
			return err
		}
	} else if cfg.out != "" {
		format = report.FormatOf(cfg.out)
	}
	comma := []rune(cfg.comma)
	if len(comma) != 1 {
		return fmt.Errorf("invalid delimiter %q", cfg.comma)
	}
	options := coiled.Options{}
	for name, val := range map[string]string{"column": cfg.column, "key": cfg.key, "value": cfg.value} {
		if val != "" {
			options[name] = val
		}
	}

	var (
		benchLog = coiled.NewLog()
		suite    = &bench.Suite{
			Harness:  new(coiled.Harness),
			Executor: env.Executor,
			Format: dataframe.Format{
				Schema: schema,
				Header: !cfg.noHeader,
				Comma:  comma[0],
			},
			Paths:     cfg.data,
			Options:   options,
			KeepGoing: cfg.keepGoing,
			Status:    env.Status.Group("benchmarks"),
		}
	)
	log.Printf("running %d scenarios over %s", len(scenarios), strings.Join(cfg.data, ", "))
	runErr := suite.Run(ctx, benchLog, scenarios)
	if benchLog.Len() > 0 {
		if err := report.WriteMarkdown(os.Stdout, benchLog); err != nil {
			return err
		}
		if cfg.out != "" {
			if err := report.Write(ctx, cfg.out, format, benchLog); err != nil {
				return fmt.Errorf("write report %s: %v", cfg.out, err)
			}
			log.Printf("wrote report to %s", cfg.out)
		}
	}
	return runErr
}
