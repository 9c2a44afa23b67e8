// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package benchconfig provides a mechanism to create a dataframe
// executor from a shared configuration. Benchconfig uses the
// configuration mechanism in package github.com/grailbio/base/config,
// and reads a default profile from $HOME/.coiled/config.
//
// The "coiled" instance accepts the parameters parallelism, machines
// and system, for example:
//
//	param coiled (
//		system = bigmachine/ec2system
//		machines = 8
//	)
package benchconfig

import (
	"context"
	"flag"
	"os"

	"github.com/MrPowers/coiled/dataframe"
	"github.com/grailbio/base/config"
	"github.com/grailbio/base/must"
	"github.com/grailbio/bigmachine"

	// Used to provide ec2system.System bigmachines.
	_ "github.com/grailbio/bigmachine/ec2system"
)

// Name is the name of the configuration instance that provides the
// executor.
const Name = "coiled"

// Path determines the location of the coiled profile read by Parse.
var Path = os.ExpandEnv("$HOME/.coiled/config")

func init() {
	config.Register(Name, func(constr *config.Constructor) {
		var (
			parallelism int
			machines    int
			system      bigmachine.System
		)
		constr.IntVar(&parallelism, "parallelism", 0, "number of partitions processed concurrently in-process; 0 uses GOMAXPROCS")
		constr.IntVar(&machines, "machines", 4, "number of bigmachine machines, when a system is configured")
		constr.InstanceVar(&system, "system", "", "the bigmachine system used for execution; in-process if empty")
		constr.Doc = "coiled configures the executor of dataframe benchmarks"
		constr.New = func() (interface{}, error) {
			if system == nil {
				return dataframe.Local(parallelism), nil
			}
			return dataframe.Bigmachine(context.Background(), system, machines)
		}
	})
}

// RegisterFlags registers the configuration flags (for example,
// -profile and -set) with the default flag set.
func RegisterFlags() {
	config.RegisterFlags("", Path)
}

// Executor processes the configuration flags and returns the
// configured executor. RegisterFlags must be called, and flags parsed,
// beforehand. Executor panics if the executor cannot be created.
func Executor() dataframe.Executor {
	must.Nil(config.ProcessFlags())
	var exec dataframe.Executor
	config.Must(Name, &exec)
	return exec
}

// Parse registers configuration flags, calls flag.Parse, and returns
// the executor configured by the profile at Path and by any flags
// provided.
func Parse() dataframe.Executor {
	RegisterFlags()
	flag.Parse()
	return Executor()
}
