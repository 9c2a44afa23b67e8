// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package benchcmd provides utilities for implementing benchmark
// command line tools: it starts the executor selected by benchflags
// and arranges for its status to be displayed.
package benchcmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof" // Pprof is exposed on the diagnostic web server.
	"os"
	"sort"
	"strings"

	"github.com/MrPowers/coiled/benchflags"
	"github.com/MrPowers/coiled/dataframe"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
)

// Env is the execution environment of a benchmark command.
type Env struct {
	Executor dataframe.Executor
	// Status holds the status of the executor and of the benchmarks
	// that are run.
	Status *status.Status
}

// Close shuts down the environment's executor.
func (e *Env) Close() error {
	return e.Executor.Close()
}

// PrintSystemHelp writes help on the available system providers and
// profiles to w.
func PrintSystemHelp(w io.Writer) {
	providers, profiles := benchflags.ProvidersAndProfiles()
	sort.Strings(providers)
	fmt.Fprintf(w, "%s\n\n", benchflags.SystemHelpLong)
	fmt.Fprintf(w, "The available providers are: %v\n", strings.Join(providers, ", "))
	var str []string
	for k, v := range profiles {
		str = append(str, fmt.Sprintf("%v is shorthand for: %v\n", k, v))
	}
	sort.Strings(str)
	for _, s := range str {
		io.WriteString(w, s)
	}
}

// Init starts the executor configured by the supplied flags and
// displays its status as requested by them.
func Init(ctx context.Context, bf *benchflags.Flags) (*Env, error) {
	if bf.SystemHelp {
		PrintSystemHelp(bf.Output())
		os.Exit(0)
	}
	st := new(status.Status)
	// Ensure bigmachine's group is displayed first.
	_ = st.Group(dataframe.BigmachineStatusGroup)
	_ = st.Groups()
	exec, err := bf.Executor(ctx, st)
	if err != nil {
		return nil, err
	}
	env := &Env{Executor: exec, Status: st}
	DisplayStatus(bf, env)
	return env, nil
}

type debugHandler interface {
	HandleDebug(*http.ServeMux)
}

// DisplayStatus arranges for the execution status to be displayed on
// the console and/or a web page depending on the flags specified on the
// command line. The web page is hosted at /debug/status on
// http.DefaultServeMux.
func DisplayStatus(bf *benchflags.Flags, env *Env) {
	if bf.ConsoleStatus {
		var console status.Reporter
		go console.Go(os.Stdout, env.Status)
	}
	if len(bf.HTTPAddress.Address) > 0 {
		if h, ok := env.Executor.(debugHandler); ok {
			h.HandleDebug(http.DefaultServeMux)
		}
		http.Handle("/debug/status", status.Handler(env.Status))
		go func() {
			log.Printf("HTTP Status at: %v\n", bf.HTTPAddress)
			err := http.ListenAndServe(bf.HTTPAddress.Address, nil)
			if err != nil {
				log.Error.Printf("Failed to start HTTP at: %v: %v\n", bf.HTTPAddress, err)
			}
		}()
	}
}
