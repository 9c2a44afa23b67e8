// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package benchflags provides flags that select and configure the
// executor used by coiled benchmark commands.
package benchflags

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/user"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/MrPowers/coiled/dataframe"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bigmachine/ec2system"
)

var (
	mu        sync.Mutex
	providers = map[string]Provider{} // protected by mu
	profiles  = map[string]string{}   // protected by mu
)

// Provider represents a system that can run dataframe executors,
// configured by setting some set of options via Set.
type Provider interface {
	// Name returns the name of a provider instance.
	Name() string
	// Set sets one or more options for the system to be provided. The
	// options may be specified as key=val.
	Set(string) error
	// Executor starts and returns an executor on the configured
	// system.
	Executor(ctx context.Context, parallelism, machines int, st *status.Status) (dataframe.Executor, error)
	// DefaultParallelism returns the default degree of parellelism to use
	// for this provider.
	DefaultParallelism() int
	// DefaultMachines returns the default number of machines to start.
	DefaultMachines() int
}

// RegisterSystemProvider registers a 'system' provider.
func RegisterSystemProvider(name string, provider Provider) {
	mu.Lock()
	defer mu.Unlock()
	if _, present := providers[name]; present {
		log.Panicf("system %s is already registered", name)
	}
	providers[name] = provider
}

// RegisterSystemProfile registers a system 'profile', which is a
// named shorthand for a system and any associated options. For example
// an application that registers a profile of:
//
//	benchflags.RegisterSystemProfile("taxi-ec2", "ec2:instance=m5.4xlarge,dataspace=500")
//
// can accept
//
//	-system=taxi-ec2
//
// as a synonym for
//
//	-system=ec2:instance=m5.4xlarge,dataspace=500
func RegisterSystemProfile(name, profile string) {
	mu.Lock()
	defer mu.Unlock()
	if _, present := providers[name]; present {
		log.Panicf("profile %s is already used as a provider name", name)
	}
	if _, present := profiles[name]; present {
		log.Panicf("profile %s is already registered", name)
	}
	profiles[name] = profile
}

// ProvidersAndProfiles returns the supported providers and profiles.
func ProvidersAndProfiles() ([]string, map[string]string) {
	mu.Lock()
	defer mu.Unlock()
	prv := make([]string, 0, len(providers))
	for k := range providers {
		prv = append(prv, k)
	}
	prf := make(map[string]string, len(profiles))
	for k, v := range profiles {
		prf[k] = v
	}
	return prv, prf
}

// Internal evaluates partitions in-process.
type Internal struct{}

// Name implements Provider.Name.
func (i *Internal) Name() string {
	return "internal"
}

// Set implements Provider.Set.
func (i *Internal) Set(_ string) error {
	return fmt.Errorf("the internal system provider does not support any configuration")
}

// Executor implements Provider.Executor.
func (i *Internal) Executor(_ context.Context, parallelism, _ int, _ *status.Status) (dataframe.Executor, error) {
	return dataframe.Local(parallelism), nil
}

// DefaultParallelism implements Provider.DefaultParallelism.
func (i *Internal) DefaultParallelism() int {
	return runtime.GOMAXPROCS(0)
}

// DefaultMachines implements Provider.DefaultMachines.
func (i *Internal) DefaultMachines() int {
	return 0
}

// Local evaluates partitions on bigmachine machines that run as
// separate processes on the local machine.
type Local struct{}

// Name implements Provider.Name.
func (l *Local) Name() string {
	return "local"
}

// Set implements Provider.Set.
func (l *Local) Set(_ string) error {
	return fmt.Errorf("the local system provider does not support any configuration")
}

// Executor implements Provider.Executor.
func (l *Local) Executor(ctx context.Context, _, machines int, st *status.Status) (dataframe.Executor, error) {
	return dataframe.Bigmachine(ctx, bigmachine.Local, machines, dataframe.Status(st))
}

// DefaultParallelism implements Provider.DefaultParallelism.
func (l *Local) DefaultParallelism() int {
	return runtime.GOMAXPROCS(0)
}

// DefaultMachines implements Provider.DefaultMachines.
func (l *Local) DefaultMachines() int {
	return 2
}

// EC2 evaluates partitions on bigmachine machines running on AWS EC2.
type EC2 struct {
	Options map[string]interface{}
}

// Name implements Provider.Name.
func (ec2 *EC2) Name() string {
	return "EC2"
}

// Set implements Provider.Set.
func (ec2 *EC2) Set(v string) error {
	if ec2.Options == nil {
		ec2.Options = make(map[string]interface{}, 5)
	}
	parts := strings.Split(v, "=")
	if len(parts) != 2 {
		return fmt.Errorf("not in key=val format %q", v)
	}
	key, val := parts[0], parts[1]
	switch key {
	case "dataspace", "rootsize":
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("not an int: %v", val)
		}
		ec2.Options[key] = uint(i)
	case "instance", "profile":
		ec2.Options[key] = val
	case "ondemand":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("not a bool: %v", val)
		}
		ec2.Options[key] = b
	default:
		return fmt.Errorf("unsupported option: %v", key)
	}
	return nil
}

// DefaultParallelism implements Provider.DefaultParallelism.
func (ec2 *EC2) DefaultParallelism() int {
	return runtime.GOMAXPROCS(0)
}

// DefaultMachines implements Provider.DefaultMachines.
func (ec2 *EC2) DefaultMachines() int {
	return 4
}

// System returns the ec2system configured by the provider's options.
func (ec2 *EC2) System() *ec2system.System {
	instance := &ec2system.System{
		Username: "unknown",
	}
	if u, err := user.Current(); err == nil {
		instance.Username = u.Username
	} else {
		log.Printf("newec2: get current user: %v", err)
	}
	for key, val := range ec2.Options {
		switch key {
		case "instance":
			instance.InstanceType = val.(string)
		case "dataspace":
			instance.Dataspace = val.(uint)
		case "rootsize":
			instance.Diskspace = val.(uint)
		case "profile":
			instance.InstanceProfile = val.(string)
		case "ondemand":
			instance.OnDemand = val.(bool)
		}
	}
	return instance
}

// Executor implements Provider.Executor.
func (ec2 *EC2) Executor(ctx context.Context, _, machines int, st *status.Status) (dataframe.Executor, error) {
	return dataframe.Bigmachine(ctx, ec2.System(), machines, dataframe.Status(st))
}

func init() {
	RegisterSystemProvider("local", &Local{})
	RegisterSystemProvider("internal", &Internal{})
	RegisterSystemProvider("ec2", &EC2{})
}

// SystemHelpShort is a short explanation of the allowed SystemFlags values.
func SystemHelpShort(prefix string) string {
	const format = `a system is specified as follows: {local,internal,ec2:[key=val,],name}, use -%s for more information.`
	return fmt.Sprintf(format, prefix+"system-help")
}

// SystemHelpLong is a complete explanation of the allowed SystemFlags values.
const SystemHelpLong = `A system is specified as follows:

<system-type>:<options> where options is [key=value,]+

The currently supported system types and their options are as follows:

internal: in-process execution, the default.
local: same machine, separate process execution on bigmachine workers.
ec2: AWS EC2 execution on bigmachine workers. The supported options are:
	instance=<AWS instance type> - the AWS instance type, e.g. m4.xlarge
	dataspace=<number> - size of the data volume in GiB, typically /mnt/data.
	rootsize=<number> - size of the root volume in GiB.
	ondemand - true to use on-demand rather than spot instances
	profile - the aws instance profile to use instead of a default

In addition, an application may register 'profiles' that are shorthand
for the above, eg. "taxi-ec2" can be configured as a synonym for
ec2:instance=m4.xlarge,dataspace=200.
`

// SystemFlag represents a flag that can be used to specify a system.
type SystemFlag struct {
	Provider  Provider
	Options   []string
	Specified bool
}

// String implements flag.Value.String
func (sys *SystemFlag) String() string {
	if sys.Provider == nil {
		return ""
	}
	if len(sys.Options) == 0 {
		return sys.Provider.Name()
	}
	return fmt.Sprintf("%v:%v", sys.Provider.Name(), strings.Join(sys.Options, ","))
}

// Set implements flag.Value.Set
func (sys *SystemFlag) Set(v string) error {
	parse := func(s string) (name string, options []string) {
		parts := strings.SplitN(s, ":", 2)
		name = parts[0]
		if len(parts) > 1 {
			options = strings.Split(parts[1], ",")
		}
		return
	}

	name, options := parse(v)
	mu.Lock()
	if profile, ok := profiles[name]; ok {
		var profileOptions []string
		name, profileOptions = parse(profile)
		options = append(profileOptions, options...)
	}
	provider, ok := providers[name]
	mu.Unlock()
	if !ok {
		return fmt.Errorf("unsupported system or profile type: %v", name)
	}
	for _, opt := range options {
		if err := provider.Set(opt); err != nil {
			return err
		}
	}
	sys.Options = options
	sys.Provider = provider
	sys.Specified = true
	return nil
}

// Get implements flag.Value.Get
func (sys *SystemFlag) Get() interface{} {
	return sys.String()
}

// Flags represents all of the flags that can be used to configure
// the executor of a benchmark command.
type Flags struct {
	System        SystemFlag
	SystemHelp    bool
	HTTPAddress   cmdutil.NetworkAddressFlag
	ConsoleStatus bool
	Parallelism   int
	Machines      int
	fs            *flag.FlagSet
}

// Output returns an appropriate io.Writer for printing out help/usage
// messages as per the underlying flag.Flagset.
func (bf *Flags) Output() io.Writer {
	if bf.fs == nil {
		return os.Stderr
	}
	if wr := bf.fs.Output(); wr != nil {
		return wr
	}
	return os.Stderr
}

// RegisterFlags registers the executor command line flags with the
// supplied flag set. The flag names will be prefixed with the supplied
// prefix.
func RegisterFlags(fs *flag.FlagSet, bf *Flags, prefix string) {
	RegisterFlagsWithDefaults(fs, bf, prefix, Defaults{
		System:        "internal",
		HTTPAddress:   "",
		ConsoleStatus: false,
		Parallelism:   0,
		Machines:      0,
	})
}

// Executor starts the executor specified by the flags. Status is
// published to st, which may be nil.
func (bf *Flags) Executor(ctx context.Context, st *status.Status) (dataframe.Executor, error) {
	if bf.System.Provider == nil {
		if err := bf.System.Set("internal"); err != nil {
			return nil, err
		}
	}
	provider := bf.System.Provider
	parallelism := bf.Parallelism
	if parallelism <= 0 {
		parallelism = provider.DefaultParallelism()
	}
	machines := bf.Machines
	if machines <= 0 {
		machines = provider.DefaultMachines()
	}
	return provider.Executor(ctx, parallelism, machines, st)
}

// Defaults represents default values for the supported flags.
type Defaults struct {
	System        string
	HTTPAddress   string
	ConsoleStatus bool
	Parallelism   int
	Machines      int
}

// RegisterFlagsWithDefaults registers the executor command line flags
// with the supplied flag set and defaults. The flag names will be
// prefixed with the supplied prefix.
func RegisterFlagsWithDefaults(fs *flag.FlagSet, bf *Flags, prefix string, defaults Defaults) {
	fs.Var(&bf.System, prefix+"system", SystemHelpShort(prefix))
	bf.System.Set(defaults.System)
	bf.System.Specified = false
	fs.Var(&bf.HTTPAddress, prefix+"http", "address of http status server")
	if defaults.HTTPAddress != "" {
		bf.HTTPAddress.Set(defaults.HTTPAddress)
		bf.HTTPAddress.Specified = false
	}
	fs.BoolVar(&bf.ConsoleStatus, prefix+"console-status", defaults.ConsoleStatus, "print status to stdout")
	fs.IntVar(&bf.Parallelism, prefix+"parallelism", defaults.Parallelism, "maximum number of partitions processed concurrently by the internal system, 0 requests an appropriate default")
	fs.IntVar(&bf.Machines, prefix+"machines", defaults.Machines, "number of bigmachine machines to start, 0 requests an appropriate default for the system")
	fs.BoolVar(&bf.SystemHelp, prefix+"system-help", false, "provide help on system providers and profiles")
	bf.fs = fs
}
