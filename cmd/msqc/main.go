package main

// msqc computes quality-assurance metric panels for mass-spectrometry
// proteomics runs.
//
// Usage:
//
//    msqc [flags] <results-file-mask1> [<results-file-mask2> ...]
//
// Flags:
//
//    -workdir <dir>   change directory before doing anything else
//    -cpus <n>        worker count (default: logical processors)
//    -cfg <path>      load a YAML configuration file
//    -dump            print the effective configuration and exit
//    -<Key> <value>   override any configuration key, e.g. -MetricsType nistms
//
// Each mask selects identification inputs (idpDB files for nistms). For an
// idpDB, every spectrum source it records is paired with the raw file
// <source-name>.<RawDataFormat>, looked up next to the idpDB (or under
// -RawDataPath); the idpDB's own filename stem is not used. Other inputs
// are paired with <input-stem>.<RawDataFormat> in the same places. One
// <raw-stem>.qual.txt is written per run.

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/grailbio/msqc/qc"
)

// parsedArgs is the command line after flag extraction.
type parsedArgs struct {
	cfg   qc.Config
	cpus  int
	masks []string
}

// parseArgs consumes flags from args in the order the configuration is
// built up: -workdir, -cpus and -cfg first (among themselves in
// command-line order), then per-key overrides, then -dump. Unknown flags
// warn and are ignored; everything left over is a file mask.
func parseArgs(args []string) (*parsedArgs, error) {
	p := &parsedArgs{cfg: qc.DefaultConfig, cpus: runtime.NumCPU()}

	takeValue := func(i int) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("%s requires a value", args[i])
		}
		return args[i+1], nil
	}

	rest := args[:0]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-workdir":
			dir, err := takeValue(i)
			if err != nil {
				return nil, err
			}
			if err := os.Chdir(dir); err != nil {
				return nil, err
			}
			i++
		case "-cpus":
			v, err := takeValue(i)
			if err != nil {
				return nil, err
			}
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("-cpus: bad worker count %q", v)
			}
			p.cpus = n
			i++
		case "-cfg":
			path, err := takeValue(i)
			if err != nil {
				return nil, err
			}
			if err := p.cfg.LoadFile(path); err != nil {
				return nil, err
			}
			i++
		default:
			rest = append(rest, args[i])
		}
	}

	args = rest
	rest = args[:0]
	dump := false
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "-dump" {
			dump = true
			continue
		}
		if len(arg) > 1 && arg[0] == '-' {
			value, err := takeValueAt(args, i)
			if err == nil {
				switch err := p.cfg.Set(arg[1:], value); err {
				case nil:
					i++
					continue
				case qc.ErrUnknownKey:
					// Fall through to the unknown-flag warning.
				default:
					return nil, err
				}
			}
			log.Error.Printf("warning: ignoring unrecognized parameter %q", arg)
			continue
		}
		rest = append(rest, arg)
	}
	if dump {
		if err := p.cfg.Dump(os.Stdout); err != nil {
			return nil, err
		}
		os.Exit(0)
	}
	p.masks = rest
	return p, nil
}

func takeValueAt(args []string, i int) (string, error) {
	if i+1 >= len(args) {
		return "", fmt.Errorf("%s requires a value", args[i])
	}
	return args[i+1], nil
}

func main() {
	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	p, err := parseArgs(os.Args[1:])
	if err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
	if len(p.masks) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <results-file-mask1> [<results-file-mask2> ...]\n", os.Args[0])
		os.Exit(1)
	}

	inputs, err := qc.DiscoverSources(&p.cfg, p.masks)
	if err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "No data sources found with the given filemasks.")
		os.Exit(1)
	}

	if err := qc.Run(ctx, &p.cfg, inputs, p.cpus); err != nil {
		log.Error.Printf("%v", err)
		os.Exit(1)
	}
}
