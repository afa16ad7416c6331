package config

import (
	"flag"
	"strconv"
	"strings"
)

// intFlag is an int flag that remembers whether it was given, so that any
// explicit value, including 0 or a negative one, reaches Validate.
type intFlag struct {
	value int
	set   bool
}

func newIntFlag(name, usage string) *intFlag {
	f := &intFlag{}
	flag.Var(f, name, usage)
	return f
}

func (f *intFlag) String() string {
	if f == nil || !f.set {
		return ""
	}
	return strconv.Itoa(f.value)
}

func (f *intFlag) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	f.value, f.set = v, true
	return nil
}

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagSaveConfig = flag.String("save-config", "", "Write the effective config to this file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagTess       = newIntFlag("tess", "Bezier patch tessellation level")
	flagWorkers    = newIntFlag("workers", "Parallel face builders (0 = GOMAXPROCS)")
	flagLightmaps  = flag.Bool("lightmaps", false, "Apply lightmaps to materials")
	flagPK3        = flag.String("pk3", "", "Comma-separated pk3 archives to search for textures")
	flagOut        = flag.String("out", "", "Output directory")
)

// ParseArgs parses flags from args instead of os.Args, for subcommands.
func ParseArgs(args []string) error {
	return flag.CommandLine.Parse(args)
}

// Args returns the non-flag command-line arguments.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// SaveConfigPath returns the -save-config target, or "" when not requested.
func SaveConfigPath() string {
	return *flagSaveConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if flagTess.set {
		cfg.Map.Tessellation = flagTess.value
	}
	if flagWorkers.set {
		cfg.Map.Workers = flagWorkers.value
	}
	if *flagLightmaps {
		cfg.Map.ApplyLightmaps = true
	}
	if *flagOut != "" {
		cfg.Output.Dir = *flagOut
	}
	if *flagPK3 != "" {
		for _, p := range strings.Split(*flagPK3, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Assets.PK3Paths = append(cfg.Assets.PK3Paths, p)
			}
		}
	}
}
