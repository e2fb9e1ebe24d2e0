// Command uprogd boots a user-program kernel, runs one command line on it
// and exits with the program's exit status.
//
//	uprogd [--config FILE] [--disk FILE] [--put HOST[:NAME]]... PROGRAM [ARG...]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/containerd/log"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/ucd-os-blue-s18/pintos-p2/internal/config"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/console"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/fsys"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/fsys/boltfs"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/fsys/memfs"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/kernel"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/loader"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/programs"
	"github.com/ucd-os-blue-s18/pintos-p2/internal/version"
)

type options struct {
	configFile string
	debug      bool
	disk       string
	puts       []string
	version    bool
}

func main() {
	var opts options
	flags := pflag.NewFlagSet("uprogd", pflag.ExitOnError)
	flags.StringVar(&opts.configFile, "config", "", "Path to configuration file")
	flags.BoolVar(&opts.debug, "debug", false, "Debug log level")
	flags.StringVar(&opts.disk, "disk", "", "Bolt database holding the filesystem (default: in memory)")
	flags.StringArrayVar(&opts.puts, "put", nil, "Copy host file HOST[:NAME] into the filesystem before running")
	flags.BoolVar(&opts.version, "version", false, "Print version and exit")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: uprogd [flags] PROGRAM [ARG...]\n\nflags:\n")
		flags.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nbuilt-in programs: %s\n", strings.Join(builtins(), " "))
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if opts.version {
		fmt.Println(version.Info())
		return
	}
	if flags.NArg() == 0 {
		flags.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		log.L.WithError(err).Fatal("failed to load configuration")
	}

	ctx := context.Background()
	status, err := run(ctx, cfg, opts.puts, strings.Join(flags.Args(), " "))
	switch {
	case errors.Is(err, kernel.ErrHalted):
		log.G(ctx).Debug("powered off")
		os.Exit(0)
	case err != nil:
		log.G(ctx).WithError(err).Error("run failed")
		os.Exit(1)
	}
	os.Exit(status & 0xff)
}

func loadConfig(opts options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configFile != "" {
		cfg, err = config.LoadFrom(opts.configFile)
	} else {
		cfg, err = config.Get()
	}
	if err != nil {
		return nil, err
	}

	// Flags take precedence over the file.
	if opts.disk != "" {
		cfg.Storage.Backend = config.BackendBolt
		cfg.Storage.Path = opts.disk
	}
	if opts.debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := log.SetLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	if err := log.SetFormat(log.OutputFormat(cfg.Log.Format)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openFS(cfg *config.Config) (*fsys.FS, error) {
	opts := []fsys.Option{
		fsys.WithNameMax(cfg.Files.NameMax),
		fsys.WithMaxSize(int64(cfg.Files.MaxSize)),
	}
	switch cfg.Storage.Backend {
	case config.BackendBolt:
		return boltfs.New(cfg.Storage.Path, opts...)
	default:
		return memfs.New(opts...), nil
	}
}

func run(ctx context.Context, cfg *config.Config, puts []string, cmdline string) (int, error) {
	fs, err := openFS(cfg)
	if err != nil {
		return -1, err
	}
	defer func() {
		if err := fs.Close(); err != nil {
			log.G(ctx).WithError(err).Warn("failed to close filesystem")
		}
	}()

	reg := loader.NewRegistry()
	programs.Register(reg)
	cons := console.NewHost()
	k := kernel.New(fs, cons, reg, kernel.Options{
		StackPages: cfg.Memory.StackPages,
		DataPages:  cfg.Memory.DataPages,
		MaxOpen:    cfg.Files.MaxOpen,
		MaxArgs:    cfg.Process.MaxArgs,
		CmdlineMax: cfg.Process.CmdlineMax,
	})
	if err := k.Boot(ctx); err != nil {
		return -1, err
	}
	for _, spec := range puts {
		if err := put(k, spec); err != nil {
			return -1, err
		}
	}

	s := make(chan os.Signal, 1)
	signal.Notify(s, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(s)
	go func() {
		select {
		case sig := <-s:
			log.G(ctx).WithField("signal", sig).Info("received shutdown signal")
			k.PowerOff()
		case <-k.Done():
		}
	}()

	log.G(ctx).WithFields(log.Fields{
		"version":  version.Version,
		"backend":  cfg.Storage.Backend,
		"terminal": cons.Terminal(),
	}).Debug("booted")

	status, err := k.Run(ctx, cmdline)
	if errors.Is(err, kernel.ErrHalted) {
		log.G(ctx).WithField("threads", k.Running()).Info("powered off")
	}
	if err != nil {
		return status, err
	}
	// Orphans keep the machine up until they finish.
	k.Wait()
	return status, nil
}

// put copies host file HOST[:NAME] into the filesystem. NAME defaults to
// the host file's base name.
func put(k *kernel.Kernel, spec string) error {
	host, name, ok := strings.Cut(spec, ":")
	if !ok {
		name = filepath.Base(host)
	}
	data, err := os.ReadFile(host)
	if err != nil {
		return fmt.Errorf("put %s: %w", spec, err)
	}
	return k.Put(name, data)
}

func builtins() []string {
	reg := loader.NewRegistry()
	programs.Register(reg)
	return reg.Entries()
}
