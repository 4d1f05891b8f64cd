package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/drunlade/go-zxmit/zxmit"
	"github.com/fatih/color"
)

var (
	address     = flag.String("a", "", "receiver address (host or host:port)")
	noCompress  = flag.Bool("n", false, "don't use compression")
	compress    = flag.Bool("c", false, "use compression")
	dummy       = flag.Bool("d", false, "dummy run without any network communication")
	legacy      = flag.Bool("legacy", false, "use the legacy unframed protocol")
	codecName   = flag.String("codec", "", "compression codec")
	chunk       = flag.Int("chunk", 0, "chunk size in bytes")
	timeout     = flag.Duration("t", 0, "timeout for each frame and acknowledgment")
	sshHost     = flag.String("ssh", "", "reach the receiver through an SSH server ([user@]host[:port])")
	sshKey      = flag.String("ssh-key", "", "private key for -ssh")
	sshInsecure = flag.Bool("ssh-insecure", false, "don't verify the SSH host key")
	watch       = flag.Bool("watch", false, "send again whenever the file is written")
	logFile     = flag.String("log", "", "protocol log file (for debugging)")
	noSave      = flag.Bool("no-save", false, "don't remember the address and switches")
	verbose     = flag.Bool("v", false, "verbose mode")
	quiet       = flag.Bool("q", false, "quiet mode")
	help        = flag.Bool("h", false, "show help")
	version     = flag.Bool("version", false, "show version")
)

const versionString = "zxmit version 0.1.0"

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgCyan)
)

func main() {
	flag.Usage = func() { showUsage(2) }
	flag.Parse()

	if *help {
		showUsage(0)
	}

	if *version {
		fmt.Println(versionString)
		os.Exit(0)
	}

	cfg, err := loadSettings([]string{rcPath(), ".env"}, os.Environ())
	if err != nil {
		fatalf("%v", err)
	}
	applyFlags(&cfg)

	// zxmit [address] file
	args := flag.Args()
	var filename string
	switch len(args) {
	case 1:
		filename = args[0]
	case 2:
		cfg.Address, filename = args[0], args[1]
	default:
		fmt.Fprintf(os.Stderr, "%s: expected a file name\n", os.Args[0])
		showUsage(1)
	}
	codec, err := cfg.validate()
	if err != nil {
		fatalf("%v", err)
	}

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := signalContext(sigChan)
	defer cancel()

	logger, closeLog, err := buildLogger(cfg.LogFile)
	if err != nil {
		fatalf("opening log: %v", err)
	}
	defer closeLog()

	config := zxmit.DefaultConfig()
	config.ChunkSize = cfg.Chunk
	config.Timeout = cfg.Timeout
	config.Codec = codec
	config.TraceIO = cfg.LogFile != ""

	opts := []zxmit.Option{
		zxmit.WithConfig(config),
		zxmit.WithCallbacks(callbacks()),
		zxmit.WithLogger(logger),
		zxmit.WithContext(ctx),
	}

	if cfg.SSH != "" && !cfg.Dummy {
		if !*quiet {
			infoColor.Fprintf(os.Stderr, "Connecting to %s...\n", cfg.SSH)
		}
		dialer, err := dialJumpHost(cfg.SSH, cfg.SSHKey, *sshInsecure)
		if err != nil {
			fatalf("%v", err)
		}
		defer dialer.Close()
		opts = append(opts, zxmit.WithDialer(dialer))
	}

	session := zxmit.NewSession(opts...)

	mode := zxmit.ModeChunked
	if cfg.Legacy {
		mode = zxmit.ModeLegacy
	}
	upload := zxmit.Upload{
		Address:  cfg.Address,
		Name:     filepath.Base(filename),
		Compress: cfg.Compress,
		Dummy:    cfg.Dummy,
		Mode:     mode,
	}
	send := func() error {
		return session.SendFile(ctx, filename, upload)
	}

	err = send()
	if err == nil && !*noSave {
		if serr := saveSettings(rcPath(), cfg); serr != nil && *verbose {
			fmt.Fprintf(os.Stderr, "Not saving settings: %v\n", serr)
		}
	}

	if *watch {
		if !*quiet {
			infoColor.Fprintf(os.Stderr, "Watching %s, press Ctrl-C to stop\n", filename)
		}
		werr := watchFile(ctx, filename, send, func(err error) {
			// transfer failures were already reported through OnError
			if _, ok := zxmit.TypeOf(err); !ok {
				errorColor.Fprintf(os.Stderr, "Watch error: %v\n", err)
			}
		})
		if werr != nil {
			fatalf("watching %s: %v", filename, werr)
		}
		return
	}

	if err != nil {
		os.Exit(1)
	}
}

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(cfg *settings) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "a":
			cfg.Address = *address
		case "n":
			cfg.Compress = !*noCompress
		case "c":
			cfg.Compress = *compress
		case "d":
			cfg.Dummy = *dummy
		case "legacy":
			cfg.Legacy = *legacy
		case "codec":
			cfg.Codec = *codecName
		case "chunk":
			cfg.Chunk = *chunk
		case "t":
			cfg.Timeout = *timeout
		case "ssh":
			cfg.SSH = *sshHost
		case "ssh-key":
			cfg.SSHKey = *sshKey
		case "log":
			cfg.LogFile = *logFile
		}
	})
}

// buildLogger returns the protocol logger: the log file if one is given,
// and stderr in verbose mode.
func buildLogger(path string) (zxmit.Logger, func(), error) {
	var loggers zxmit.MultiLogger
	closeLog := func() {}

	if path != "" {
		fl, err := zxmit.NewFileLogger(path)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fl)
		closeLog = func() { fl.Close() }
	}
	if *verbose && !*quiet {
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
		loggers = append(loggers, zxmit.NewSlogLogger(slog.New(h)))
	}

	if len(loggers) == 0 {
		return zxmit.NoopLogger{}, closeLog, nil
	}
	return loggers, closeLog, nil
}

func callbacks() *zxmit.Callbacks {
	bar := newProgressBar(os.Stderr)
	var size int64

	return &zxmit.Callbacks{
		OnFileStart: func(filename, shortName string, n int64) {
			size = n
			if *quiet {
				return
			}
			if *verbose {
				fmt.Fprintf(os.Stderr, "Sending: %s as %s (%d bytes)\n", filename, shortName, n)
			}
			bar.start(shortName)
		},
		OnProgress: func(p zxmit.Progress, rate float64) {
			if !*quiet {
				bar.update(p, rate)
			}
		},
		OnFileComplete: func(filename string, sent int64, duration time.Duration) {
			if *quiet {
				return
			}
			bar.finish()
			ratio := 0.0
			if size > 0 {
				ratio = float64(sent) / float64(size)
			}
			successColor.Fprintf(os.Stderr, "Sent %s: %d bytes as %d, ratio %.3f, elapsed %v\n",
				filename, size, sent, ratio, duration.Round(time.Millisecond))
		},
		OnError: func(err error, context string) {
			if !*quiet {
				bar.finish()
			}
			if zxmit.IsCancelled(err) {
				errorColor.Fprintf(os.Stderr, "Cancelled\n")
				return
			}
			errorColor.Fprintf(os.Stderr, "Error in %s: %v\n", context, err)
		},
	}
}

func fatalf(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func signalContext(sigChan chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

func showUsage(exitcode int) {
	fmt.Fprintf(os.Stderr, `%s - send a file to a ZX Spectrum running zxmit

Usage: %s [options] [address] file

Options:
  -a address        receiver address, host or host:port (default port 6144)
  -c                use compression (default)
  -n                don't use compression
  -d                dummy run without any network communication
  -legacy           use the legacy unframed protocol
  -codec name       compression codec: zx0 (default) or zstd
  -chunk N          chunk size in bytes (default: 1024)
  -t duration       timeout for each frame and acknowledgment (default: 30s)
  -ssh host         reach the receiver through an SSH server ([user@]host[:port])
  -ssh-key file     private key for -ssh
  -ssh-insecure     don't verify the SSH host key
  -watch            send again whenever the file is written
  -log file         protocol log file for debugging
  -no-save          don't remember the address and switches in ~/.zxmitrc
  -h                show this help message
  -q                quiet mode, minimal output
  -v                verbose mode
  -version          show version

Settings are read from ~/.zxmitrc, then ./.env, then ZXMIT_* environment
variables (ZXMIT_ADDRESS, ZXMIT_COMPRESS, ZXMIT_CODEC, ...), then flags.

Examples:
  %s 192.168.1.50 game.tap       # Send a file
  %s -n screen.scr               # Send to the last used address, uncompressed
  %s -d -v big.bin               # Dummy run showing the compression ratio
  %s -ssh pi@home.example.org 192.168.1.50 game.tap

`, versionString, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	os.Exit(exitcode)
}
