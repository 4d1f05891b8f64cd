package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/drunlade/go-zxmit/zxmit"
	"github.com/fatih/color"
)

var (
	listen    = flag.String("l", ":"+strconv.Itoa(zxmit.DefaultPort), "listen address")
	dir       = flag.String("dir", ".", "directory to store received files in")
	legacy    = flag.Bool("legacy", false, "expect the legacy unframed protocol")
	codecName = flag.String("codec", "zx0", "compression codec")
	ackSplit  = flag.Int("ack-split", 1, "acknowledge each frame in N records")
	stale     = flag.Bool("stale", false, "send a stale acknowledgment before each real one")
	failBlock = flag.Int("fail", 0, "reject block N with an error status")
	timeout   = flag.Duration("t", 60*time.Second, "idle timeout per frame")
	overwrite = flag.Bool("y", false, "overwrite existing files")
	once      = flag.Bool("1", false, "exit after the first transfer")
	logFile   = flag.String("log", "", "protocol log file (for debugging)")
	verbose   = flag.Bool("v", false, "verbose mode")
	quiet     = flag.Bool("q", false, "quiet mode")
	help      = flag.Bool("h", false, "show help")
	version   = flag.Bool("version", false, "show version")
)

const versionString = "zxrecv version 0.1.0"

func main() {
	flag.Parse()

	if *help {
		showUsage(0)
	}

	if *version {
		fmt.Println(versionString)
		os.Exit(0)
	}

	codec, err := zxmit.CodecByName(*codecName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		showUsage(1)
	}

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := signalContext(sigChan)
	defer cancel()

	var logger zxmit.Logger = zxmit.NoopLogger{}
	if *logFile != "" {
		fl, err := zxmit.NewFileLogger(*logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
			os.Exit(1)
		}
		defer fl.Close()
		logger = fl
	}

	receiver := zxmit.NewReceiver(&zxmit.ReceiverConfig{
		Codec:     codec,
		AckSplit:  *ackSplit,
		StaleAcks: *stale,
		FailBlock: *failBlock,
		Timeout:   *timeout,
		Logger:    logger,
	})

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
	if !*quiet {
		color.Cyan("Listening on %s (%s protocol, %s)", ln.Addr(), modeName(), codec.Name())
	}

	serveCtx, stop := context.WithCancel(ctx)
	defer stop()

	failed := false
	err = receiver.Serve(serveCtx, ln, *legacy, func(file *zxmit.ReceivedFile, err error) {
		if err != nil {
			failed = true
			color.Red("Transfer failed: %v", err)
		} else if err := store(file); err != nil {
			failed = true
			color.Red("Error: %v", err)
		}
		if *once {
			stop()
		}
	})
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
	if failed && *once {
		os.Exit(1)
	}
}

func modeName() string {
	if *legacy {
		return zxmit.ModeLegacy.String()
	}
	return zxmit.ModeChunked.String()
}

// store writes a received file into the output directory.
func store(file *zxmit.ReceivedFile) error {
	if file.Name == "" {
		if !*quiet {
			color.Yellow("Empty transfer, nothing stored")
		}
		return nil
	}

	// the name came off the network
	name := filepath.Base(filepath.Clean("/" + file.Name))
	if name == "/" || name == "." {
		return fmt.Errorf("invalid file name %q", file.Name)
	}
	path := filepath.Join(*dir, name)

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !*overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%s exists, use -y to overwrite", path)
	}
	if err != nil {
		return err
	}
	if _, err := f.Write(file.Data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if !*quiet {
		if *verbose {
			color.Green("Received %s: %d bytes in %d frames (%d compressed), %d bytes on the wire",
				path, len(file.Data), file.Frames, file.Compressed, file.WireBytes)
		} else {
			color.Green("%s", path)
		}
	}
	return nil
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
	fmt.Fprintf(os.Stderr, `%s - receive files sent with zxmit, emulating the Spectrum side

Usage: %s [options]

Options:
  -l address        listen address (default: :6144)
  -dir path         directory to store received files in (default: .)
  -legacy           expect the legacy unframed protocol
  -codec name       compression codec: zx0 (default) or zstd
  -ack-split N      acknowledge each frame in N records
  -stale            send a stale acknowledgment before each real one
  -fail N           reject block N with an error status
  -t duration       idle timeout per frame (default: 60s)
  -y                overwrite existing files
  -1                exit after the first transfer
  -log file         protocol log file for debugging
  -h                show this help message
  -q                quiet mode, minimal output
  -v                verbose mode
  -version          show version

Examples:
  %s -dir /tmp/zx -v                # Receive into /tmp/zx
  %s -ack-split 3 -stale            # Exercise the sender's acknowledgment handling

`, versionString, os.Args[0], os.Args[0], os.Args[0])
	os.Exit(exitcode)
}
