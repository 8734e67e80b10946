package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/fatih/color"
	"github.com/tartampluch/go-hebrew-birthday/internal/config"
)

// main defers to runMain so the log file and the database are closed before os.Exit.
func main() {
	os.Exit(runMain())
}

// runMain builds the command tree, executes it and maps the result to an exit code.
func runMain() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := &cli{out: os.Stdout}
	defer c.closeLog()

	if err := c.newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error(config.ErrAppFailed,
			config.LogKeyComponent, config.CompMain,
			config.LogKeyError, err,
		)
		color.New(color.FgRed).Fprintf(os.Stderr, config.MsgCLIError, err)
		return config.ExitCodeError
	}
	return config.ExitCodeSuccess
}

// printVersion outputs the build information.
func printVersion(w io.Writer) {
	fmt.Fprintf(w, config.MsgVersionOutput,
		config.AppName,
		config.Version,
		config.Commit,
		config.Date,
		runtime.GOOS,
		runtime.GOARCH,
	)
}

func logStartupInfo(command string) {
	slog.Info(config.MsgAppStarting,
		config.LogKeyComponent, config.CompMain,
		config.LogKeyCommand, command,
		config.LogKeyVersion, config.Version,
		config.LogKeyGoVer, runtime.Version(),
		config.LogKeyPID, os.Getpid(),
	)
}

// setupLogging installs a JSON slog handler writing to stdout and, when the cache
// directory is usable, to a per-run log file. The returned closer is nil without a file.
func setupLogging(debugMode bool) io.Closer {
	out := io.Writer(os.Stdout)
	var logFile *os.File
	if f, err := openLogFile(); err == nil {
		out = io.MultiWriter(os.Stdout, f)
		logFile = f
	} else {
		fmt.Fprintf(os.Stderr, config.MsgLogWarning, config.ErrLogFile, err)
	}

	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     level,
		AddSource: debugMode,
	})))

	if logFile == nil {
		return nil
	}
	return logFile
}

// openLogFile truncates the log file of the previous run.
func openLogFile() (*os.File, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrCacheDir, err)
	}
	dir := filepath.Join(cacheDir, config.AppID)
	if err := os.MkdirAll(dir, config.DirPermUserRWX); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrCreateDir, err)
	}
	return os.OpenFile(filepath.Join(dir, config.LogFileName), os.O_TRUNC|os.O_CREATE|os.O_WRONLY, config.FilePermUserRW)
}
