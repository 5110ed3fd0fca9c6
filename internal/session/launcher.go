package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"buttonrec/internal/config"
	"buttonrec/internal/logging"
	"buttonrec/internal/pipeline"
)

// Launcher builds the capture and encode stages for a new session.
type Launcher interface {
	Prepare(sess *Session) (*pipeline.CaptureStage, *pipeline.EncodeStage, error)
}

// CommandLauncher builds stages from the configured external commands.
type CommandLauncher struct {
	cfg           *config.Config
	logger        *slog.Logger
	capturePolicy pipeline.ExitPolicy
	encodePolicy  pipeline.ExitPolicy
	captureLog    io.WriteCloser
	encodeLog     io.WriteCloser
	onBlock       func(int)
}

// NewCommandLauncher parses the exit policies once and opens the rotated
// stderr logs under the tool log directory. onBlock may be nil.
func NewCommandLauncher(cfg *config.Config, logger *slog.Logger, onBlock func(int)) (*CommandLauncher, error) {
	if cfg == nil {
		return nil, errors.New("launcher: nil config")
	}
	capturePolicy, err := pipeline.ParseExitPolicy(cfg.Capture.GracefulExit)
	if err != nil {
		return nil, fmt.Errorf("capture graceful_exit: %w", err)
	}
	encodePolicy, err := pipeline.ParseExitPolicy(cfg.Encode.GracefulExit)
	if err != nil {
		return nil, fmt.Errorf("encode graceful_exit: %w", err)
	}
	rot := logging.RotationFromConfig(cfg)
	return &CommandLauncher{
		cfg:           cfg,
		logger:        logger,
		capturePolicy: capturePolicy,
		encodePolicy:  encodePolicy,
		captureLog:    logging.NewRotatingWriter(filepath.Join(cfg.ToolLogDir(), "capture.log"), rot),
		encodeLog:     logging.NewRotatingWriter(filepath.Join(cfg.ToolLogDir(), "encode.log"), rot),
		onBlock:       onBlock,
	}, nil
}

// Prepare implements Launcher.
func (l *CommandLauncher) Prepare(sess *Session) (*pipeline.CaptureStage, *pipeline.EncodeStage, error) {
	logger := l.logger
	if logger != nil {
		logger = logger.With(logging.SessionID(sess.ID))
	}

	captureCmd, err := pipeline.NewCommand(l.cfg.CaptureArgs(), l.captureLog)
	if err != nil {
		return nil, nil, fmt.Errorf("capture command: %w", err)
	}
	encodeCmd, err := pipeline.NewCommand(l.cfg.EncodeArgs(sess.Output), l.encodeLog)
	if err != nil {
		return nil, nil, fmt.Errorf("encode command: %w", err)
	}

	capture := pipeline.NewCaptureStage(captureCmd, l.capturePolicy, pipeline.CaptureOptions{
		BlockSize:    l.cfg.Capture.BlockSize,
		StopTimeout:  l.cfg.CaptureStopTimeout(),
		LagWarnBytes: l.cfg.QueueWarnBytes(),
		OnBlock:      l.onBlock,
		Logger:       logger,
	})
	encode := pipeline.NewEncodeStage(encodeCmd, l.encodePolicy, pipeline.EncodeOptions{
		Output: sess.Output,
		Logger: logger,
	})
	return capture, encode, nil
}

// Close releases the stderr log writers.
func (l *CommandLauncher) Close() error {
	return errors.Join(l.captureLog.Close(), l.encodeLog.Close())
}
