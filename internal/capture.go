package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

type Capturer interface {
	Capture(ctx context.Context) (*Image, error)
}

var (
	_ Capturer = (*FileCapturer)(nil)
	_ Capturer = (*CommandCapturer)(nil)
)

// FileCapturer serves a screenshot that already exists on disk.
type FileCapturer struct {
	Path string
}

func (c *FileCapturer) Capture(ctx context.Context) (*Image, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, fmt.Errorf("read screenshot: %w", err)
	}
	return DecodeImage(data)
}

// CommandCapturer runs a screenshot tool that writes an image to stdout,
// e.g. `grim -`, `screencapture -x -t png /dev/stdout` or `import -window root png:-`.
type CommandCapturer struct {
	Command []string
}

func (c *CommandCapturer) Capture(ctx context.Context) (*Image, error) {
	if len(c.Command) == 0 {
		return nil, fmt.Errorf("%w: no capture command set", ErrNotConfigured)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run %s: %w: %s", c.Command[0], err, strings.TrimSpace(stderr.String()))
	}

	return DecodeImage(stdout.Bytes())
}

type OCR interface {
	ExtractText(ctx context.Context, img *Image) string
}

var _ OCR = (*TesseractOCR)(nil)

const DefaultTesseractCmd = "tesseract"

// TesseractOCR shells out to the tesseract binary. Any failure yields an
// empty string; OCR is a best-effort enrichment.
type TesseractOCR struct {
	Command string
	logger  logrus.FieldLogger
}

func NewTesseractOCR(command string, logger logrus.FieldLogger) *TesseractOCR {
	if command == "" {
		command = DefaultTesseractCmd
	}
	return &TesseractOCR{Command: command, logger: orDiscard(logger)}
}

func (o *TesseractOCR) ExtractText(ctx context.Context, img *Image) string {
	if img == nil {
		return ""
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, o.Command, "stdin", "stdout")
	cmd.Stdin = bytes.NewReader(img.Data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log := o.logger.WithError(err)
		if errors.Is(err, exec.ErrNotFound) {
			log.WithField("command", o.Command).Warn("tesseract not found, OCR disabled")
		} else {
			log.WithField("stderr", strings.TrimSpace(stderr.String())).Warn("OCR failed")
		}
		return ""
	}

	return strings.TrimSpace(stdout.String())
}

// NopOCR is used when OCR is switched off.
type NopOCR struct{}

func (NopOCR) ExtractText(context.Context, *Image) string {
	return ""
}
