// Package tts turns reply text into a voice message with the Supertonic
// TTS script and ffmpeg.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
	"unicode"
)

const (
	DefaultMaxChars      = 500
	DefaultTimeout       = 30 * time.Second
	DefaultEncodeTimeout = 15 * time.Second

	// languageWindow is how many leading characters the language guess reads.
	languageWindow = 100
	stderrTail     = 200
)

// ErrUnavailable means the TTS script is not installed.
var ErrUnavailable = errors.New("tts: synthesizer not installed")

// Config locates the TTS toolchain.
type Config struct {
	Python     string
	Script     string
	OnnxDir    string
	VoiceStyle string
	FFmpeg     string
	MaxChars   int
	// Timeout bounds synthesis; EncodeTimeout bounds the ffmpeg conversion.
	Timeout       time.Duration
	EncodeTimeout time.Duration
}

// DefaultConfig returns the layout of a Supertonic checkout in the home directory.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	root := filepath.Join(home, "supertonic")
	return Config{
		Python:        "/usr/bin/python3",
		Script:        filepath.Join(root, "py", "tts_stdout.py"),
		OnnxDir:       filepath.Join(root, "assets", "onnx"),
		VoiceStyle:    filepath.Join(root, "assets", "voice_styles", "F1.json"),
		FFmpeg:        "ffmpeg",
		MaxChars:      DefaultMaxChars,
		Timeout:       DefaultTimeout,
		EncodeTimeout: DefaultEncodeTimeout,
	}
}

// Audio is an encoded voice clip.
type Audio struct {
	Data     []byte
	Filename string
}

// commandFunc runs a tool with optional stdin and returns its stdout.
type commandFunc func(ctx context.Context, stdin []byte, dir, name string, args ...string) ([]byte, error)

// Synthesizer produces voice clips.
type Synthesizer struct {
	cfg      Config
	run      commandFunc
	lookPath func(file string) (string, error)
	stat     func(name string) (os.FileInfo, error)
}

// New creates a synthesizer. Zero fields of cfg take defaults.
func New(cfg Config) *Synthesizer {
	defaults := DefaultConfig()
	if cfg.Python == "" {
		cfg.Python = defaults.Python
	}
	if cfg.Script == "" {
		cfg.Script = defaults.Script
	}
	if cfg.OnnxDir == "" {
		cfg.OnnxDir = defaults.OnnxDir
	}
	if cfg.VoiceStyle == "" {
		cfg.VoiceStyle = defaults.VoiceStyle
	}
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = defaults.FFmpeg
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = defaults.MaxChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.EncodeTimeout <= 0 {
		cfg.EncodeTimeout = defaults.EncodeTimeout
	}
	return &Synthesizer{cfg: cfg, run: runCommand, lookPath: exec.LookPath, stat: os.Stat}
}

// Synthesize speaks the first MaxChars characters of text. The result is
// OGG/Opus, or the raw WAV when ffmpeg is not installed.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (Audio, error) {
	if _, err := s.stat(s.cfg.Script); err != nil {
		slog.Warn("TTS script not found", "path", s.cfg.Script)
		return Audio{}, ErrUnavailable
	}

	runes := []rune(text)
	if len(runes) > s.cfg.MaxChars {
		runes = runes[:s.cfg.MaxChars]
	}
	lang := DetectLanguage(string(runes))

	synthCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	wav, err := s.run(synthCtx, nil, filepath.Dir(s.cfg.Script), s.cfg.Python, s.cfg.Script,
		"--onnx-dir", s.cfg.OnnxDir,
		"--voice-style", s.cfg.VoiceStyle,
		"--lang", lang,
		"--text", string(runes),
	)
	if err != nil {
		return Audio{}, fmt.Errorf("tts: synthesize: %w", err)
	}
	if len(wav) == 0 {
		return Audio{}, errors.New("tts: synthesizer produced no audio")
	}
	return s.encode(ctx, wav)
}

// encode converts WAV to OGG/Opus for Telegram voice messages.
func (s *Synthesizer) encode(ctx context.Context, wav []byte) (Audio, error) {
	ffmpeg, err := s.lookPath(s.cfg.FFmpeg)
	if err != nil {
		slog.Warn("ffmpeg not found, sending WAV directly", "ffmpeg", s.cfg.FFmpeg)
		return Audio{Data: wav, Filename: "response.wav"}, nil
	}

	encodeCtx, cancel := context.WithTimeout(ctx, s.cfg.EncodeTimeout)
	defer cancel()
	ogg, err := s.run(encodeCtx, wav, "", ffmpeg,
		"-i", "pipe:0",
		"-c:a", "libopus",
		"-b:a", "48k",
		"-application", "voip",
		"-f", "ogg",
		"pipe:1",
	)
	if err != nil {
		return Audio{}, fmt.Errorf("tts: encode: %w", err)
	}
	if len(ogg) == 0 {
		return Audio{}, errors.New("tts: ffmpeg produced no audio")
	}
	return Audio{Data: ogg, Filename: "response.ogg"}, nil
}

// DetectLanguage guesses the synthesis language from the leading characters.
// Arabic is not supported by the voice model and falls back to English.
func DetectLanguage(text string) string {
	n := 0
	hasArabic, hasHangul := false, false
	for _, r := range text {
		if n >= languageWindow {
			break
		}
		n++
		switch {
		case unicode.Is(unicode.Arabic, r):
			hasArabic = true
		case r >= 0xAC00 && r <= 0xD7AF:
			hasHangul = true
		}
	}
	if hasArabic {
		return "en"
	}
	if hasHangul {
		return "ko"
	}
	return "en"
}

func runCommand(ctx context.Context, stdin []byte, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		tail := stderr.String()
		if len(tail) > stderrTail {
			tail = tail[len(tail)-stderrTail:]
		}
		return nil, fmt.Errorf("%s: %w: %s", filepath.Base(name), err, tail)
	}
	return stdout.Bytes(), nil
}
