package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const serviceScript = "scripts/hand_service.py"

// shutdownGrace is how long the service gets to exit after its stdin closes
// before it is killed.
const shutdownGrace = 2 * time.Second

var (
	// ErrServiceNotFound is returned when the MediaPipe service script cannot be located.
	ErrServiceNotFound = errors.New("hand_service.py not found")
	// ErrDetectorClosed is returned by Load and Detect after Close.
	ErrDetectorClosed = errors.New("detector closed")
)

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
// Frames travel as length-prefixed JPEG on stdin; each answer is one JSON line on stdout.
type MediaPipeDetector struct {
	config     Config
	scriptPath string
	logger     *zap.Logger

	// newCmd builds the service command line.
	newCmd func() *exec.Cmd

	// mu serializes requests, start and shutdown. It is held while waiting
	// for an answer.
	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	started   bool
	idleTimer *time.Timer

	// procMu guards proc and closed and is never held across I/O, so Close
	// can kill a service that stopped answering.
	procMu sync.Mutex
	proc   *os.Process
	rawOut io.Closer
	closed bool
}

// NewMediaPipeDetector creates a new MediaPipe detector.
// The Python process is not started until Load or the first Detect.
func NewMediaPipeDetector(config Config, logger *zap.Logger) (*MediaPipeDetector, error) {
	scriptPath := findScript(serviceScript)
	if scriptPath == "" {
		return nil, ErrServiceNotFound
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxHands <= 0 {
		config.MaxHands = 1
	}

	d := &MediaPipeDetector{
		config:     config,
		scriptPath: scriptPath,
		logger:     logger.Named("mediapipe"),
	}
	d.newCmd = d.serviceCommand
	return d, nil
}

func (d *MediaPipeDetector) serviceCommand() *exec.Cmd {
	pythonPath := findScript("venv/bin/python")
	if pythonPath == "" {
		pythonPath = "python3"
	}
	return exec.Command(pythonPath, d.scriptPath,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConf, 'f', -1, 64),
	)
}

// Load starts the Python process eagerly so that a broken environment is
// reported before the first frame.
func (d *MediaPipeDetector) Load() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ensureStarted()
}

// Detect analyzes a frame and returns detected hand landmarks.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	hands, err := parseResponse([]byte(line))
	if err != nil {
		return nil, err
	}

	d.resetIdleTimer()
	return hands, nil
}

// Close shuts down the Python process. A Detect blocked on a service that
// stopped answering fails instead of holding Close up. Later calls to Load
// and Detect return ErrDetectorClosed.
func (d *MediaPipeDetector) Close() error {
	d.procMu.Lock()
	d.closed = true
	killed := d.proc != nil
	if killed {
		if err := d.proc.Kill(); err != nil {
			d.logger.Debug("kill hand service", zap.Error(err))
		}
		// A child of the service may still hold the pipe open.
		d.rawOut.Close()
	}
	d.procMu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.shutdown()
	if killed {
		// The exit status only reports the kill.
		return nil
	}
	return err
}

func (d *MediaPipeDetector) ensureStarted() error {
	d.procMu.Lock()
	closed := d.closed
	d.procMu.Unlock()
	if closed {
		return ErrDetectorClosed
	}
	if d.started {
		return nil
	}

	d.cmd = d.newCmd()

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start hand service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true

	d.procMu.Lock()
	d.proc = d.cmd.Process
	d.rawOut = stdout
	closed = d.closed
	d.procMu.Unlock()
	if closed {
		// Close ran while the process was starting.
		d.shutdown()
		return ErrDetectorClosed
	}

	d.logger.Info("hand service started", zap.String("command", d.cmd.Path), zap.Int("pid", d.cmd.Process.Pid))
	return nil
}

func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	cmd := d.cmd
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	var err error
	select {
	case err = <-exited:
	case <-time.After(shutdownGrace):
		d.logger.Warn("hand service ignored shutdown, killing it", zap.Int("pid", cmd.Process.Pid))
		cmd.Process.Kill()
		err = <-exited
	}

	d.procMu.Lock()
	d.proc = nil
	d.rawOut = nil
	d.procMu.Unlock()

	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	d.logger.Info("hand service stopped")

	return err
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.config.IdleTimeout <= 0 {
		return
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.shutdown(); err != nil {
			d.logger.Debug("idle shutdown", zap.Error(err))
		}
	})
}

// findScript looks for rel under the working directory, its parents, the
// executable directory and ~/.roshambo.
func findScript(rel string) string {
	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		rel,
		filepath.Join("..", rel),
		filepath.Join("..", "..", rel),
		filepath.Join(execDir, rel),
		filepath.Join(os.Getenv("HOME"), ".roshambo", rel),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonHand represents the JSON structure from the Python service.
type jsonHand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

func parseResponse(line []byte) ([]HandLandmarks, error) {
	var response struct {
		Hands []jsonHand `json:"hands"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	result := make([]HandLandmarks, 0, len(response.Hands))
	for i, h := range response.Hands {
		lm, err := NewHandLandmarks(h.Points)
		if err != nil {
			return nil, fmt.Errorf("hand %d: %w", i, err)
		}
		lm.Handedness = h.Handedness
		lm.Score = h.Score
		result = append(result, lm)
	}

	return result, nil
}
