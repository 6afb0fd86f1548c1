package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cv-smart-go/internal/config"
	"cv-smart-go/pkg/log"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		log.Errorw("[Renderer] exec failed",
			"cmd", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		log.Debugf("[Renderer] exec ok: %s %s (%dms)", name, strings.Join(args, " "), time.Since(start).Milliseconds())
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// Renderer 调用 pdftoppm 把单页渲染为 PNG。
type Renderer struct {
	bin     string
	dpi     int
	timeout time.Duration
	tempDir string
	runner  Runner
}

// NewRenderer 按配置创建渲染器，scale 为相对 72dpi 的缩放倍数。
func NewRenderer(cfg config.RenderConfig) *Renderer {
	return NewRendererWithRunner(cfg, execRunner{})
}

func NewRendererWithRunner(cfg config.RenderConfig, runner Runner) *Renderer {
	bin := cfg.Pdftoppm
	if bin == "" {
		bin = "pdftoppm"
	}
	scale := cfg.Scale
	if scale <= 0 {
		scale = 1.5
	}
	return &Renderer{
		bin:     bin,
		dpi:     int(math.Round(72 * scale)),
		timeout: cfg.Timeout,
		tempDir: cfg.TempDir,
		runner:  runner,
	}
}

// DPI 返回实际渲染分辨率。
func (r *Renderer) DPI() int {
	return r.dpi
}

// Workspace 是一次入库流程独占的渲染资源：源文件写入私有临时目录，Close 时整体删除。
type Workspace struct {
	r       *Renderer
	dir     string
	pdfPath string
}

// Acquire 为 data 创建渲染工作区，调用方必须 Close。
func (r *Renderer) Acquire(_ context.Context, data []byte) (*Workspace, error) {
	dir, err := os.MkdirTemp(r.tempDir, "cv-render-*")
	if err != nil {
		return nil, fmt.Errorf("create render workspace: %w", err)
	}
	pdfPath := filepath.Join(dir, "source.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("write render source: %w", err)
	}
	return &Workspace{r: r, dir: dir, pdfPath: pdfPath}, nil
}

// Render 渲染第 n 页并返回 PNG 字节。
func (w *Workspace) Render(ctx context.Context, n int) ([]byte, error) {
	if w.dir == "" {
		return nil, errors.New("render workspace closed")
	}
	if w.r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.r.timeout)
		defer cancel()
	}

	page := strconv.Itoa(n)
	prefix := filepath.Join(w.dir, "page-"+page)
	args := []string{
		"-f", page, "-l", page,
		"-r", strconv.Itoa(w.r.dpi),
		"-png", "-singlefile",
		w.pdfPath, prefix,
	}
	if _, stderr, err := w.r.runner.Run(ctx, w.r.bin, args...); err != nil {
		return nil, fmt.Errorf("render page %d: %w: %s", n, err, strings.TrimSpace(string(stderr)))
	}

	out := prefix + ".png"
	defer os.Remove(out)
	img, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read rendered page %d: %w", n, err)
	}
	if len(img) == 0 {
		return nil, fmt.Errorf("render page %d: empty image", n)
	}
	return img, nil
}

// Close 删除工作区目录，可重复调用。
func (w *Workspace) Close() error {
	if w.dir == "" {
		return nil
	}
	err := os.RemoveAll(w.dir)
	w.dir = ""
	return err
}
