package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sweeney/fridge-daemon/internal/retry"
)

// RecognizerConfig configures CommandRecognizer.
type RecognizerConfig struct {
	// Command is run once per image with Args followed by the image path.
	Command string
	Args    []string
	Timeout time.Duration
	// MinConfidence drops detections that report a lower confidence.
	MinConfidence float64
	Policy        retry.Policy
}

// detection is one element of the recognizer's JSON output. Either Label
// or Name must be set.
type detection struct {
	Label      string  `json:"label"`
	Name       string  `json:"name"`
	Brand      string  `json:"brand"`
	Size       string  `json:"size"`
	Quantity   int     `json:"quantity"`
	Confidence float64 `json:"confidence"`
}

// CommandRecognizer runs an external recognition program that prints a
// JSON array of detections.
type CommandRecognizer struct {
	cfg  RecognizerConfig
	path string
	exec *retry.Executor
	run  runFunc
}

// NewCommandRecognizer checks that the command exists.
func NewCommandRecognizer(cfg RecognizerConfig, ex *retry.Executor) (*CommandRecognizer, error) {
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("recognizer: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	return &CommandRecognizer{cfg: cfg, path: path, exec: ex, run: runCommand}, nil
}

// Detect runs the recognizer on each image and concatenates the results.
// An image that fails every attempt is skipped; Detect fails only when no
// image could be processed.
func (r *CommandRecognizer) Detect(ctx context.Context, images []string) ([]Product, error) {
	var products []Product
	processed := 0
	var lastErr error
	for _, img := range images {
		var found []Product
		err := r.exec.Do(ctx, "capture: detect "+filepath.Base(img), r.cfg.Policy, func(ctx context.Context) error {
			var err error
			found, err = r.detectOne(ctx, img)
			return err
		})
		if err != nil {
			lastErr = err
			log.Printf("capture: %v", err)
			continue
		}
		processed++
		products = append(products, found...)
	}
	if processed == 0 && len(images) > 0 {
		return nil, fmt.Errorf("no image could be processed: %w", lastErr)
	}
	return products, nil
}

func (r *CommandRecognizer) detectOne(ctx context.Context, img string) ([]Product, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	args := append(append([]string(nil), r.cfg.Args...), img)
	out, err := r.run(ctx, r.path, args...)
	if err != nil {
		return nil, err
	}
	return parseDetections(out, r.cfg.MinConfidence)
}

func parseDetections(out []byte, minConfidence float64) ([]Product, error) {
	var raw []detection
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parse recognizer output: %w", err)
	}
	products := make([]Product, 0, len(raw))
	for _, d := range raw {
		if d.Confidence > 0 && d.Confidence < minConfidence {
			continue
		}
		var p Product
		if d.Name == "" {
			if d.Label == "" {
				continue
			}
			p = ParseLabel(d.Label)
		} else {
			p = Product{Name: d.Name, Brand: d.Brand, Size: d.Size}
			if p.Brand == "" {
				p.Brand = GenericBrand
			}
			if p.Size == "" {
				p.Size = UnknownSize
			}
		}
		p.Quantity = d.Quantity
		if p.Quantity < 1 {
			p.Quantity = 1
		}
		products = append(products, p)
	}
	return products, nil
}

// Close is a no-op; the recognizer runs as a short-lived process.
func (r *CommandRecognizer) Close() error {
	return nil
}
