package api

import (
	"context"
	"sync"

	"github.com/sweeney/fridge-daemon/internal/capture"
	"github.com/sweeney/fridge-daemon/internal/telemetry"
)

// Fake is an in-memory backend for tests. It is safe for concurrent use
// because the daemon calls it from several goroutines.
type Fake struct {
	mu sync.Mutex

	// IssuedToken is returned by Setup, and by ValidateToken when non-empty.
	IssuedToken string

	// Errors returned by the corresponding calls when set.
	ValidateErr error
	SetupErr    error
	ReadingsErr error
	ProductsErr error
	ReportErr   error

	Validations  int
	ReadingCalls int
	Temperature  []telemetry.Reading
	Power        []telemetry.Reading
	Products     [][]capture.Product
	Reports      []capture.ErrorReport
	Tokens       []string
}

// NewFake creates a Fake that accepts every call.
func NewFake() *Fake {
	return &Fake{}
}

// ValidateToken counts the call and returns IssuedToken, or token when none is set.
func (f *Fake) ValidateToken(ctx context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Validations++
	f.Tokens = append(f.Tokens, token)
	if f.ValidateErr != nil {
		return "", f.ValidateErr
	}
	if f.IssuedToken != "" {
		return f.IssuedToken, nil
	}
	return token, nil
}

// Setup returns IssuedToken or SetupErr.
func (f *Fake) Setup(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetupErr != nil {
		return "", f.SetupErr
	}
	return f.IssuedToken, nil
}

// UploadReadings records the batch unless ReadingsErr is set.
func (f *Fake) UploadReadings(ctx context.Context, token string, temperature, power []telemetry.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReadingCalls++
	f.Tokens = append(f.Tokens, token)
	if f.ReadingsErr != nil {
		return f.ReadingsErr
	}
	f.Temperature = append(f.Temperature, temperature...)
	f.Power = append(f.Power, power...)
	return nil
}

// UploadProducts records the inventory unless ProductsErr is set.
func (f *Fake) UploadProducts(ctx context.Context, token string, products []capture.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tokens = append(f.Tokens, token)
	if f.ProductsErr != nil {
		return f.ProductsErr
	}
	f.Products = append(f.Products, products)
	return nil
}

// ReportError records the report and returns ReportErr.
func (f *Fake) ReportError(ctx context.Context, token string, r capture.ErrorReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reports = append(f.Reports, r)
	return f.ReportErr
}

// Snapshot returns copies of the recorded uploads.
func (f *Fake) Snapshot() (readingCalls int, products [][]capture.Product, reports []capture.ErrorReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ReadingCalls, append([][]capture.Product(nil), f.Products...), append([]capture.ErrorReport(nil), f.Reports...)
}
