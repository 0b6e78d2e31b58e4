package capture

import "context"

// FakeCamera returns scripted image paths.
type FakeCamera struct {
	Images []string
	Err    error
	// Panic, if non-nil, is raised by CaptureAll.
	Panic any

	Calls  int
	Labels []string
	Closed bool
}

// CaptureAll returns Images, Err or panics with Panic.
func (f *FakeCamera) CaptureAll(ctx context.Context, label string) ([]string, error) {
	f.Calls++
	f.Labels = append(f.Labels, label)
	if f.Panic != nil {
		panic(f.Panic)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]string(nil), f.Images...), nil
}

// Close marks the camera as closed.
func (f *FakeCamera) Close() error {
	f.Closed = true
	return nil
}

// FakeRecognizer returns scripted detections.
type FakeRecognizer struct {
	Products []Product
	Err      error

	Calls  int
	Images [][]string
	Closed bool
}

// Detect returns Products or Err.
func (f *FakeRecognizer) Detect(ctx context.Context, images []string) ([]Product, error) {
	f.Calls++
	f.Images = append(f.Images, images)
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]Product(nil), f.Products...), nil
}

// Close marks the recognizer as closed.
func (f *FakeRecognizer) Close() error {
	f.Closed = true
	return nil
}
