package ports

import (
	"context"

	"colliderlab/domain/experiment"
)

// ReportWriter renders a finished run into one output format
type ReportWriter interface {
	// Format is the file extension written, e.g. "md", "html", "xlsx"
	Format() string

	// Write renders the run into dir and returns the written file path
	Write(ctx context.Context, dir string, run *experiment.RunResult) (string, error)
}
