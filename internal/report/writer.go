package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"colliderlab/domain/experiment"
	apperrors "colliderlab/internal/errors"
	"colliderlab/ports"
)

var writers = map[string]func() ports.ReportWriter{
	"md":   func() ports.ReportWriter { return MarkdownWriter{} },
	"html": func() ports.ReportWriter { return HTMLWriter{} },
	"xlsx": func() ports.ReportWriter { return XLSXWriter{} },
}

// Writers resolves format names to report writers, keeping their order
func Writers(formats []string) ([]ports.ReportWriter, error) {
	out := make([]ports.ReportWriter, 0, len(formats))
	for _, f := range formats {
		factory, ok := writers[f]
		if !ok {
			return nil, apperrors.InvalidParameter("unknown report format " + f)
		}
		out = append(out, factory())
	}
	return out, nil
}

// RunDir is the directory a run's reports are written to
func RunDir(outDir string, run *experiment.RunResult) string {
	return filepath.Join(outDir, run.RunID.String())
}

// ManifestFile holds the replay manifest of a run
const ManifestFile = "manifest.json"

// WriteAll creates <outDir>/<run id>, writes the manifest when the run has
// one and renders every format into it
func WriteAll(ctx context.Context, outDir string, run *experiment.RunResult, ws []ports.ReportWriter) ([]string, error) {
	dir := RunDir(outDir, run)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.ReportError("create report directory", err)
	}
	paths := make([]string, 0, len(ws)+1)
	if run.Manifest != nil {
		path, err := writeManifest(dir, run)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	for _, w := range ws {
		path, err := w.Write(ctx, dir, run)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeManifest(dir string, run *experiment.RunResult) (string, error) {
	if err := run.Manifest.Validate(); err != nil {
		return "", apperrors.ReportError("invalid run manifest", err)
	}
	data, err := json.MarshalIndent(run.Manifest, "", "  ")
	if err != nil {
		return "", apperrors.ReportError("encode run manifest", err)
	}
	path := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", apperrors.ReportError("write run manifest", err)
	}
	return path, nil
}
