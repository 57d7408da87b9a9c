package training

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/zaporter/jake/internal/conversation"
	"github.com/zaporter/jake/internal/logging"
)

// Exporter compiles many conversations and writes a JSON Lines file.
type Exporter struct {
	compiler    *Compiler
	fs          afero.Fs
	concurrency int
}

// NewExporter returns an exporter that compiles up to concurrency
// conversations at once and writes through fsys.
func NewExporter(compiler *Compiler, fsys afero.Fs, concurrency int) *Exporter {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Exporter{compiler: compiler, fs: fsys, concurrency: concurrency}
}

// Export writes every example of convs to path, conversations in the
// given order. The file is replaced atomically; on error it is untouched.
// Returns the number of records written.
func (e *Exporter) Export(ctx context.Context, path string, convs []*conversation.Conversation) (int, error) {
	timer := logging.StartTimer(logging.CategoryTraining, "Export")
	defer timer.Stop()

	texts, err := e.compile(ctx, convs)
	if err == nil {
		err = e.write(path, texts)
	}
	logging.Audit().Export(path, len(texts), err)
	if err != nil {
		return 0, err
	}

	logging.Training("Exported %d example(s) from %d conversation(s) to %s", len(texts), len(convs), path)
	return len(texts), nil
}

func (e *Exporter) compile(ctx context.Context, convs []*conversation.Conversation) ([]string, error) {
	results := make([][]string, len(convs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, conv := range convs {
		i, conv := i, conv
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			examples, err := e.compiler.Examples(conv)
			if err != nil {
				return fmt.Errorf("conversation %s: %w", conv.ID, err)
			}
			results[i] = examples
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var texts []string
	for _, r := range results {
		texts = append(texts, r...)
	}
	return texts, nil
}

func (e *Exporter) write(path string, texts []string) (err error) {
	dir := filepath.Dir(path)
	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(e.fs, dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = e.fs.Remove(tmp.Name())
		}
	}()

	if err := WriteJSONL(tmp, texts); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := e.fs.Chmod(tmp.Name(), 0o644); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := e.fs.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
