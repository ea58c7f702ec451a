package loader

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"regexp"
	"strconv"

	"brick-catalog/catalog"
	"brick-catalog/parsers"

	"golang.org/x/sync/errgroup"
)

var manifestRegex = regexp.MustCompile(`Total files: (\d+)`)

func (l *Loader) splitName(i int) string {
	return path.Join(l.files.SplitDir, fmt.Sprintf(l.files.SplitPattern, i))
}

// CountSplitFiles determines how many inventory part files exist, first
// from the manifest and otherwise by probing numbered names until one is
// missing. The probe never goes past MaxSplitFiles.
func (l *Loader) CountSplitFiles(ctx context.Context) int {
	if n, err := l.readManifest(ctx); err == nil && n > 0 {
		return n
	} else if err != nil {
		log.Printf("Loader: no usable manifest, probing split files: %v", err)
	}

	count := 0
	for i := 1; i <= l.files.MaxSplitFiles; i++ {
		ok, err := l.source.Exists(ctx, l.splitName(i))
		if err != nil {
			log.Printf("Loader: probe of %s failed: %v", l.splitName(i), err)
			break
		}
		if !ok {
			break
		}
		count = i
	}
	return count
}

func (l *Loader) readManifest(ctx context.Context) (int, error) {
	name := path.Join(l.files.SplitDir, l.files.Manifest)
	body, _, err := l.source.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", name, err)
	}
	m := manifestRegex.FindSubmatch(data)
	if m == nil {
		return 0, fmt.Errorf("%s has no file count", name)
	}
	return strconv.Atoi(string(m[1]))
}

// loadSplit reads every inventory part file, in parallel up to the
// configured limit, then merges them into the store in file order.
// A file that fails is logged and skipped.
func (l *Loader) loadSplit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	count := l.CountSplitFiles(ctx)
	l.store.ResetGroup(catalog.KindInventoryParts)
	if count == 0 {
		log.Println("Loader: no inventory part files found")
		return nil
	}
	log.Printf("Loader: loading %d inventory part files", count)

	files := make([][]parsers.Record, count)
	ok := make([]bool, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i := range count {
		name := l.splitName(i + 1)
		g.Go(func() error {
			var records []parsers.Record
			_, err := l.readFile(gctx, name, func(rec parsers.Record, _ int) error {
				records = append(records, rec)
				return nil
			})
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Printf("Loader: skipping %s: %v", name, err)
				return nil
			}
			files[i], ok[i] = records, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	loaded, rows := 0, 0
	for i, records := range files {
		if !ok[i] {
			continue
		}
		loaded++
		for j, rec := range records {
			if _, err := l.store.AddRecord(catalog.KindInventoryParts, rec, j+2); err != nil {
				return fmt.Errorf("merge %s: %w", l.splitName(i+1), err)
			}
			rows++
		}
	}
	log.Printf("Loader: inventory parts loaded (%d of %d files, %d rows)", loaded, count, rows)
	return nil
}
