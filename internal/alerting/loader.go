package alerting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/pawwatch/internal/metrics"
)

// LoadThresholdsFromFile loads thresholds from a YAML file.
func LoadThresholdsFromFile(path string) (*Thresholds, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open thresholds file: %w", err)
	}
	defer f.Close()

	return LoadThresholds(f)
}

// LoadThresholds reads YAML thresholds from r. Metrics and size classes that
// the document names replace the defaults; the rest keep their default values.
func LoadThresholds(r io.Reader) (*Thresholds, error) {
	var doc Thresholds
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse thresholds YAML: %w", err)
	}

	t := DefaultThresholds()
	for m, b := range doc.Metrics {
		t.Metrics[m] = b
	}
	for size, rg := range doc.IdealRanges {
		t.IdealRanges[size] = rg
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	return t, nil
}

// LoadThresholdsFromBytes loads thresholds from YAML bytes.
func LoadThresholdsFromBytes(data []byte) (*Thresholds, error) {
	return LoadThresholds(bytes.NewReader(data))
}

const reloadDebounce = 250 * time.Millisecond

// WatchThresholds reloads path into set whenever the file changes, until ctx
// is done. A file that fails to parse or validate is logged and the previous
// thresholds stay in force.
func WatchThresholds(ctx context.Context, path string, set *ThresholdSet, logger zerolog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors often replace the file rather than write it.
	dir, file := filepath.Dir(path), filepath.Base(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info().Str("path", path).Msg("watching thresholds file")

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		t, err := LoadThresholdsFromFile(path)
		if err == nil {
			err = set.Replace(t)
		}
		if err != nil {
			metrics.ThresholdReloadsTotal.WithLabelValues("rejected").Inc()
			logger.Warn().Err(err).Str("path", path).Msg("thresholds reload rejected")
			return
		}
		metrics.ThresholdReloadsTotal.WithLabelValues("ok").Inc()
		logger.Info().Str("path", path).Msg("thresholds reloaded")
	}
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, reload)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("thresholds watcher closed")
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				schedule()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("thresholds watcher closed")
			}
			logger.Warn().Err(err).Str("path", path).Msg("thresholds watch error")
		}
	}
}
