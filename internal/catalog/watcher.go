package catalog

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay lets editors finish writing before the file is re-read
const reloadDelay = 500 * time.Millisecond

// Watch reloads the catalog whenever its file changes. The parent
// directory is watched so editors that replace the file on save are
// picked up too.
func (c *Catalog) Watch() error {
	c.mu.Lock()
	if c.watcher != nil {
		c.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		c.mu.Unlock()
		watcher.Close()
		return err
	}

	c.watcher = watcher
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.wg.Add(1)
	go c.watchFile(watcher, c.done)

	c.logger.WithField("path", c.path).Info("Catalog watcher started")
	return nil
}

// watchFile selects on watcher channels and debounces reloads
func (c *Catalog) watchFile(watcher *fsnotify.Watcher, done chan struct{}) {
	defer c.wg.Done()

	target := filepath.Clean(c.path)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-done:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, func() {
				select {
				case <-done:
					return
				default:
				}
				if err := c.Reload(); err != nil {
					c.logger.WithError(err).WithField("path", c.path).Error("Failed to reload catalog, keeping previous stations")
				}
			})
			timerMu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.logger.WithError(err).Error("Catalog watcher error")
		}
	}
}

// Close stops the watcher (idempotent)
func (c *Catalog) Close() error {
	c.mu.Lock()
	watcher := c.watcher
	done := c.done
	c.watcher = nil
	c.mu.Unlock()

	if watcher == nil {
		return nil
	}

	close(done)
	err := watcher.Close()
	c.wg.Wait()
	return err
}
