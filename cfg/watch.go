package cfg

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watch 监听配置文件变化，文件被写入或重建时重新读取并回调
// 监听的是文件所在目录，这样编辑器的原子替换也能被捕获
// ctx 结束后停止监听并关闭 watcher
func Watch(ctx context.Context, path string, onChange func(data []byte)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, "invalid file path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return errors.Wrap(err, "failed to add directory to watcher")
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absPath {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if data, err := os.ReadFile(absPath); err == nil {
					onChange(data)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return nil
}
