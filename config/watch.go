package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watcher 监视配置文件，文件被写入或重新创建时重新加载。
//
// 监视的是文件所在的目录，这样编辑器"写临时文件再改名"的保存方式也能被捕获。
type Watcher struct {
	path string
	w    *fsnotify.Watcher
}

// NewWatcher 开始监视 path。返回时监视已经生效。
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "watch config")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "watch config")
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, errors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}
	return &Watcher{path: abs, w: w}, nil
}

// Run 阻塞直到 ctx 结束。每次重新加载成功调用 onChange；
// 解析或校验失败时调用 onError，调用者应继续使用旧配置。
func (w *Watcher) Run(ctx context.Context, onChange func(*Config), onError func(error)) error {
	defer w.w.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// 截断后尚未写入内容
			if fi, err := os.Stat(w.path); err == nil && fi.Size() == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onChange != nil {
				onChange(cfg)
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			if onError != nil {
				onError(errors.Wrap(err, "watch config"))
			}
		}
	}
}

// Close 停止监视。Run 会随之返回。
func (w *Watcher) Close() error { return w.w.Close() }

// Watch 是 NewWatcher 加 Run 的简写。
func Watch(ctx context.Context, path string, onChange func(*Config), onError func(error)) error {
	w, err := NewWatcher(path)
	if err != nil {
		return err
	}
	return w.Run(ctx, onChange, onError)
}
