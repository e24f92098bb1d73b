package cache

import (
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-faster/city"
)

const partSuffix = ".part"

// TargetPath maps a remote URL onto root/<scheme>/<host>/<path>. Query strings
// are folded into the file name as a hash so distinct queries never collide.
// Paths with ".." segments are rejected so one host never lands in another's
// directory.
func TargetPath(root, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid remote source %q: %w", rawURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	p := u.Path
	if scheme == "" || host == "" || p == "" || strings.HasSuffix(p, "/") {
		return "", fmt.Errorf("remote source %q does not name a file", rawURL)
	}
	if host == "." || host == ".." || strings.ContainsAny(host, `/\`) {
		return "", fmt.Errorf("remote source %q has an invalid host", rawURL)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." || seg == "." || strings.Contains(seg, `\`) {
			return "", fmt.Errorf("remote source %q escapes its host directory", rawURL)
		}
	}
	p = path.Clean("/" + p)
	if u.RawQuery != "" {
		ext := path.Ext(p)
		p = fmt.Sprintf("%s-%016x%s", strings.TrimSuffix(p, ext), city.Hash64([]byte(u.RawQuery)), ext)
	}
	hostDir := filepath.Join(root, scheme, strings.ReplaceAll(host, ":", "_"))
	target := filepath.Join(hostDir, filepath.FromSlash(p))
	rel, err := filepath.Rel(hostDir, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("remote source %q escapes its host directory", rawURL)
	}
	return target, nil
}

// pruneEmptyParents removes empty directories from dir upwards, stopping
// below root.
func pruneEmptyParents(root, dir string) {
	root = filepath.Clean(root)
	for dir = filepath.Clean(dir); dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}

// copyAtomic writes src to dst through a sibling .part file so readers never
// see a half written dst.
func copyAtomic(src, dst string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	part := dst + partSuffix
	defer func() {
		if err != nil {
			os.Remove(part)
		}
	}()
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(part)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err = out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	return os.Rename(part, dst)
}

type diskFile struct {
	path string
	size int64
	mod  int64
}

// walkFiles lists regular files under root.
func walkFiles(root string) ([]diskFile, int64, error) {
	var (
		files []diskFile
		used  int64
	)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		files = append(files, diskFile{path: p, size: info.Size(), mod: info.ModTime().UnixNano()})
		used += info.Size()
		return nil
	})
	return files, used, err
}
