/*
Copyright © 2019 the SEBAL authors.
This file is part of SEBAL.

SEBAL is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

SEBAL is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with SEBAL.  If not, see <http://www.gnu.org/licenses/>.
*/

package cloud

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff"
	"gocloud.dev/gcerrors"
)

// optional returns whether a file that accompanies a shapefile may be
// missing.
func optional(fname string) bool { return filepath.Ext(fname) == ".prj" }

// Download checks if path is an existing local file. If not, and path
// is a URL or a blob location, it downloads the file to a temporary
// directory and returns the path to the downloaded file. For shapefiles,
// it downloads all associated files and returns the path to the file
// with the ".shp" extension. Other paths are returned unchanged.
func Download(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return path, nil
	}
	switch {
	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		return downloadHTTP(ctx, path)
	case IsBlob(path):
		return downloadBlob(ctx, path)
	}
	return path, nil
}

// downloadHTTP downloads a file from the specified URL and returns
// the path to the downloaded file.
func downloadHTTP(ctx context.Context, path string) (string, error) {
	dir, err := ioutil.TempDir("", "sebal")
	if err != nil {
		return "", fmt.Errorf("cloud: creating temporary download directory: %v", err)
	}
	fnames := expandShp(path)
	for _, fname := range fnames {
		err := retry(ctx, fname, func() error {
			req, err := http.NewRequest(http.MethodGet, fname, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req.WithContext(ctx))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				if optional(fname) {
					return nil
				}
				return backoff.Permanent(fmt.Errorf("%s: %s", fname, resp.Status))
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("%s: %s", fname, resp.Status)
			}
			w, err := os.Create(filepath.Join(dir, filepath.Base(fname)))
			if err != nil {
				return err
			}
			if _, err = io.Copy(w, resp.Body); err != nil {
				w.Close()
				return err
			}
			return w.Close()
		})
		if err != nil {
			return "", fmt.Errorf("cloud: downloading %s: %v", fname, err)
		}
	}
	return filepath.Join(dir, filepath.Base(fnames[0])), nil
}

// downloadBlob downloads the specified file from blob storage.
func downloadBlob(ctx context.Context, path string) (string, error) {
	loc, err := ParseLocation(path)
	if err != nil {
		return "", err
	}
	bucket, err := loc.Open(ctx)
	if err != nil {
		return "", err
	}
	defer bucket.Close()
	dir, err := ioutil.TempDir("", "sebal")
	if err != nil {
		return "", fmt.Errorf("cloud: creating temporary download directory: %v", err)
	}
	fnames := expandShp(loc.Key)
	for _, fname := range fnames {
		data, err := ReadBlob(ctx, bucket, loc.WithExt(filepath.Ext(fname)).Key)
		if err != nil {
			if optional(fname) && gcerrors.Code(err) == gcerrors.NotFound {
				continue
			}
			return "", err
		}
		if err := ioutil.WriteFile(filepath.Join(dir, filepath.Base(fname)), data, 0644); err != nil {
			return "", fmt.Errorf("cloud: saving downloaded file: %v", err)
		}
	}
	return filepath.Join(dir, filepath.Base(fnames[0])), nil
}

// Uploader holds output files locally until they can be uploaded to
// blob storage.
type Uploader struct {
	// files is a set of file path pairs. The first of each pair
	// is a local file path and the second is a blob storage
	// path where it should be uploaded to.
	files [][2]string
	dir   string
}

// MaybeUpload checks whether the given output file path refers to
// a blob storage location. If it does, then a temporary file location
// is returned. The file will then be uploaded to blob storage when
// the Upload method is run.
func (u *Uploader) MaybeUpload(path string) (string, error) {
	if !IsBlob(path) {
		return path, nil
	}
	if _, err := ParseLocation(path); err != nil {
		return "", err
	}
	if u.dir == "" {
		var err error
		if u.dir, err = ioutil.TempDir("", "sebal"); err != nil {
			return "", fmt.Errorf("cloud: creating temporary upload directory: %v", err)
		}
	}
	files := expandShp(path)
	for _, f := range files {
		u.files = append(u.files, [2]string{
			filepath.Join(u.dir, filepath.Base(f)),
			f,
		})
	}
	return filepath.Join(u.dir, filepath.Base(files[0])), nil
}

// Upload uploads the files registered by MaybeUpload and removes the
// temporary directory they were written to.
func (u *Uploader) Upload(ctx context.Context) error {
	for _, files := range u.files {
		data, err := ioutil.ReadFile(files[0])
		if os.IsNotExist(err) && optional(files[0]) {
			continue
		}
		if err != nil {
			return fmt.Errorf("cloud: opening file '%s' for upload: %v", files[0], err)
		}
		loc, err := ParseLocation(files[1])
		if err != nil {
			return err
		}
		bucket, err := loc.Open(ctx)
		if err != nil {
			return fmt.Errorf("cloud: opening bucket to upload file '%s': %v", files[1], err)
		}
		err = WriteBlob(ctx, bucket, loc.Key, data)
		bucket.Close()
		if err != nil {
			return err
		}
	}
	if u.dir != "" {
		return os.RemoveAll(u.dir)
	}
	return nil
}
