package packager

import (
	"archive/tar"
	"bytes"
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"promptjudge/internal/evaluation/model"
)

const fileMode = 0o644

// Package is a built archive in both raw and transport form.
type Package struct {
	Tar       []byte
	Transport string
}

// Build archives files and encodes them for the deploy agent.
func Build(files model.NormalizedFileSet) (*Package, error) {
	data, err := BuildTar(files)
	if err != nil {
		return nil, err
	}
	return &Package{Tar: data, Transport: EncodeTransport(data)}, nil
}

// BuildTar writes files into an in-memory tar archive in sorted path order.
// The archive is only returned after the tar footer has been written.
func BuildTar(files model.NormalizedFileSet) ([]byte, error) {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, path := range paths {
		content := []byte(files[path])
		hdr := &tar.Header{
			Name:     path,
			Mode:     fileMode,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
			ModTime:  time.Unix(0, 0),
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("write tar header %s failed: %w", path, err)
		}
		if _, err := tw.Write(content); err != nil {
			return nil, fmt.Errorf("write tar entry %s failed: %w", path, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("finalize tar failed: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeTransport encodes an archive as unpadded URL-safe base64.
func EncodeTransport(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// CompressArtifact zstd-compresses an archive for storage.
func CompressArtifact(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder failed: %w", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}
