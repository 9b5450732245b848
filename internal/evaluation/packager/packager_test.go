package packager

import (
	"archive/tar"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"

	"promptjudge/internal/evaluation/model"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/App.js", "src/App.js"},
		{"/components/Button.jsx", "src/components/Button.jsx"},
		{"/package.json", "package.json"},
		{"/public/index.html", "public/index.html"},
		{"/publicity.js", "src/publicity.js"},
		{"/nested/package.json", "src/nested/package.json"},
		{"styles.css", "src/styles.css"},
	}
	for _, tc := range cases {
		if got := NormalizePath(tc.in); got != tc.want {
			t.Fatalf("NormalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeResolvesCodeObjects(t *testing.T) {
	hidden := true
	files := map[string]model.FileContent{
		"/App.js":            {Code: "app"},
		"/index.js":          {Code: "index", Hidden: &hidden},
		"/public/index.html": {Code: "<html/>"},
	}
	got := Normalize(files)
	want := model.NormalizedFileSet{
		"src/App.js":        "app",
		"src/index.js":      "index",
		"public/index.html": "<html/>",
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected size: %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("path %s: got %q want %q", k, got[k], v)
		}
	}
}

func TestNormalizeRewritesManifest(t *testing.T) {
	files := map[string]model.FileContent{
		"/package.json": {Code: `{"name":"mine","version":"9.9.9","dependencies":{"react":"^18.0.0"},"scripts":{"lint":"eslint ."}}`},
	}
	got := Normalize(files)

	var manifest map[string]interface{}
	if err := json.Unmarshal([]byte(got["package.json"]), &manifest); err != nil {
		t.Fatalf("rewritten manifest is not json: %v", err)
	}
	if manifest["name"] != manifestName || manifest["version"] != manifestVersion || manifest["private"] != true {
		t.Fatalf("metadata not pinned: %v", manifest)
	}
	scripts, ok := manifest["scripts"].(map[string]interface{})
	if !ok {
		t.Fatalf("scripts missing: %v", manifest)
	}
	if _, ok := scripts["lint"]; ok {
		t.Fatalf("scripts block should be replaced, got %v", scripts)
	}
	if scripts["build"] != "react-scripts build" {
		t.Fatalf("unexpected build script: %v", scripts["build"])
	}
	deps, _ := manifest["dependencies"].(map[string]interface{})
	if deps["react"] != "^18.0.0" {
		t.Fatalf("dependencies should be preserved: %v", manifest)
	}
}

func TestNormalizeKeepsInvalidManifest(t *testing.T) {
	files := map[string]model.FileContent{"/package.json": {Code: "{not json"}}
	got := Normalize(files)
	if got["package.json"] != "{not json" {
		t.Fatalf("invalid manifest should be left unchanged, got %q", got["package.json"])
	}
}

func TestRewriteManifestIgnoresNonObjects(t *testing.T) {
	for _, in := range []string{"null", "[1,2]", `"text"`} {
		if got := RewriteManifest(in); got != in {
			t.Fatalf("RewriteManifest(%q) = %q", in, got)
		}
	}
}

func readTar(t *testing.T, data []byte) (map[string]string, []string) {
	t.Helper()
	tr := tar.NewReader(bytes.NewReader(data))
	files := map[string]string{}
	var order []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read tar: %v", err)
		}
		if hdr.Typeflag != tar.TypeReg || hdr.Mode != fileMode {
			t.Fatalf("unexpected header for %s: %+v", hdr.Name, hdr)
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("read entry: %v", err)
		}
		if int64(len(body)) != hdr.Size {
			t.Fatalf("size mismatch for %s", hdr.Name)
		}
		files[hdr.Name] = string(body)
		order = append(order, hdr.Name)
	}
	return files, order
}

func TestBuildTarPreservesContent(t *testing.T) {
	files := model.NormalizedFileSet{
		"src/App.js":        "export default function App() { return 'héllo'; }",
		"public/index.html": "<div id=\"root\"></div>",
		"package.json":      "{}",
		"src/empty.css":     "",
	}
	data, err := BuildTar(files)
	if err != nil {
		t.Fatalf("BuildTar failed: %v", err)
	}
	got, order := readTar(t, data)
	for path, content := range files {
		if got[path] != content {
			t.Fatalf("content mismatch for %s", path)
		}
	}
	want := []string{"package.json", "public/index.html", "src/App.js", "src/empty.css"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("entries not sorted: %v", order)
		}
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	files := model.NormalizedFileSet{"b.js": "b", "a.js": "a"}
	first, err := Build(files)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, err := Build(files)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if first.Transport != second.Transport {
		t.Fatalf("archives differ between runs")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(first.Transport)
	if err != nil {
		t.Fatalf("transport is not raw url base64: %v", err)
	}
	if !bytes.Equal(decoded, first.Tar) {
		t.Fatalf("transport does not decode to the archive")
	}
}

func TestCompressArtifact(t *testing.T) {
	data, err := BuildTar(model.NormalizedFileSet{"src/App.js": "app"})
	if err != nil {
		t.Fatalf("BuildTar failed: %v", err)
	}
	compressed, err := CompressArtifact(data)
	if err != nil {
		t.Fatalf("CompressArtifact failed: %v", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	defer decoder.Close()
	plain, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(plain, data) {
		t.Fatalf("round trip mismatch")
	}
}
