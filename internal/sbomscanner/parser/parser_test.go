package parser

import "testing"

func TestCargoParser(t *testing.T) {
	data := []byte(`
[[package]]
name = "serde"
version = "1.0.195"

[[package]]
name = "tokio"
version = "1.35.0"
`)
	pkgs, err := CargoParser{}.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("got %d packages, want 2", len(pkgs))
	}
}

func TestNpmParser_PackagesLayout(t *testing.T) {
	data := []byte(`{
		"packages": {
			"": {"version": "1.0.0"},
			"node_modules/lodash": {"version": "4.17.21"},
			"node_modules/@babel/core": {"version": "7.23.0"}
		}
	}`)
	pkgs, err := NpmParser{}.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("got %d packages, want 2 (root entry excluded)", len(pkgs))
	}
}

func TestGoParser_DedupesModAndZipLines(t *testing.T) {
	data := []byte(`github.com/google/uuid v1.6.0 h1:abc=
github.com/google/uuid v1.6.0/go.mod h1:def=
github.com/google/uuid v1.6.0 h1:abc=
`)
	pkgs, err := GoParser{}.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pkgs) != 1 {
		t.Fatalf("got %d packages, want 1", len(pkgs))
	}
}

func TestPipParser_SkipsCommentsAndUnpinned(t *testing.T) {
	data := []byte(`
# a comment
-r base.txt
requests==2.31.0
flask>=2.0
numpy==1.26.0 ; python_version >= "3.9"
`)
	pkgs, err := PipParser{}.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("got %d packages, want 2", len(pkgs))
	}
	if pkgs[1].Version != "1.26.0" {
		t.Fatalf("expected environment marker stripped, got version %q", pkgs[1].Version)
	}
}

func TestForLockfile_RecognizesKnownNames(t *testing.T) {
	if _, ok := ForLockfile("/some/dir/Cargo.lock"); !ok {
		t.Fatal("expected Cargo.lock to be recognized")
	}
	if _, ok := ForLockfile("/some/dir/unknown.txt"); ok {
		t.Fatal("expected unknown.txt to not be recognized")
	}
}
