package util

import "testing"

func TestSnapshotName(t *testing.T) {
	cases := map[string]string{
		"/backup-storage/granular/20240101T1000": "20240101t1000",
		"/backup-storage/Full-Backup/":           "full-backup",
		"relative/folder":                        "folder",
		"single":                                 "single",
	}
	for folder, want := range cases {
		if got := SnapshotName(folder); got != want {
			t.Fatalf("SnapshotName(%q) = %q, want %q", folder, got, want)
		}
	}
}

func TestIsGranularFolder(t *testing.T) {
	if !IsGranularFolder("/backup-storage/granular/abc") {
		t.Fatal("expected granular folder")
	}
	if IsGranularFolder("/backup-storage/full/abc") {
		t.Fatal("unexpected granular folder")
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"yes", "True", "t", "1", " TRUE "} {
		if !ParseBool(v) {
			t.Fatalf("ParseBool(%q) = false", v)
		}
	}
	for _, v := range []string{"", "no", "false", "0", "on"} {
		if ParseBool(v) {
			t.Fatalf("ParseBool(%q) = true", v)
		}
	}
}
