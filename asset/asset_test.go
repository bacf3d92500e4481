// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package asset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/bvz2000/squirrel/pin"
)

func mustAsset(t *testing.T, name string) *Asset {
	t.Helper()
	a, err := Open(t.TempDir(), name, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return a
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "model.obj")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestHighestVersionOnNewAsset(t *testing.T) {
	a := mustAsset(t, "hero_prop_A")
	v, err := a.HighestVersion()
	if err != nil {
		t.Fatalf("HighestVersion: %v", err)
	}
	if v != "v0000" {
		t.Fatalf("expected v0000 for a nonexistent asset, got %q", v)
	}
}

func TestReserveVersionAllocatesSequentially(t *testing.T) {
	a := mustAsset(t, "hero_prop_A")

	r1, err := a.ReserveVersion()
	if err != nil {
		t.Fatalf("ReserveVersion 1: %v", err)
	}
	if r1.Version != "v0001" {
		t.Fatalf("expected v0001, got %q", r1.Version)
	}

	r2, err := a.ReserveVersion()
	if err != nil {
		t.Fatalf("ReserveVersion 2: %v", err)
	}
	if r2.Version != "v0002" {
		t.Fatalf("expected v0002, got %q", r2.Version)
	}

	if _, err := os.Stat(filepath.Join(r2.VersionDir)); err != nil {
		t.Fatalf("expected version dir to exist: %v", err)
	}
	metaLink := filepath.Join(a.Dir(), ".metadata")
	target, err := os.Readlink(metaLink)
	if err != nil {
		t.Fatalf("Readlink .metadata: %v", err)
	}
	if target != "./.v0002" {
		t.Fatalf("expected .metadata to point at ./.v0002, got %q", target)
	}
}

func TestPublishSetsCurrentAndLatest(t *testing.T) {
	a := mustAsset(t, "hero_prop_A")
	src := writeSource(t, "geo data")

	res, err := a.Publish(PublishInput{Source: src})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.Version != "v0001" {
		t.Fatalf("expected v0001, got %q", res.Version)
	}

	cur, err := pin.Resolve(a.Dir(), pin.Current)
	if err != nil {
		t.Fatalf("Resolve CURRENT: %v", err)
	}
	lat, err := pin.Resolve(a.Dir(), pin.Latest)
	if err != nil {
		t.Fatalf("Resolve LATEST: %v", err)
	}
	if cur != "v0001" || lat != "v0001" {
		t.Fatalf("expected both pins at v0001, got CURRENT=%q LATEST=%q", cur, lat)
	}
}

func TestPublishMergesForwardByDefault(t *testing.T) {
	a := mustAsset(t, "hero_prop_A")

	srcDir := t.TempDir()
	texture := filepath.Join(srcDir, "texture.png")
	model := filepath.Join(srcDir, "model.obj")
	os.WriteFile(texture, []byte("tex-v1"), 0o644)
	os.WriteFile(model, []byte("model-v1"), 0o644)

	if _, err := a.Publish(PublishInput{Source: texture}); err != nil {
		t.Fatalf("Publish 1: %v", err)
	}

	res2, err := a.Publish(PublishInput{Source: model})
	if err != nil {
		t.Fatalf("Publish 2: %v", err)
	}

	if _, err := os.Stat(filepath.Join(a.Dir(), res2.Version, "texture.png")); err != nil {
		t.Fatalf("expected texture.png carried forward into v0002: %v", err)
	}
}

func TestPublishRejectsReservedExtraPin(t *testing.T) {
	a := mustAsset(t, "hero_prop_A")
	src := writeSource(t, "geo data")

	_, err := a.Publish(PublishInput{Source: src, ExtraPins: []string{pin.Current}})
	if err == nil {
		t.Fatalf("expected Publish to reject an explicit CURRENT extra pin")
	}
}

func TestDeleteVersionRefusesPinnedVersion(t *testing.T) {
	a := mustAsset(t, "hero_prop_A")
	src := writeSource(t, "geo data")
	res, err := a.Publish(PublishInput{Source: src})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if err := a.DeleteVersion(res.Version); err == nil {
		t.Fatalf("expected DeleteVersion to refuse a version with CURRENT/LATEST pinned")
	}
}

func TestDeleteVersionPreservesSharedPoolData(t *testing.T) {
	a := mustAsset(t, "hero_prop_A")

	srcDir := t.TempDir()
	shared := filepath.Join(srcDir, "shared.bin")
	os.WriteFile(shared, []byte("shared content"), 0o644)

	if _, err := a.Publish(PublishInput{Source: shared}); err != nil {
		t.Fatalf("Publish 1: %v", err)
	}
	res2, err := a.Publish(PublishInput{Source: shared})
	if err != nil {
		t.Fatalf("Publish 2: %v", err)
	}

	// Unpin v0001 so it can be deleted; v0002 (LATEST/CURRENT) still
	// references the same pool file via merge/re-publish.
	if err := pin.Set(a.Dir(), pin.Current, res2.Version); err != nil {
		t.Fatalf("Set CURRENT: %v", err)
	}
	if err := pin.Set(a.Dir(), pin.Latest, res2.Version); err != nil {
		t.Fatalf("Set LATEST: %v", err)
	}

	if err := a.DeleteVersion("v0001"); err != nil {
		t.Fatalf("DeleteVersion: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(a.Dir(), res2.Version, "shared.bin"))
	if err != nil {
		t.Fatalf("reading surviving version's file: %v", err)
	}
	if string(got) != "shared content" {
		t.Fatalf("unexpected content after deleting the sibling version: %q", got)
	}
}

func TestCollapseKeepsOnlyHighestVersion(t *testing.T) {
	a := mustAsset(t, "hero_prop_A")
	src := writeSource(t, "v1")

	if _, err := a.Publish(PublishInput{Source: src}); err != nil {
		t.Fatalf("Publish 1: %v", err)
	}
	os.WriteFile(src, []byte("v2"), 0o644)
	if _, err := a.Publish(PublishInput{Source: src}); err != nil {
		t.Fatalf("Publish 2: %v", err)
	}

	if err := a.Collapse(false); err != nil {
		t.Fatalf("Collapse: %v", err)
	}

	versions, err := a.listVersions()
	if err != nil {
		t.Fatalf("listVersions: %v", err)
	}
	if len(versions) != 1 || versions[0] != "v0002" {
		t.Fatalf("expected only v0002 to remain, got %v", versions)
	}

	cur, err := pin.Resolve(a.Dir(), pin.Current)
	if err != nil {
		t.Fatalf("Resolve CURRENT: %v", err)
	}
	lat, err := pin.Resolve(a.Dir(), pin.Latest)
	if err != nil {
		t.Fatalf("Resolve LATEST: %v", err)
	}
	if cur != "v0002" || lat != "v0002" {
		t.Fatalf("expected both pins retargeted to v0002, got CURRENT=%q LATEST=%q", cur, lat)
	}
}

// TestCollapseRetargetsExplicitCurrent covers spec.md §4.3's documented legal
// configuration: CURRENT pointed explicitly at a non-latest version with no
// other pins on it. Collapse(false) must retarget CURRENT rather than fail,
// even though CURRENT itself is the only thing referencing the doomed
// version.
func TestCollapseRetargetsExplicitCurrent(t *testing.T) {
	a := mustAsset(t, "hero_prop_A")
	src := writeSource(t, "v1")
	res1, err := a.Publish(PublishInput{Source: src})
	if err != nil {
		t.Fatalf("Publish 1: %v", err)
	}
	os.WriteFile(src, []byte("v2"), 0o644)
	if _, err := a.Publish(PublishInput{Source: src}); err != nil {
		t.Fatalf("Publish 2: %v", err)
	}

	// Explicitly point CURRENT back at v0001, the version collapse will
	// delete.
	if err := pin.Set(a.Dir(), pin.Current, res1.Version); err != nil {
		t.Fatalf("Set CURRENT: %v", err)
	}

	if err := a.Collapse(false); err != nil {
		t.Fatalf("Collapse: %v", err)
	}

	cur, err := pin.Resolve(a.Dir(), pin.Current)
	if err != nil {
		t.Fatalf("Resolve CURRENT: %v", err)
	}
	if cur != "v0002" {
		t.Fatalf("expected CURRENT retargeted to v0002, got %q", cur)
	}
}

// TestCollapseCascadeRetargetsLatestInsteadOfRemoving guards against
// dropping LATEST outright when it points at a doomed version under
// cascadePins: it must be retargeted to the kept version, the same as
// CURRENT, never removed.
func TestCollapseCascadeRetargetsLatestInsteadOfRemoving(t *testing.T) {
	a := mustAsset(t, "hero_prop_A")
	src := writeSource(t, "v1")
	if _, err := a.Publish(PublishInput{Source: src, ExtraPins: []string{"APPROVED"}}); err != nil {
		t.Fatalf("Publish 1: %v", err)
	}
	os.WriteFile(src, []byte("v2"), 0o644)
	if _, err := a.Publish(PublishInput{Source: src}); err != nil {
		t.Fatalf("Publish 2: %v", err)
	}

	if err := a.Collapse(true); err != nil {
		t.Fatalf("Collapse: %v", err)
	}

	lat, err := pin.Resolve(a.Dir(), pin.Latest)
	if err != nil {
		t.Fatalf("Resolve LATEST: %v", err)
	}
	if lat != "v0002" {
		t.Fatalf("expected LATEST retargeted to v0002, got %q", lat)
	}
}

func TestCollapseRefusesWhenExtraPinWouldOrphan(t *testing.T) {
	a := mustAsset(t, "hero_prop_A")
	src := writeSource(t, "v1")
	if _, err := a.Publish(PublishInput{Source: src, ExtraPins: []string{"APPROVED"}}); err != nil {
		t.Fatalf("Publish 1: %v", err)
	}
	os.WriteFile(src, []byte("v2"), 0o644)
	if _, err := a.Publish(PublishInput{Source: src}); err != nil {
		t.Fatalf("Publish 2: %v", err)
	}

	if err := a.Collapse(false); err == nil {
		t.Fatalf("expected Collapse to refuse deleting a version with an extra pin")
	}
}

func TestScrubRemovesIncompletePublish(t *testing.T) {
	a := mustAsset(t, "hero_prop_A")
	if _, err := a.ReserveVersion(); err != nil {
		t.Fatalf("ReserveVersion: %v", err)
	}

	// Simulate a crash after reservation but before the sidecar was ever
	// written, by deleting it out from under the reservation.
	if err := os.RemoveAll(filepath.Join(a.Dir(), ".v0001")); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}

	scrubbed, err := a.Scrub()
	if err != nil {
		t.Fatalf("Scrub: %v", err)
	}
	if len(scrubbed) != 1 || scrubbed[0] != "v0001" {
		t.Fatalf("expected v0001 to be scrubbed, got %v", scrubbed)
	}
	if _, err := os.Stat(filepath.Join(a.Dir(), "v0001")); !os.IsNotExist(err) {
		t.Fatalf("expected v0001 directory to be removed")
	}
}

// TestScrubRemovesReservationWithNoFilesEverWritten covers the second scrub
// signal: createMetadataDir creates the .vNNNN sidecar unconditionally as
// part of ReserveVersion, before Populate ever runs, so a crash between
// reservation and the first file landing leaves a version whose sidecar
// exists but which never resolved a single file into either pool. This is
// the realistic crash shape the other Scrub test can't reach by deleting the
// sidecar out from under a reservation.
func TestScrubRemovesReservationWithNoFilesEverWritten(t *testing.T) {
	a := mustAsset(t, "hero_prop_A")
	if _, err := a.ReserveVersion(); err != nil {
		t.Fatalf("ReserveVersion: %v", err)
	}

	scrubbed, err := a.Scrub()
	if err != nil {
		t.Fatalf("Scrub: %v", err)
	}
	if len(scrubbed) != 1 || scrubbed[0] != "v0001" {
		t.Fatalf("expected v0001 to be scrubbed, got %v", scrubbed)
	}
	if _, err := os.Stat(filepath.Join(a.Dir(), "v0001")); !os.IsNotExist(err) {
		t.Fatalf("expected v0001 directory to be removed")
	}
	if _, err := os.Stat(filepath.Join(a.Dir(), ".v0001")); !os.IsNotExist(err) {
		t.Fatalf("expected .v0001 sidecar to be removed")
	}
}

// TestScrubLeavesCompletedPublishAlone makes sure the emptiness check in
// isIncompletePublish doesn't false-positive on a normal, fully populated
// version.
func TestScrubLeavesCompletedPublishAlone(t *testing.T) {
	a := mustAsset(t, "hero_prop_A")
	src := writeSource(t, "geo data")
	if _, err := a.Publish(PublishInput{Source: src}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	scrubbed, err := a.Scrub()
	if err != nil {
		t.Fatalf("Scrub: %v", err)
	}
	if len(scrubbed) != 0 {
		t.Fatalf("expected nothing scrubbed, got %v", scrubbed)
	}
}

// TestConcurrentPublishAllocatesNoDuplicatesOrGaps exercises spec.md §8's
// concurrent-publisher scenario for real: N goroutines call Publish against
// the same asset directory simultaneously, racing ReserveVersion's mkdir
// loop against each other with real goroutines and a real t.TempDir
// filesystem, not a mock. Every version from v0001 through vNNNN must exist
// exactly once, with no duplicate and no gap.
func TestConcurrentPublishAllocatesNoDuplicatesOrGaps(t *testing.T) {
	const publishers = 10

	parentDir := t.TempDir()
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "model.obj")
	if err := os.WriteFile(src, []byte("geo data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		versions []string
		errs     []error
	)

	start := make(chan struct{})
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := Open(parentDir, "hero_prop_A", nil)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}
			<-start
			res, err := a.Publish(PublishInput{Source: src})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			versions = append(versions, res.Version)
		}()
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		t.Errorf("Publish: %v", err)
	}
	if len(versions) != publishers {
		t.Fatalf("expected %d successful publishes, got %d: %v", publishers, len(versions), versions)
	}

	sort.Strings(versions)
	seen := make(map[string]bool, len(versions))
	for i, v := range versions {
		if seen[v] {
			t.Fatalf("duplicate version allocated: %q", v)
		}
		seen[v] = true
		want := fmt.Sprintf("v%04d", i+1)
		if v != want {
			t.Fatalf("expected contiguous versions v0001..v%04d with no gaps, got %v", publishers, versions)
		}
	}
}
