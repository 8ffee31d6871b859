// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/seongminnpark/Villim/lib/contentref"
	"github.com/seongminnpark/Villim/lib/directory"
	"github.com/seongminnpark/Villim/lib/principal"
)

var (
	testOwner = principal.MustParse("owner/registry")
	testHost  = principal.MustParse("host/alice")
	testAdmin = principal.MustParse("host/bob")
	stranger  = principal.MustParse("host/mallory")
	deviceSvc = principal.MustParse("service/device")
)

// recordingNotifier captures creation notifications for assertions.
type recordingNotifier struct {
	creations []Creation
}

func (n *recordingNotifier) ListingCreated(creation Creation) {
	n.creations = append(n.creations, creation)
}

func newTestRegistry(t *testing.T, options Options) *Registry {
	t.Helper()
	reg, err := New(testOwner, options)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return reg
}

func testDirectory() *directory.Static {
	return directory.NewStatic(map[string]principal.ID{"device": deviceSvc}, nil)
}

func mustRegister(t *testing.T, reg *Registry, ref string, grid GridID, caller principal.ID) ID {
	t.Helper()
	id, err := reg.Register(contentref.Ref(ref), grid, caller)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return id
}

func TestNewRequiresOwner(t *testing.T) {
	if _, err := New("", Options{}); err == nil {
		t.Error("New accepted an empty owner principal")
	}
}

func TestRegisterAssignsSequentialIDs(t *testing.T) {
	reg := newTestRegistry(t, Options{})

	for want := ID(1); want <= 5; want++ {
		got := mustRegister(t, reg, "h", 7, testHost)
		if got != want {
			t.Fatalf("registration %d returned id %d", want, got)
		}
	}
	if reg.Len() != 5 {
		t.Errorf("Len() = %d, want 5", reg.Len())
	}
}

func TestRegisterThenGet(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	id := mustRegister(t, reg, "h1", 7, testHost)

	listing, err := reg.GetListing(id)
	if err != nil {
		t.Fatalf("GetListing failed: %v", err)
	}
	if string(listing.ContentRef) != "h1" {
		t.Errorf("ContentRef = %q, want %q", listing.ContentRef, "h1")
	}
	if listing.Host != testHost {
		t.Errorf("Host = %q, want %q", listing.Host, testHost)
	}
	if !listing.Active {
		t.Error("new listing should be active")
	}
	if listing.Grid != 7 {
		t.Errorf("Grid = %d, want 7", listing.Grid)
	}
	if len(listing.Administrators) != 1 || listing.Administrators[0] != testHost {
		t.Errorf("Administrators = %v, want [%s]", listing.Administrators, testHost)
	}
}

func TestRegisterStoresEmptyContentRefVerbatim(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	id := mustRegister(t, reg, "", 1, testHost)

	listing, err := reg.GetListing(id)
	if err != nil {
		t.Fatalf("GetListing failed: %v", err)
	}
	if len(listing.ContentRef) != 0 {
		t.Errorf("ContentRef = %q, want empty", listing.ContentRef)
	}
}

func TestRegisterRejectsEmptyCaller(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	if _, err := reg.Register(contentref.Ref("h"), 1, ""); err == nil {
		t.Error("Register accepted an empty caller")
	}
	if reg.Len() != 0 {
		t.Error("failed registration left state behind")
	}
}

func TestRegisterEmitsCreationExactlyOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	reg := newTestRegistry(t, Options{Notifier: notifier})

	id := mustRegister(t, reg, "h1", 7, testHost)

	if len(notifier.creations) != 1 {
		t.Fatalf("got %d creation notifications, want 1", len(notifier.creations))
	}
	creation := notifier.creations[0]
	if creation.ID != id || creation.Host != testHost || creation.Grid != 7 {
		t.Errorf("creation = %+v, want {ID:%d Host:%s Grid:7}", creation, id, testHost)
	}
}

func TestFailedRegisterEmitsNothing(t *testing.T) {
	notifier := &recordingNotifier{}
	reg := newTestRegistry(t, Options{Notifier: notifier})

	if _, err := reg.Register(contentref.Ref("h"), 1, ""); err == nil {
		t.Fatal("Register accepted an empty caller")
	}
	if len(notifier.creations) != 0 {
		t.Errorf("failed registration emitted %d notifications", len(notifier.creations))
	}
}

func TestEditMovesGridBucket(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	id := mustRegister(t, reg, "h1", 7, testHost)

	if err := reg.Edit(id, contentref.Ref("h2"), 9, testHost); err != nil {
		t.Fatalf("Edit failed: %v", err)
	}

	if slices.Contains(reg.ListingsInGrid(7), id) {
		t.Error("bucket 7 still contains the listing after the move")
	}
	if !slices.Contains(reg.ListingsInGrid(9), id) {
		t.Error("bucket 9 does not contain the listing after the move")
	}

	listing, err := reg.GetListing(id)
	if err != nil {
		t.Fatalf("GetListing failed: %v", err)
	}
	if string(listing.ContentRef) != "h2" {
		t.Errorf("ContentRef = %q, want %q", listing.ContentRef, "h2")
	}
	if listing.Grid != 9 {
		t.Errorf("Grid = %d, want 9", listing.Grid)
	}
}

func TestEditContentOnlyKeepsBucket(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	id := mustRegister(t, reg, "h1", 7, testHost)

	if err := reg.Edit(id, contentref.Ref("h2"), 7, testHost); err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if !slices.Contains(reg.ListingsInGrid(7), id) {
		t.Error("listing left bucket 7 on a content-only edit")
	}
}

func TestEditByGrantedAdministrator(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	id := mustRegister(t, reg, "h1", 7, testHost)

	if _, err := reg.AddAdministrator(id, testAdmin, testHost); err != nil {
		t.Fatalf("AddAdministrator failed: %v", err)
	}
	if err := reg.Edit(id, contentref.Ref("h2"), 9, testAdmin); err != nil {
		t.Fatalf("Edit by granted administrator failed: %v", err)
	}
}

func TestEditByNonAdministratorLeavesStateUnchanged(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	id := mustRegister(t, reg, "h1", 7, testHost)

	err := reg.Edit(id, contentref.Ref("h2"), 9, stranger)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Edit error = %v, want ErrUnauthorized", err)
	}

	listing, getErr := reg.GetListing(id)
	if getErr != nil {
		t.Fatalf("GetListing failed: %v", getErr)
	}
	if string(listing.ContentRef) != "h1" || listing.Grid != 7 {
		t.Errorf("rejected edit mutated state: ref=%q grid=%d", listing.ContentRef, listing.Grid)
	}
	if !slices.Contains(reg.ListingsInGrid(7), id) {
		t.Error("rejected edit disturbed the grid index")
	}
	if len(reg.ListingsInGrid(9)) != 0 {
		t.Error("rejected edit populated the target bucket")
	}
}

func TestEditUnknownListingNotFound(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	err := reg.Edit(1, contentref.Ref("h"), 1, testHost)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Edit error = %v, want ErrNotFound", err)
	}
}

func TestAddAdministratorDuplicateIsNoOp(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	id := mustRegister(t, reg, "h1", 7, testHost)

	added, err := reg.AddAdministrator(id, testAdmin, testHost)
	if err != nil || !added {
		t.Fatalf("first AddAdministrator = (%v, %v), want (true, nil)", added, err)
	}

	added, err = reg.AddAdministrator(id, testAdmin, testHost)
	if err != nil {
		t.Fatalf("duplicate AddAdministrator failed: %v", err)
	}
	if added {
		t.Error("duplicate AddAdministrator reported success")
	}

	listing, _ := reg.GetListing(id)
	if len(listing.Administrators) != 2 {
		t.Errorf("administrator count = %d, want 2", len(listing.Administrators))
	}
}

func TestAdministratorCannotGrant(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	id := mustRegister(t, reg, "h1", 7, testHost)

	if _, err := reg.AddAdministrator(id, testAdmin, testHost); err != nil {
		t.Fatalf("AddAdministrator failed: %v", err)
	}

	// Edit rights do not include grant rights: granting is host-only.
	_, err := reg.AddAdministrator(id, stranger, testAdmin)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("grant by administrator error = %v, want ErrUnauthorized", err)
	}
}

func TestRemoveAdministratorRevokesEditRights(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	id := mustRegister(t, reg, "h1", 7, testHost)

	if _, err := reg.AddAdministrator(id, testAdmin, testHost); err != nil {
		t.Fatalf("AddAdministrator failed: %v", err)
	}
	removed, err := reg.RemoveAdministrator(id, testAdmin, testHost)
	if err != nil || !removed {
		t.Fatalf("RemoveAdministrator = (%v, %v), want (true, nil)", removed, err)
	}

	err = reg.Edit(id, contentref.Ref("h2"), 7, testAdmin)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Edit after revocation error = %v, want ErrUnauthorized", err)
	}
}

func TestRemoveAdministratorMissingReturnsFalse(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	id := mustRegister(t, reg, "h1", 7, testHost)

	removed, err := reg.RemoveAdministrator(id, testAdmin, testHost)
	if err != nil {
		t.Fatalf("RemoveAdministrator failed: %v", err)
	}
	if removed {
		t.Error("removing an absent administrator reported success")
	}
}

func TestHostRetainsAuthorityAfterSelfRemoval(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	id := mustRegister(t, reg, "h1", 7, testHost)

	// The host may empty the administrator list entirely, itself
	// included.
	removed, err := reg.RemoveAdministrator(id, testHost, testHost)
	if err != nil || !removed {
		t.Fatalf("self-removal = (%v, %v), want (true, nil)", removed, err)
	}
	listing, _ := reg.GetListing(id)
	if len(listing.Administrators) != 0 {
		t.Fatalf("administrators = %v, want empty", listing.Administrators)
	}

	// Host authority survives: granting still works.
	added, err := reg.AddAdministrator(id, testAdmin, testHost)
	if err != nil || !added {
		t.Errorf("grant after self-removal = (%v, %v), want (true, nil)", added, err)
	}

	// Edit authority does not: the host is no longer an administrator.
	if err := reg.Edit(id, contentref.Ref("h2"), 7, testHost); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("host edit after self-removal error = %v, want ErrUnauthorized", err)
	}
}

func TestGetListingOutOfRange(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	mustRegister(t, reg, "h1", 7, testHost)

	for _, id := range []ID{0, 2} { // 2 == nextID+1
		if _, err := reg.GetListing(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetListing(%d) error = %v, want ErrNotFound", id, err)
		}
	}
}

func TestTeardownByNonOwnerLeavesListingsIntact(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	id := mustRegister(t, reg, "h1", 7, testHost)

	err := reg.Teardown(testHost)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Teardown by non-owner error = %v, want ErrUnauthorized", err)
	}
	if _, err := reg.GetListing(id); err != nil {
		t.Errorf("listing lost after rejected teardown: %v", err)
	}
}

func TestTeardownErasesEverythingAndResetsCounter(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	first := mustRegister(t, reg, "h1", 7, testHost)
	second := mustRegister(t, reg, "h2", 9, testAdmin)

	if err := reg.Teardown(testOwner); err != nil {
		t.Fatalf("Teardown failed: %v", err)
	}

	for _, id := range []ID{first, second} {
		if _, err := reg.GetListing(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetListing(%d) after teardown error = %v, want ErrNotFound", id, err)
		}
	}
	if reg.Len() != 0 {
		t.Errorf("Len() after teardown = %d, want 0", reg.Len())
	}
	if got := reg.ListingsByOwner(testHost); got != nil {
		t.Errorf("owner index after teardown = %v, want nil", got)
	}
	if got := reg.ListingsInGrid(7); got != nil {
		t.Errorf("grid index after teardown = %v, want nil", got)
	}

	// The counter reset is the deliberately chosen post-teardown
	// behavior: a rebuilt registry starts over at id 1.
	if got := mustRegister(t, reg, "h3", 1, testHost); got != 1 {
		t.Errorf("first post-teardown id = %d, want 1", got)
	}
}

func TestSetDeviceRefs(t *testing.T) {
	reg := newTestRegistry(t, Options{Directory: testDirectory()})
	id := mustRegister(t, reg, "h1", 7, testHost)

	devices := []principal.ID{
		principal.MustParse("device/lock-1"),
		principal.MustParse("device/thermostat-2"),
	}
	if err := reg.SetDeviceRefs(id, devices, deviceSvc); err != nil {
		t.Fatalf("SetDeviceRefs failed: %v", err)
	}

	got, err := reg.Devices(id)
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	if !slices.Equal(got, devices) {
		t.Errorf("Devices = %v, want %v", got, devices)
	}
}

func TestSetDeviceRefsUntrustedCaller(t *testing.T) {
	reg := newTestRegistry(t, Options{Directory: testDirectory()})
	id := mustRegister(t, reg, "h1", 7, testHost)

	err := reg.SetDeviceRefs(id, nil, stranger)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("SetDeviceRefs by untrusted caller error = %v, want ErrUnauthorized", err)
	}
}

func TestSetDeviceRefsWithoutDirectory(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	id := mustRegister(t, reg, "h1", 7, testHost)

	err := reg.SetDeviceRefs(id, nil, deviceSvc)
	if !errors.Is(err, ErrUninitialized) {
		t.Errorf("SetDeviceRefs without directory error = %v, want ErrUninitialized", err)
	}
}

func TestBindDeviceService(t *testing.T) {
	reg := newTestRegistry(t, Options{Directory: testDirectory()})

	if err := reg.BindDeviceService("device", testOwner); err != nil {
		t.Fatalf("BindDeviceService failed: %v", err)
	}
	if got := reg.DeviceService(); got != deviceSvc {
		t.Errorf("DeviceService = %q, want %q", got, deviceSvc)
	}
}

func TestBindDeviceServiceNonOwner(t *testing.T) {
	reg := newTestRegistry(t, Options{Directory: testDirectory()})
	err := reg.BindDeviceService("device", testHost)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("BindDeviceService by non-owner error = %v, want ErrUnauthorized", err)
	}
}

func TestBindDeviceServiceUnknownCode(t *testing.T) {
	reg := newTestRegistry(t, Options{Directory: testDirectory()})
	err := reg.BindDeviceService("search", testOwner)
	if !errors.Is(err, directory.ErrUnknownService) {
		t.Errorf("BindDeviceService(search) error = %v, want ErrUnknownService", err)
	}
}

func TestBindDeviceServiceWithoutDirectory(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	err := reg.BindDeviceService("device", testOwner)
	if !errors.Is(err, ErrUninitialized) {
		t.Errorf("BindDeviceService without directory error = %v, want ErrUninitialized", err)
	}
}

func TestOwnerAndGridViews(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	a := mustRegister(t, reg, "a", 7, testHost)
	b := mustRegister(t, reg, "b", 9, testHost)
	c := mustRegister(t, reg, "c", 7, testAdmin)

	if got := reg.ListingsByOwner(testHost); !slices.Equal(got, []ID{a, b}) {
		t.Errorf("ListingsByOwner(host) = %v, want [%d %d]", got, a, b)
	}
	if got := reg.ListingsInGrid(7); !slices.Equal(got, []ID{a, c}) {
		t.Errorf("ListingsInGrid(7) = %v, want [%d %d]", got, a, c)
	}
	if got := reg.ListingsInGrid(42); got != nil {
		t.Errorf("ListingsInGrid(42) = %v, want nil", got)
	}
}

func TestStats(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	mustRegister(t, reg, "a", 7, testHost)
	mustRegister(t, reg, "b", 7, testHost)
	mustRegister(t, reg, "c", 9, testAdmin)

	stats := reg.Stats()
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.ByGrid[7] != 2 || stats.ByGrid[9] != 1 {
		t.Errorf("ByGrid = %v, want map[7:2 9:1]", stats.ByGrid)
	}
}

func TestExport(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	mustRegister(t, reg, "a", 7, testHost)
	mustRegister(t, reg, "b", 9, testAdmin)

	if _, err := reg.Export(testHost); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Export by non-owner error = %v, want ErrUnauthorized", err)
	}

	listings, err := reg.Export(testOwner)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("exported %d listings, want 2", len(listings))
	}
	if listings[0].ID != 1 || listings[1].ID != 2 {
		t.Errorf("export order = [%d %d], want [1 2]", listings[0].ID, listings[1].ID)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	id := mustRegister(t, reg, "h1", 7, testHost)

	listing, err := reg.GetListing(id)
	if err != nil {
		t.Fatalf("GetListing failed: %v", err)
	}

	// Mutating the snapshot must not reach registry state.
	listing.ContentRef[0] = 'X'
	listing.Administrators[0] = stranger

	fresh, err := reg.GetListing(id)
	if err != nil {
		t.Fatalf("GetListing failed: %v", err)
	}
	if string(fresh.ContentRef) != "h1" {
		t.Errorf("snapshot mutation leaked into content ref: %q", fresh.ContentRef)
	}
	if fresh.Administrators[0] != testHost {
		t.Errorf("snapshot mutation leaked into administrators: %v", fresh.Administrators)
	}
}

func TestConcurrentRegistration(t *testing.T) {
	reg := newTestRegistry(t, Options{})

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	ids := make([][]ID, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := reg.Register(contentref.Ref("h"), GridID(w), testHost)
				if err != nil {
					t.Errorf("Register failed: %v", err)
					return
				}
				ids[w] = append(ids[w], id)
			}
		}(w)
	}
	wg.Wait()

	// Every id is unique and the full range [1, workers*perWorker] is
	// covered — the write lock serializes allocation.
	seen := make(map[ID]struct{})
	for _, workerIDs := range ids {
		for _, id := range workerIDs {
			if _, duplicate := seen[id]; duplicate {
				t.Fatalf("id %d allocated twice", id)
			}
			seen[id] = struct{}{}
		}
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("allocated %d unique ids, want %d", len(seen), workers*perWorker)
	}
	for id := ID(1); id <= workers*perWorker; id++ {
		if _, exists := seen[id]; !exists {
			t.Fatalf("id %d never allocated", id)
		}
	}
}
