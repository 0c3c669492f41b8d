package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonewallbooks/storefront/internal/blob"
	"github.com/stonewallbooks/storefront/internal/defaults"
	"github.com/stonewallbooks/storefront/internal/docstore"
	"github.com/stonewallbooks/storefront/internal/domain"
	domainerrors "github.com/stonewallbooks/storefront/internal/errors"
	"github.com/stonewallbooks/storefront/internal/search"
	"github.com/stonewallbooks/storefront/internal/storesync"
)

var (
	anonymous = &domain.Identity{UID: "anon-1", IsAnonymous: true}
	librarian = &domain.Identity{UID: "u-1", Email: "desk@example.com"}
	stranger  = &domain.Identity{UID: "u-2", Email: "someone@example.com"}
)

type fixedIdentity struct {
	id *domain.Identity
}

func (f fixedIdentity) OnIdentityChange(fn func(*domain.Identity)) func() {
	fn(f.id)
	return func() {}
}

type fakeBlobs struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeBlobs) Upload(_ context.Context, objectPath string, data []byte) (*blob.Object, error) {
	if string(data) == "corrupt" {
		return nil, blob.ErrUnsupportedFormat
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, objectPath)
	return &blob.Object{URL: "/media/" + objectPath, Path: objectPath}, nil
}

type uploadCounter struct {
	ok, failed int
}

func (u *uploadCounter) ImageUploaded(ok bool) {
	if ok {
		u.ok++
	} else {
		u.failed++
	}
}

type allowAll struct{}

func (allowAll) Authorize(*domain.Identity) error { return nil }

type fixture struct {
	sync    *storesync.Synchronizer
	catalog *CatalogService
	shop    *ShopService
	desk    *DeskService
	blobs   *fakeBlobs
	uploads *uploadCounter
}

func setupServices(t *testing.T) *fixture {
	t.Helper()

	backend, err := docstore.OpenBadgerInMemory(nil)
	require.NoError(t, err)
	db, err := docstore.New(backend, nil)
	require.NoError(t, err)

	s, err := storesync.New(db, storesync.Options{AppID: "stone-wall-books-test", Defaults: defaults.MustLoad()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, fixedIdentity{id: librarian}) }()
	t.Cleanup(func() {
		cancel()
		<-done
		db.Close()
	})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, s.AwaitSynced(waitCtx))

	f := &fixture{sync: s, blobs: &fakeBlobs{}, uploads: &uploadCounter{}}
	f.catalog = NewCatalogService(s, nil, f.blobs, nil, f.uploads, nil)
	f.shop = NewShopService(s, nil, nil)
	f.desk = NewDeskService(s, nil, nil)
	return f
}

func (f *fixture) await(t *testing.T, version uint64) storesync.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.sync.AwaitVersion(ctx, version))
	return f.sync.Snapshot()
}

func strPtr(s string) *string { return &s }

func TestLibrarianAuthorizer(t *testing.T) {
	f := setupServices(t)
	authz := NewLibrarianAuthorizer(f.sync)

	assert.ErrorIs(t, authz.Authorize(nil), domainerrors.ErrUnauthorized)
	assert.ErrorIs(t, authz.Authorize(anonymous), domainerrors.ErrForbidden)
	assert.NoError(t, authz.Authorize(stranger), "public mode admits any account")
}

func TestSaveBook_ReplacesInPlaceOrAppends(t *testing.T) {
	f := setupServices(t)
	ctx := context.Background()
	before := f.sync.Snapshot().Doc.Catalog
	require.Equal(t, "swb-0001", before[0].ID)

	saved, err := f.catalog.SaveBook(ctx, librarian, BookDraft{
		Book: domain.Book{ID: "swb-0001", Title: "The Old Man and the Sea (2nd printing)", Author: "Ernest Hemingway"},
	})
	require.NoError(t, err)
	doc := f.await(t, saved.Version).Doc

	require.Len(t, doc.Catalog, len(before))
	assert.Equal(t, "swb-0001", doc.Catalog[0].ID)
	assert.Equal(t, "The Old Man and the Sea (2nd printing)", doc.Catalog[0].Title)

	saved, err = f.catalog.SaveBook(ctx, librarian, BookDraft{Book: domain.Book{ID: "swb-0002", Title: "Walden"}})
	require.NoError(t, err)
	doc = f.await(t, saved.Version).Doc

	require.Len(t, doc.Catalog, len(before)+1)
	assert.Equal(t, "swb-0002", doc.Catalog[len(doc.Catalog)-1].ID)
}

func TestSaveBook_AssignsIDAndReconcilesPrice(t *testing.T) {
	f := setupServices(t)
	f.catalog.now = func() time.Time { return time.UnixMilli(1718000000000) }

	saved, err := f.catalog.SaveBook(context.Background(), librarian, BookDraft{
		Book:  domain.Book{Title: "Leaves of Grass", Tags: []string{"Poetry", "Price: $3.00", "Price: $4.00"}},
		Price: "$12.50",
	})
	require.NoError(t, err)

	assert.Equal(t, "swb-1718000000000", saved.Book.ID)
	assert.Equal(t, []string{"Poetry", "Price: $12.50"}, saved.Book.Tags)
	assert.Equal(t, "$12.50", saved.Book.Price)
	assert.NotNil(t, saved.Book.Images)

	doc := f.await(t, saved.Version).Doc
	book, ok := doc.FindBook("swb-1718000000000")
	require.True(t, ok)
	price, ok := book.PriceValue()
	require.True(t, ok)
	assert.InDelta(t, 12.5, price, 0.001)

	saved, err = f.catalog.SaveBook(context.Background(), librarian, BookDraft{Book: book, Price: ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"Poetry"}, saved.Book.Tags)
	assert.Empty(t, saved.Book.Price)
}

func TestSaveBook_SkipsFailedUploads(t *testing.T) {
	f := setupServices(t)
	f.catalog.now = func() time.Time { return time.UnixMilli(1000) }

	saved, err := f.catalog.SaveBook(context.Background(), librarian, BookDraft{
		Book: domain.Book{ID: "swb-0001", Title: "The Old Man and the Sea", Images: []string{"/media/old.jpg"}},
		NewImages: []ImageUpload{
			{Filename: "Front Cover.JPG", Data: []byte("png-bytes")},
			{Filename: "broken.png", Data: []byte("corrupt")},
			{Filename: "spine.png", Data: []byte("png-bytes")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/media/old.jpg",
		"/media/images/swb-0001/1000_front-cover.jpg",
		"/media/images/swb-0001/1000_spine.png",
	}, saved.Book.Images)
	assert.Equal(t, []string{"broken.png"}, saved.FailedUploads)
	assert.Equal(t, 2, f.uploads.ok)
	assert.Equal(t, 1, f.uploads.failed)
}

func TestSaveBook_RejectsInvalidBooksAndActors(t *testing.T) {
	f := setupServices(t)
	ctx := context.Background()

	_, err := f.catalog.SaveBook(ctx, librarian, BookDraft{Book: domain.Book{ID: "swb-9"}})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = f.catalog.SaveBook(ctx, librarian, BookDraft{Book: domain.Book{ID: "swb-9", Title: "X", Condition: "Pristine"}})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = f.catalog.SaveBook(ctx, anonymous, BookDraft{Book: domain.Book{ID: "swb-9", Title: "X"}})
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)

	_, err = f.catalog.SaveBook(ctx, nil, BookDraft{Book: domain.Book{ID: "swb-9", Title: "X"}})
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	assert.Empty(t, f.blobs.paths)
}

func TestDeleteBook_ScrubsFeatured(t *testing.T) {
	f := setupServices(t)
	ctx := context.Background()

	saved, err := f.catalog.SaveBook(ctx, librarian, BookDraft{Book: domain.Book{ID: "swb-0002", Title: "Walden"}})
	require.NoError(t, err)
	f.await(t, saved.Version)

	v, err := f.catalog.AssignFeatured(ctx, librarian, 0, strPtr("swb-0001"))
	require.NoError(t, err)
	f.await(t, v)
	v, err = f.catalog.AssignFeatured(ctx, librarian, 1, strPtr("swb-ghost"))
	require.NoError(t, err)
	f.await(t, v)

	// An unreferenced book leaves featured untouched.
	v, err = f.catalog.DeleteBook(ctx, librarian, "swb-0002")
	require.NoError(t, err)
	doc := f.await(t, v).Doc
	require.Len(t, doc.Featured, 2)
	assert.Equal(t, "swb-0001", *doc.Featured[0])
	assert.Equal(t, "swb-ghost", *doc.Featured[1])

	v, err = f.catalog.DeleteBook(ctx, librarian, "swb-0001")
	require.NoError(t, err)
	doc = f.await(t, v).Doc
	assert.Nil(t, doc.Featured[0])
	assert.Equal(t, "swb-ghost", *doc.Featured[1])
	_, ok := doc.FindBook("swb-0001")
	assert.False(t, ok)

	_, err = f.catalog.DeleteBook(ctx, librarian, "swb-0001")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestAssignFeatured(t *testing.T) {
	f := setupServices(t)
	ctx := context.Background()

	_, err := f.catalog.AssignFeatured(ctx, librarian, 2, strPtr("swb-0001"))
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
	_, err = f.catalog.AssignFeatured(ctx, librarian, -1, nil)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	v, err := f.catalog.AssignFeatured(ctx, librarian, 1, strPtr("swb-missing"))
	require.NoError(t, err)
	f.await(t, v)

	featured := f.catalog.Featured()
	require.Len(t, featured, 2)
	assert.Nil(t, featured[0])
	assert.Nil(t, featured[1], "dangling reference resolves to nothing")

	v, err = f.catalog.AssignFeatured(ctx, librarian, 0, strPtr("swb-0001"))
	require.NoError(t, err)
	f.await(t, v)
	featured = f.catalog.Featured()
	require.NotNil(t, featured[0])
	assert.Equal(t, "swb-0001", featured[0].ID)

	v, err = f.catalog.AssignFeatured(ctx, librarian, 0, nil)
	require.NoError(t, err)
	assert.Nil(t, f.await(t, v).Doc.Featured[0])
}

func TestCatalogService_BookAndSearch(t *testing.T) {
	f := setupServices(t)

	book, err := f.catalog.Book("swb-0001")
	require.NoError(t, err)
	assert.Equal(t, "swb-0001", book.ID)

	_, err = f.catalog.Book("swb-nope")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = f.catalog.Search(context.Background(), search.Params{Query: "sea"})
	assert.ErrorIs(t, err, domainerrors.ErrUnavailable)
}

func TestShopSettings(t *testing.T) {
	f := setupServices(t)
	ctx := context.Background()
	defaultShop := f.sync.Defaults().Shop

	_, err := f.shop.UpdateShopSettings(ctx, librarian, ShopSettings{ContactEmail: "not-an-email"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
	_, err = f.shop.UpdateShopSettings(ctx, librarian, ShopSettings{EbayStoreURL: "ebay store"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	v, err := f.shop.UpdateShopSettings(ctx, librarian, ShopSettings{
		ContactEmail: "books@example.com",
		EbayStoreURL: "https://www.ebay.com/str/example",
	})
	require.NoError(t, err)
	f.await(t, v)
	assert.Equal(t, "books@example.com", f.shop.Shop().ContactEmail)
	assert.Equal(t, defaultShop.Name, f.shop.Shop().Name)

	v, err = f.shop.RestoreShopDefaults(ctx, librarian)
	require.NoError(t, err)
	f.await(t, v)
	assert.Equal(t, defaultShop.ContactEmail, f.shop.Shop().ContactEmail)
	assert.Equal(t, defaultShop.EbayStoreURL, f.shop.Shop().EbayStoreURL)
}

func TestClaimDesk(t *testing.T) {
	f := setupServices(t)
	ctx := context.Background()

	_, err := f.desk.ClaimDesk(ctx, anonymous)
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)
	_, err = f.desk.ClaimDesk(ctx, nil)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	v, err := f.desk.ClaimDesk(ctx, stranger)
	require.NoError(t, err)
	doc := f.await(t, v).Doc
	assert.Equal(t, stranger.Email, doc.Shop.LibrarianEmail)

	_, err = f.desk.ClaimDesk(ctx, librarian)
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyConfigured)

	// Locked mode: only the claimant may write.
	_, err = f.catalog.DeleteBook(ctx, librarian, "swb-0001")
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)
	_, err = f.catalog.AssignFeatured(ctx, stranger, 0, strPtr("swb-0001"))
	assert.NoError(t, err)
}

func TestStorageBoundaryRejectsNonLibrarian(t *testing.T) {
	f := setupServices(t)
	ctx := context.Background()

	v, err := f.desk.ClaimDesk(ctx, stranger)
	require.NoError(t, err)
	f.await(t, v)

	// A service wired without a capability check still cannot write past the store policy.
	open := NewCatalogService(f.sync, allowAll{}, nil, nil, nil, nil)
	_, err = open.DeleteBook(ctx, librarian, "swb-0001")
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)
}

func TestResetStore(t *testing.T) {
	f := setupServices(t)
	ctx := context.Background()

	v, err := f.catalog.DeleteBook(ctx, librarian, "swb-0001")
	require.NoError(t, err)
	f.await(t, v)

	_, err = f.desk.ResetStore(ctx, librarian, false)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	v, err = f.desk.ResetStore(ctx, librarian, true)
	require.NoError(t, err)
	doc := f.await(t, v).Doc
	_, ok := doc.FindBook("swb-0001")
	assert.True(t, ok)
}

func TestOverwriteRaw_RejectsMalformed(t *testing.T) {
	f := setupServices(t)
	before := f.sync.Snapshot()

	for _, text := range []string{`{"catalog": [`, `{"catalog": "nope"}`, `not json`} {
		_, err := f.desk.OverwriteRaw(context.Background(), librarian, text)
		assert.ErrorIs(t, err, domainerrors.ErrValidation, text)
	}

	assert.Equal(t, before.Version, f.sync.Snapshot().Version)
}

func TestOverwriteRaw_RejectsPriceTagEditHiddenByStructuredPrice(t *testing.T) {
	f := setupServices(t)
	before := f.sync.Snapshot()

	text := `{"catalog":[` +
		`{"id":"swb-0001","title":"Walden","price":"$10","tags":["Price: $12"]},` +
		`{"id":"swb-0002","title":"Emma","price":"$8","tags":["Price: $8"]}]}`
	_, err := f.desk.OverwriteRaw(context.Background(), librarian, text)
	require.ErrorIs(t, err, domainerrors.ErrValidation)

	var domainErr *domainerrors.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, map[string][]string{"books": {"swb-0001"}}, domainErr.Details)
	assert.Equal(t, before.Version, f.sync.Snapshot().Version)

	text = `{"catalog":[{"id":"swb-0001","title":"Walden","tags":["Price: $12"]}]}`
	v, err := f.desk.OverwriteRaw(context.Background(), librarian, text)
	require.NoError(t, err)
	price, ok := f.await(t, v).Doc.Catalog[0].PriceValue()
	assert.True(t, ok)
	assert.InDelta(t, 12.0, price, 1e-9)
}

func TestBackupRoundTrip(t *testing.T) {
	f := setupServices(t)
	ctx := context.Background()

	saved, err := f.catalog.SaveBook(ctx, librarian, BookDraft{
		Book:  domain.Book{ID: "swb-0002", Title: "Walden", Author: "Henry David Thoreau", Genre: "Nature"},
		Price: "$9.00",
	})
	require.NoError(t, err)
	v, err := f.catalog.AssignFeatured(ctx, librarian, 1, strPtr("swb-0002"))
	require.NoError(t, err)
	f.await(t, saved.Version)
	before := f.await(t, v)

	backup, err := f.desk.ExportBackup(librarian)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(backup), "{\n  \""))

	v, err = f.desk.OverwriteRaw(ctx, librarian, string(backup))
	require.NoError(t, err)
	after := f.await(t, v)

	assert.Greater(t, after.Version, before.Version)
	assert.Equal(t, before.Doc, after.Doc)
}

func TestImportCatalog(t *testing.T) {
	f := setupServices(t)
	ctx := context.Background()
	originalCategories := f.sync.Snapshot().Doc.Categories

	text := "Item number,Title,eBay category 1 name,Start price\n" +
		"111,Walden by Henry David Thoreau,Books/Nature,9.00\n" +
		"222,Moby Dick,Books/Fiction,12.00\n"

	_, err := f.desk.ImportCatalog(ctx, librarian, text, false)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = f.desk.ImportCatalog(ctx, librarian, "", true)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	res, err := f.desk.ImportCatalog(ctx, librarian, text, true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Books)
	assert.Equal(t, []string{"Books", "Fiction", "Nature"}, res.Categories)

	doc := f.await(t, res.Version).Doc
	require.Len(t, doc.Catalog, 2)
	assert.Equal(t, "swb-111", doc.Catalog[0].ID)
	assert.Equal(t, "Henry David Thoreau", doc.Catalog[0].Author)
	// Merge unions the imported categories with the defaults.
	assert.Subset(t, doc.Categories, []string{"Books", "Fiction", "Nature"})

	// Rows without a category fall back to General.
	res, err = f.desk.ImportCatalog(ctx, librarian, "id,title\nswb-5,Untitled Draft\n", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"General"}, res.Categories)
	doc = f.await(t, res.Version).Doc
	require.Len(t, doc.Catalog, 1)
	assert.Equal(t, "Untitled Draft", doc.Catalog[0].Title)
	assert.Subset(t, doc.Categories, originalCategories)
}

func TestExportCatalogCSV_ReimportsLosslessly(t *testing.T) {
	f := setupServices(t)
	ctx := context.Background()

	saved, err := f.catalog.SaveBook(ctx, librarian, BookDraft{
		Book: domain.Book{
			ID: "swb-0002", Title: "Walden, or Life in the Woods", Author: "Thoreau",
			Category: "Nature", Genre: "Essays", Condition: domain.ConditionVeryGood,
			ShortDescription: "First line\nsecond \"quoted\" line",
		},
		Price: "$9.00",
	})
	require.NoError(t, err)
	before := f.await(t, saved.Version).Doc.Catalog

	out, err := f.desk.ExportCatalogCSV(librarian)
	require.NoError(t, err)

	res, err := f.desk.ImportCatalog(ctx, librarian, out, true)
	require.NoError(t, err)
	after := f.await(t, res.Version).Doc.Catalog

	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Title, after[i].Title)
		assert.Equal(t, before[i].ShortDescription, after[i].ShortDescription)
		assert.Equal(t, before[i].Genre, after[i].Genre)
	}

	_, err = f.desk.ExportCatalogCSV(anonymous)
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)
}

func TestMutators_RefuseWritesBeforeFirstSnapshot(t *testing.T) {
	backend, err := docstore.OpenBadgerInMemory(nil)
	require.NoError(t, err)
	db, err := docstore.New(backend, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	const appID = "stone-wall-books-test"
	ctx := context.Background()
	path := docstore.StoreConfigPath(appID)
	stored := []byte(`{"shop":{"name":"Stone Wall Books","librarianEmail":"desk@example.com"},` +
		`"catalog":[{"id":"swb-0001","title":"Walden"},{"id":"swb-0002","title":"Emma"},{"id":"swb-0003","title":"Persuasion"}]}`)
	_, err = db.SetDocument(ctx, path, stored)
	require.NoError(t, err)

	s, err := storesync.New(db, storesync.Options{AppID: appID, Defaults: defaults.MustLoad()})
	require.NoError(t, err)
	catalog := NewCatalogService(s, nil, nil, nil, nil, nil)
	shop := NewShopService(s, allowAll{}, nil)
	desk := NewDeskService(s, nil, nil)

	_, err = catalog.SaveBook(ctx, librarian, BookDraft{Book: domain.Book{Title: "Emma"}, Price: "$5"})
	assert.ErrorIs(t, err, domainerrors.ErrUnavailable)

	_, err = shop.RestoreShopDefaults(ctx, librarian)
	assert.ErrorIs(t, err, domainerrors.ErrUnavailable, "a permissive authorizer does not bypass the check")

	_, err = desk.OverwriteRaw(ctx, librarian, `{"catalog":[]}`)
	assert.ErrorIs(t, err, domainerrors.ErrUnavailable)

	_, err = desk.ClaimDesk(ctx, stranger)
	assert.ErrorIs(t, err, domainerrors.ErrUnavailable)

	assert.ErrorIs(t, NewLibrarianAuthorizer(s).Authorize(librarian), domainerrors.ErrUnavailable)

	snap, err := db.Get(ctx, path)
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.Version)
	assert.JSONEq(t, string(stored), string(snap.Data))
}
